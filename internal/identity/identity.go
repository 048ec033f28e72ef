// Package identity maps opaque session tokens to user ids. The ledger
// trusts the resolved id as the acting party for authorization checks.
package identity

import (
	"context"
	"time"

	"github.com/google/uuid"

	"accord/internal/ledger"
	"accord/internal/model"
)

type Resolver struct {
	store ledger.Store
}

func NewResolver(store ledger.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the user id behind a session token, or
// ledger.ErrNotFound for an unknown token.
func (r *Resolver) Resolve(ctx context.Context, token string) (string, error) {
	sess, err := r.store.Session(ctx, token)
	if err != nil {
		return "", err
	}
	return sess.UserID, nil
}

// CreateSession issues a fresh token for a user and provisions their
// wallet so first-login surfaces have a balance to show.
func (r *Resolver) CreateSession(ctx context.Context, userID string) (*model.Session, error) {
	if userID == "" {
		return nil, ledger.ErrInvalidParticipant
	}
	if _, err := r.store.Wallet(ctx, userID); err != nil {
		return nil, err
	}

	sess := &model.Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.PutSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}
