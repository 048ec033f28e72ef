package identity

import (
	"context"
	"errors"
	"testing"

	"accord/internal/ledger"
	"accord/internal/model"
)

// sessionStore covers the slice of the Store the resolver touches.
type sessionStore struct {
	wallets  map[string]*model.Wallet
	sessions map[string]*model.Session
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		wallets:  map[string]*model.Wallet{},
		sessions: map[string]*model.Session{},
	}
}

func (s *sessionStore) Wallet(ctx context.Context, userID string) (*model.Wallet, error) {
	w, ok := s.wallets[userID]
	if !ok {
		w = &model.Wallet{OwnerID: userID}
		s.wallets[userID] = w
	}
	return w, nil
}

func (s *sessionStore) PutSession(ctx context.Context, sess *model.Session) error {
	s.sessions[sess.Token] = sess
	return nil
}

func (s *sessionStore) Session(ctx context.Context, token string) (*model.Session, error) {
	sess, ok := s.sessions[token]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return sess, nil
}

func (s *sessionStore) AdjustBalance(ctx context.Context, userID string, delta int64) (int64, error) {
	panic("not used")
}
func (s *sessionStore) CreateTransfer(ctx context.Context, t *model.Transfer) error {
	panic("not used")
}
func (s *sessionStore) Transfer(ctx context.Context, id string) (*model.Transfer, error) {
	panic("not used")
}
func (s *sessionStore) ListTransfers(ctx context.Context, userID string, f ledger.ListFilter) ([]model.Transfer, error) {
	panic("not used")
}
func (s *sessionStore) Settle(ctx context.Context, id string, to model.TransferStatus, mv *ledger.Movement) (*model.Transfer, error) {
	panic("not used")
}

func TestCreateSessionAndResolve(t *testing.T) {
	st := newSessionStore()
	r := NewResolver(st)
	ctx := context.Background()

	sess, err := r.CreateSession(ctx, "alice")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.Token == "" {
		t.Fatal("empty token issued")
	}
	if _, ok := st.wallets["alice"]; !ok {
		t.Error("wallet not provisioned at first login")
	}

	userID, err := r.Resolve(ctx, sess.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if userID != "alice" {
		t.Errorf("resolved user = %q, want alice", userID)
	}
}

func TestResolve_UnknownToken(t *testing.T) {
	r := NewResolver(newSessionStore())
	if _, err := r.Resolve(context.Background(), "nope"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateSession_EmptyUser(t *testing.T) {
	r := NewResolver(newSessionStore())
	if _, err := r.CreateSession(context.Background(), ""); !errors.Is(err, ledger.ErrInvalidParticipant) {
		t.Errorf("err = %v, want ErrInvalidParticipant", err)
	}
}
