package ledger

import (
	"context"

	"accord/internal/model"
)

// Role selects which side of a transfer a user must occupy in a listing.
type Role string

const (
	RoleAny   Role = "any"
	RolePayer Role = "payer"
	RolePayee Role = "payee"
)

// ListFilter narrows ListTransfers. Zero values mean "no filter".
type ListFilter struct {
	Role   Role
	Status model.TransferStatus
}

// Movement is the balance mutation applied when a transfer is accepted.
// Either side may be empty for an external deposit or withdrawal.
type Movement struct {
	PayerID string
	PayeeID string
	Amount  int64
}

// Store is the persistence boundary shared by the remote-backed path
// (Postgres) and the local durable cache (Redis). Implementations must
// serialize balance adjustments per wallet and apply Settle via an atomic
// compare-and-set on status: of two concurrent resolutions exactly one
// commits, the other observes ErrInvalidTransition.
type Store interface {
	// Wallet returns the balance record for a user, provisioning a zero
	// balance on first access.
	Wallet(ctx context.Context, userID string) (*model.Wallet, error)

	// AdjustBalance applies a signed delta atomically and returns the new
	// balance. A delta that would go negative fails with
	// ErrInsufficientFunds and leaves the balance unchanged.
	AdjustBalance(ctx context.Context, userID string, delta int64) (int64, error)

	CreateTransfer(ctx context.Context, t *model.Transfer) error
	Transfer(ctx context.Context, id string) (*model.Transfer, error)
	ListTransfers(ctx context.Context, userID string, f ListFilter) ([]model.Transfer, error)

	// Settle moves a pending transfer to a terminal status, stamps
	// resolved_at and applies the movement (nil for decline) all-or-nothing.
	// ErrInsufficientFunds leaves the transfer pending and untouched.
	Settle(ctx context.Context, id string, to model.TransferStatus, mv *Movement) (*model.Transfer, error)

	PutSession(ctx context.Context, s *model.Session) error
	Session(ctx context.Context, token string) (*model.Session, error)
}
