package ledger

import "errors"

var (
	// ErrInvalidAmount rejects non-positive amounts before anything is persisted.
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	// ErrInvalidParticipant rejects a missing or self-referential counterparty.
	ErrInvalidParticipant = errors.New("invalid counterparty")
	// ErrInsufficientFunds is raised at settlement time. The transfer stays
	// pending so the payer can retry after funding.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrForbidden means the acting user is not the designated approver.
	ErrForbidden = errors.New("not allowed to resolve this transfer")
	// ErrNotFound means an unknown transfer, wallet or session id.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition means the transfer already left the pending state,
	// including losing a race against a concurrent accept/decline.
	ErrInvalidTransition = errors.New("transfer is no longer pending")
)
