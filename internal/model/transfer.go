package model

import "time"

type TransferKind string

const (
	KindSend    TransferKind = "send"
	KindRequest TransferKind = "request"
)

type TransferStatus string

const (
	StatusPending  TransferStatus = "pending"
	StatusAccepted TransferStatus = "accepted"
	StatusDeclined TransferStatus = "declined"
)

// Terminal reports whether no further status transition is allowed.
func (s TransferStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusDeclined
}

// Transfer is a proposed or resolved movement of funds. FromUserID is always
// the payer and ToUserID always the payee; Kind only records which side
// initiated. Exactly one of the two may be nil for an external deposit
// (payer absent) or withdrawal (payee absent).
type Transfer struct {
	ID         string         `json:"id"`
	FromUserID *string        `json:"from_user_id,omitempty"`
	ToUserID   *string        `json:"to_user_id,omitempty"`
	Amount     int64          `json:"amount"`
	Purpose    string         `json:"purpose,omitempty"`
	Kind       TransferKind   `json:"kind"`
	Status     TransferStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

// Payer returns the debited side, if present.
func (t *Transfer) Payer() (string, bool) {
	if t.FromUserID == nil {
		return "", false
	}
	return *t.FromUserID, true
}

// Payee returns the credited side, if present.
func (t *Transfer) Payee() (string, bool) {
	if t.ToUserID == nil {
		return "", false
	}
	return *t.ToUserID, true
}

// Approver returns the user allowed to accept or decline the transfer:
// the payee for a send, the payer for a request, and the sole present
// participant for an external movement.
func (t *Transfer) Approver() string {
	if t.FromUserID == nil {
		return *t.ToUserID
	}
	if t.ToUserID == nil {
		return *t.FromUserID
	}
	if t.Kind == KindRequest {
		return *t.FromUserID
	}
	return *t.ToUserID
}

// Participants returns the present user ids, payer first.
func (t *Transfer) Participants() []string {
	var ids []string
	if t.FromUserID != nil {
		ids = append(ids, *t.FromUserID)
	}
	if t.ToUserID != nil {
		ids = append(ids, *t.ToUserID)
	}
	return ids
}

// CreateTransferRequest is the payload for opening a transfer against a
// counterparty. For KindSend the acting user is the payer, for KindRequest
// the payee.
type CreateTransferRequest struct {
	CounterpartyID string       `json:"counterparty_id"`
	Amount         int64        `json:"amount"`
	Purpose        string       `json:"purpose"`
	Kind           TransferKind `json:"kind"`
}

// ChangeEvent is published after every committed ledger mutation. Bridge
// consumers must treat it as a hint to re-fetch, not as authoritative state;
// the mirror worker uses the embedded record to keep the offline cache warm.
type ChangeEvent struct {
	Transfer     Transfer  `json:"transfer"`
	Participants []string  `json:"participants"`
	OccurredAt   time.Time `json:"occurred_at"`
}
