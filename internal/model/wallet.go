package model

import "time"

// Wallet holds one balance per user in minor units of the base currency.
// Balances are mutated only through transfer settlement and never go
// negative.
type Wallet struct {
	OwnerID   string    `json:"owner_id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session maps an opaque client token to a user id. The ledger trusts the
// resolved user id as the acting party for authorization checks.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
