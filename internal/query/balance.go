package query

import (
	"github.com/google/uuid"
)

// BalanceResponse represents user balance state for API queries.
type BalanceResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Asset  string    `json:"asset"`

	// Ledger balances (from journal entries)
	CashBalance       int64 `json:"cash_balance"`       // free cash
	LockedInPositions int64 `json:"locked_in_positions"` // taker escrows held by this user's open positions
	Withdrawable      int64 `json:"withdrawable"`        // settled claims not yet withdrawn

	// Metadata
	AsOfSequence int64 `json:"as_of_sequence"` // last applied event sequence
}
