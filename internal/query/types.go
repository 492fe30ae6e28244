package query

import "github.com/google/uuid"

// PositionResponse represents a paired position for API queries.
type PositionResponse struct {
	PositionID         uuid.UUID `json:"position_id"`
	ProviderPositionID uuid.UUID `json:"provider_position_id"`
	Pair               string    `json:"pair"`
	Taker              uuid.UUID `json:"taker"`
	CashAsset          string    `json:"cash_asset"`
	InitialPrice       int64     `json:"initial_price"`
	PutStrikePrice     int64     `json:"put_strike_price"`
	CallStrikePrice    int64     `json:"call_strike_price"`
	TakerLocked        int64     `json:"taker_locked"`
	ProviderLocked     int64     `json:"provider_locked"`
	ExpirationMicros   int64     `json:"expiration_micros"`
	Settled            bool      `json:"settled"`
	Withdrawable       int64     `json:"withdrawable"`
	Status             string    `json:"status"`
	AsOfSequence       int64     `json:"as_of_sequence"`
}

// OfferResponse represents a liquidity offer for API queries.
type OfferResponse struct {
	OfferID             uuid.UUID `json:"offer_id"`
	Provider            uuid.UUID `json:"provider"`
	Pair                string    `json:"pair"`
	Asset               string    `json:"asset"`
	Available           int64     `json:"available"`
	PutStrikeDeviation  int64     `json:"put_strike_deviation"`
	CallStrikeDeviation int64     `json:"call_strike_deviation"`
	DurationSeconds     int64     `json:"duration_seconds"`
	AsOfSequence        int64     `json:"as_of_sequence"`
}

// SettlementResponse represents a settlement history entry.
type SettlementResponse struct {
	PositionID         uuid.UUID `json:"position_id"`
	ProviderPositionID uuid.UUID `json:"provider_position_id"`
	Pair               string    `json:"pair"`
	EndPrice           int64     `json:"end_price"`
	HistoricalPrice    bool      `json:"historical_price"`
	TakerWithdrawable  int64     `json:"taker_withdrawable"`
	ProviderDelta      int64     `json:"provider_delta"`
	SettledSequence    int64     `json:"settled_sequence"`
}

// RollResponse represents an executed-roll history entry.
type RollResponse struct {
	RollOfferID       uuid.UUID `json:"roll_offer_id"`
	OldPositionID     uuid.UUID `json:"old_position_id"`
	NewPositionID     uuid.UUID `json:"new_position_id"`
	Pair              string    `json:"pair"`
	Price             int64     `json:"price"`
	ToTaker           int64     `json:"to_taker"`
	ToProvider        int64     `json:"to_provider"`
	Fee               int64     `json:"fee"`
	NewTakerLocked    int64     `json:"new_taker_locked"`
	NewProviderLocked int64     `json:"new_provider_locked"`
	ExecutedSequence  int64     `json:"executed_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
