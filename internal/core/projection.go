package core

import (
	"github.com/google/uuid"

	"CollarLedger/internal/collar"
)

// ProjectionRecord carries the read-side consequences of one applied event.
// The core fills it during dispatch so projection workers never need to read
// deterministic state directly. A nil record means the event only moved cash
// (or moved nothing), which the journal rows already cover.
type ProjectionRecord struct {
	Position     *PositionRow
	PositionMark *PositionMark
	Offer        *OfferRow
	Settlement   *SettlementRow
	Roll         *RollRow
}

// PositionRow is a full upsert of one paired position.
type PositionRow struct {
	PositionID         uuid.UUID
	ProviderPositionID uuid.UUID
	Pair               string
	Taker              uuid.UUID
	CashAsset          string
	InitialPrice       int64
	PutStrikePrice     int64
	CallStrikePrice    int64
	TakerLocked        int64
	ProviderLocked     int64
	ExpirationMicros   int64
	Settled            bool
	Withdrawable       int64
	Status             string
}

// PositionMark flips a position's status without touching its terms.
type PositionMark struct {
	PositionID uuid.UUID
	Status     string
}

// OfferRow is a full upsert of one liquidity offer.
type OfferRow struct {
	OfferID             uuid.UUID
	Provider            uuid.UUID
	Pair                string
	Asset               string
	Available           int64
	PutStrikeDeviation  int64
	CallStrikeDeviation int64
	DurationSeconds     int64
}

// SettlementRow is one settlement history entry.
type SettlementRow struct {
	PositionID         uuid.UUID
	ProviderPositionID uuid.UUID
	Pair               string
	EndPrice           int64
	HistoricalPrice    bool
	TakerWithdrawable  int64
	ProviderDelta      int64
}

// RollRow is one executed-roll history entry.
type RollRow struct {
	RollOfferID       uuid.UUID
	OldPositionID     uuid.UUID
	NewPositionID     uuid.UUID
	Pair              string
	Price             int64
	ToTaker           int64
	ToProvider        int64
	Fee               int64
	NewTakerLocked    int64
	NewProviderLocked int64
}

const (
	PositionStatusOpen      = "open"
	PositionStatusSettled   = "settled"
	PositionStatusWithdrawn = "withdrawn"
	PositionStatusCanceled  = "canceled"
	PositionStatusRolled    = "rolled"
)

func positionRow(p *collar.TakerPosition, status string) *PositionRow {
	return &PositionRow{
		PositionID:         p.ID,
		ProviderPositionID: p.ProviderPositionID,
		Pair:               p.Pair,
		Taker:              p.Taker,
		CashAsset:          p.CashAsset,
		InitialPrice:       p.InitialPrice,
		PutStrikePrice:     p.PutStrikePrice,
		CallStrikePrice:    p.CallStrikePrice,
		TakerLocked:        p.TakerLocked,
		ProviderLocked:     p.ProviderLocked,
		ExpirationMicros:   p.Expiration,
		Settled:            p.Settled,
		Withdrawable:       p.Withdrawable,
		Status:             status,
	}
}

func offerRow(o *collar.LiquidityOffer, asset string) *OfferRow {
	return &OfferRow{
		OfferID:             o.ID,
		Provider:            o.Provider,
		Pair:                o.Pair,
		Asset:               asset,
		Available:           o.Available,
		PutStrikeDeviation:  o.PutStrikeDeviation,
		CallStrikeDeviation: o.CallStrikeDeviation,
		DurationSeconds:     o.Duration,
	}
}
