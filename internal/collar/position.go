package collar

import (
	"github.com/google/uuid"
)

// LiquidityOffer is a provider's standing terms: strike deviations, duration
// and a pool of available cash consumed by each position open. Only Available
// mutates after creation.
type LiquidityOffer struct {
	ID                  uuid.UUID
	Provider            uuid.UUID
	Pair                string
	Available           int64 // Fixed-point: cash scale
	PutStrikeDeviation  int64 // Basis points, < 10000
	CallStrikeDeviation int64 // Basis points, > 10000
	Duration            int64 // Seconds
	Version             int64
}

// ProviderPosition is the provider side of a paired position. Owned by the
// holder of the provider token; terms are immutable after mint.
type ProviderPosition struct {
	ID                  uuid.UUID
	OfferID             uuid.UUID
	Provider            uuid.UUID // Original provider; current owner is the token holder
	Pair                string
	ProviderLocked      int64 // Fixed-point: cash scale
	PutStrikeDeviation  int64
	CallStrikeDeviation int64
	Expiration          int64 // Epoch microseconds
	Settled             bool
	Withdrawable        int64 // Set once at settlement
	Version             int64
}

// TakerPosition is the taker side. ProviderPositionID/ProviderLedgerID form
// the cross-ledger back-reference, validated on each access rather than held
// as a live object.
type TakerPosition struct {
	ID                 uuid.UUID
	ProviderPositionID uuid.UUID
	ProviderLedgerID   uuid.UUID
	Taker              uuid.UUID
	Pair               string
	CashAsset          string
	InitialPrice       int64 // Oracle price at open, price scale
	PutStrikePrice     int64
	CallStrikePrice    int64
	TakerLocked        int64 // Fixed-point: cash scale
	ProviderLocked     int64 // Mirror of the provider side's locked amount
	Expiration         int64 // Epoch microseconds
	Settled            bool
	Withdrawable       int64 // Cash claimable post-settlement
	Version            int64
}

// RollOffer extends/re-strikes an existing paired position at new terms.
// Provider-initiated; consumed once by ExecuteRoll or withdrawn by cancel.
type RollOffer struct {
	ID                 uuid.UUID
	TakerPositionID    uuid.UUID
	Provider           uuid.UUID
	RollFee            int64 // Signed, paid by taker to provider
	FeeDeltaFactorBips int64 // |factor| <= 10000
	ReferencePrice     int64 // Oracle price at offer creation
	MinPrice           int64
	MaxPrice           int64
	MinToProvider      int64 // Signed lower bound on the provider's net transfer
	Deadline           int64 // Epoch microseconds
	Active             bool
	Version            int64
}

// CanonicalBytes returns deterministic serialization for state hashing.
func (p *TakerPosition) CanonicalBytes() []byte {
	buf := make([]byte, 0, 128)
	buf = append(buf, p.ID[:]...)
	buf = append(buf, p.ProviderPositionID[:]...)
	buf = appendInt64LE(buf, p.InitialPrice)
	buf = appendInt64LE(buf, p.PutStrikePrice)
	buf = appendInt64LE(buf, p.CallStrikePrice)
	buf = appendInt64LE(buf, p.TakerLocked)
	buf = appendInt64LE(buf, p.ProviderLocked)
	buf = appendInt64LE(buf, p.Expiration)
	if p.Settled {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendInt64LE(buf, p.Withdrawable)
	return buf
}

// CanonicalBytes returns deterministic serialization for state hashing.
func (p *ProviderPosition) CanonicalBytes() []byte {
	buf := make([]byte, 0, 96)
	buf = append(buf, p.ID[:]...)
	buf = append(buf, p.OfferID[:]...)
	buf = appendInt64LE(buf, p.ProviderLocked)
	buf = appendInt64LE(buf, p.PutStrikeDeviation)
	buf = appendInt64LE(buf, p.CallStrikeDeviation)
	buf = appendInt64LE(buf, p.Expiration)
	if p.Settled {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendInt64LE(buf, p.Withdrawable)
	return buf
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}
