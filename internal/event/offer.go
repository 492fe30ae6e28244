package event

import "github.com/google/uuid"

// OfferCreated registers a provider's standing liquidity offer and pulls the
// initial pool amount from the provider's cash.
type OfferCreated struct {
	OfferID             uuid.UUID // Idempotency key
	Provider            uuid.UUID
	PairName            string
	Asset               string
	Amount              int64 // Fixed-point: cash scale
	PutStrikeDeviation  int64 // Basis points
	CallStrikeDeviation int64 // Basis points
	DurationSeconds     int64
	Sequence            int64
	EventTime           int64
}

func (o *OfferCreated) IdempotencyKey() string {
	return o.OfferID.String()
}

func (o *OfferCreated) EventType() EventType {
	return EventTypeOfferCreated
}

func (o *OfferCreated) Pair() *string {
	p := o.PairName
	return &p
}

func (o *OfferCreated) SourceSequence() int64 {
	return o.Sequence
}

func (o *OfferCreated) Timestamp() int64 {
	return o.EventTime
}

// OfferAmountUpdated replenishes (positive delta) or drains (negative delta)
// an offer's available pool, moving cash between the provider and the pool.
type OfferAmountUpdated struct {
	UpdateID  uuid.UUID // Idempotency key
	OfferID   uuid.UUID
	Caller    uuid.UUID
	PairName  string
	Asset     string
	Delta     int64 // Signed, cash scale
	Sequence  int64
	EventTime int64
}

func (o *OfferAmountUpdated) IdempotencyKey() string {
	return o.UpdateID.String()
}

func (o *OfferAmountUpdated) EventType() EventType {
	return EventTypeOfferAmountUpdated
}

func (o *OfferAmountUpdated) Pair() *string {
	p := o.PairName
	return &p
}

func (o *OfferAmountUpdated) SourceSequence() int64 {
	return o.Sequence
}

func (o *OfferAmountUpdated) Timestamp() int64 {
	return o.EventTime
}
