package event

import "github.com/google/uuid"

// PositionOpened opens a paired taker/provider position against an offer.
// The engine derives strikes and the provider lock from current state; the
// event carries only the inputs so replay is deterministic.
type PositionOpened struct {
	PositionID         uuid.UUID // Taker position id, idempotency key
	ProviderPositionID uuid.UUID
	Taker              uuid.UUID
	PairName           string
	CashAsset          string
	Underlying         string
	OfferID            uuid.UUID
	TakerLocked        int64 // Fixed-point: cash scale
	Sequence           int64
	EventTime          int64
}

func (p *PositionOpened) IdempotencyKey() string {
	return p.PositionID.String()
}

func (p *PositionOpened) EventType() EventType {
	return EventTypePositionOpened
}

func (p *PositionOpened) Pair() *string {
	s := p.PairName
	return &s
}

func (p *PositionOpened) SourceSequence() int64 {
	return p.Sequence
}

func (p *PositionOpened) Timestamp() int64 {
	return p.EventTime
}

// PositionSettled resolves an expired pair at the oracle price. Anyone may
// submit it; the payouts go to the position escrows, not to the submitter.
type PositionSettled struct {
	RequestID  uuid.UUID // Idempotency key (one settle attempt)
	PositionID uuid.UUID
	Caller     uuid.UUID
	PairName   string
	Sequence   int64
	EventTime  int64
}

func (p *PositionSettled) IdempotencyKey() string {
	return p.RequestID.String()
}

func (p *PositionSettled) EventType() EventType {
	return EventTypePositionSettled
}

func (p *PositionSettled) Pair() *string {
	s := p.PairName
	return &s
}

func (p *PositionSettled) SourceSequence() int64 {
	return p.Sequence
}

func (p *PositionSettled) Timestamp() int64 {
	return p.EventTime
}

// PositionWithdrawn releases a settled taker escrow to the token holder.
type PositionWithdrawn struct {
	RequestID  uuid.UUID // Idempotency key
	PositionID uuid.UUID
	Caller     uuid.UUID
	PairName   string
	Asset      string
	Sequence   int64
	EventTime  int64
}

func (p *PositionWithdrawn) IdempotencyKey() string {
	return p.RequestID.String()
}

func (p *PositionWithdrawn) EventType() EventType {
	return EventTypePositionWithdrawn
}

func (p *PositionWithdrawn) Pair() *string {
	s := p.PairName
	return &s
}

func (p *PositionWithdrawn) SourceSequence() int64 {
	return p.Sequence
}

func (p *PositionWithdrawn) Timestamp() int64 {
	return p.EventTime
}

// ProviderWithdrawn releases a settled provider escrow to the token holder.
type ProviderWithdrawn struct {
	RequestID  uuid.UUID // Idempotency key
	PositionID uuid.UUID // Provider position id
	Caller     uuid.UUID
	PairName   string
	Asset      string
	Sequence   int64
	EventTime  int64
}

func (p *ProviderWithdrawn) IdempotencyKey() string {
	return p.RequestID.String()
}

func (p *ProviderWithdrawn) EventType() EventType {
	return EventTypeProviderWithdrawn
}

func (p *ProviderWithdrawn) Pair() *string {
	s := p.PairName
	return &s
}

func (p *ProviderWithdrawn) SourceSequence() int64 {
	return p.Sequence
}

func (p *ProviderWithdrawn) Timestamp() int64 {
	return p.EventTime
}

// PositionCanceled is the mutual-cancel path: the caller must hold both
// position tokens and both escrows refund in full.
type PositionCanceled struct {
	RequestID  uuid.UUID // Idempotency key
	PositionID uuid.UUID // Taker position id
	Caller     uuid.UUID
	PairName   string
	Asset      string
	Sequence   int64
	EventTime  int64
}

func (p *PositionCanceled) IdempotencyKey() string {
	return p.RequestID.String()
}

func (p *PositionCanceled) EventType() EventType {
	return EventTypePositionCanceled
}

func (p *PositionCanceled) Pair() *string {
	s := p.PairName
	return &s
}

func (p *PositionCanceled) SourceSequence() int64 {
	return p.Sequence
}

func (p *PositionCanceled) Timestamp() int64 {
	return p.EventTime
}
