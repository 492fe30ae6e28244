package event

import "github.com/google/uuid"

// RollOfferCreated records a provider's offer of new terms on a live pair.
// The fee reference price pins to the oracle at processing time.
type RollOfferCreated struct {
	RollOfferID        uuid.UUID // Idempotency key
	PositionID         uuid.UUID // Taker position id
	Caller             uuid.UUID
	PairName           string
	RollFee            int64 // Signed, cash scale
	FeeDeltaFactorBips int64
	MinPrice           int64 // Price scale
	MaxPrice           int64
	MinToProvider      int64 // Signed lower bound on the provider's net transfer
	DeadlineMicros     int64
	Sequence           int64
	EventTime          int64
}

func (r *RollOfferCreated) IdempotencyKey() string {
	return r.RollOfferID.String()
}

func (r *RollOfferCreated) EventType() EventType {
	return EventTypeRollOfferCreated
}

func (r *RollOfferCreated) Pair() *string {
	s := r.PairName
	return &s
}

func (r *RollOfferCreated) SourceSequence() int64 {
	return r.Sequence
}

func (r *RollOfferCreated) Timestamp() int64 {
	return r.EventTime
}

// RollOfferCanceled withdraws an unexecuted roll offer. Creator only.
type RollOfferCanceled struct {
	RequestID   uuid.UUID // Idempotency key
	RollOfferID uuid.UUID
	Caller      uuid.UUID
	PairName    string
	Sequence    int64
	EventTime   int64
}

func (r *RollOfferCanceled) IdempotencyKey() string {
	return r.RequestID.String()
}

func (r *RollOfferCanceled) EventType() EventType {
	return EventTypeRollOfferCanceled
}

func (r *RollOfferCanceled) Pair() *string {
	s := r.PairName
	return &s
}

func (r *RollOfferCanceled) SourceSequence() int64 {
	return r.Sequence
}

func (r *RollOfferCanceled) Timestamp() int64 {
	return r.EventTime
}

// RollExecuted consumes a roll offer: settles the old pair at the oracle
// price and opens the replacement pair. ExpectedToTaker is the taker's
// slippage bound and must match the computed transfer exactly.
type RollExecuted struct {
	RequestID             uuid.UUID // Idempotency key
	RollOfferID           uuid.UUID
	Caller                uuid.UUID
	PairName              string
	Asset                 string
	ExpectedToTaker       int64 // Signed, cash scale
	NewPositionID         uuid.UUID
	NewProviderPositionID uuid.UUID
	Sequence              int64
	EventTime             int64
}

func (r *RollExecuted) IdempotencyKey() string {
	return r.RequestID.String()
}

func (r *RollExecuted) EventType() EventType {
	return EventTypeRollExecuted
}

func (r *RollExecuted) Pair() *string {
	s := r.PairName
	return &s
}

func (r *RollExecuted) SourceSequence() int64 {
	return r.Sequence
}

func (r *RollExecuted) Timestamp() int64 {
	return r.EventTime
}
