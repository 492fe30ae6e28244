package event

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeCashDeposited
	EventTypeCashWithdrawalRequested
	EventTypeOfferCreated
	EventTypeOfferAmountUpdated
	EventTypePositionOpened
	EventTypePositionSettled
	EventTypePositionWithdrawn
	EventTypeProviderWithdrawn
	EventTypePositionCanceled
	EventTypeRollOfferCreated
	EventTypeRollOfferCanceled
	EventTypeRollExecuted
	EventTypeOraclePriceUpdate
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Pair context (nullable for global events such as cash movements)
	Pair *string

	// Versioned input timestamp in epoch microseconds (NOT wall-clock)
	Timestamp int64

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Pair returns the pair context (nil for global events)
	Pair() *string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64

	// Timestamp returns the versioned input time in epoch microseconds
	Timestamp() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeCashDeposited:
		return "CashDeposited"
	case EventTypeCashWithdrawalRequested:
		return "CashWithdrawalRequested"
	case EventTypeOfferCreated:
		return "OfferCreated"
	case EventTypeOfferAmountUpdated:
		return "OfferAmountUpdated"
	case EventTypePositionOpened:
		return "PositionOpened"
	case EventTypePositionSettled:
		return "PositionSettled"
	case EventTypePositionWithdrawn:
		return "PositionWithdrawn"
	case EventTypeProviderWithdrawn:
		return "ProviderWithdrawn"
	case EventTypePositionCanceled:
		return "PositionCanceled"
	case EventTypeRollOfferCreated:
		return "RollOfferCreated"
	case EventTypeRollOfferCanceled:
		return "RollOfferCanceled"
	case EventTypeRollExecuted:
		return "RollExecuted"
	case EventTypeOraclePriceUpdate:
		return "OraclePriceUpdate"
	default:
		return "Unknown"
	}
}
