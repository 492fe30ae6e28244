package event

import "fmt"

// OraclePriceUpdate feeds the observation history behind strike derivation
// and settlement. The price partition tolerates source-sequence gaps:
// upstream feeds drop ticks under load and a gap is not corruption.
type OraclePriceUpdate struct {
	PairName  string
	Price     int64 // Fixed-point: price scale
	Sequence  int64
	EventTime int64
}

func (m *OraclePriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("price:%s:%d", m.PairName, m.Sequence)
}

func (m *OraclePriceUpdate) EventType() EventType {
	return EventTypeOraclePriceUpdate
}

func (m *OraclePriceUpdate) Pair() *string {
	s := m.PairName
	return &s
}

func (m *OraclePriceUpdate) SourceSequence() int64 {
	return m.Sequence
}

func (m *OraclePriceUpdate) Timestamp() int64 {
	return m.EventTime
}
