// Package oracle maintains the per-pair price observation history that feeds
// position opens and settlements. Prices arrive as events on the price
// partition and are recorded with their event timestamps, so replaying the
// event log rebuilds identical oracle state.
package oracle

import (
	"errors"
	"math/big"

	fpmath "CollarLedger/internal/math"
)

var (
	ErrNoObservations   = errors.New("no price observations available")
	ErrInvalidWindow    = errors.New("observation window must be positive")
	ErrNonPositivePrice = errors.New("price observation must be positive")
)

const (
	// DefaultWindowMicros is the default TWAP window (30 minutes).
	DefaultWindowMicros int64 = 30 * 60 * 1_000_000

	// MaxObservations bounds the history regardless of window.
	MaxObservations = 1000
)

// Observation is a single price point. Price is fixed-point at the price
// scale; Timestamp is epoch microseconds taken from the originating event.
type Observation struct {
	Price     int64
	Timestamp int64
}

// TWAP keeps a rolling window of observations for one pair and serves the
// time-weighted average as the manipulation-resistant current price, plus
// historical lookups for settlement.
// Not thread-safe — fed and read from the single-threaded deterministic core.
type TWAP struct {
	pair         string
	windowMicros int64
	observations []Observation
}

func New(pair string, windowMicros int64) (*TWAP, error) {
	if windowMicros <= 0 {
		return nil, ErrInvalidWindow
	}
	return &TWAP{
		pair:         pair,
		windowMicros: windowMicros,
		observations: make([]Observation, 0, 64),
	}, nil
}

func (t *TWAP) Pair() string { return t.pair }

func (t *TWAP) WindowMicros() int64 { return t.windowMicros }

func (t *TWAP) ObservationCount() int { return len(t.observations) }

// Record appends an observation and prunes history older than twice the
// window. Observations must arrive in timestamp order; the price partition's
// sequence validation guarantees that upstream.
func (t *TWAP) Record(price, timestampMicros int64) error {
	if price <= 0 {
		return ErrNonPositivePrice
	}
	t.observations = append(t.observations, Observation{Price: price, Timestamp: timestampMicros})
	t.prune(timestampMicros)
	return nil
}

// prune keeps twice the window so PastPriceWithFallback can still answer
// for settlements slightly older than the TWAP horizon.
func (t *TWAP) prune(nowMicros int64) {
	cutoff := nowMicros - 2*t.windowMicros

	start := 0
	for start < len(t.observations) && t.observations[start].Timestamp <= cutoff {
		start++
	}
	if start > 0 {
		copy(t.observations, t.observations[start:])
		t.observations = t.observations[:len(t.observations)-start]
	}

	if len(t.observations) > MaxObservations {
		excess := len(t.observations) - MaxObservations
		copy(t.observations, t.observations[excess:])
		t.observations = t.observations[:MaxObservations]
	}
}

// CurrentPrice returns the time-weighted average over the window, anchored at
// the latest observation timestamp rather than wall-clock time so replay is
// deterministic. A single observation is returned as-is.
func (t *TWAP) CurrentPrice() (int64, error) {
	if len(t.observations) == 0 {
		return 0, ErrNoObservations
	}
	at := t.observations[len(t.observations)-1].Timestamp
	return t.averageAt(at)
}

// LastPrice returns the most recent raw observation.
func (t *TWAP) LastPrice() (int64, error) {
	if len(t.observations) == 0 {
		return 0, ErrNoObservations
	}
	return t.observations[len(t.observations)-1].Price, nil
}

func (t *TWAP) averageAt(atMicros int64) (int64, error) {
	windowStart := atMicros - t.windowMicros

	first := -1
	last := -1
	for i, obs := range t.observations {
		if obs.Timestamp > windowStart && obs.Timestamp <= atMicros {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		// Nothing inside the window: the newest observation at or before the
		// anchor still stands.
		for i := len(t.observations) - 1; i >= 0; i-- {
			if t.observations[i].Timestamp <= atMicros {
				return t.observations[i].Price, nil
			}
		}
		return 0, ErrNoObservations
	}
	if first == last {
		return t.observations[first].Price, nil
	}

	// TWAP = sum(price_i * heldMicros_i) / totalMicros. Each observation's
	// price holds until the next one arrives; the final one holds to the
	// anchor. big.Int because price * window overflows int64 at scale.
	weighted := new(big.Int)
	tmp := new(big.Int)
	var total int64
	for i := first; i < last; i++ {
		held := t.observations[i+1].Timestamp - t.observations[i].Timestamp
		if held <= 0 {
			continue
		}
		tmp.SetInt64(t.observations[i].Price)
		tmp.Mul(tmp, big.NewInt(held))
		weighted.Add(weighted, tmp)
		total += held
	}
	held := atMicros - t.observations[last].Timestamp
	if held > 0 {
		tmp.SetInt64(t.observations[last].Price)
		tmp.Mul(tmp, big.NewInt(held))
		weighted.Add(weighted, tmp)
		total += held
	}

	if total == 0 {
		// All observations share one timestamp.
		return t.observations[last].Price, nil
	}

	// The mean is an estimate, not a conserved amount: half-even rounding
	// instead of the ledger's floor convention.
	return fpmath.DivideInt128(weighted, total, fpmath.RoundHalfEven), nil
}

// PastPriceWithFallback returns the raw observation at or nearest before the
// given timestamp. historical=true means a real stored observation answered;
// when the history no longer reaches back that far the result degrades to
// the current price with historical=false, and callers carry that flag
// through to the settlement record.
func (t *TWAP) PastPriceWithFallback(timestampMicros int64) (int64, bool, error) {
	if len(t.observations) == 0 {
		return 0, false, ErrNoObservations
	}

	for i := len(t.observations) - 1; i >= 0; i-- {
		if t.observations[i].Timestamp <= timestampMicros {
			return t.observations[i].Price, true, nil
		}
	}

	// The requested time predates the retained history.
	price, err := t.CurrentPrice()
	if err != nil {
		return 0, false, err
	}
	return price, false, nil
}

// Snapshot returns a copy of the retained observations.
func (t *TWAP) Snapshot() []Observation {
	out := make([]Observation, len(t.observations))
	copy(out, t.observations)
	return out
}

// Restore replaces the history from a snapshot.
func (t *TWAP) Restore(observations []Observation) {
	t.observations = t.observations[:0]
	t.observations = append(t.observations, observations...)
}
