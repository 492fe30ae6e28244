package oracle_test

import (
	"errors"
	"testing"

	"CollarLedger/internal/oracle"
)

const minuteMicros = int64(60_000_000)

func newTWAP(t *testing.T) *oracle.TWAP {
	t.Helper()
	tw, err := oracle.New("WETH-USDC", 30*minuteMicros)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tw
}

func TestNew_RejectsBadWindow(t *testing.T) {
	if _, err := oracle.New("WETH-USDC", 0); !errors.Is(err, oracle.ErrInvalidWindow) {
		t.Errorf("got %v, want ErrInvalidWindow", err)
	}
}

func TestRecord_RejectsNonPositivePrice(t *testing.T) {
	tw := newTWAP(t)
	if err := tw.Record(0, 1_000); !errors.Is(err, oracle.ErrNonPositivePrice) {
		t.Errorf("zero: got %v", err)
	}
	if err := tw.Record(-5, 1_000); !errors.Is(err, oracle.ErrNonPositivePrice) {
		t.Errorf("negative: got %v", err)
	}
	if tw.ObservationCount() != 0 {
		t.Errorf("rejected prices must not be stored: %d", tw.ObservationCount())
	}
}

func TestCurrentPrice_Empty(t *testing.T) {
	tw := newTWAP(t)
	if _, err := tw.CurrentPrice(); !errors.Is(err, oracle.ErrNoObservations) {
		t.Errorf("got %v, want ErrNoObservations", err)
	}
}

func TestCurrentPrice_SingleObservation(t *testing.T) {
	tw := newTWAP(t)
	if err := tw.Record(10_000, 100*minuteMicros); err != nil {
		t.Fatalf("Record: %v", err)
	}
	price, err := tw.CurrentPrice()
	if err != nil {
		t.Fatalf("CurrentPrice: %v", err)
	}
	if price != 10_000 {
		t.Errorf("got %d, want 10_000", price)
	}
}

func TestCurrentPrice_TimeWeighted(t *testing.T) {
	tw := newTWAP(t)
	base := 100 * minuteMicros

	// 10000 held for 10 minutes, then 12000 up to the anchor (0 minutes).
	// Weighted average anchored at the last observation: only the first
	// segment carries weight, so TWAP == 10000.
	tw.Record(10_000, base)
	tw.Record(12_000, base+10*minuteMicros)

	price, err := tw.CurrentPrice()
	if err != nil {
		t.Fatalf("CurrentPrice: %v", err)
	}
	if price != 10_000 {
		t.Errorf("got %d, want 10_000", price)
	}

	// A third observation gives the middle one 10 minutes of weight:
	// (10000*10m + 12000*10m) / 20m = 11000.
	tw.Record(14_000, base+20*minuteMicros)
	price, err = tw.CurrentPrice()
	if err != nil {
		t.Fatalf("CurrentPrice: %v", err)
	}
	if price != 11_000 {
		t.Errorf("got %d, want 11_000", price)
	}
}

func TestCurrentPrice_HalfRoundsToEven(t *testing.T) {
	base := 100 * minuteMicros

	// Two equal-weight segments whose mean lands exactly on .5 resolve to
	// the even neighbor in either direction.
	cases := []struct {
		first, second int64
		want          int64
	}{
		{10_000, 10_001, 10_000}, // 10000.5 → down to even
		{10_001, 10_002, 10_002}, // 10001.5 → up to even
	}
	for _, c := range cases {
		tw := newTWAP(t)
		tw.Record(c.first, base)
		tw.Record(c.second, base+minuteMicros)
		tw.Record(14_000, base+2*minuteMicros) // anchor, zero held time

		price, err := tw.CurrentPrice()
		if err != nil {
			t.Fatalf("CurrentPrice: %v", err)
		}
		if price != c.want {
			t.Errorf("mean of %d/%d: got %d, want %d", c.first, c.second, price, c.want)
		}
	}
}

func TestCurrentPrice_SameTimestampCollapses(t *testing.T) {
	tw := newTWAP(t)
	ts := 100 * minuteMicros
	tw.Record(10_000, ts)
	tw.Record(10_500, ts)

	price, err := tw.CurrentPrice()
	if err != nil {
		t.Fatalf("CurrentPrice: %v", err)
	}
	if price != 10_500 {
		t.Errorf("got %d, want the latest at that instant (10_500)", price)
	}
}

func TestLastPrice(t *testing.T) {
	tw := newTWAP(t)
	tw.Record(10_000, 100*minuteMicros)
	tw.Record(12_000, 110*minuteMicros)

	price, err := tw.LastPrice()
	if err != nil {
		t.Fatalf("LastPrice: %v", err)
	}
	if price != 12_000 {
		t.Errorf("got %d, want 12_000", price)
	}
}

func TestPastPrice_ExactAndNearestBefore(t *testing.T) {
	tw := newTWAP(t)
	base := 100 * minuteMicros
	tw.Record(10_000, base)
	tw.Record(11_000, base+5*minuteMicros)
	tw.Record(12_000, base+10*minuteMicros)

	price, historical, err := tw.PastPriceWithFallback(base + 5*minuteMicros)
	if err != nil || !historical || price != 11_000 {
		t.Errorf("exact: got %d/%v/%v, want 11_000/true/nil", price, historical, err)
	}

	price, historical, err = tw.PastPriceWithFallback(base + 7*minuteMicros)
	if err != nil || !historical || price != 11_000 {
		t.Errorf("between: got %d/%v/%v, want 11_000/true/nil", price, historical, err)
	}
}

func TestPastPrice_FallsBackWhenHistoryLapsed(t *testing.T) {
	tw := newTWAP(t)
	tw.Record(12_000, 1000*minuteMicros)

	// Requested time predates everything retained.
	price, historical, err := tw.PastPriceWithFallback(1 * minuteMicros)
	if err != nil {
		t.Fatalf("PastPriceWithFallback: %v", err)
	}
	if historical {
		t.Error("fallback must report historical=false")
	}
	if price != 12_000 {
		t.Errorf("got %d, want the current price 12_000", price)
	}
}

func TestPastPrice_Empty(t *testing.T) {
	tw := newTWAP(t)
	if _, _, err := tw.PastPriceWithFallback(1_000); !errors.Is(err, oracle.ErrNoObservations) {
		t.Errorf("got %v, want ErrNoObservations", err)
	}
}

func TestPrune_DropsBeyondTwiceWindow(t *testing.T) {
	tw := newTWAP(t)
	base := 100 * minuteMicros
	tw.Record(10_000, base)
	// 61 minutes later with a 30-minute window: the first point is beyond 2x.
	tw.Record(11_000, base+61*minuteMicros)

	if tw.ObservationCount() != 1 {
		t.Errorf("count: got %d, want 1", tw.ObservationCount())
	}
	// Settlement older than retention now degrades.
	_, historical, err := tw.PastPriceWithFallback(base)
	if err != nil {
		t.Fatalf("PastPriceWithFallback: %v", err)
	}
	if historical {
		t.Error("pruned history must degrade to historical=false")
	}
}

func TestPrune_BoundsObservationCount(t *testing.T) {
	tw := newTWAP(t)
	ts := int64(1)
	for i := 0; i < oracle.MaxObservations+50; i++ {
		tw.Record(10_000+int64(i), ts)
		ts += 1_000 // 1ms apart: all inside the window
	}
	if tw.ObservationCount() != oracle.MaxObservations {
		t.Errorf("count: got %d, want %d", tw.ObservationCount(), oracle.MaxObservations)
	}
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	tw := newTWAP(t)
	base := 100 * minuteMicros
	tw.Record(10_000, base)
	tw.Record(11_000, base+5*minuteMicros)

	snap := tw.Snapshot()

	restored := newTWAP(t)
	restored.Restore(snap)

	want, _ := tw.CurrentPrice()
	got, err := restored.CurrentPrice()
	if err != nil {
		t.Fatalf("CurrentPrice: %v", err)
	}
	if got != want {
		t.Errorf("restored price: got %d, want %d", got, want)
	}
	if restored.ObservationCount() != 2 {
		t.Errorf("count: got %d, want 2", restored.ObservationCount())
	}
}
