package math_test

import (
	"testing"

	fpmath "CollarLedger/internal/math"
)

func TestMulDivFloor_FloorsNegativeResults(t *testing.T) {
	// Euclidean floor, not truncation toward zero.
	if got := fpmath.MulDivFloor(-7, 1, 2); got != -4 {
		t.Errorf("-7/2: got %d, want -4", got)
	}
	if got := fpmath.MulDivFloor(7, 1, 2); got != 3 {
		t.Errorf("7/2: got %d, want 3", got)
	}
}

func TestDivideInt128_RoundHalfEven(t *testing.T) {
	cases := []struct {
		num, denom int64
		want       int64
	}{
		{20_001, 2, 10_000}, // 10000.5 → even neighbor below
		{20_003, 2, 10_002}, // 10001.5 → even neighbor above
		{20_005, 2, 10_002}, // 10002.5 → even neighbor below
		{20_002, 2, 10_001}, // exact
		{20_006, 3, 6_669},  // above half rounds up
		{20_002, 3, 6_667},  // below half rounds down
	}
	for _, c := range cases {
		num := fpmath.MultiplyInt128(c.num, 1)
		if got := fpmath.DivideInt128(num, c.denom, fpmath.RoundHalfEven); got != c.want {
			t.Errorf("%d/%d half-even: got %d, want %d", c.num, c.denom, got, c.want)
		}
	}
}

func TestCalculateProviderLocked_MonotonicSmallRange(t *testing.T) {
	prev := int64(-1)
	for takerLocked := int64(0); takerLocked <= 100; takerLocked++ {
		locked := fpmath.CalculateProviderLocked(takerLocked, 9_000, 11_000)
		if locked < prev {
			t.Fatalf("providerLocked not monotonic at takerLocked=%d: %d < %d", takerLocked, locked, prev)
		}
		prev = locked
	}
}
