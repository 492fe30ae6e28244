package math_test

import (
	"testing"

	fpmath "CollarLedger/internal/math"
)

// Reference scenario: offer putDev=9000, callDev=11000, takerLocked=1000,
// providerLocked=1000, startPrice=100 => putStrike=90, callStrike=110.
const (
	refStart       = int64(100)
	refPutStrike   = int64(90)
	refCallStrike  = int64(110)
	refTakerLocked = int64(1000)
	refProvLocked  = int64(1000)
)

func TestSettle_PriceUnchanged(t *testing.T) {
	r := fpmath.Settle(refStart, refPutStrike, refCallStrike, refTakerLocked, refProvLocked, refStart)

	if r.TakerWithdrawable != refTakerLocked {
		t.Errorf("taker withdrawable: got %d, want %d", r.TakerWithdrawable, refTakerLocked)
	}
	if r.ProviderDelta != 0 {
		t.Errorf("provider delta: got %d, want 0", r.ProviderDelta)
	}
}

func TestSettle_PriceFell(t *testing.T) {
	// endPrice=95: providerGain = 1000*(100-95)/(100-90) = 500
	r := fpmath.Settle(refStart, refPutStrike, refCallStrike, refTakerLocked, refProvLocked, 95)

	if r.TakerWithdrawable != 500 {
		t.Errorf("taker withdrawable: got %d, want 500", r.TakerWithdrawable)
	}
	if r.ProviderDelta != 500 {
		t.Errorf("provider delta: got %d, want +500", r.ProviderDelta)
	}
}

func TestSettle_PriceRose(t *testing.T) {
	// endPrice=105: takerGain = 1000*(105-100)/(110-100) = 500
	r := fpmath.Settle(refStart, refPutStrike, refCallStrike, refTakerLocked, refProvLocked, 105)

	if r.TakerWithdrawable != 1500 {
		t.Errorf("taker withdrawable: got %d, want 1500", r.TakerWithdrawable)
	}
	if r.ProviderDelta != -500 {
		t.Errorf("provider delta: got %d, want -500", r.ProviderDelta)
	}
}

func TestSettle_ClampsBelowPutStrike(t *testing.T) {
	// endPrice=50 clamps to putStrike=90: the taker loses its whole escrow.
	r := fpmath.Settle(refStart, refPutStrike, refCallStrike, refTakerLocked, refProvLocked, 50)

	if r.EndPrice != refPutStrike {
		t.Errorf("end price: got %d, want clamped %d", r.EndPrice, refPutStrike)
	}
	if r.TakerWithdrawable != 0 {
		t.Errorf("taker withdrawable: got %d, want 0", r.TakerWithdrawable)
	}
	if r.ProviderDelta != refTakerLocked {
		t.Errorf("provider delta: got %d, want %d", r.ProviderDelta, refTakerLocked)
	}
}

func TestSettle_ClampsAboveCallStrike(t *testing.T) {
	// endPrice=500 clamps to callStrike=110: the provider escrow pays out fully.
	r := fpmath.Settle(refStart, refPutStrike, refCallStrike, refTakerLocked, refProvLocked, 500)

	if r.EndPrice != refCallStrike {
		t.Errorf("end price: got %d, want clamped %d", r.EndPrice, refCallStrike)
	}
	if r.TakerWithdrawable != refTakerLocked+refProvLocked {
		t.Errorf("taker withdrawable: got %d, want %d", r.TakerWithdrawable, refTakerLocked+refProvLocked)
	}
	if r.ProviderDelta != -refProvLocked {
		t.Errorf("provider delta: got %d, want %d", r.ProviderDelta, -refProvLocked)
	}
}

func TestSettle_ValueConservation(t *testing.T) {
	// Sweep end prices through and beyond the range: withdrawable plus the
	// provider's final amount must always equal the total locked.
	for endPrice := int64(40); endPrice <= 160; endPrice++ {
		r := fpmath.Settle(refStart, refPutStrike, refCallStrike, refTakerLocked, refProvLocked, endPrice)

		providerFinal := refProvLocked + r.ProviderDelta
		total := r.TakerWithdrawable + providerFinal
		if total != refTakerLocked+refProvLocked {
			t.Fatalf("endPrice=%d: conservation broken: %d + %d = %d, want %d",
				endPrice, r.TakerWithdrawable, providerFinal, total, refTakerLocked+refProvLocked)
		}
		if r.TakerWithdrawable < 0 || r.TakerWithdrawable > refTakerLocked+refProvLocked {
			t.Fatalf("endPrice=%d: withdrawable %d out of [0, total]", endPrice, r.TakerWithdrawable)
		}
	}
}

func TestSettle_AsymmetricRanges(t *testing.T) {
	// putDev=8000, callDev=12500 at start=200: putStrike=160, callStrike=250.
	// takerLocked=4000 => providerLocked = 4000*2500/2000 = 5000.
	takerLocked := int64(4000)
	providerLocked := fpmath.CalculateProviderLocked(takerLocked, 8000, 12500)
	if providerLocked != 5000 {
		t.Fatalf("provider locked: got %d, want 5000", providerLocked)
	}

	// endPrice=180: providerGain = 4000*(200-180)/(200-160) = 2000
	r := fpmath.Settle(200, 160, 250, takerLocked, providerLocked, 180)
	if r.TakerWithdrawable != 2000 || r.ProviderDelta != 2000 {
		t.Errorf("fell: got (%d, %d), want (2000, +2000)", r.TakerWithdrawable, r.ProviderDelta)
	}

	// endPrice=225: takerGain = 5000*(225-200)/(250-200) = 2500
	r = fpmath.Settle(200, 160, 250, takerLocked, providerLocked, 225)
	if r.TakerWithdrawable != 6500 || r.ProviderDelta != -2500 {
		t.Errorf("rose: got (%d, %d), want (6500, -2500)", r.TakerWithdrawable, r.ProviderDelta)
	}
}

func TestCalculateProviderLocked_Proportional(t *testing.T) {
	// putDev=9000, callDev=11000: symmetric ranges, ratio 1.
	if got := fpmath.CalculateProviderLocked(1000, 9000, 11000); got != 1000 {
		t.Errorf("symmetric: got %d, want 1000", got)
	}

	// callDev=12000 doubles the call width: ratio 2.
	if got := fpmath.CalculateProviderLocked(1000, 9000, 12000); got != 2000 {
		t.Errorf("wide call: got %d, want 2000", got)
	}

	// Floor division: 1000*1/3 = 333, not 334.
	if got := fpmath.CalculateProviderLocked(1000, 7000, 10001); got != 0 {
		t.Errorf("tiny call width floors to 0, got %d", got)
	}
	if got := fpmath.CalculateProviderLocked(1000, 7000, 11000); got != 333 {
		t.Errorf("floor: got %d, want 333", got)
	}
}

func TestCalculateProviderLocked_Monotonic(t *testing.T) {
	prev := int64(-1)
	for takerLocked := int64(0); takerLocked <= 10_000; takerLocked += 7 {
		got := fpmath.CalculateProviderLocked(takerLocked, 8500, 11500)
		if got < prev {
			t.Fatalf("not monotonic at takerLocked=%d: %d < %d", takerLocked, got, prev)
		}
		prev = got
	}
}

func TestStrikePrices(t *testing.T) {
	put, call := fpmath.StrikePrices(100, 9000, 11000)
	if put != 90 || call != 110 {
		t.Errorf("got (%d, %d), want (90, 110)", put, call)
	}

	// Floor on both sides.
	put, call = fpmath.StrikePrices(999, 9001, 11003)
	if put != 899 || call != 1099 {
		t.Errorf("got (%d, %d), want (899, 1099)", put, call)
	}
}

func TestMulDivFloor(t *testing.T) {
	if got := fpmath.MulDivFloor(7, 3, 2); got != 10 {
		t.Errorf("7*3/2: got %d, want 10", got)
	}

	// Large intermediates must not overflow int64.
	a := int64(9_000_000_000_000)
	if got := fpmath.MulDivFloor(a, a/3, a); got != a/3 {
		t.Errorf("large: got %d, want %d", got, a/3)
	}
}
