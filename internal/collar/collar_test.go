package collar_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"CollarLedger/internal/collar"
)

// ============================================================================
// Test fixtures
// ============================================================================

const (
	testPair  = "WETH-USDC"
	baseNow   = int64(1_700_000_000_000_000) // epoch micros
	dayMicros = int64(86_400_000_000)
)

type fakeOracle struct {
	current    int64
	past       int64
	historical bool
	err        error
}

func (o *fakeOracle) CurrentPrice() (int64, error) {
	return o.current, o.err
}

func (o *fakeOracle) PastPriceWithFallback(_ int64) (int64, bool, error) {
	if o.err != nil {
		return 0, false, o.err
	}
	if o.past != 0 {
		return o.past, o.historical, nil
	}
	return o.current, false, nil
}

type rig struct {
	taker    *collar.TakerLedger
	provider *collar.ProviderLedger
	registry *collar.StaticRegistry
	oracle   *fakeOracle

	providerUser uuid.UUID
	takerUser    uuid.UUID
}

func newRig(t *testing.T) *rig {
	t.Helper()
	oracle := &fakeOracle{current: 10_000} // 100.00 at price scale
	registry := collar.NewStaticRegistry([]string{"USDC"}, []string{"WETH"})

	tl := collar.NewTakerLedger(uuid.New(), testPair, registry, oracle)
	pl := collar.NewProviderLedger(uuid.New(), testPair)
	tl.RegisterProvider(pl)
	registry.AllowOpen(tl.ID(), true)

	return &rig{
		taker:        tl,
		provider:     pl,
		registry:     registry,
		oracle:       oracle,
		providerUser: uuid.New(),
		takerUser:    uuid.New(),
	}
}

// standardOffer creates a 90%/110% offer with a 2M pool and one-day duration.
func (r *rig) standardOffer(t *testing.T) *collar.LiquidityOffer {
	t.Helper()
	offer, err := r.provider.CreateOffer(uuid.New(), r.providerUser, 9_000, 11_000, 2_000_000, 86_400)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	return offer
}

func (r *rig) open(t *testing.T, offerID uuid.UUID, takerLocked int64) *collar.OpenOutcome {
	t.Helper()
	out, err := r.taker.OpenPairedPosition(
		uuid.New(), uuid.New(), r.takerUser, takerLocked,
		r.provider.ID(), offerID, "USDC", "WETH", baseNow,
	)
	if err != nil {
		t.Fatalf("OpenPairedPosition: %v", err)
	}
	return out
}

// ============================================================================
// Test: LiquidityOffer
// ============================================================================

func TestCreateOffer_RejectsBadDeviations(t *testing.T) {
	r := newRig(t)
	cases := []struct{ put, call int64 }{
		{0, 11_000},      // put at zero
		{10_000, 11_000}, // put at par
		{12_000, 13_000}, // put above par
		{9_000, 10_000},  // call at par
		{9_000, 9_500},   // call below par
	}
	for _, c := range cases {
		_, err := r.provider.CreateOffer(uuid.New(), r.providerUser, c.put, c.call, 1_000_000, 86_400)
		if !errors.Is(err, collar.ErrInvalidStrikeRange) {
			t.Errorf("put=%d call=%d: got %v, want ErrInvalidStrikeRange", c.put, c.call, err)
		}
	}
}

func TestCreateOffer_RejectsZeroAmountAndDuration(t *testing.T) {
	r := newRig(t)
	if _, err := r.provider.CreateOffer(uuid.New(), r.providerUser, 9_000, 11_000, 0, 86_400); !errors.Is(err, collar.ErrInvalidAmount) {
		t.Errorf("zero amount: got %v", err)
	}
	if _, err := r.provider.CreateOffer(uuid.New(), r.providerUser, 9_000, 11_000, 1_000_000, 0); !errors.Is(err, collar.ErrInvalidDuration) {
		t.Errorf("zero duration: got %v", err)
	}
}

func TestUpdateOfferAmount_ReplenishAndDrain(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)

	if _, err := r.provider.UpdateOfferAmount(offer.ID, r.providerUser, 500_000); err != nil {
		t.Fatalf("replenish: %v", err)
	}
	if offer.Available != 2_500_000 {
		t.Errorf("available after replenish: got %d, want 2_500_000", offer.Available)
	}

	if _, err := r.provider.UpdateOfferAmount(offer.ID, r.providerUser, -2_500_000); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if offer.Available != 0 {
		t.Errorf("available after drain: got %d, want 0", offer.Available)
	}

	_, err := r.provider.UpdateOfferAmount(offer.ID, r.providerUser, -1)
	if !errors.Is(err, collar.ErrInsufficientLiquidity) {
		t.Errorf("overdrain: got %v, want ErrInsufficientLiquidity", err)
	}
}

func TestUpdateOfferAmount_ProviderOnly(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)

	_, err := r.provider.UpdateOfferAmount(offer.ID, r.takerUser, 100)
	if !errors.Is(err, collar.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

// ============================================================================
// Test: OpenPairedPosition
// ============================================================================

func TestOpen_SymmetricDeviations(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)

	out := r.open(t, offer.ID, 1_000_000)

	// 90/110 around par locks 1:1.
	if out.Taker.ProviderLocked != 1_000_000 {
		t.Errorf("providerLocked: got %d, want 1_000_000", out.Taker.ProviderLocked)
	}
	if out.Provider.ProviderLocked != out.Taker.ProviderLocked {
		t.Errorf("mirror mismatch: taker=%d provider=%d", out.Taker.ProviderLocked, out.Provider.ProviderLocked)
	}
	if out.Taker.PutStrikePrice != 9_000 || out.Taker.CallStrikePrice != 11_000 {
		t.Errorf("strikes: got %d/%d, want 9000/11000", out.Taker.PutStrikePrice, out.Taker.CallStrikePrice)
	}
	if out.Taker.InitialPrice != 10_000 {
		t.Errorf("initial price: got %d, want 10_000", out.Taker.InitialPrice)
	}
	if offer.Available != 1_000_000 {
		t.Errorf("offer pool: got %d, want 1_000_000", offer.Available)
	}
	if out.Taker.Expiration != baseNow+dayMicros {
		t.Errorf("expiration: got %d, want %d", out.Taker.Expiration, baseNow+dayMicros)
	}
}

func TestOpen_AsymmetricDeviations(t *testing.T) {
	r := newRig(t)
	// 80%/125%: providerLocked = takerLocked * 2500/2000
	offer, err := r.provider.CreateOffer(uuid.New(), r.providerUser, 8_000, 12_500, 2_000_000, 86_400)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}

	out := r.open(t, offer.ID, 1_000_000)
	if out.Taker.ProviderLocked != 1_250_000 {
		t.Errorf("providerLocked: got %d, want 1_250_000", out.Taker.ProviderLocked)
	}
}

func TestOpen_MintsBothTokens(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)

	if !r.taker.Tokens().IsOwner(out.Taker.ID, r.takerUser) {
		t.Error("taker token not minted to taker")
	}
	if !r.provider.Tokens().IsOwner(out.Provider.ID, r.providerUser) {
		t.Error("provider token not minted to provider")
	}
}

func TestOpen_InsufficientLiquidity(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)

	_, err := r.taker.OpenPairedPosition(
		uuid.New(), uuid.New(), r.takerUser, 3_000_000,
		r.provider.ID(), offer.ID, "USDC", "WETH", baseNow,
	)
	if !errors.Is(err, collar.ErrInsufficientLiquidity) {
		t.Errorf("got %v, want ErrInsufficientLiquidity", err)
	}
	if offer.Available != 2_000_000 {
		t.Errorf("failed open must not touch the pool: got %d", offer.Available)
	}
}

func TestOpen_RegistryGates(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)

	_, err := r.taker.OpenPairedPosition(
		uuid.New(), uuid.New(), r.takerUser, 1_000_000,
		r.provider.ID(), offer.ID, "DAI", "WETH", baseNow,
	)
	if !errors.Is(err, collar.ErrUnsupportedAsset) {
		t.Errorf("unsupported cash asset: got %v", err)
	}

	_, err = r.taker.OpenPairedPosition(
		uuid.New(), uuid.New(), r.takerUser, 1_000_000,
		r.provider.ID(), offer.ID, "USDC", "WBTC", baseNow,
	)
	if !errors.Is(err, collar.ErrUnsupportedAsset) {
		t.Errorf("unsupported underlying: got %v", err)
	}

	r.registry.AllowOpen(r.taker.ID(), false)
	_, err = r.taker.OpenPairedPosition(
		uuid.New(), uuid.New(), r.takerUser, 1_000_000,
		r.provider.ID(), offer.ID, "USDC", "WETH", baseNow,
	)
	if !errors.Is(err, collar.ErrOpenNotAllowed) {
		t.Errorf("paused ledger: got %v", err)
	}
}

func TestOpen_RejectsZeroOraclePrice(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	r.oracle.current = 0

	_, err := r.taker.OpenPairedPosition(
		uuid.New(), uuid.New(), r.takerUser, 1_000_000,
		r.provider.ID(), offer.ID, "USDC", "WETH", baseNow,
	)
	if !errors.Is(err, collar.ErrInvalidPrice) {
		t.Errorf("got %v, want ErrInvalidPrice", err)
	}
}

func TestOpen_DegenerateStrikes(t *testing.T) {
	r := newRig(t)
	// At price 1 both strikes floor to the same values and collapse.
	offer, err := r.provider.CreateOffer(uuid.New(), r.providerUser, 9_999, 10_001, 2_000_000, 86_400)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	r.oracle.current = 1

	_, err = r.taker.OpenPairedPosition(
		uuid.New(), uuid.New(), r.takerUser, 1_000_000,
		r.provider.ID(), offer.ID, "USDC", "WETH", baseNow,
	)
	if !errors.Is(err, collar.ErrStrikesNotDifferent) {
		t.Errorf("got %v, want ErrStrikesNotDifferent", err)
	}
}

// ============================================================================
// Test: SettlePairedPosition
// ============================================================================

func TestSettle_NotExpired(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)

	_, err := r.taker.SettlePairedPosition(out.Taker.ID, out.Taker.Expiration-1)
	if !errors.Is(err, collar.ErrNotExpired) {
		t.Errorf("got %v, want ErrNotExpired", err)
	}
}

func TestSettle_PriceFell(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)

	r.oracle.past = 9_500 // 95.00
	r.oracle.historical = true

	res, err := r.taker.SettlePairedPosition(out.Taker.ID, out.Taker.Expiration)
	if err != nil {
		t.Fatalf("SettlePairedPosition: %v", err)
	}
	if res.TakerWithdrawable != 500_000 {
		t.Errorf("taker withdrawable: got %d, want 500_000", res.TakerWithdrawable)
	}
	if res.ProviderDelta != 500_000 {
		t.Errorf("provider delta: got %d, want +500_000", res.ProviderDelta)
	}
	if res.Provider.Withdrawable != 1_500_000 {
		t.Errorf("provider withdrawable: got %d, want 1_500_000", res.Provider.Withdrawable)
	}
	if !res.Historical {
		t.Error("historical flag must survive settlement")
	}

	// Conservation across the pair.
	total := res.TakerWithdrawable + res.Provider.Withdrawable
	if total != 2_000_000 {
		t.Errorf("conservation: got %d, want 2_000_000", total)
	}
}

func TestSettle_PriceRose(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)

	r.oracle.past = 10_500 // 105.00

	res, err := r.taker.SettlePairedPosition(out.Taker.ID, out.Taker.Expiration)
	if err != nil {
		t.Fatalf("SettlePairedPosition: %v", err)
	}
	if res.TakerWithdrawable != 1_500_000 {
		t.Errorf("taker withdrawable: got %d, want 1_500_000", res.TakerWithdrawable)
	}
	if res.ProviderDelta != -500_000 {
		t.Errorf("provider delta: got %d, want -500_000", res.ProviderDelta)
	}
	if res.Provider.Withdrawable != 500_000 {
		t.Errorf("provider withdrawable: got %d, want 500_000", res.Provider.Withdrawable)
	}
}

func TestSettle_FallbackPriceIsNotHistorical(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)

	// No stored past price: oracle degrades to current.
	r.oracle.current = 10_200

	res, err := r.taker.SettlePairedPosition(out.Taker.ID, out.Taker.Expiration)
	if err != nil {
		t.Fatalf("SettlePairedPosition: %v", err)
	}
	if res.Historical {
		t.Error("fallback settlement must report historical=false")
	}
	if res.EndPrice != 10_200 {
		t.Errorf("end price: got %d, want 10_200", res.EndPrice)
	}
}

func TestSettle_AtMostOnce(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)

	r.oracle.past = 9_500
	if _, err := r.taker.SettlePairedPosition(out.Taker.ID, out.Taker.Expiration); err != nil {
		t.Fatalf("first settle: %v", err)
	}

	pos, _ := r.taker.GetPosition(out.Taker.ID)
	wantWithdrawable := pos.Withdrawable

	_, err := r.taker.SettlePairedPosition(out.Taker.ID, out.Taker.Expiration)
	if !errors.Is(err, collar.ErrAlreadySettled) {
		t.Fatalf("second settle: got %v, want ErrAlreadySettled", err)
	}
	if pos.Withdrawable != wantWithdrawable {
		t.Errorf("failed settle mutated state: got %d, want %d", pos.Withdrawable, wantWithdrawable)
	}
}

// ============================================================================
// Test: withdrawals
// ============================================================================

func TestWithdraw_BothSides(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)

	r.oracle.past = 9_500
	if _, err := r.taker.SettlePairedPosition(out.Taker.ID, out.Taker.Expiration); err != nil {
		t.Fatalf("settle: %v", err)
	}

	takerAmt, err := r.taker.WithdrawFromSettled(out.Taker.ID, r.takerUser)
	if err != nil {
		t.Fatalf("taker withdraw: %v", err)
	}
	if takerAmt != 500_000 {
		t.Errorf("taker amount: got %d, want 500_000", takerAmt)
	}

	providerAmt, err := r.provider.WithdrawSettled(out.Provider.ID, r.providerUser)
	if err != nil {
		t.Fatalf("provider withdraw: %v", err)
	}
	if providerAmt != 1_500_000 {
		t.Errorf("provider amount: got %d, want 1_500_000", providerAmt)
	}

	// Both tokens burned, positions gone.
	if _, err := r.taker.GetPosition(out.Taker.ID); !errors.Is(err, collar.ErrPositionNotFound) {
		t.Errorf("taker position should be destroyed: %v", err)
	}
	if _, err := r.provider.GetPosition(out.Provider.ID); !errors.Is(err, collar.ErrPositionNotFound) {
		t.Errorf("provider position should be destroyed: %v", err)
	}
}

func TestWithdraw_RequiresSettlement(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)

	_, err := r.taker.WithdrawFromSettled(out.Taker.ID, r.takerUser)
	if !errors.Is(err, collar.ErrNotSettled) {
		t.Errorf("got %v, want ErrNotSettled", err)
	}
}

func TestWithdraw_TokenHolderOnly(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)

	r.oracle.past = 9_500
	if _, err := r.taker.SettlePairedPosition(out.Taker.ID, out.Taker.Expiration); err != nil {
		t.Fatalf("settle: %v", err)
	}

	_, err := r.taker.WithdrawFromSettled(out.Taker.ID, uuid.New())
	if !errors.Is(err, collar.ErrNotOwner) {
		t.Errorf("got %v, want ErrNotOwner", err)
	}
}

func TestWithdraw_TransferredTokenMovesClaim(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)

	buyer := uuid.New()
	if err := r.taker.Tokens().Transfer(out.Taker.ID, r.takerUser, buyer); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	r.oracle.past = 10_500
	if _, err := r.taker.SettlePairedPosition(out.Taker.ID, out.Taker.Expiration); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if _, err := r.taker.WithdrawFromSettled(out.Taker.ID, r.takerUser); !errors.Is(err, collar.ErrNotOwner) {
		t.Errorf("original owner should be rejected: %v", err)
	}
	amt, err := r.taker.WithdrawFromSettled(out.Taker.ID, buyer)
	if err != nil {
		t.Fatalf("buyer withdraw: %v", err)
	}
	if amt != 1_500_000 {
		t.Errorf("buyer amount: got %d, want 1_500_000", amt)
	}
}

// ============================================================================
// Test: CancelPairedPosition
// ============================================================================

func TestCancel_RequiresBothTokens(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)

	// Taker alone holds only one side.
	_, err := r.taker.CancelPairedPosition(out.Taker.ID, r.takerUser)
	if !errors.Is(err, collar.ErrNotOwner) {
		t.Errorf("got %v, want ErrNotOwner", err)
	}
}

func TestCancel_FullRefunds(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)

	// Provider hands its token to the taker: mutual consent by custody.
	if err := r.provider.Tokens().Transfer(out.Provider.ID, r.providerUser, r.takerUser); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	res, err := r.taker.CancelPairedPosition(out.Taker.ID, r.takerUser)
	if err != nil {
		t.Fatalf("CancelPairedPosition: %v", err)
	}
	if res.TakerRefund != 1_000_000 || res.ProviderRefund != 1_000_000 {
		t.Errorf("refunds: got %d/%d, want 1_000_000/1_000_000", res.TakerRefund, res.ProviderRefund)
	}
	if res.TakerRefund+res.ProviderRefund != 2_000_000 {
		t.Errorf("conservation: got %d, want 2_000_000", res.TakerRefund+res.ProviderRefund)
	}

	if _, err := r.taker.GetPosition(out.Taker.ID); !errors.Is(err, collar.ErrPositionNotFound) {
		t.Errorf("taker position should be destroyed: %v", err)
	}
	if _, err := r.provider.GetPosition(out.Provider.ID); !errors.Is(err, collar.ErrPositionNotFound) {
		t.Errorf("provider position should be destroyed: %v", err)
	}
}

// ============================================================================
// Test: roll offers
// ============================================================================

func (r *rig) standardRollOffer(t *testing.T, positionID uuid.UUID) *collar.RollOffer {
	t.Helper()
	ro, err := r.taker.CreateRollOffer(
		uuid.New(), r.providerUser, positionID,
		100,            // rollFee
		0,              // feeDeltaFactorBips
		9_000, 11_000,  // price range
		-600_000,       // minToProvider
		baseNow+dayMicros, baseNow,
	)
	if err != nil {
		t.Fatalf("CreateRollOffer: %v", err)
	}
	return ro
}

func TestCreateRollOffer_Validation(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)

	_, err := r.taker.CreateRollOffer(uuid.New(), r.providerUser, out.Taker.ID,
		100, 0, 11_000, 9_000, 0, baseNow+dayMicros, baseNow)
	if !errors.Is(err, collar.ErrInvalidRollRange) {
		t.Errorf("inverted range: got %v", err)
	}

	_, err = r.taker.CreateRollOffer(uuid.New(), r.providerUser, out.Taker.ID,
		100, 10_001, 9_000, 11_000, 0, baseNow+dayMicros, baseNow)
	if !errors.Is(err, collar.ErrInvalidFeeDeltaFactor) {
		t.Errorf("factor over bound: got %v", err)
	}

	_, err = r.taker.CreateRollOffer(uuid.New(), r.providerUser, out.Taker.ID,
		100, 0, 9_000, 11_000, 0, baseNow-1, baseNow)
	if !errors.Is(err, collar.ErrDeadlinePassed) {
		t.Errorf("past deadline: got %v", err)
	}

	_, err = r.taker.CreateRollOffer(uuid.New(), r.takerUser, out.Taker.ID,
		100, 0, 9_000, 11_000, 0, baseNow+dayMicros, baseNow)
	if !errors.Is(err, collar.ErrNotOwner) {
		t.Errorf("non-provider creator: got %v", err)
	}
}

func TestCancelRollOffer(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)
	ro := r.standardRollOffer(t, out.Taker.ID)

	if _, err := r.taker.CancelRollOffer(ro.ID, r.takerUser); !errors.Is(err, collar.ErrUnauthorized) {
		t.Errorf("non-creator cancel: got %v", err)
	}
	if _, err := r.taker.CancelRollOffer(ro.ID, r.providerUser); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := r.taker.CancelRollOffer(ro.ID, r.providerUser); !errors.Is(err, collar.ErrRollOfferInactive) {
		t.Errorf("double cancel: got %v", err)
	}

	_, err := r.taker.ExecuteRoll(ro.ID, r.takerUser, 0, uuid.New(), uuid.New(), baseNow)
	if !errors.Is(err, collar.ErrRollOfferInactive) {
		t.Errorf("execute after cancel: got %v", err)
	}
}

func TestCalculateTransferAmounts_OutOfRange(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)
	ro := r.standardRollOffer(t, out.Taker.ID)

	_, err := r.taker.CalculateTransferAmounts(ro.ID, 11_001)
	if !errors.Is(err, collar.ErrPriceOutOfRollRange) {
		t.Errorf("got %v, want ErrPriceOutOfRollRange", err)
	}
}

func TestExecuteRoll_PriceRose(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)
	ro := r.standardRollOffer(t, out.Taker.ID)

	r.oracle.current = 10_500

	// Old pair settles 1_500_000/500_000; both sides re-lock 1_050_000;
	// flat fee 100 moves taker -> provider.
	res, err := r.taker.ExecuteRoll(ro.ID, r.takerUser, 449_900, uuid.New(), uuid.New(), baseNow+1)
	if err != nil {
		t.Fatalf("ExecuteRoll: %v", err)
	}

	if res.Transfer.ToTaker != 449_900 {
		t.Errorf("toTaker: got %d, want 449_900", res.Transfer.ToTaker)
	}
	if res.Transfer.ToProvider != -549_900 {
		t.Errorf("toProvider: got %d, want -549_900", res.Transfer.ToProvider)
	}
	if res.NewTaker.TakerLocked != 1_050_000 || res.NewTaker.ProviderLocked != 1_050_000 {
		t.Errorf("new locks: got %d/%d, want 1_050_000/1_050_000",
			res.NewTaker.TakerLocked, res.NewTaker.ProviderLocked)
	}

	// Conservation: fee is internal, escrows plus transfers equal the old pot.
	got := res.Transfer.ToTaker + res.Transfer.ToProvider +
		res.Transfer.NewTakerLocked + res.Transfer.NewProviderLocked
	if got != 2_000_000 {
		t.Errorf("conservation: got %d, want 2_000_000", got)
	}

	// New pair re-struck at the roll price.
	if res.NewTaker.InitialPrice != 10_500 {
		t.Errorf("new initial price: got %d, want 10_500", res.NewTaker.InitialPrice)
	}
	if res.NewTaker.PutStrikePrice != 9_450 || res.NewTaker.CallStrikePrice != 11_550 {
		t.Errorf("new strikes: got %d/%d, want 9450/11550",
			res.NewTaker.PutStrikePrice, res.NewTaker.CallStrikePrice)
	}

	// Old pair destroyed, new tokens live.
	if _, err := r.taker.GetPosition(out.Taker.ID); !errors.Is(err, collar.ErrPositionNotFound) {
		t.Errorf("old taker position should be gone: %v", err)
	}
	if _, err := r.provider.GetPosition(out.Provider.ID); !errors.Is(err, collar.ErrPositionNotFound) {
		t.Errorf("old provider position should be gone: %v", err)
	}
	if !r.taker.Tokens().IsOwner(res.NewTaker.ID, r.takerUser) {
		t.Error("new taker token not minted to taker")
	}
	if !r.provider.Tokens().IsOwner(res.NewProvider.ID, r.providerUser) {
		t.Error("new provider token not minted to provider")
	}

	// The offer is consumed.
	if ro.Active {
		t.Error("roll offer should be inactive after execution")
	}
}

func TestExecuteRoll_SlippageGuard(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)
	ro := r.standardRollOffer(t, out.Taker.ID)

	r.oracle.current = 10_500

	_, err := r.taker.ExecuteRoll(ro.ID, r.takerUser, 449_901, uuid.New(), uuid.New(), baseNow+1)
	if !errors.Is(err, collar.ErrSlippageExceeded) {
		t.Errorf("got %v, want ErrSlippageExceeded", err)
	}
	// Guard must fire before any mutation.
	if !ro.Active {
		t.Error("failed execution must leave the roll offer active")
	}
	if _, err := r.taker.GetPosition(out.Taker.ID); err != nil {
		t.Errorf("failed execution must leave the position: %v", err)
	}
}

func TestExecuteRoll_DeadlineAndRange(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)
	ro := r.standardRollOffer(t, out.Taker.ID)

	_, err := r.taker.ExecuteRoll(ro.ID, r.takerUser, 0, uuid.New(), uuid.New(), ro.Deadline+1)
	if !errors.Is(err, collar.ErrDeadlinePassed) {
		t.Errorf("past deadline: got %v", err)
	}

	r.oracle.current = 12_000 // above maxPrice
	_, err = r.taker.ExecuteRoll(ro.ID, r.takerUser, 0, uuid.New(), uuid.New(), baseNow+1)
	if !errors.Is(err, collar.ErrPriceOutOfRollRange) {
		t.Errorf("out of range: got %v", err)
	}
}

func TestExecuteRoll_MinToProviderGuard(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)

	ro, err := r.taker.CreateRollOffer(
		uuid.New(), r.providerUser, out.Taker.ID,
		100, 0, 9_000, 11_000,
		-100_000, // tighter than the -549_900 the roll produces at 105
		baseNow+dayMicros, baseNow,
	)
	if err != nil {
		t.Fatalf("CreateRollOffer: %v", err)
	}

	r.oracle.current = 10_500
	_, err = r.taker.ExecuteRoll(ro.ID, r.takerUser, 449_900, uuid.New(), uuid.New(), baseNow+1)
	if !errors.Is(err, collar.ErrBelowMinToProvider) {
		t.Errorf("got %v, want ErrBelowMinToProvider", err)
	}
}

func TestExecuteRoll_TakerOnly(t *testing.T) {
	r := newRig(t)
	offer := r.standardOffer(t)
	out := r.open(t, offer.ID, 1_000_000)
	ro := r.standardRollOffer(t, out.Taker.ID)

	r.oracle.current = 10_500
	_, err := r.taker.ExecuteRoll(ro.ID, uuid.New(), 449_900, uuid.New(), uuid.New(), baseNow+1)
	if !errors.Is(err, collar.ErrNotOwner) {
		t.Errorf("got %v, want ErrNotOwner", err)
	}
}

// ============================================================================
// Test: token book
// ============================================================================

func TestTokenBook_Lifecycle(t *testing.T) {
	tb := collar.NewTokenBook("test")
	id, alice, bob := uuid.New(), uuid.New(), uuid.New()

	tb.Mint(id, alice)
	owner, err := tb.OwnerOf(id)
	if err != nil || owner != alice {
		t.Fatalf("owner: got %v/%v", owner, err)
	}

	if err := tb.Transfer(id, bob, alice); !errors.Is(err, collar.ErrNotOwner) {
		t.Errorf("transfer by non-owner: got %v", err)
	}
	if err := tb.Transfer(id, alice, bob); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !tb.IsOwner(id, bob) {
		t.Error("bob should own the token")
	}

	if err := tb.Burn(id); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if _, err := tb.OwnerOf(id); !errors.Is(err, collar.ErrTokenNotFound) {
		t.Errorf("burned token: got %v", err)
	}
	if err := tb.Burn(id); !errors.Is(err, collar.ErrTokenNotFound) {
		t.Errorf("double burn: got %v", err)
	}
}

func TestTokenBook_SnapshotRestore(t *testing.T) {
	tb := collar.NewTokenBook("test")
	id, owner := uuid.New(), uuid.New()
	tb.Mint(id, owner)

	snap := tb.Snapshot()

	restored := collar.NewTokenBook("test")
	restored.Restore(snap)
	if !restored.IsOwner(id, owner) {
		t.Error("restored book lost ownership")
	}
}
