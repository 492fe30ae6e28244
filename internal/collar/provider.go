package collar

import (
	"fmt"

	"github.com/google/uuid"

	fpmath "CollarLedger/internal/math"
)

// ProviderLedger manages liquidity offers and provider-side positions for one
// asset pair. Cash itself lives in the double-entry ledger; this ledger owns
// the terms, the ownership tokens and the settled-at-most-once state machine.
// Not thread-safe — only accessed from the single-threaded deterministic core.
type ProviderLedger struct {
	id        uuid.UUID
	pair      string
	offers    map[uuid.UUID]*LiquidityOffer
	positions map[uuid.UUID]*ProviderPosition
	tokens    *TokenBook

	// Capability: the one taker ledger allowed to settle/cancel paired
	// positions, stored at wiring time and asserted on every privileged call.
	settler uuid.UUID
}

func NewProviderLedger(id uuid.UUID, pair string) *ProviderLedger {
	return &ProviderLedger{
		id:        id,
		pair:      pair,
		offers:    make(map[uuid.UUID]*LiquidityOffer),
		positions: make(map[uuid.UUID]*ProviderPosition),
		tokens:    NewTokenBook("provider"),
	}
}

func (pl *ProviderLedger) ID() uuid.UUID { return pl.id }

func (pl *ProviderLedger) Pair() string { return pl.pair }

// AuthorizeSettler records the paired taker ledger. Called once at wiring.
func (pl *ProviderLedger) AuthorizeSettler(takerLedgerID uuid.UUID) {
	pl.settler = takerLedgerID
}

// Tokens exposes the provider position token book.
func (pl *ProviderLedger) Tokens() *TokenBook { return pl.tokens }

// CreateOffer validates terms and registers a new offer. The cash pull into
// the offer pool is journaled by the caller; Available mirrors that pool.
func (pl *ProviderLedger) CreateOffer(
	offerID uuid.UUID,
	provider uuid.UUID,
	putStrikeDeviation, callStrikeDeviation int64,
	amount int64,
	durationSeconds int64,
) (*LiquidityOffer, error) {
	if putStrikeDeviation <= 0 || putStrikeDeviation >= fpmath.BpsBase || callStrikeDeviation <= fpmath.BpsBase {
		return nil, fmt.Errorf("%w: put=%d call=%d", ErrInvalidStrikeRange, putStrikeDeviation, callStrikeDeviation)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount=%d", ErrInvalidAmount, amount)
	}
	if durationSeconds <= 0 {
		return nil, fmt.Errorf("%w: duration=%ds", ErrInvalidDuration, durationSeconds)
	}

	offer := &LiquidityOffer{
		ID:                  offerID,
		Provider:            provider,
		Pair:                pl.pair,
		Available:           amount,
		PutStrikeDeviation:  putStrikeDeviation,
		CallStrikeDeviation: callStrikeDeviation,
		Duration:            durationSeconds,
	}
	pl.offers[offerID] = offer
	return offer, nil
}

// UpdateOfferAmount replenishes (delta > 0) or drains (delta < 0) the offer's
// available pool. Provider only; the pool never goes negative.
func (pl *ProviderLedger) UpdateOfferAmount(offerID, caller uuid.UUID, delta int64) (*LiquidityOffer, error) {
	offer, ok := pl.offers[offerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOfferNotFound, offerID)
	}
	if offer.Provider != caller {
		return nil, fmt.Errorf("%w: offer %s belongs to %s", ErrUnauthorized, offerID, offer.Provider)
	}
	if delta == 0 {
		return nil, fmt.Errorf("%w: delta=0", ErrInvalidAmount)
	}
	if delta < 0 && offer.Available+delta < 0 {
		return nil, fmt.Errorf("%w: available=%d, withdraw=%d", ErrInsufficientLiquidity, offer.Available, -delta)
	}

	offer.Available += delta
	offer.Version++
	return offer, nil
}

// MintFromOffer consumes lockedAmount from the offer's pool and creates a
// provider position paired with the given taker position. Returns the
// position for the caller (the taker ledger) to cross-check terms.
func (pl *ProviderLedger) MintFromOffer(
	positionID uuid.UUID,
	offerID uuid.UUID,
	lockedAmount int64,
	pairedTakerID uuid.UUID,
	nowMicros int64,
) (*ProviderPosition, error) {
	offer, ok := pl.offers[offerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOfferNotFound, offerID)
	}
	if lockedAmount <= 0 {
		return nil, fmt.Errorf("%w: locked=%d", ErrInvalidAmount, lockedAmount)
	}
	// Checked, not wrapped: the pool must never be over-allocated.
	if lockedAmount > offer.Available {
		return nil, fmt.Errorf("%w: offer %s available=%d, need=%d",
			ErrInsufficientLiquidity, offerID, offer.Available, lockedAmount)
	}

	offer.Available -= lockedAmount
	offer.Version++

	pos := &ProviderPosition{
		ID:                  positionID,
		OfferID:             offerID,
		Provider:            offer.Provider,
		Pair:                pl.pair,
		ProviderLocked:      lockedAmount,
		PutStrikeDeviation:  offer.PutStrikeDeviation,
		CallStrikeDeviation: offer.CallStrikeDeviation,
		Expiration:          nowMicros + offer.Duration*1_000_000,
	}
	pl.positions[positionID] = pos
	pl.tokens.Mint(positionID, offer.Provider)

	_ = pairedTakerID // Pairing is tracked on the taker side; kept for the event trail.
	return pos, nil
}

// MintForRoll creates a replacement provider position during a roll. The
// escrow is funded directly from the provider's cash (journaled by the
// caller), not from the originating offer's pool; the offer id is kept as a
// back-reference only.
func (pl *ProviderLedger) MintForRoll(
	positionID uuid.UUID,
	offerID uuid.UUID,
	provider uuid.UUID,
	putStrikeDeviation, callStrikeDeviation int64,
	lockedAmount int64,
	expirationMicros int64,
) (*ProviderPosition, error) {
	if lockedAmount <= 0 {
		return nil, fmt.Errorf("%w: locked=%d", ErrInvalidAmount, lockedAmount)
	}

	pos := &ProviderPosition{
		ID:                  positionID,
		OfferID:             offerID,
		Provider:            provider,
		Pair:                pl.pair,
		ProviderLocked:      lockedAmount,
		PutStrikeDeviation:  putStrikeDeviation,
		CallStrikeDeviation: callStrikeDeviation,
		Expiration:          expirationMicros,
	}
	pl.positions[positionID] = pos
	pl.tokens.Mint(positionID, provider)
	return pos, nil
}

// SettlePosition applies the signed settlement delta to the position.
// Callable only by the paired taker ledger (capability check). The settled
// flag flips before any value transfer is journaled — that ordering closes
// the double-settlement window.
func (pl *ProviderLedger) SettlePosition(caller uuid.UUID, positionID uuid.UUID, providerDelta int64) (*ProviderPosition, error) {
	if caller != pl.settler {
		return nil, fmt.Errorf("%w: %s is not the paired taker ledger", ErrUnauthorized, caller)
	}
	pos, ok := pl.positions[positionID]
	if !ok {
		return nil, fmt.Errorf("%w: provider position %s", ErrPositionNotFound, positionID)
	}
	if pos.Settled {
		return nil, fmt.Errorf("%w: provider position %s", ErrAlreadySettled, positionID)
	}

	pos.Settled = true
	pos.Withdrawable = pos.ProviderLocked + providerDelta
	pos.Version++
	return pos, nil
}

// CancelPosition releases the full locked amount on the mutual-cancel path.
// The both-tokens consent check happens on the taker ledger; this entry point
// still demands the settler capability so nothing else can reach it.
func (pl *ProviderLedger) CancelPosition(caller uuid.UUID, positionID uuid.UUID) (refund int64, err error) {
	if caller != pl.settler {
		return 0, fmt.Errorf("%w: %s is not the paired taker ledger", ErrUnauthorized, caller)
	}
	pos, ok := pl.positions[positionID]
	if !ok {
		return 0, fmt.Errorf("%w: provider position %s", ErrPositionNotFound, positionID)
	}
	if pos.Settled {
		return 0, fmt.Errorf("%w: provider position %s", ErrAlreadySettled, positionID)
	}

	refund = pos.ProviderLocked
	pos.Settled = true
	pos.ProviderLocked = 0
	pos.Version++

	if err := pl.tokens.Burn(positionID); err != nil {
		panic(fmt.Sprintf("FATAL: cancel of %s found no token: %v", positionID, err))
	}
	delete(pl.positions, positionID)
	return refund, nil
}

// ConsumeForRoll destroys the old provider position when a roll replaces it.
// The escrow does not pay out here; the roll transfer calculation already
// accounts for it. Settler capability only.
func (pl *ProviderLedger) ConsumeForRoll(caller uuid.UUID, positionID uuid.UUID) error {
	if caller != pl.settler {
		return fmt.Errorf("%w: %s is not the paired taker ledger", ErrUnauthorized, caller)
	}
	pos, ok := pl.positions[positionID]
	if !ok {
		return fmt.Errorf("%w: provider position %s", ErrPositionNotFound, positionID)
	}
	if pos.Settled {
		return fmt.Errorf("%w: provider position %s", ErrAlreadySettled, positionID)
	}

	if err := pl.tokens.Burn(positionID); err != nil {
		panic(fmt.Sprintf("FATAL: roll consume of %s found no token: %v", positionID, err))
	}
	delete(pl.positions, positionID)
	return nil
}

// WithdrawSettled releases the settled escrow to the token holder and burns
// the token, destroying the position.
func (pl *ProviderLedger) WithdrawSettled(positionID, caller uuid.UUID) (amount int64, err error) {
	pos, ok := pl.positions[positionID]
	if !ok {
		return 0, fmt.Errorf("%w: provider position %s", ErrPositionNotFound, positionID)
	}
	if !pl.tokens.IsOwner(positionID, caller) {
		return 0, fmt.Errorf("%w: provider position %s", ErrNotOwner, positionID)
	}
	if !pos.Settled {
		return 0, fmt.Errorf("%w: provider position %s", ErrNotSettled, positionID)
	}

	amount = pos.Withdrawable
	pos.Withdrawable = 0
	pos.Version++

	if err := pl.tokens.Burn(positionID); err != nil {
		return 0, err
	}
	delete(pl.positions, positionID)
	return amount, nil
}

// GetOffer returns an offer by id.
func (pl *ProviderLedger) GetOffer(offerID uuid.UUID) (*LiquidityOffer, error) {
	offer, ok := pl.offers[offerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOfferNotFound, offerID)
	}
	return offer, nil
}

// GetPosition returns a provider position by id.
func (pl *ProviderLedger) GetPosition(positionID uuid.UUID) (*ProviderPosition, error) {
	pos, ok := pl.positions[positionID]
	if !ok {
		return nil, fmt.Errorf("%w: provider position %s", ErrPositionNotFound, positionID)
	}
	return pos, nil
}

// AllOffers returns every live offer (iteration order is not deterministic;
// callers that hash must sort).
func (pl *ProviderLedger) AllOffers() []*LiquidityOffer {
	out := make([]*LiquidityOffer, 0, len(pl.offers))
	for _, o := range pl.offers {
		out = append(out, o)
	}
	return out
}

// AllPositions returns every live provider position.
func (pl *ProviderLedger) AllPositions() []*ProviderPosition {
	out := make([]*ProviderPosition, 0, len(pl.positions))
	for _, p := range pl.positions {
		out = append(out, p)
	}
	return out
}

// RestoreOffer reinstates an offer from a snapshot.
func (pl *ProviderLedger) RestoreOffer(offer *LiquidityOffer) {
	pl.offers[offer.ID] = offer
}

// RestorePosition reinstates a position from a snapshot.
func (pl *ProviderLedger) RestorePosition(pos *ProviderPosition) {
	pl.positions[pos.ID] = pos
}
