package collar

import (
	"fmt"

	"github.com/google/uuid"

	fpmath "CollarLedger/internal/math"
)

// TakerLedger opens paired positions against provider offers, settles them at
// expiration and handles withdrawal/cancellation. It holds the cross-ledger
// handles: provider ledgers are resolved by id on every access, never cached
// inside a position.
// Not thread-safe — only accessed from the single-threaded deterministic core.
type TakerLedger struct {
	id        uuid.UUID
	pair      string
	positions map[uuid.UUID]*TakerPosition
	tokens    *TokenBook
	rolls     *RollBook
	providers map[uuid.UUID]*ProviderLedger
	registry  Registry
	oracle    PriceOracle
}

func NewTakerLedger(id uuid.UUID, pair string, registry Registry, oracle PriceOracle) *TakerLedger {
	return &TakerLedger{
		id:        id,
		pair:      pair,
		positions: make(map[uuid.UUID]*TakerPosition),
		tokens:    NewTokenBook("taker"),
		rolls:     NewRollBook(),
		providers: make(map[uuid.UUID]*ProviderLedger),
		registry:  registry,
		oracle:    oracle,
	}
}

func (tl *TakerLedger) ID() uuid.UUID { return tl.id }

func (tl *TakerLedger) Pair() string { return tl.pair }

// Tokens exposes the taker position token book.
func (tl *TakerLedger) Tokens() *TokenBook { return tl.tokens }

// RegisterProvider wires a provider ledger and grants this ledger the settle
// capability on it.
func (tl *TakerLedger) RegisterProvider(pl *ProviderLedger) {
	tl.providers[pl.ID()] = pl
	pl.AuthorizeSettler(tl.id)
}

// resolveProvider validates the stored back-reference. A missing or
// mismatched handle means the position references a stale ledger.
func (tl *TakerLedger) resolveProvider(ledgerID uuid.UUID) (*ProviderLedger, error) {
	pl, ok := tl.providers[ledgerID]
	if !ok {
		return nil, fmt.Errorf("%w: provider ledger %s", ErrPairedMismatch, ledgerID)
	}
	return pl, nil
}

// OpenOutcome is the snapshot returned from an open, consumed by the journal
// generator and the open event.
type OpenOutcome struct {
	Taker    *TakerPosition
	Provider *ProviderPosition
	Offer    *LiquidityOffer
}

// OpenPairedPosition pulls takerLocked from the taker, locks the
// proportionally scaled provider amount from the offer, and stores the paired
// position with strikes derived from the current oracle price.
func (tl *TakerLedger) OpenPairedPosition(
	positionID uuid.UUID,
	providerPositionID uuid.UUID,
	taker uuid.UUID,
	takerLocked int64,
	providerLedgerID uuid.UUID,
	offerID uuid.UUID,
	cashAsset string,
	underlying string,
	nowMicros int64,
) (*OpenOutcome, error) {
	// Registry gates precede everything else.
	if !tl.registry.IsSupportedCashAsset(cashAsset) {
		return nil, fmt.Errorf("%w: cash asset %s", ErrUnsupportedAsset, cashAsset)
	}
	if !tl.registry.IsSupportedUnderlying(underlying) {
		return nil, fmt.Errorf("%w: underlying %s", ErrUnsupportedAsset, underlying)
	}
	if !tl.registry.CanOpen(tl.id) {
		return nil, fmt.Errorf("%w: ledger %s", ErrOpenNotAllowed, tl.id)
	}
	if takerLocked <= 0 {
		return nil, fmt.Errorf("%w: takerLocked=%d", ErrInvalidAmount, takerLocked)
	}

	pl, err := tl.resolveProvider(providerLedgerID)
	if err != nil {
		return nil, err
	}
	offer, err := pl.GetOffer(offerID)
	if err != nil {
		return nil, err
	}
	// Structural guard against the division-by-zero equivalent; offer
	// validation already excludes this, but the lock formula's denominator
	// must never be trusted implicitly.
	if offer.PutStrikeDeviation >= fpmath.BpsBase {
		return nil, fmt.Errorf("%w: offer %s put=%d", ErrInvalidPutStrikeDeviation, offerID, offer.PutStrikeDeviation)
	}

	currentPrice, err := tl.oracle.CurrentPrice()
	if err != nil {
		return nil, fmt.Errorf("oracle read failed: %w", err)
	}
	if currentPrice <= 0 {
		return nil, fmt.Errorf("%w: current=%d", ErrInvalidPrice, currentPrice)
	}

	providerLocked := fpmath.CalculateProviderLocked(
		takerLocked, offer.PutStrikeDeviation, offer.CallStrikeDeviation,
	)
	if providerLocked <= 0 {
		return nil, fmt.Errorf("%w: providerLocked floors to %d", ErrInvalidAmount, providerLocked)
	}

	putStrike, callStrike := fpmath.StrikePrices(
		currentPrice, offer.PutStrikeDeviation, offer.CallStrikeDeviation,
	)
	// Strict inequality on both sides: equality would make a settlement
	// denominator zero or the payout degenerate.
	if !(putStrike < currentPrice && currentPrice < callStrike) {
		return nil, fmt.Errorf("%w: put=%d price=%d call=%d",
			ErrStrikesNotDifferent, putStrike, currentPrice, callStrike)
	}

	providerPos, err := pl.MintFromOffer(providerPositionID, offerID, providerLocked, positionID, nowMicros)
	if err != nil {
		return nil, err
	}
	// The taker side's mirror must equal the amount actually locked on the
	// provider ledger. MintFromOffer locks exactly what it is asked to, so a
	// mismatch is a corrupted pairing, not a user error.
	if providerPos.ProviderLocked != providerLocked {
		panic(fmt.Sprintf("FATAL: provider lock mismatch: taker=%d provider=%d",
			providerLocked, providerPos.ProviderLocked))
	}

	pos := &TakerPosition{
		ID:                 positionID,
		ProviderPositionID: providerPositionID,
		ProviderLedgerID:   providerLedgerID,
		Taker:              taker,
		Pair:               tl.pair,
		CashAsset:          cashAsset,
		InitialPrice:       currentPrice,
		PutStrikePrice:     putStrike,
		CallStrikePrice:    callStrike,
		TakerLocked:        takerLocked,
		ProviderLocked:     providerLocked,
		Expiration:         providerPos.Expiration,
	}
	tl.positions[positionID] = pos
	tl.tokens.Mint(positionID, taker)

	return &OpenOutcome{Taker: pos, Provider: providerPos, Offer: offer}, nil
}

// SettleOutcome carries everything the settlement journals and events need,
// including the explicit historical flag from the oracle fallback.
type SettleOutcome struct {
	Taker             *TakerPosition
	Provider          *ProviderPosition
	EndPrice          int64
	Historical        bool
	TakerWithdrawable int64
	ProviderDelta     int64
}

// SettlePairedPosition resolves an expired pair against the oracle price.
// Callable by anyone (keeper pattern): the payout goes to escrow, not to the
// caller. The settled flags flip before the caller journals any transfer.
func (tl *TakerLedger) SettlePairedPosition(positionID uuid.UUID, nowMicros int64) (*SettleOutcome, error) {
	pos, ok := tl.positions[positionID]
	if !ok {
		return nil, fmt.Errorf("%w: taker position %s", ErrPositionNotFound, positionID)
	}
	if pos.Settled {
		return nil, fmt.Errorf("%w: taker position %s", ErrAlreadySettled, positionID)
	}
	if nowMicros < pos.Expiration {
		return nil, fmt.Errorf("%w: taker position %s expires at %d, now %d",
			ErrNotExpired, positionID, pos.Expiration, nowMicros)
	}

	pl, err := tl.resolveProvider(pos.ProviderLedgerID)
	if err != nil {
		return nil, err
	}

	endPrice, historical, err := tl.oracle.PastPriceWithFallback(pos.Expiration)
	if err != nil {
		return nil, fmt.Errorf("oracle read failed: %w", err)
	}
	if endPrice <= 0 {
		return nil, fmt.Errorf("%w: end=%d", ErrInvalidPrice, endPrice)
	}

	result := fpmath.Settle(
		pos.InitialPrice,
		pos.PutStrikePrice,
		pos.CallStrikePrice,
		pos.TakerLocked,
		pos.ProviderLocked,
		endPrice,
	)

	// State update precedes side effects: flip settled and record the
	// withdrawable before the provider side (and any journal) moves value.
	pos.Settled = true
	pos.Withdrawable = result.TakerWithdrawable
	pos.Version++

	providerPos, err := pl.SettlePosition(tl.id, pos.ProviderPositionID, result.ProviderDelta)
	if err != nil {
		// The pair settles as one atomic step; a provider-side failure here
		// means the pairing invariant was already broken.
		panic(fmt.Sprintf("FATAL: paired provider settle failed for %s: %v", positionID, err))
	}

	return &SettleOutcome{
		Taker:             pos,
		Provider:          providerPos,
		EndPrice:          result.EndPrice,
		Historical:        historical,
		TakerWithdrawable: result.TakerWithdrawable,
		ProviderDelta:     result.ProviderDelta,
	}, nil
}

// WithdrawFromSettled zeroes the withdrawable, burns the token and reports
// the amount for the caller to journal out to the owner's cash.
func (tl *TakerLedger) WithdrawFromSettled(positionID, caller uuid.UUID) (amount int64, err error) {
	pos, ok := tl.positions[positionID]
	if !ok {
		return 0, fmt.Errorf("%w: taker position %s", ErrPositionNotFound, positionID)
	}
	if !tl.tokens.IsOwner(positionID, caller) {
		return 0, fmt.Errorf("%w: taker position %s", ErrNotOwner, positionID)
	}
	if !pos.Settled {
		return 0, fmt.Errorf("%w: taker position %s", ErrNotSettled, positionID)
	}

	amount = pos.Withdrawable
	pos.Withdrawable = 0
	pos.Version++

	if err := tl.tokens.Burn(positionID); err != nil {
		return 0, err
	}
	delete(tl.positions, positionID)
	return amount, nil
}

// CancelOutcome reports both refunds of a mutual cancel.
type CancelOutcome struct {
	TakerRefund    int64
	ProviderRefund int64
}

// CancelPairedPosition is the mutual-cancel path: the caller must hold BOTH
// the taker token and the paired provider token simultaneously, which is the
// consent proof. Returns both escrows in full.
func (tl *TakerLedger) CancelPairedPosition(positionID, caller uuid.UUID) (*CancelOutcome, error) {
	pos, ok := tl.positions[positionID]
	if !ok {
		return nil, fmt.Errorf("%w: taker position %s", ErrPositionNotFound, positionID)
	}
	if pos.Settled {
		return nil, fmt.Errorf("%w: taker position %s", ErrAlreadySettled, positionID)
	}
	if !tl.tokens.IsOwner(positionID, caller) {
		return nil, fmt.Errorf("%w: taker token %s", ErrNotOwner, positionID)
	}

	pl, err := tl.resolveProvider(pos.ProviderLedgerID)
	if err != nil {
		return nil, err
	}
	if !pl.Tokens().IsOwner(pos.ProviderPositionID, caller) {
		return nil, fmt.Errorf("%w: provider token %s", ErrNotOwner, pos.ProviderPositionID)
	}

	providerRefund, err := pl.CancelPosition(tl.id, pos.ProviderPositionID)
	if err != nil {
		return nil, err
	}

	takerRefund := pos.TakerLocked
	pos.Settled = true
	pos.Version++

	if err := tl.tokens.Burn(positionID); err != nil {
		panic(fmt.Sprintf("FATAL: cancel of %s found no token: %v", positionID, err))
	}
	delete(tl.positions, positionID)

	return &CancelOutcome{TakerRefund: takerRefund, ProviderRefund: providerRefund}, nil
}

// GetPosition returns a taker position by id.
func (tl *TakerLedger) GetPosition(positionID uuid.UUID) (*TakerPosition, error) {
	pos, ok := tl.positions[positionID]
	if !ok {
		return nil, fmt.Errorf("%w: taker position %s", ErrPositionNotFound, positionID)
	}
	return pos, nil
}

// AllPositions returns every live taker position.
func (tl *TakerLedger) AllPositions() []*TakerPosition {
	out := make([]*TakerPosition, 0, len(tl.positions))
	for _, p := range tl.positions {
		out = append(out, p)
	}
	return out
}

// RestorePosition reinstates a position from a snapshot.
func (tl *TakerLedger) RestorePosition(pos *TakerPosition) {
	tl.positions[pos.ID] = pos
}
