package collar

import (
	"fmt"

	"github.com/google/uuid"

	fpmath "CollarLedger/internal/math"
)

// RollBook stores the provider-initiated roll offers for one taker ledger.
// Not thread-safe — only accessed from the single-threaded deterministic core.
type RollBook struct {
	offers map[uuid.UUID]*RollOffer
}

func NewRollBook() *RollBook {
	return &RollBook{offers: make(map[uuid.UUID]*RollOffer)}
}

// Get returns a roll offer by id.
func (rb *RollBook) Get(id uuid.UUID) (*RollOffer, error) {
	ro, ok := rb.offers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRollOfferNotFound, id)
	}
	return ro, nil
}

// All returns every stored roll offer, consumed ones included.
func (rb *RollBook) All() []*RollOffer {
	out := make([]*RollOffer, 0, len(rb.offers))
	for _, ro := range rb.offers {
		out = append(out, ro)
	}
	return out
}

// Restore reinstates a roll offer from a snapshot.
func (rb *RollBook) Restore(ro *RollOffer) {
	rb.offers[ro.ID] = ro
}

// Rolls exposes the taker ledger's roll book.
func (tl *TakerLedger) Rolls() *RollBook { return tl.rolls }

// CreateRollOffer lets the current holder of the provider token offer new
// terms on a live pair. The reference price for the fee adjustment is pinned
// to the oracle price at creation, not at execution.
func (tl *TakerLedger) CreateRollOffer(
	rollOfferID uuid.UUID,
	caller uuid.UUID,
	positionID uuid.UUID,
	rollFee int64,
	feeDeltaFactorBips int64,
	minPrice, maxPrice int64,
	minToProvider int64,
	deadlineMicros int64,
	nowMicros int64,
) (*RollOffer, error) {
	pos, ok := tl.positions[positionID]
	if !ok {
		return nil, fmt.Errorf("%w: taker position %s", ErrPositionNotFound, positionID)
	}
	if pos.Settled {
		return nil, fmt.Errorf("%w: taker position %s", ErrAlreadySettled, positionID)
	}

	pl, err := tl.resolveProvider(pos.ProviderLedgerID)
	if err != nil {
		return nil, err
	}
	if !pl.Tokens().IsOwner(pos.ProviderPositionID, caller) {
		return nil, fmt.Errorf("%w: provider token %s", ErrNotOwner, pos.ProviderPositionID)
	}

	if minPrice <= 0 || minPrice >= maxPrice {
		return nil, fmt.Errorf("%w: min=%d max=%d", ErrInvalidRollRange, minPrice, maxPrice)
	}
	if feeDeltaFactorBips > fpmath.BpsBase || feeDeltaFactorBips < -fpmath.BpsBase {
		return nil, fmt.Errorf("%w: factor=%d", ErrInvalidFeeDeltaFactor, feeDeltaFactorBips)
	}
	if nowMicros > deadlineMicros {
		return nil, fmt.Errorf("%w: deadline=%d now=%d", ErrDeadlinePassed, deadlineMicros, nowMicros)
	}

	referencePrice, err := tl.oracle.CurrentPrice()
	if err != nil {
		return nil, fmt.Errorf("oracle read failed: %w", err)
	}
	if referencePrice <= 0 {
		return nil, fmt.Errorf("%w: current=%d", ErrInvalidPrice, referencePrice)
	}

	ro := &RollOffer{
		ID:                 rollOfferID,
		TakerPositionID:    positionID,
		Provider:           caller,
		RollFee:            rollFee,
		FeeDeltaFactorBips: feeDeltaFactorBips,
		ReferencePrice:     referencePrice,
		MinPrice:           minPrice,
		MaxPrice:           maxPrice,
		MinToProvider:      minToProvider,
		Deadline:           deadlineMicros,
		Active:             true,
	}
	tl.rolls.offers[rollOfferID] = ro
	return ro, nil
}

// CancelRollOffer withdraws an unexecuted roll offer. Creator only.
func (tl *TakerLedger) CancelRollOffer(rollOfferID, caller uuid.UUID) (*RollOffer, error) {
	ro, err := tl.rolls.Get(rollOfferID)
	if err != nil {
		return nil, err
	}
	if ro.Provider != caller {
		return nil, fmt.Errorf("%w: roll offer %s belongs to %s", ErrUnauthorized, rollOfferID, ro.Provider)
	}
	if !ro.Active {
		return nil, fmt.Errorf("%w: %s", ErrRollOfferInactive, rollOfferID)
	}

	ro.Active = false
	ro.Version++
	return ro, nil
}

// CalculateTransferAmounts prices a roll offer at the given execution price
// without mutating anything. Used both by ExecuteRoll and by the query side
// so takers can preview the exact transfer before committing.
func (tl *TakerLedger) CalculateTransferAmounts(rollOfferID uuid.UUID, price int64) (fpmath.RollTransfer, error) {
	ro, err := tl.rolls.Get(rollOfferID)
	if err != nil {
		return fpmath.RollTransfer{}, err
	}
	pos, ok := tl.positions[ro.TakerPositionID]
	if !ok {
		return fpmath.RollTransfer{}, fmt.Errorf("%w: taker position %s", ErrPositionNotFound, ro.TakerPositionID)
	}
	pl, err := tl.resolveProvider(pos.ProviderLedgerID)
	if err != nil {
		return fpmath.RollTransfer{}, err
	}
	providerPos, err := pl.GetPosition(pos.ProviderPositionID)
	if err != nil {
		return fpmath.RollTransfer{}, err
	}

	if price < ro.MinPrice || price > ro.MaxPrice {
		return fpmath.RollTransfer{}, fmt.Errorf("%w: price=%d range=[%d,%d]",
			ErrPriceOutOfRollRange, price, ro.MinPrice, ro.MaxPrice)
	}

	return fpmath.CalculateRollTransfer(fpmath.RollInput{
		StartPrice:          pos.InitialPrice,
		PutStrikePrice:      pos.PutStrikePrice,
		CallStrikePrice:     pos.CallStrikePrice,
		PutStrikeDeviation:  providerPos.PutStrikeDeviation,
		CallStrikeDeviation: providerPos.CallStrikeDeviation,
		TakerLocked:         pos.TakerLocked,
		ProviderLocked:      pos.ProviderLocked,
		RollFee:             ro.RollFee,
		FeeDeltaFactorBips:  ro.FeeDeltaFactorBips,
		FeeReferencePrice:   ro.ReferencePrice,
		Price:               price,
	}), nil
}

// RollOutcome is the full result of an executed roll: consumed positions,
// replacements, and the net cash movements for the journal generator.
type RollOutcome struct {
	Offer       *RollOffer
	OldTaker    uuid.UUID
	OldProvider uuid.UUID
	NewTaker    *TakerPosition
	NewProvider *ProviderPosition
	Price       int64
	Transfer    fpmath.RollTransfer
}

// ExecuteRoll consumes an active roll offer: settles the old pair's economics
// at the current oracle price, destroys both old positions and opens a
// replacement pair at strikes derived from that price. expectedToTaker must
// match the computed transfer exactly; a stale preview is rejected rather
// than silently repriced.
func (tl *TakerLedger) ExecuteRoll(
	rollOfferID uuid.UUID,
	caller uuid.UUID,
	expectedToTaker int64,
	newTakerPositionID uuid.UUID,
	newProviderPositionID uuid.UUID,
	nowMicros int64,
) (*RollOutcome, error) {
	ro, err := tl.rolls.Get(rollOfferID)
	if err != nil {
		return nil, err
	}
	if !ro.Active {
		return nil, fmt.Errorf("%w: %s", ErrRollOfferInactive, rollOfferID)
	}
	if nowMicros > ro.Deadline {
		return nil, fmt.Errorf("%w: deadline=%d now=%d", ErrDeadlinePassed, ro.Deadline, nowMicros)
	}

	pos, ok := tl.positions[ro.TakerPositionID]
	if !ok {
		return nil, fmt.Errorf("%w: taker position %s", ErrPositionNotFound, ro.TakerPositionID)
	}
	if pos.Settled {
		return nil, fmt.Errorf("%w: taker position %s", ErrAlreadySettled, ro.TakerPositionID)
	}
	if !tl.tokens.IsOwner(pos.ID, caller) {
		return nil, fmt.Errorf("%w: taker token %s", ErrNotOwner, pos.ID)
	}

	pl, err := tl.resolveProvider(pos.ProviderLedgerID)
	if err != nil {
		return nil, err
	}
	oldProviderPos, err := pl.GetPosition(pos.ProviderPositionID)
	if err != nil {
		return nil, err
	}
	providerOwner, err := pl.Tokens().OwnerOf(oldProviderPos.ID)
	if err != nil {
		return nil, err
	}
	// The replacement pair keeps the original duration; the originating offer
	// is never deleted so the back-reference always resolves.
	offer, err := pl.GetOffer(oldProviderPos.OfferID)
	if err != nil {
		return nil, err
	}

	price, err := tl.oracle.CurrentPrice()
	if err != nil {
		return nil, fmt.Errorf("oracle read failed: %w", err)
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: current=%d", ErrInvalidPrice, price)
	}

	transfer, err := tl.CalculateTransferAmounts(rollOfferID, price)
	if err != nil {
		return nil, err
	}
	if transfer.ToTaker != expectedToTaker {
		return nil, fmt.Errorf("%w: expected=%d actual=%d",
			ErrSlippageExceeded, expectedToTaker, transfer.ToTaker)
	}
	if transfer.ToProvider < ro.MinToProvider {
		return nil, fmt.Errorf("%w: toProvider=%d min=%d",
			ErrBelowMinToProvider, transfer.ToProvider, ro.MinToProvider)
	}
	if transfer.NewTakerLocked <= 0 || transfer.NewProviderLocked <= 0 {
		return nil, fmt.Errorf("%w: newTakerLocked=%d newProviderLocked=%d",
			ErrInvalidAmount, transfer.NewTakerLocked, transfer.NewProviderLocked)
	}

	putStrike, callStrike := fpmath.StrikePrices(
		price, oldProviderPos.PutStrikeDeviation, oldProviderPos.CallStrikeDeviation,
	)
	if !(putStrike < price && price < callStrike) {
		return nil, fmt.Errorf("%w: put=%d price=%d call=%d",
			ErrStrikesNotDifferent, putStrike, price, callStrike)
	}

	// All guards passed; mutate. The offer flips inactive first so a re-entry
	// through any path sees it consumed.
	ro.Active = false
	ro.Version++

	if err := pl.ConsumeForRoll(tl.id, oldProviderPos.ID); err != nil {
		panic(fmt.Sprintf("FATAL: roll consume of provider position %s failed: %v", oldProviderPos.ID, err))
	}
	oldTakerID := pos.ID
	if err := tl.tokens.Burn(oldTakerID); err != nil {
		panic(fmt.Sprintf("FATAL: roll consume of %s found no token: %v", oldTakerID, err))
	}
	delete(tl.positions, oldTakerID)

	expiration := nowMicros + offer.Duration*1_000_000
	newProviderPos, err := pl.MintForRoll(
		newProviderPositionID,
		oldProviderPos.OfferID,
		providerOwner,
		oldProviderPos.PutStrikeDeviation,
		oldProviderPos.CallStrikeDeviation,
		transfer.NewProviderLocked,
		expiration,
	)
	if err != nil {
		panic(fmt.Sprintf("FATAL: roll mint of provider position %s failed: %v", newProviderPositionID, err))
	}

	newPos := &TakerPosition{
		ID:                 newTakerPositionID,
		ProviderPositionID: newProviderPositionID,
		ProviderLedgerID:   pos.ProviderLedgerID,
		Taker:              caller,
		Pair:               tl.pair,
		CashAsset:          pos.CashAsset,
		InitialPrice:       price,
		PutStrikePrice:     putStrike,
		CallStrikePrice:    callStrike,
		TakerLocked:        transfer.NewTakerLocked,
		ProviderLocked:     transfer.NewProviderLocked,
		Expiration:         expiration,
	}
	tl.positions[newTakerPositionID] = newPos
	tl.tokens.Mint(newTakerPositionID, caller)

	return &RollOutcome{
		Offer:       ro,
		OldTaker:    oldTakerID,
		OldProvider: oldProviderPos.ID,
		NewTaker:    newPos,
		NewProvider: newProviderPos,
		Price:       price,
		Transfer:    transfer,
	}, nil
}
