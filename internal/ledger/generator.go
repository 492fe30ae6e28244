package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"CollarLedger/internal/event"
	fpmath "CollarLedger/internal/math"
)

// ErrInvalidAmount rejects cash events whose amount is not strictly positive
// before any journal is generated.
var ErrInvalidAmount = errors.New("amount must be positive")

// JournalGenerator creates balanced journal batches from events. Pre-checks
// run against the balance tracker BEFORE any collar state mutates, so a
// rejected event leaves both the ledger and the collar books untouched.
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

// Sequence returns the next journal sequence to be assigned.
func (jg *JournalGenerator) Sequence() int64 {
	return jg.sequence
}

// SetSequence resets the journal sequence (snapshot restore).
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

func (jg *JournalGenerator) newBatch(eventRef string, timestamp int64) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 4),
	}
}

func (jg *JournalGenerator) appendJournal(b *Batch, debit, credit AccountKey, assetID AssetID, amount int64, jt JournalType) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// GenerateCashDeposited credits a user's cash from the external boundary.
// Moves funds: external:deposits -> user:cash
func (jg *JournalGenerator) GenerateCashDeposited(
	evt *event.CashDeposited,
	assetID AssetID,
) (*Batch, error) {
	if evt.Amount <= 0 {
		return nil, fmt.Errorf("deposit pre-check failed: %w: amount=%d", ErrInvalidAmount, evt.Amount)
	}

	batch := jg.newBatch(evt.IdempotencyKey(), evt.EventTime)
	jg.appendJournal(batch,
		NewUserAccountKey(evt.UserID, SubTypeCash, assetID),
		NewExternalAccountKey(SubTypeExternalDeposits, assetID),
		assetID, evt.Amount, JournalTypeDeposit)
	jg.sequence++
	return batch, nil
}

// GenerateCashWithdrawal debits a user's cash to the external boundary.
// Pre-check: sufficient free cash.
// Moves funds: user:cash -> external:withdrawals
func (jg *JournalGenerator) GenerateCashWithdrawal(
	evt *event.CashWithdrawalRequested,
	assetID AssetID,
) (*Batch, error) {
	if evt.Amount <= 0 {
		return nil, fmt.Errorf("withdrawal pre-check failed: %w: amount=%d", ErrInvalidAmount, evt.Amount)
	}
	if err := jg.balanceTracker.ValidateSufficientCash(evt.UserID, assetID, evt.Amount); err != nil {
		return nil, fmt.Errorf("withdrawal pre-check failed: %w", err)
	}

	batch := jg.newBatch(evt.IdempotencyKey(), evt.EventTime)
	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalWithdrawals, assetID),
		NewUserAccountKey(evt.UserID, SubTypeCash, assetID),
		assetID, evt.Amount, JournalTypeWithdrawal)
	jg.sequence++
	return batch, nil
}

// GenerateOfferFunded pulls the initial pool from the provider's cash.
// Pre-check: provider cash covers the amount.
// Moves funds: user:cash -> offer:available
func (jg *JournalGenerator) GenerateOfferFunded(
	evt *event.OfferCreated,
	assetID AssetID,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientCash(evt.Provider, assetID, evt.Amount); err != nil {
		return nil, fmt.Errorf("offer funding pre-check failed: %w", err)
	}

	batch := jg.newBatch(evt.IdempotencyKey(), evt.EventTime)
	jg.appendJournal(batch,
		NewOfferAccountKey(evt.OfferID, assetID),
		NewUserAccountKey(evt.Provider, SubTypeCash, assetID),
		assetID, evt.Amount, JournalTypeOfferFund)
	jg.sequence++
	return batch, nil
}

// GenerateOfferAmountUpdated moves cash between the provider and the pool.
// Positive delta replenishes (pre-check provider cash); negative delta drains
// (pre-check pool balance).
func (jg *JournalGenerator) GenerateOfferAmountUpdated(
	evt *event.OfferAmountUpdated,
	assetID AssetID,
) (*Batch, error) {
	batch := jg.newBatch(evt.IdempotencyKey(), evt.EventTime)

	switch {
	case evt.Delta > 0:
		if err := jg.balanceTracker.ValidateSufficientCash(evt.Caller, assetID, evt.Delta); err != nil {
			return nil, fmt.Errorf("offer replenish pre-check failed: %w", err)
		}
		jg.appendJournal(batch,
			NewOfferAccountKey(evt.OfferID, assetID),
			NewUserAccountKey(evt.Caller, SubTypeCash, assetID),
			assetID, evt.Delta, JournalTypeOfferFund)
	case evt.Delta < 0:
		withdraw := -evt.Delta
		if pool := jg.balanceTracker.GetOfferAvailable(evt.OfferID, assetID); pool < withdraw {
			return nil, fmt.Errorf("offer drain pre-check failed: pool=%d, withdraw=%d", pool, withdraw)
		}
		jg.appendJournal(batch,
			NewUserAccountKey(evt.Caller, SubTypeCash, assetID),
			NewOfferAccountKey(evt.OfferID, assetID),
			assetID, withdraw, JournalTypeOfferDefund)
	default:
		return nil, fmt.Errorf("offer update with zero delta")
	}

	jg.sequence++
	return batch, nil
}

// GeneratePositionOpened locks both escrows of a new pair.
// Pre-check: taker cash covers takerLocked (the provider side comes from the
// already-funded offer pool, checked by the collar book).
// Moves funds: user:cash(taker) -> position:taker_locked,
// offer:available -> position:provider_locked
func (jg *JournalGenerator) GeneratePositionOpened(
	eventRef string,
	taker uuid.UUID,
	takerPositionID uuid.UUID,
	providerPositionID uuid.UUID,
	offerID uuid.UUID,
	takerLocked int64,
	providerLocked int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientCash(taker, assetID, takerLocked); err != nil {
		return nil, fmt.Errorf("open pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp)
	jg.appendJournal(batch,
		NewPositionAccountKey(takerPositionID, SubTypeTakerLocked, assetID),
		NewUserAccountKey(taker, SubTypeCash, assetID),
		assetID, takerLocked, JournalTypeOpenTakerLock)
	jg.appendJournal(batch,
		NewPositionAccountKey(providerPositionID, SubTypeProviderLocked, assetID),
		NewOfferAccountKey(offerID, assetID),
		assetID, providerLocked, JournalTypeOpenProviderLock)
	jg.sequence++
	return batch, nil
}

// GenerateSettlement redistributes the escrows at expiry and converts both
// to withdrawable claims. providerDelta follows the calculator convention:
// positive means the provider gains.
func (jg *JournalGenerator) GenerateSettlement(
	eventRef string,
	takerPositionID uuid.UUID,
	providerPositionID uuid.UUID,
	takerLocked int64,
	providerLocked int64,
	takerWithdrawable int64,
	providerDelta int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)

	takerEscrow := NewPositionAccountKey(takerPositionID, SubTypeTakerLocked, assetID)
	providerEscrow := NewPositionAccountKey(providerPositionID, SubTypeProviderLocked, assetID)

	// Leg 1: move the gain between the escrows.
	switch {
	case providerDelta > 0:
		jg.appendJournal(batch, providerEscrow, takerEscrow,
			assetID, providerDelta, JournalTypeSettlementTransfer)
	case providerDelta < 0:
		jg.appendJournal(batch, takerEscrow, providerEscrow,
			assetID, -providerDelta, JournalTypeSettlementTransfer)
	}

	// Leg 2: drain each escrow into its withdrawable claim. Zero-value claims
	// (total loss on one side) skip the entry; journal amounts are positive.
	if takerWithdrawable > 0 {
		jg.appendJournal(batch,
			NewPositionAccountKey(takerPositionID, SubTypeTakerWithdrawable, assetID),
			takerEscrow,
			assetID, takerWithdrawable, JournalTypeSettlementRelease)
	}
	if providerFinal := providerLocked + providerDelta; providerFinal > 0 {
		jg.appendJournal(batch,
			NewPositionAccountKey(providerPositionID, SubTypeProviderWithdrawable, assetID),
			providerEscrow,
			assetID, providerFinal, JournalTypeSettlementRelease)
	}

	if len(batch.Journals) == 0 {
		return nil, fmt.Errorf("settlement of %s produced no journal entries", takerPositionID)
	}

	jg.sequence++
	return batch, nil
}

// GenerateTakerWithdrawal pays out a settled taker claim.
// Moves funds: position:taker_withdrawable -> user:cash(recipient)
func (jg *JournalGenerator) GenerateTakerWithdrawal(
	eventRef string,
	positionID uuid.UUID,
	recipient uuid.UUID,
	amount int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)
	jg.appendJournal(batch,
		NewUserAccountKey(recipient, SubTypeCash, assetID),
		NewPositionAccountKey(positionID, SubTypeTakerWithdrawable, assetID),
		assetID, amount, JournalTypePositionWithdraw)
	jg.sequence++
	return batch, nil
}

// GenerateProviderWithdrawal pays out a settled provider claim.
// Moves funds: position:provider_withdrawable -> user:cash(recipient)
func (jg *JournalGenerator) GenerateProviderWithdrawal(
	eventRef string,
	positionID uuid.UUID,
	recipient uuid.UUID,
	amount int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)
	jg.appendJournal(batch,
		NewUserAccountKey(recipient, SubTypeCash, assetID),
		NewPositionAccountKey(positionID, SubTypeProviderWithdrawable, assetID),
		assetID, amount, JournalTypeProviderWithdraw)
	jg.sequence++
	return batch, nil
}

// GenerateCancel refunds both escrows in full to the canceling caller, who
// holds both tokens by the time this runs.
func (jg *JournalGenerator) GenerateCancel(
	eventRef string,
	takerPositionID uuid.UUID,
	providerPositionID uuid.UUID,
	recipient uuid.UUID,
	takerRefund int64,
	providerRefund int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)
	recipientCash := NewUserAccountKey(recipient, SubTypeCash, assetID)

	jg.appendJournal(batch,
		recipientCash,
		NewPositionAccountKey(takerPositionID, SubTypeTakerLocked, assetID),
		assetID, takerRefund, JournalTypeCancelRefund)
	jg.appendJournal(batch,
		recipientCash,
		NewPositionAccountKey(providerPositionID, SubTypeProviderLocked, assetID),
		assetID, providerRefund, JournalTypeCancelRefund)
	jg.sequence++
	return batch, nil
}

// RollJournalParams carries every account and amount a roll touches.
type RollJournalParams struct {
	EventRef              string
	OldTakerPositionID    uuid.UUID
	OldProviderPositionID uuid.UUID
	NewTakerPositionID    uuid.UUID
	NewProviderPositionID uuid.UUID
	TakerOwner            uuid.UUID
	ProviderOwner         uuid.UUID
	OldTakerLocked        int64
	OldProviderLocked     int64
	Transfer              fpmath.RollTransfer
	AssetID               AssetID
	Timestamp             int64
}

// GenerateRoll journals the whole roll as one batch: settle the old escrows
// at the roll price, release them to the owners' cash, move the fee, then
// lock the replacement escrows. Pre-checks verify both parties' cash covers
// their net contribution, so a party that must top up and can't rejects the
// roll before anything mutates.
func (jg *JournalGenerator) GenerateRoll(p RollJournalParams) (*Batch, error) {
	// Net cash effects equal the calculator's ToTaker/ToProvider; the interim
	// legs only reshuffle between escrow and cash.
	if p.Transfer.ToTaker < 0 {
		if err := jg.balanceTracker.ValidateSufficientCash(p.TakerOwner, p.AssetID, -p.Transfer.ToTaker); err != nil {
			return nil, fmt.Errorf("roll taker pre-check failed: %w", err)
		}
	}
	if p.Transfer.ToProvider < 0 {
		if err := jg.balanceTracker.ValidateSufficientCash(p.ProviderOwner, p.AssetID, -p.Transfer.ToProvider); err != nil {
			return nil, fmt.Errorf("roll provider pre-check failed: %w", err)
		}
	}

	settledTaker := p.Transfer.NewTakerLocked + p.Transfer.ToTaker + p.Transfer.Fee
	settledProvider := p.Transfer.NewProviderLocked + p.Transfer.ToProvider - p.Transfer.Fee

	batch := jg.newBatch(p.EventRef, p.Timestamp)

	oldTakerEscrow := NewPositionAccountKey(p.OldTakerPositionID, SubTypeTakerLocked, p.AssetID)
	oldProviderEscrow := NewPositionAccountKey(p.OldProviderPositionID, SubTypeProviderLocked, p.AssetID)
	takerCash := NewUserAccountKey(p.TakerOwner, SubTypeCash, p.AssetID)
	providerCash := NewUserAccountKey(p.ProviderOwner, SubTypeCash, p.AssetID)

	// Leg 1: settle the old pair inside the escrows.
	switch delta := settledProvider - p.OldProviderLocked; {
	case delta > 0:
		jg.appendJournal(batch, oldProviderEscrow, oldTakerEscrow,
			p.AssetID, delta, JournalTypeRollSettlement)
	case delta < 0:
		jg.appendJournal(batch, oldTakerEscrow, oldProviderEscrow,
			p.AssetID, -delta, JournalTypeRollSettlement)
	}

	// Leg 2: release both settled escrows to cash, draining them to zero.
	if settledTaker > 0 {
		jg.appendJournal(batch, takerCash, oldTakerEscrow,
			p.AssetID, settledTaker, JournalTypeRollRelease)
	}
	if settledProvider > 0 {
		jg.appendJournal(batch, providerCash, oldProviderEscrow,
			p.AssetID, settledProvider, JournalTypeRollRelease)
	}

	// Leg 3: the roll fee between the parties. A negative fee is a rebate.
	switch {
	case p.Transfer.Fee > 0:
		jg.appendJournal(batch, providerCash, takerCash,
			p.AssetID, p.Transfer.Fee, JournalTypeRollFee)
	case p.Transfer.Fee < 0:
		jg.appendJournal(batch, takerCash, providerCash,
			p.AssetID, -p.Transfer.Fee, JournalTypeRollFee)
	}

	// Leg 4: lock the replacement escrows from cash.
	jg.appendJournal(batch,
		NewPositionAccountKey(p.NewTakerPositionID, SubTypeTakerLocked, p.AssetID),
		takerCash,
		p.AssetID, p.Transfer.NewTakerLocked, JournalTypeRollRelock)
	jg.appendJournal(batch,
		NewPositionAccountKey(p.NewProviderPositionID, SubTypeProviderLocked, p.AssetID),
		providerCash,
		p.AssetID, p.Transfer.NewProviderLocked, JournalTypeRollRelock)

	jg.sequence++
	return batch, nil
}
