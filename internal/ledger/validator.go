package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateOfferPoolNonNegative checks an offer's pool never over-allocates
func (v *InvariantValidator) ValidateOfferPoolNonNegative(offerID uuid.UUID, assetID AssetID) error {
	return v.tracker.ValidateNonNegative(NewOfferAccountKey(offerID, assetID))
}

// ValidateUserCashNonNegative checks user cash >= 0
func (v *InvariantValidator) ValidateUserCashNonNegative(userID uuid.UUID, assetID AssetID) error {
	return v.tracker.ValidateNonNegative(NewUserAccountKey(userID, SubTypeCash, assetID))
}

// ValidatePositionAccountsNonNegative checks every escrow and claim of a
// position id is >= 0
func (v *InvariantValidator) ValidatePositionAccountsNonNegative(positionID uuid.UUID, assetID AssetID) error {
	for _, sub := range []AccountSubType{
		SubTypeTakerLocked,
		SubTypeProviderLocked,
		SubTypeTakerWithdrawable,
		SubTypeProviderWithdrawable,
	} {
		if err := v.tracker.ValidateNonNegative(NewPositionAccountKey(positionID, sub, assetID)); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePositionClosed verifies every account of a destroyed position id
// drained to exactly zero
func (v *InvariantValidator) ValidatePositionClosed(positionID uuid.UUID, assetID AssetID) error {
	for _, sub := range []AccountSubType{
		SubTypeTakerLocked,
		SubTypeProviderLocked,
		SubTypeTakerWithdrawable,
		SubTypeProviderWithdrawable,
	} {
		key := NewPositionAccountKey(positionID, sub, assetID)
		if balance := v.tracker.GetBalance(key); balance != 0 {
			return fmt.Errorf("closed position account %s has residual balance: %d", key.AccountPath(), balance)
		}
	}
	return nil
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}
