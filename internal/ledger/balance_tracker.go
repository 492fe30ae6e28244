package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// === Balance queries ===

// GetUserCash returns a user's free cash balance. Everything escrowed lives
// under offer or position accounts, so cash alone answers sufficiency checks.
func (bt *BalanceTracker) GetUserCash(userID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeCash, assetID))
}

// GetOfferAvailable returns an offer's unconsumed pool
func (bt *BalanceTracker) GetOfferAvailable(offerID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewOfferAccountKey(offerID, assetID))
}

// GetTakerLocked returns the taker escrow of a position
func (bt *BalanceTracker) GetTakerLocked(positionID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewPositionAccountKey(positionID, SubTypeTakerLocked, assetID))
}

// GetProviderLocked returns the provider escrow of a position
func (bt *BalanceTracker) GetProviderLocked(positionID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewPositionAccountKey(positionID, SubTypeProviderLocked, assetID))
}

// GetTakerWithdrawable returns the settled taker claim
func (bt *BalanceTracker) GetTakerWithdrawable(positionID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewPositionAccountKey(positionID, SubTypeTakerWithdrawable, assetID))
}

// GetProviderWithdrawable returns the settled provider claim
func (bt *BalanceTracker) GetProviderWithdrawable(positionID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewPositionAccountKey(positionID, SubTypeProviderWithdrawable, assetID))
}

// === Invariant checks ===

// ValidateSufficientCash checks if a user can cover a cash pull
func (bt *BalanceTracker) ValidateSufficientCash(userID uuid.UUID, assetID AssetID, required int64) error {
	cash := bt.GetUserCash(userID, assetID)
	if cash < required {
		return fmt.Errorf("insufficient cash: have=%d, need=%d", cash, required)
	}
	return nil
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// Restore replaces all balances from a snapshot
func (bt *BalanceTracker) Restore(snapshot map[AccountKey]int64) {
	bt.balances = make(map[AccountKey]int64, len(snapshot))
	for k, v := range snapshot {
		bt.balances[k] = v
	}
}
