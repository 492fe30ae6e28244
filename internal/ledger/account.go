package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeOffer
	AccountScopePosition
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeCash AccountSubType = iota

	// Offer sub-types
	SubTypeOfferAvailable

	// Position sub-types
	SubTypeTakerLocked
	SubTypeProviderLocked
	SubTypeTakerWithdrawable
	SubTypeProviderWithdrawable

	// External sub-types
	SubTypeExternalDeposits
	SubTypeExternalWithdrawals
)

// AssetID maps asset strings to numeric IDs for performance
type AssetID uint16

var (
	assetToID = map[string]AssetID{
		"USDC": 1,
		"USDT": 2,
		"DAI":  3,
	}
	idToAsset = map[AssetID]string{
		1: "USDC",
		2: "USDT",
		3: "DAI",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// AccountKey is the in-memory key for balance tracking (21 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // User, offer or position UUID
	SubType  AccountSubType
	AssetID  AssetID
}

// NewUserAccountKey creates a key for user cash accounts
func NewUserAccountKey(userID uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewOfferAccountKey creates a key for an offer's available pool
func NewOfferAccountKey(offerID uuid.UUID, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeOffer,
		EntityID: offerID,
		SubType:  SubTypeOfferAvailable,
		AssetID:  assetID,
	}
}

// NewPositionAccountKey creates a key for a position escrow or withdrawable.
// Taker sub-types key on the taker position id, provider sub-types on the
// provider position id.
func NewPositionAccountKey(positionID uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopePosition,
		EntityID: positionID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeUser:
		return fmt.Sprintf("user:%s:%s:%s", uuid.UUID(k.EntityID).String(), k.subTypeName(), assetName)
	case AccountScopeOffer:
		return fmt.Sprintf("offer:%s:%s:%s", uuid.UUID(k.EntityID).String(), k.subTypeName(), assetName)
	case AccountScopePosition:
		return fmt.Sprintf("position:%s:%s:%s", uuid.UUID(k.EntityID).String(), k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeCash:
		return "cash"
	case SubTypeOfferAvailable:
		return "available"
	case SubTypeTakerLocked:
		return "taker_locked"
	case SubTypeProviderLocked:
		return "provider_locked"
	case SubTypeTakerWithdrawable:
		return "taker_withdrawable"
	case SubTypeProviderWithdrawable:
		return "provider_withdrawable"
	case SubTypeExternalDeposits:
		return "deposits"
	case SubTypeExternalWithdrawals:
		return "withdrawals"
	default:
		return "unknown"
	}
}
