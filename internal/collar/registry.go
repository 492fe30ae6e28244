package collar

import "github.com/google/uuid"

// Registry is the read-only configuration gate consulted before an open:
// asset whitelists plus a per-ledger open switch. Injected at construction,
// never mutated by the engine.
type Registry interface {
	IsSupportedCashAsset(asset string) bool
	IsSupportedUnderlying(asset string) bool
	CanOpen(ledgerID uuid.UUID) bool
}

// StaticRegistry is the in-process Registry used by the engine: whitelists
// loaded at startup, with a global open/paused switch.
type StaticRegistry struct {
	cashAssets  map[string]bool
	underlyings map[string]bool
	openAllowed map[uuid.UUID]bool
}

func NewStaticRegistry(cashAssets, underlyings []string) *StaticRegistry {
	r := &StaticRegistry{
		cashAssets:  make(map[string]bool, len(cashAssets)),
		underlyings: make(map[string]bool, len(underlyings)),
		openAllowed: make(map[uuid.UUID]bool),
	}
	for _, a := range cashAssets {
		r.cashAssets[a] = true
	}
	for _, a := range underlyings {
		r.underlyings[a] = true
	}
	return r
}

func (r *StaticRegistry) IsSupportedCashAsset(asset string) bool {
	return r.cashAssets[asset]
}

func (r *StaticRegistry) IsSupportedUnderlying(asset string) bool {
	return r.underlyings[asset]
}

func (r *StaticRegistry) CanOpen(ledgerID uuid.UUID) bool {
	return r.openAllowed[ledgerID]
}

// AllowOpen flips the open gate for a ledger.
func (r *StaticRegistry) AllowOpen(ledgerID uuid.UUID, allowed bool) {
	r.openAllowed[ledgerID] = allowed
}
