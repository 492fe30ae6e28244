package collar

import (
	"fmt"

	"github.com/google/uuid"
)

// TokenBook tracks uniquely-owned, transferable position tokens for one
// ledger. It honors ownerOf/transfer/mint/burn semantics without any chain
// mechanics: ownership here is the single source of truth for who may
// withdraw or cancel.
// Not thread-safe — only accessed from the single-threaded deterministic core.
type TokenBook struct {
	series string
	owners map[uuid.UUID]uuid.UUID
}

func NewTokenBook(series string) *TokenBook {
	return &TokenBook{
		series: series,
		owners: make(map[uuid.UUID]uuid.UUID),
	}
}

// Mint assigns a fresh token to owner. Minting an existing id is a
// programming error and panics: token ids are position ids, which are unique.
func (tb *TokenBook) Mint(id, owner uuid.UUID) {
	if _, exists := tb.owners[id]; exists {
		panic(fmt.Sprintf("FATAL: token %s already minted in series %s", id, tb.series))
	}
	tb.owners[id] = owner
}

// OwnerOf returns the current holder.
func (tb *TokenBook) OwnerOf(id uuid.UUID) (uuid.UUID, error) {
	owner, ok := tb.owners[id]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %s token %s", ErrTokenNotFound, tb.series, id)
	}
	return owner, nil
}

// IsOwner reports whether holder currently owns the token.
func (tb *TokenBook) IsOwner(id, holder uuid.UUID) bool {
	owner, ok := tb.owners[id]
	return ok && owner == holder
}

// Transfer moves the token from its current holder to another party.
func (tb *TokenBook) Transfer(id, from, to uuid.UUID) error {
	owner, ok := tb.owners[id]
	if !ok {
		return fmt.Errorf("%w: %s token %s", ErrTokenNotFound, tb.series, id)
	}
	if owner != from {
		return fmt.Errorf("%w: %s token %s", ErrNotOwner, tb.series, id)
	}
	tb.owners[id] = to
	return nil
}

// Burn destroys the token. Burning an unknown id is an error: every burn
// follows a withdraw or cancel that already resolved the token.
func (tb *TokenBook) Burn(id uuid.UUID) error {
	if _, ok := tb.owners[id]; !ok {
		return fmt.Errorf("%w: %s token %s", ErrTokenNotFound, tb.series, id)
	}
	delete(tb.owners, id)
	return nil
}

// Snapshot returns a copy of all ownership entries (for state snapshots).
func (tb *TokenBook) Snapshot() map[uuid.UUID]uuid.UUID {
	out := make(map[uuid.UUID]uuid.UUID, len(tb.owners))
	for id, owner := range tb.owners {
		out[id] = owner
	}
	return out
}

// Restore rebuilds the book from a snapshot.
func (tb *TokenBook) Restore(entries map[uuid.UUID]uuid.UUID) {
	for id, owner := range entries {
		tb.owners[id] = owner
	}
}
