package board

import (
	"context"
	"fmt"
	"strconv"

	"pixelboard/internal/kv"
)

const (
	accountToIDKey = "account_to_id"
	idToAccountKey = "id_to_account"
)

// Registry resolves textual account ids to dense non-zero 32-bit owner
// indexes and back, per spec.md §4.4. The single-consumer design (§5) makes
// the HLEN-then-assign sequence below race-free: all owner assignments
// originate from the one Consumer goroutine that calls Resolve.
type Registry struct {
	store kv.Store
}

// NewRegistry wraps store for owner-id resolution.
func NewRegistry(store kv.Store) *Registry {
	return &Registry{store: store}
}

// Resolve returns account's owner id, assigning a new dense id on first
// sight. IDs start at 1 and are never recycled.
func (r *Registry) Resolve(ctx context.Context, account string) (uint32, error) {
	existing, err := r.store.HGet(ctx, accountToIDKey, account)
	if err == nil {
		id, perr := strconv.ParseUint(existing, 10, 32)
		if perr != nil {
			return 0, fmt.Errorf("board: corrupt owner id for %q: %w", account, perr)
		}
		return uint32(id), nil
	}
	if err != kv.ErrNotFound {
		return 0, fmt.Errorf("board: resolve %q: %w", account, err)
	}

	size, err := r.store.HLen(ctx, accountToIDKey)
	if err != nil {
		return 0, fmt.Errorf("board: HLEN account_to_id: %w", err)
	}
	newID := uint32(size + 1)
	idStr := strconv.FormatUint(uint64(newID), 10)

	if err := r.store.HSet(ctx, accountToIDKey, account, idStr); err != nil {
		return 0, fmt.Errorf("board: HSET account_to_id: %w", err)
	}
	if err := r.store.HSet(ctx, idToAccountKey, idStr, account); err != nil {
		return 0, fmt.Errorf("board: HSET id_to_account: %w", err)
	}
	return newID, nil
}

// AccountFor resolves an owner id back to its textual account id. It
// reports kv.ErrNotFound if the id was never assigned (including id 0,
// which is never assigned — the undrawn sentinel).
func (r *Registry) AccountFor(ctx context.Context, ownerID uint32) (string, error) {
	if ownerID == UndrawnOwner {
		return "", kv.ErrNotFound
	}
	return r.store.HGet(ctx, idToAccountKey, strconv.FormatUint(uint64(ownerID), 10))
}
