package board

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"pixelboard/internal/kv"
)

// RegionKey identifies a region by its integer coordinates.
type RegionKey struct {
	RX, RY int64
}

func (k RegionKey) String() string {
	return fmt.Sprintf("%d:%d", k.RX, k.RY)
}

func regionBlobKey(k RegionKey) string {
	return "region:" + k.String()
}

// cache is a bounded read-through, write-through LRU of region blobs. It is
// a pure performance layer per spec.md §4.3: correctness never depends on
// what it holds, only on the KV store.
type cache struct {
	lru *lru.Cache[RegionKey, []byte]
}

// cacheCapacity is the bounded LRU capacity from spec.md §4.3.
const cacheCapacity = 256

func newCache() *cache {
	c, err := lru.New[RegionKey, []byte](cacheCapacity)
	if err != nil {
		// Only returns an error for a non-positive size, which cacheCapacity never is.
		panic(err)
	}
	return &cache{lru: c}
}

// get returns a region's blob, reading through to the KV store on a miss
// and synthesizing a zeroed blob if the store has none yet.
func (c *cache) get(ctx context.Context, store kv.Store, key RegionKey) ([]byte, error) {
	if blob, ok := c.lru.Get(key); ok {
		out := make([]byte, len(blob))
		copy(out, blob)
		return out, nil
	}

	blob, err := store.GetBytes(ctx, regionBlobKey(key))
	if err != nil {
		if err == kv.ErrNotFound {
			blob = ZeroBlob()
		} else {
			return nil, fmt.Errorf("board: read region %s: %w", key, err)
		}
	}
	if len(blob) != RegionBlobSize {
		blob = ZeroBlob()
	}
	c.lru.Add(key, blob)
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}

// put updates the in-memory entry. Callers must only call put after the
// blob has already been durably written to the KV store (write-through):
// the cache never originates state the store doesn't have.
func (c *cache) put(key RegionKey, blob []byte) {
	cp := make([]byte, len(blob))
	copy(cp, blob)
	c.lru.Add(key, cp)
}
