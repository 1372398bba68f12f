package board

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	"pixelboard/internal/kv"
)

// OwnershipMS is the one-hour window (spec.md §4.5, §GLOSSARY) during which
// a drawn pixel may be overwritten by anyone. After it elapses the pixel is
// permanent.
const OwnershipMS = 3_600_000

// OpenThreshold is the region_pixel_count at which a region's cardinal
// neighbors are opened for drawing: ~20% of a region's pixels (spec.md §4.5).
const OpenThreshold = Side * Side / 5

const (
	openRegionsKey       = "open_regions"
	regionPixelCountKey  = "region_pixel_count"
	accountPixelCountKey = "account_pixel_count"
)

func pixelTSKey(k RegionKey) string   { return "pixel_ts:" + k.String() }
func regionMetaKey(k RegionKey) string { return "region_meta:" + k.String() }

// Board is the core mutation engine (spec.md §4.5, C6): it owns the region
// cache and the owner registry over a shared KV connection, and is the
// single point of exclusive access shared by the Consumer and the Read
// API's region-lookup path (spec.md §5 "Shared mutable cache").
type Board struct {
	mu       sync.RWMutex
	store    kv.Store
	cache    *cache
	Registry *Registry
}

// NewBoard wires a Board over store.
func NewBoard(store kv.Store) *Board {
	return &Board{
		store:    store,
		cache:    newCache(),
		Registry: NewRegistry(store),
	}
}

// GetRegion returns a region's current blob, synthesizing an all-zero blob
// if nothing has been written there yet. It takes the Board's exclusive
// lock because the underlying LRU mutates recency state on every read
// (spec.md §5 design note; a read lock would not be safe here unless the
// LRU's touch-on-read were itself lock-free, which golang-lru/v2's is not
// without its own internal mutex — we fold that under the Board's lock so
// the policy lives in one place).
func (b *Board) GetRegion(ctx context.Context, rx, ry int64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.get(ctx, b.store, RegionKey{RX: rx, RY: ry})
}

// RegionMeta returns a region's last_updated timestamp in milliseconds, or
// 0 if the region has never been written.
func (b *Board) RegionMeta(ctx context.Context, rx, ry int64) (lastUpdated uint64, err error) {
	v, err := b.store.HGet(ctx, regionMetaKey(RegionKey{RX: rx, RY: ry}), "last_updated")
	if err == kv.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, perr := strconv.ParseUint(v, 10, 64)
	if perr != nil {
		return 0, fmt.Errorf("board: corrupt region meta: %w", perr)
	}
	return n, nil
}

// IsOpen reports whether a region currently accepts mutations.
func (b *Board) IsOpen(ctx context.Context, rx, ry int64) (bool, error) {
	return b.store.SIsMember(ctx, openRegionsKey, RegionKey{RX: rx, RY: ry}.String())
}

// Reset wipes one region back to its all-zero state: the blob, its meta
// timestamp, its pixel-timestamp index, and its pixel count. It goes through
// the same cache write-through path as Apply so a subsequent GetRegion never
// serves a stale pre-reset blob from the LRU (spec.md Invariant 1).
func (b *Board) Reset(ctx context.Context, rx, ry int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := RegionKey{RX: rx, RY: ry}
	blob := ZeroBlob()

	pipeErr := b.store.Pipeline(ctx, func(p kv.Pipeline) error {
		p.SetBytes(regionBlobKey(key), blob)
		p.HSet(regionMetaKey(key), "last_updated", "0")
		p.ZRemRangeByScore(pixelTSKey(key), 0, 1<<62)
		p.HSet(regionPixelCountKey, key.String(), "0")
		return nil
	})
	if pipeErr != nil {
		return fmt.Errorf("board: reset region %s: %w", key, pipeErr)
	}

	b.cache.put(key, blob)
	return nil
}

// regionBucket accumulates the valid pixels targeting one region, in the
// order they appeared in the event (spec.md §4.5 step 3c processes pixels
// within one region in input order).
type regionBucket struct {
	key    RegionKey
	pixels []bucketPixel
}

type bucketPixel struct {
	lx, ly int64
	r, g, b uint8
}

// Apply resolves event's signer, buckets its valid pixels by region, and
// applies ownership-aware overwrite rules against each open region's blob,
// updating the timestamp index, statistics, and open-region set along the
// way (spec.md §4.5). Buckets are processed in the order each region first
// appears in the event; regions are committed one pipeline at a time, so
// there is no atomicity across regions within one event.
func (b *Board) Apply(ctx context.Context, event DrawEvent) (applied []AppliedPixel, newlyOpened []RegionCoord, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ownerID, err := b.Registry.Resolve(ctx, event.PredecessorID)
	if err != nil {
		return nil, nil, fmt.Errorf("board: resolve owner: %w", err)
	}

	buckets := make(map[RegionKey]*regionBucket)
	order := make([]RegionKey, 0, 4)
	for _, px := range event.Pixels {
		r, g, bb, ok := Hex6ToRGB(px.Color)
		if !ok {
			continue
		}
		rx, ry := RegionOf(int64(px.X), int64(px.Y))
		lx, ly := LocalOf(int64(px.X), int64(px.Y))
		key := RegionKey{RX: rx, RY: ry}
		bucket, ok := buckets[key]
		if !ok {
			bucket = &regionBucket{key: key}
			buckets[key] = bucket
			order = append(order, key)
		}
		bucket.pixels = append(bucket.pixels, bucketPixel{lx: lx, ly: ly, r: r, g: g, b: bb})
	}

	for _, key := range order {
		bucket := buckets[key]

		open, err := b.IsOpen(ctx, key.RX, key.RY)
		if err != nil {
			log.Printf("[board] gate check region %s: %v", key, err)
			continue
		}
		if !open {
			continue
		}

		blob, err := b.cache.get(ctx, b.store, key)
		if err != nil {
			log.Printf("[board] load region %s: %v", key, err)
			continue
		}

		var (
			tsUpserts      []kv.Z
			stolenFrom     = map[uint32]int64{}
			newPixelCount  int64
			regionApplied  []AppliedPixel
		)

		for _, px := range bucket.pixels {
			off := OffsetOf(px.lx, px.ly)
			existing := DecodePixel(blob[off : off+PixelSize])

			allow := false
			switch {
			case existing.IsUndrawn():
				allow = true
				newPixelCount++
			default:
				member := fmt.Sprintf("%d,%d", px.lx, px.ly)
				ts, zerr := b.store.ZScore(ctx, pixelTSKey(key), member)
				switch {
				case zerr == kv.ErrNotFound:
					// Permanent: written before the timestamp index existed.
				case zerr != nil:
					log.Printf("[board] zscore %s %s: %v", pixelTSKey(key), member, zerr)
				default:
					age := int64(event.BlockTimestampMs) - int64(ts)
					if age < 0 {
						age = 0
					}
					if age >= OwnershipMS {
						// Permanent: eligible for (or already past) eviction.
					} else {
						allow = true
						if existing.OwnerID != ownerID {
							stolenFrom[existing.OwnerID]++
						}
					}
				}
			}

			if !allow {
				continue
			}

			EncodePixel(blob[off:off+PixelSize], Pixel{R: px.r, G: px.g, B: px.b, OwnerID: ownerID})
			tsUpserts = append(tsUpserts, kv.Z{
				Score:  float64(event.BlockTimestampMs),
				Member: fmt.Sprintf("%d,%d", px.lx, px.ly),
			})
			regionApplied = append(regionApplied, AppliedPixel{
				X:       int32(key.RX*Side + px.lx),
				Y:       int32(key.RY*Side + px.ly),
				R:       px.r,
				G:       px.g,
				B:       px.b,
				OwnerID: ownerID,
			})
		}

		if len(regionApplied) == 0 {
			continue
		}

		applied = append(applied, regionApplied...)

		var stolenTotal int64
		for _, n := range stolenFrom {
			stolenTotal += n
		}

		pipeErr := b.store.Pipeline(ctx, func(p kv.Pipeline) error {
			if len(tsUpserts) > 0 {
				p.ZAdd(pixelTSKey(key), tsUpserts...)
			}
			p.ZRemRangeByScore(pixelTSKey(key), 0, float64(int64(event.BlockTimestampMs)-OwnershipMS))
			p.SetBytes(regionBlobKey(key), blob)
			p.HSet(regionMetaKey(key), "last_updated", strconv.FormatUint(event.BlockTimestampMs, 10))
			if delta := newPixelCount + stolenTotal; delta != 0 {
				p.HIncrBy(accountPixelCountKey, strconv.FormatUint(uint64(ownerID), 10), delta)
			}
			for oldOwner, n := range stolenFrom {
				p.HIncrBy(accountPixelCountKey, strconv.FormatUint(uint64(oldOwner), 10), -n)
			}
			if newPixelCount > 0 {
				p.HIncrBy(regionPixelCountKey, key.String(), newPixelCount)
			}
			return nil
		})
		if pipeErr != nil {
			log.Printf("[board] pipeline for region %s: %v", key, pipeErr)
			continue
		}
		b.cache.put(key, blob)

		if newPixelCount > 0 {
			opened, err := b.maybeExpand(ctx, key)
			if err != nil {
				log.Printf("[board] expansion check region %s: %v", key, err)
			} else {
				newlyOpened = append(newlyOpened, opened...)
			}
		}
	}

	return applied, newlyOpened, nil
}

// maybeExpand opens key's cardinal neighbors once its region_pixel_count
// crosses OpenThreshold (spec.md §4.5 step 3f).
func (b *Board) maybeExpand(ctx context.Context, key RegionKey) ([]RegionCoord, error) {
	raw, err := b.store.HGet(ctx, regionPixelCountKey, key.String())
	if err != nil && err != kv.ErrNotFound {
		return nil, err
	}
	count := parseCount(raw)
	if count < OpenThreshold {
		return nil, nil
	}

	neighbors := [4]RegionKey{
		{RX: key.RX - 1, RY: key.RY},
		{RX: key.RX + 1, RY: key.RY},
		{RX: key.RX, RY: key.RY - 1},
		{RX: key.RX, RY: key.RY + 1},
	}

	var opened []RegionCoord
	for _, n := range neighbors {
		added, err := b.store.SAdd(ctx, openRegionsKey, n.String())
		if err != nil {
			return opened, err
		}
		if added {
			opened = append(opened, RegionCoord{RX: int32(n.RX), RY: int32(n.RY)})
		}
	}
	return opened, nil
}

func parseCount(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
