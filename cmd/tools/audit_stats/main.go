// Command audit_stats recomputes region_pixel_count and
// account_pixel_count by scanning every open region's blob, the way the
// teacher's own daily-stats backfill recomputed derived aggregates from
// source rows rather than trusting incremental counters forever.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strconv"
	"time"

	"pixelboard/internal/board"
	"pixelboard/internal/kv"
)

func main() {
	redisURL := flag.String("redis-url", os.Getenv("REDIS_URL"), "redis connection URL")
	dryRun := flag.Bool("dry-run", false, "report mismatches without writing corrections")
	flag.Parse()

	if *redisURL == "" {
		log.Fatal("-redis-url or REDIS_URL is required")
	}

	ctx := context.Background()
	store, err := kv.NewRedisStore(ctx, *redisURL)
	if err != nil {
		log.Fatalf("unable to connect to redis: %v", err)
	}
	defer store.Close()

	started := time.Now()
	regions, err := store.SMembers(ctx, "open_regions")
	if err != nil {
		log.Fatalf("list open regions: %v", err)
	}

	accountCounts := make(map[uint32]int64)
	regionCounts := make(map[string]int64)

	for _, key := range regions {
		if _, _, ok := parseRegionKey(key); !ok {
			log.Printf("[audit_stats] skipping malformed region key %q", key)
			continue
		}
		blob, err := store.GetBytes(ctx, "region:"+key)
		if err != nil && err != kv.ErrNotFound {
			log.Fatalf("read region %s: %v", key, err)
		}
		if len(blob) != board.RegionBlobSize {
			continue
		}

		var drawn int64
		for lx := int64(0); lx < board.Side; lx++ {
			for ly := int64(0); ly < board.Side; ly++ {
				off := board.OffsetOf(lx, ly)
				px := board.DecodePixel(blob[off : off+board.PixelSize])
				if px.IsUndrawn() {
					continue
				}
				drawn++
				accountCounts[px.OwnerID]++
			}
		}
		regionCounts[key] = drawn
	}

	mismatches := 0
	for key, want := range regionCounts {
		got, err := store.HGet(ctx, "region_pixel_count", key)
		if err != nil && err != kv.ErrNotFound {
			log.Fatalf("read region_pixel_count %s: %v", key, err)
		}
		gotN, _ := strconv.ParseInt(got, 10, 64)
		if gotN != want {
			mismatches++
			log.Printf("[audit_stats] region %s: stored=%d actual=%d", key, gotN, want)
			if !*dryRun {
				if err := store.HSet(ctx, "region_pixel_count", key, strconv.FormatInt(want, 10)); err != nil {
					log.Fatalf("fix region_pixel_count %s: %v", key, err)
				}
			}
		}
	}

	for ownerID, want := range accountCounts {
		ownerKey := strconv.FormatUint(uint64(ownerID), 10)
		got, err := store.HGet(ctx, "account_pixel_count", ownerKey)
		if err != nil && err != kv.ErrNotFound {
			log.Fatalf("read account_pixel_count %s: %v", ownerKey, err)
		}
		gotN, _ := strconv.ParseInt(got, 10, 64)
		if gotN != want {
			mismatches++
			log.Printf("[audit_stats] account %s: stored=%d actual=%d", ownerKey, gotN, want)
			if !*dryRun {
				if err := store.HSet(ctx, "account_pixel_count", ownerKey, strconv.FormatInt(want, 10)); err != nil {
					log.Fatalf("fix account_pixel_count %s: %v", ownerKey, err)
				}
			}
		}
	}

	log.Printf("[audit_stats] scanned %d region(s), %d mismatch(es) in %s", len(regions), mismatches, time.Since(started).Truncate(time.Millisecond))
}

func parseRegionKey(s string) (rx, ry int64, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			x, err1 := strconv.ParseInt(s[:i], 10, 64)
			y, err2 := strconv.ParseInt(s[i+1:], 10, 64)
			return x, y, err1 == nil && err2 == nil
		}
	}
	return 0, 0, false
}
