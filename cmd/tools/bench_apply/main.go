// Command bench_apply benchmarks Board.Apply throughput against an
// in-memory store, the way the teacher's own RPC benchmark timed each
// access node in a loop and reported per-case latency.
package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"time"

	"pixelboard/internal/board"
	"pixelboard/internal/kv"
)

type benchCase struct {
	name        string
	regionSpan  int64
	pixelsPerEvt int
	events      int
}

func main() {
	events := flag.Int("events", 2000, "number of draw events per case")
	flag.Parse()

	ctx := context.Background()
	cases := []benchCase{
		{"single-region", 1, 16, *events},
		{"hot-region-contended", 1, 1, *events},
		{"spread-4x4-regions", 4, 16, *events},
	}

	for _, tc := range cases {
		fmt.Printf("\n========== %s (regionSpan=%d pixelsPerEvt=%d events=%d) ==========\n",
			tc.name, tc.regionSpan, tc.pixelsPerEvt, tc.events)
		runCase(ctx, tc)
	}
}

func runCase(ctx context.Context, tc benchCase) {
	store := kv.NewFakeStore()
	b := board.NewBoard(store)

	for rx := int64(0); rx < tc.regionSpan; rx++ {
		for ry := int64(0); ry < tc.regionSpan; ry++ {
			if _, err := store.SAdd(ctx, "open_regions", board.RegionKey{RX: rx, RY: ry}.String()); err != nil {
				fmt.Printf("  FAIL: seed open_regions: %v\n", err)
				return
			}
		}
	}

	start := time.Now()
	for i := 0; i < tc.events; i++ {
		rx := int64(i) % tc.regionSpan
		ry := (int64(i) / tc.regionSpan) % tc.regionSpan
		pixels := make([]board.DrawPixel, tc.pixelsPerEvt)
		for p := 0; p < tc.pixelsPerEvt; p++ {
			x := rx*board.Side + int64(p%int(board.Side))
			y := ry*board.Side + int64((p/int(board.Side))%int(board.Side))
			pixels[p] = board.DrawPixel{
				X:     int32(x),
				Y:     int32(y),
				Color: "0a141e",
			}
		}
		evt := board.DrawEvent{
			PredecessorID:    "bench-acct-" + strconv.Itoa(i%8),
			BlockTimestampMs: uint64(kv.Now()),
			Pixels:           pixels,
		}
		if _, _, err := b.Apply(ctx, evt); err != nil {
			fmt.Printf("  FAIL: apply: %v\n", err)
			return
		}
	}
	elapsed := time.Since(start)
	perEvent := elapsed / time.Duration(tc.events)
	fmt.Printf("  %d events in %s (%s/event)\n", tc.events, elapsed, perEvent)
}
