// Package ingester drains a chain.BlockSource, extracts qualifying draw
// calls, and hands them to the queue as DrawEvents (spec.md §4.2, C3).
package ingester

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"pixelboard/internal/board"
	"pixelboard/internal/chain"
	"pixelboard/internal/kv"
)

const (
	drawQueueKey         = "draw_queue"
	lastProcessedKey     = "last_processed_block"
	errorBackoff         = 5 * time.Second
)

// Ingestor owns the chain source and pushes DrawEvents onto the durable
// queue the Consumer drains (spec.md §4.2, §4.6).
type Ingestor struct {
	source chain.BlockSource
	store  kv.Store
	name   string
}

// New wires an Ingestor over source and store.
func New(source chain.BlockSource, store kv.Store) *Ingestor {
	return &Ingestor{source: source, store: store, name: "ingester"}
}

// Run drives the ingest loop until ctx is canceled. A per-block error backs
// off and retries the same block rather than skipping it, since Next always
// advances past whatever block it successfully returned.
func (in *Ingestor) Run(ctx context.Context) error {
	log.Printf("[%s] starting", in.name)
	var pending *chain.Block
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var block chain.Block
		if pending != nil {
			block, pending = *pending, nil
		} else {
			var err error
			block, err = in.source.Next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("[%s] fetch block: %v", in.name, err)
				select {
				case <-time.After(errorBackoff):
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}

		if err := in.processBlock(ctx, block); err != nil {
			log.Printf("[%s] process block %d: %v", in.name, block.Height, err)
			pending = &block
			select {
			case <-time.After(errorBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
	}
}

// processBlock converts every qualifying call in block into a DrawEvent and
// pushes it onto draw_queue, then records the block as processed.
func (in *Ingestor) processBlock(ctx context.Context, block chain.Block) error {
	for _, call := range block.Calls {
		event, ok := parseDrawEvent(call, block)
		if !ok {
			continue
		}
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("ingester: marshal event: %w", err)
		}
		if err := in.store.LPush(ctx, drawQueueKey, string(payload)); err != nil {
			return fmt.Errorf("ingester: enqueue: %w", err)
		}
	}
	if err := in.store.Set(ctx, lastProcessedKey, strconv.FormatUint(block.Height, 10)); err != nil {
		return fmt.Errorf("ingester: checkpoint: %w", err)
	}
	return nil
}

type rawDrawArgs struct {
	Pixels []board.DrawPixel `json:"pixels"`
}

// parseDrawEvent decodes call's JSON args into a DrawEvent. A call whose
// args don't parse, or that carries zero valid pixels, is dropped rather
// than erroring the whole block (spec.md §4.2: malformed calls are simply
// not a draw event). Pixels with an invalid hex color are filtered here too
// (not just at apply time), so a call whose pixels are all invalid never
// reaches draw_queue at all (spec.md §4.1's double-filter design).
func parseDrawEvent(call chain.FunctionCall, block chain.Block) (board.DrawEvent, bool) {
	var args rawDrawArgs
	if err := json.Unmarshal(call.Args, &args); err != nil || len(args.Pixels) == 0 {
		return board.DrawEvent{}, false
	}

	pixels := make([]board.DrawPixel, 0, len(args.Pixels))
	for _, px := range args.Pixels {
		if _, _, _, ok := board.Hex6ToRGB(px.Color); !ok {
			continue
		}
		pixels = append(pixels, px)
	}
	if len(pixels) == 0 {
		return board.DrawEvent{}, false
	}

	return board.DrawEvent{
		PredecessorID:    call.PredecessorID,
		BlockHeight:      block.Height,
		BlockTimestampMs: block.TimestampMs,
		Pixels:           pixels,
	}, true
}

// LastProcessedHeight returns the most recently checkpointed block height,
// or 0 if nothing has been processed yet.
func (in *Ingestor) LastProcessedHeight(ctx context.Context) (uint64, error) {
	v, err := in.store.Get(ctx, lastProcessedKey)
	if err == kv.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, perr := strconv.ParseUint(v, 10, 64)
	if perr != nil {
		return 0, fmt.Errorf("ingester: corrupt checkpoint: %w", perr)
	}
	return n, nil
}
