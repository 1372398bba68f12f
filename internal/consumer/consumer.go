// Package consumer drains the draw_queue, applies events to the board, and
// fans the result out to replay storage and the broadcast bus (spec.md
// §4.6, C7).
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"pixelboard/internal/board"
	"pixelboard/internal/eventbus"
	"pixelboard/internal/kv"
)

const (
	drawQueueKey       = "draw_queue"
	processingQueueKey = "processing_queue"
	drawEventsKey      = "draw_events"
	replayRetentionMS  = 2 * 60 * 60 * 1000

	emptyPollDelay = 50 * time.Millisecond
	errorPollDelay = 100 * time.Millisecond
)

// DrawEnvelope is the outbound WebSocket payload for one applied draw
// event (spec.md §4.6).
type DrawEnvelope struct {
	Type             string        `json:"type"`
	Signer           string        `json:"signer"`
	BlockTimestampMs uint64        `json:"block_timestamp_ms"`
	Pixels           []EnvelopePixel `json:"pixels"`
}

// EnvelopePixel is one pixel within a DrawEnvelope.
type EnvelopePixel struct {
	X     int32  `json:"x"`
	Y     int32  `json:"y"`
	Color string `json:"color"`
}

// RegionsOpenedEnvelope is the outbound payload announcing newly opened
// regions (spec.md §4.6).
type RegionsOpenedEnvelope struct {
	Type    string            `json:"type"`
	Regions []board.RegionCoord `json:"regions"`
}

// Consumer drains draw_queue at-least-once via RPOPLPUSH/LREM, applies
// events to board, and publishes outcomes to bus.
type Consumer struct {
	store kv.Store
	board *board.Board
	bus   *eventbus.Bus
}

// New wires a Consumer over store, board, and bus.
func New(store kv.Store, b *board.Board, bus *eventbus.Bus) *Consumer {
	return &Consumer{store: store, board: b, bus: bus}
}

// RecoverInFlight moves any events left in processing_queue back onto
// draw_queue. Call this once at startup before Run: a crash between
// RPOPLPUSH and the final LREM leaves an event stranded in
// processing_queue, and the operator-documented recovery (spec.md §9) is
// to replay it, which can duplicate a pixel's timestamp refresh but never
// corrupts ownership accounting.
func (c *Consumer) RecoverInFlight(ctx context.Context) (int, error) {
	n := 0
	for {
		raw, err := c.store.RPopLPush(ctx, processingQueueKey, drawQueueKey)
		if err == kv.ErrNotFound {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("consumer: recover in-flight: %w", err)
		}
		_ = raw
		n++
	}
}

// Run drives the drain loop until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	log.Printf("[consumer] starting")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		raw, err := c.store.RPopLPush(ctx, drawQueueKey, processingQueueKey)
		if err == kv.ErrNotFound {
			select {
			case <-time.After(emptyPollDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if err != nil {
			log.Printf("[consumer] RPOPLPUSH: %v", err)
			select {
			case <-time.After(errorPollDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		c.process(ctx, raw)
	}
}

func (c *Consumer) process(ctx context.Context, raw string) {
	var event board.DrawEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		log.Printf("[consumer] drop unparseable event: %v", err)
		c.ack(ctx, raw)
		return
	}

	applied, newlyOpened, err := c.board.Apply(ctx, event)
	if err != nil {
		// Transient KV I/O (e.g. Registry.Resolve's HGet/HLen/HSet against
		// real Redis) leaves the item in processing_queue for replay on
		// restart (spec.md §7) rather than dropping it here.
		log.Printf("[consumer] apply: %v", err)
		return
	}

	if len(applied) == 0 {
		c.ack(ctx, raw)
		return
	}

	envelope := DrawEnvelope{
		Type:             "draw",
		Signer:           event.PredecessorID,
		BlockTimestampMs: event.BlockTimestampMs,
		Pixels:           make([]EnvelopePixel, len(applied)),
	}
	for i, p := range applied {
		envelope.Pixels[i] = EnvelopePixel{X: p.X, Y: p.Y, Color: p.Color()}
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("[consumer] marshal envelope: %v", err)
		c.ack(ctx, raw)
		return
	}

	pipeErr := c.store.Pipeline(ctx, func(p kv.Pipeline) error {
		p.ZAdd(drawEventsKey, kv.Z{Score: float64(event.BlockTimestampMs), Member: string(payload)})
		p.ZRemRangeByScore(drawEventsKey, 0, float64(int64(event.BlockTimestampMs)-replayRetentionMS))
		p.LRem(processingQueueKey, raw)
		return nil
	})
	if pipeErr != nil {
		log.Printf("[consumer] replay pipeline: %v", pipeErr)
		return
	}

	c.bus.Publish(eventbus.Event{Type: "draw", Timestamp: time.UnixMilli(int64(event.BlockTimestampMs)), Data: envelope})
	if len(newlyOpened) > 0 {
		c.bus.Publish(eventbus.Event{
			Type:      "regions_opened",
			Timestamp: time.UnixMilli(int64(event.BlockTimestampMs)),
			Data:      RegionsOpenedEnvelope{Type: "regions_opened", Regions: newlyOpened},
		})
	}
}

func (c *Consumer) ack(ctx context.Context, raw string) {
	if err := c.store.LRem(ctx, processingQueueKey, raw); err != nil {
		log.Printf("[consumer] LREM: %v", err)
	}
}
