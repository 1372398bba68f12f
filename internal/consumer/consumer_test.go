package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"pixelboard/internal/board"
	"pixelboard/internal/eventbus"
	"pixelboard/internal/kv"
)

func TestConsumerProcessAppliesAndPublishes(t *testing.T) {
	store := kv.NewFakeStore()
	b := board.NewBoard(store)
	ctx := context.Background()
	if _, err := store.SAdd(ctx, "open_regions", "0:0"); err != nil {
		t.Fatal(err)
	}

	bus := eventbus.New()
	drawCh, _ := bus.NewSubscriber("draw")

	c := New(store, b, bus)

	event := board.DrawEvent{PredecessorID: "alice", BlockTimestampMs: 1000,
		Pixels: []board.DrawPixel{{X: 0, Y: 0, Color: "FF0000"}}}
	raw, _ := json.Marshal(event)

	if err := store.LPush(ctx, drawQueueKey, string(raw)); err != nil {
		t.Fatal(err)
	}
	popped, err := store.RPopLPush(ctx, drawQueueKey, processingQueueKey)
	if err != nil {
		t.Fatal(err)
	}

	c.process(ctx, popped)

	select {
	case evt := <-drawCh:
		env, ok := evt.Data.(DrawEnvelope)
		if !ok {
			t.Fatalf("unexpected event data type %T", evt.Data)
		}
		if len(env.Pixels) != 1 || env.Pixels[0].Color != "FF0000" {
			t.Fatalf("unexpected envelope: %+v", env)
		}
	case <-time.After(time.Second):
		t.Fatal("expected draw envelope to be published")
	}

	n, err := store.LLen(ctx, processingQueueKey)
	if err != nil || n != 0 {
		t.Fatalf("expected processing_queue drained, n=%d err=%v", n, err)
	}

	members, err := store.ZRangeByScore(ctx, drawEventsKey, 0, 2000)
	if err != nil || len(members) != 1 {
		t.Fatalf("expected 1 replay entry, got %d err=%v", len(members), err)
	}
}

func TestConsumerDropsUnparseableEvent(t *testing.T) {
	store := kv.NewFakeStore()
	b := board.NewBoard(store)
	bus := eventbus.New()
	c := New(store, b, bus)
	ctx := context.Background()

	if err := store.LPush(ctx, processingQueueKey, "not json"); err != nil {
		t.Fatal(err)
	}

	c.process(ctx, "not json")

	n, err := store.LLen(ctx, processingQueueKey)
	if err != nil || n != 0 {
		t.Fatalf("expected malformed event acked off the queue, n=%d err=%v", n, err)
	}
}

// failingHGetStore wraps a FakeStore and fails HGet once, simulating a
// transient KV I/O error inside Registry.Resolve.
type failingHGetStore struct {
	*kv.FakeStore
	failuresLeft int
}

func (s *failingHGetStore) HGet(ctx context.Context, key, field string) (string, error) {
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return "", errTransient
	}
	return s.FakeStore.HGet(ctx, key, field)
}

var errTransient = fmt.Errorf("transient KV failure")

// A transient error out of board.Apply must not ack the event off
// processing_queue: it must stay there for replay (spec.md §7, Invariant 5).
func TestConsumerLeavesEventQueuedOnTransientApplyError(t *testing.T) {
	store := &failingHGetStore{FakeStore: kv.NewFakeStore(), failuresLeft: 1}
	b := board.NewBoard(store)
	ctx := context.Background()
	if _, err := store.SAdd(ctx, "open_regions", "0:0"); err != nil {
		t.Fatal(err)
	}

	bus := eventbus.New()
	c := New(store, b, bus)

	event := board.DrawEvent{PredecessorID: "alice", BlockTimestampMs: 1000,
		Pixels: []board.DrawPixel{{X: 0, Y: 0, Color: "FF0000"}}}
	raw, _ := json.Marshal(event)

	if err := store.LPush(ctx, processingQueueKey, string(raw)); err != nil {
		t.Fatal(err)
	}

	c.process(ctx, string(raw))

	n, err := store.LLen(ctx, processingQueueKey)
	if err != nil || n != 1 {
		t.Fatalf("expected event to remain queued for replay, n=%d err=%v", n, err)
	}
}

func TestRecoverInFlightMovesEventsBack(t *testing.T) {
	store := kv.NewFakeStore()
	b := board.NewBoard(store)
	bus := eventbus.New()
	c := New(store, b, bus)
	ctx := context.Background()

	if err := store.LPush(ctx, processingQueueKey, "stuck-event"); err != nil {
		t.Fatal(err)
	}

	n, err := c.RecoverInFlight(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 recovered event, got %d", n)
	}

	qn, err := store.LLen(ctx, drawQueueKey)
	if err != nil || qn != 1 {
		t.Fatalf("expected draw_queue to have the recovered event, n=%d err=%v", qn, err)
	}
}
