package ingester

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"pixelboard/internal/board"
	"pixelboard/internal/chain"
	"pixelboard/internal/kv"
)

func TestIngestorEnqueuesQualifyingDrawCalls(t *testing.T) {
	validArgs, _ := json.Marshal(rawDrawArgs{Pixels: []board.DrawPixel{{X: 1, Y: 2, Color: "FF0000"}}})

	src := chain.NewFakeBlockSource([]chain.Block{
		{
			Height:      100,
			TimestampMs: 5000,
			Calls: []chain.FunctionCall{
				{TransactionID: "tx1", PredecessorID: "alice", Args: validArgs},
				{TransactionID: "tx2", PredecessorID: "bob", Args: []byte(`{"not":"pixels"}`)},
			},
		},
	})
	store := kv.NewFakeStore()
	in := New(src, store)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := in.Run(ctx)
	if err != chain.ErrExhausted && err != context.DeadlineExceeded {
		t.Fatalf("unexpected Run error: %v", err)
	}

	n, err := store.LLen(context.Background(), "draw_queue")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 enqueued event, got %d", n)
	}

	height, err := in.LastProcessedHeight(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if height != 100 {
		t.Fatalf("expected checkpoint 100, got %d", height)
	}
}

func TestParseDrawEventDropsMalformedArgs(t *testing.T) {
	block := chain.Block{Height: 1, TimestampMs: 1}
	call := chain.FunctionCall{Args: []byte(`not json`)}
	if _, ok := parseDrawEvent(call, block); ok {
		t.Fatalf("expected malformed args to be dropped")
	}
}

func TestParseDrawEventDropsEmptyPixels(t *testing.T) {
	block := chain.Block{Height: 1, TimestampMs: 1}
	raw, _ := json.Marshal(rawDrawArgs{})
	call := chain.FunctionCall{Args: raw}
	if _, ok := parseDrawEvent(call, block); ok {
		t.Fatalf("expected empty pixel list to be dropped")
	}
}

func TestParseDrawEventDropsAllInvalidHex(t *testing.T) {
	block := chain.Block{Height: 1, TimestampMs: 1}
	raw, _ := json.Marshal(rawDrawArgs{Pixels: []board.DrawPixel{
		{X: 0, Y: 0, Color: "NOTHEX"},
		{X: 1, Y: 0, Color: "zz"},
	}})
	call := chain.FunctionCall{Args: raw}
	if _, ok := parseDrawEvent(call, block); ok {
		t.Fatalf("expected a call with only invalid-hex pixels to be dropped")
	}
}

func TestParseDrawEventFiltersInvalidHexButKeepsValid(t *testing.T) {
	block := chain.Block{Height: 1, TimestampMs: 1}
	raw, _ := json.Marshal(rawDrawArgs{Pixels: []board.DrawPixel{
		{X: 0, Y: 0, Color: "NOTHEX"},
		{X: 1, Y: 0, Color: "ABCDEF"},
	}})
	call := chain.FunctionCall{Args: raw}
	event, ok := parseDrawEvent(call, block)
	if !ok {
		t.Fatalf("expected event with at least one valid pixel to be kept")
	}
	if len(event.Pixels) != 1 || event.Pixels[0].Color != "ABCDEF" {
		t.Fatalf("expected only the valid pixel to survive, got %+v", event.Pixels)
	}
}
