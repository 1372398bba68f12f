package chain

import (
	"context"
	"testing"
)

func TestFakeBlockSourceReplaysInOrder(t *testing.T) {
	src := NewFakeBlockSource([]Block{
		{Height: 10, TimestampMs: 1000},
		{Height: 11, TimestampMs: 1500},
	})
	ctx := context.Background()

	b1, err := src.Next(ctx)
	if err != nil || b1.Height != 10 {
		t.Fatalf("unexpected first block: %+v err=%v", b1, err)
	}
	b2, err := src.Next(ctx)
	if err != nil || b2.Height != 11 {
		t.Fatalf("unexpected second block: %+v err=%v", b2, err)
	}
	if _, err := src.Next(ctx); err != ErrExhausted {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestFakeBlockSourceRespectsCanceledContext(t *testing.T) {
	src := NewFakeBlockSource([]Block{{Height: 1}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Next(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}
