package kv

import (
	"context"
	"errors"
	"testing"
)

func TestFakeStoreHashAndIncr(t *testing.T) {
	ctx := context.Background()
	f := NewFakeStore()

	n, err := f.HIncrBy(ctx, "account_pixel_count", "1", 5)
	if err != nil || n != 5 {
		t.Fatalf("expected 5, got %d err=%v", n, err)
	}
	n, err = f.HIncrBy(ctx, "account_pixel_count", "1", -2)
	if err != nil || n != 3 {
		t.Fatalf("expected 3, got %d err=%v", n, err)
	}

	if _, err := f.HGet(ctx, "missing", "field"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFakeStoreQueueSemantics(t *testing.T) {
	ctx := context.Background()
	f := NewFakeStore()

	if err := f.LPush(ctx, "draw_queue", "a"); err != nil {
		t.Fatal(err)
	}
	if err := f.LPush(ctx, "draw_queue", "b"); err != nil {
		t.Fatal(err)
	}

	v, err := f.RPopLPush(ctx, "draw_queue", "processing_queue")
	if err != nil || v != "a" {
		t.Fatalf("expected RPOPLPUSH to pop tail 'a', got %q err=%v", v, err)
	}

	n, _ := f.LLen(ctx, "draw_queue")
	if n != 1 {
		t.Fatalf("expected 1 remaining in draw_queue, got %d", n)
	}
	n, _ = f.LLen(ctx, "processing_queue")
	if n != 1 {
		t.Fatalf("expected 1 in processing_queue, got %d", n)
	}

	if err := f.LRem(ctx, "processing_queue", "a"); err != nil {
		t.Fatal(err)
	}
	n, _ = f.LLen(ctx, "processing_queue")
	if n != 0 {
		t.Fatalf("expected processing_queue empty after LREM, got %d", n)
	}
}

func TestFakeStorePipelineAtomicity(t *testing.T) {
	ctx := context.Background()
	f := NewFakeStore()

	err := f.Pipeline(ctx, func(p Pipeline) error {
		p.SetBytes("region:0:0", []byte{1, 2, 3})
		p.HIncrBy("account_pixel_count", "1", 10)
		p.ZAdd("pixel_ts:0:0", Z{Score: 1000, Member: "0,0"})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	blob, err := f.GetBytes(ctx, "region:0:0")
	if err != nil || len(blob) != 3 {
		t.Fatalf("expected 3-byte blob, got %v err=%v", blob, err)
	}
	score, err := f.ZScore(ctx, "pixel_ts:0:0", "0,0")
	if err != nil || score != 1000 {
		t.Fatalf("expected score 1000, got %v err=%v", score, err)
	}
}

func TestFakeStoreZRangeByScoreOrdering(t *testing.T) {
	ctx := context.Background()
	f := NewFakeStore()
	_ = f.ZAdd(ctx, "draw_events", Z{Score: 300, Member: "c"}, Z{Score: 100, Member: "a"}, Z{Score: 200, Member: "b"})

	members, err := f.ZRangeByScore(ctx, "draw_events", 0, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 3 || members[0] != "a" || members[1] != "b" || members[2] != "c" {
		t.Fatalf("expected ascending score order, got %v", members)
	}
}
