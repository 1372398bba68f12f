// Package kv defines a typed abstraction over the external key-value store
// (Valkey/Redis) that the pixel-board pipeline is built on: strings,
// hashes, lists, sets, sorted sets, and atomic pipelines.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by single-key reads (Get, HGet, ZScore) when the
// key or field does not exist. Callers treat it the same way the teacher
// treats pgx.ErrNoRows: a reportable "absent", not a transient failure.
var ErrNotFound = errors.New("kv: not found")

// Z is one member/score pair for a sorted-set operation.
type Z struct {
	Score  float64
	Member string
}

// Store is the full surface the pipeline needs. Production code talks to
// Valkey/Redis through the RedisStore implementation; tests talk to the
// in-memory FakeStore, which implements the exact same semantics.
type Store interface {
	// Strings
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, value []byte) error

	// Hashes
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key, field, value string) error
	HLen(ctx context.Context, key string) (int64, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Sets
	SAdd(ctx context.Context, key, member string) (added bool, err error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SMembers(ctx context.Context, key string) ([]string, error)

	// Sorted sets
	ZAdd(ctx context.Context, key string, members ...Z) error
	ZScore(ctx context.Context, key, member string) (float64, error)
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) error
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)

	// Lists
	LPush(ctx context.Context, key, value string) error
	RPopLPush(ctx context.Context, src, dst string) (string, error)
	LRem(ctx context.Context, key string, value string) error
	LLen(ctx context.Context, key string) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Pipeline issues a batch of writes that apply atomically from the
	// perspective of any concurrent reader: either all of them are visible
	// or none are. Used once per region by the Board Applier (spec.md §4.5
	// step 3e) so a reader never observes a half-updated region.
	Pipeline(ctx context.Context, fn func(p Pipeline) error) error

	Close() error
}

// Pipeline accumulates operations for a single atomic round-trip. It is a
// write-only subset of Store: every call queues the operation and returns
// immediately, with errors surfacing when Store.Pipeline's fn returns and
// the batch executes.
type Pipeline interface {
	SetBytes(key string, value []byte)
	HSet(key, field, value string)
	HIncrBy(key, field string, delta int64)
	ZAdd(key string, members ...Z)
	ZRemRangeByScore(key string, min, max float64)
	LRem(key, value string)
}

// Now returns the current time truncated to millisecond precision, the
// resolution block timestamps are specified in (spec.md §3, §4.2).
func Now() int64 {
	return time.Now().UnixMilli()
}
