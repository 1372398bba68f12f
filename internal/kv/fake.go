package kv

import (
	"context"
	"sort"
	"sync"
)

// FakeStore is an in-memory Store used by every other package's tests,
// mirroring the teacher's preference for small local test doubles over a
// mocking library. It implements the same semantics as RedisStore,
// including the atomic-visibility guarantee of Pipeline (callers never
// observe a partially-applied batch because the whole batch is built up
// before any mutation is applied to the underlying maps).
type FakeStore struct {
	mu      sync.Mutex
	strings map[string]string
	bytes   map[string][]byte
	hashes  map[string]map[string]string
	sets    map[string]map[string]bool
	zsets   map[string]map[string]float64
	lists   map[string][]string
}

var _ Store = (*FakeStore)(nil)

// NewFakeStore returns an empty FakeStore ready for use.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		strings: make(map[string]string),
		bytes:   make(map[string][]byte),
		hashes:  make(map[string]map[string]string),
		sets:    make(map[string]map[string]bool),
		zsets:   make(map[string]map[string]float64),
		lists:   make(map[string][]string),
	}
}

func (f *FakeStore) Close() error { return nil }

func (f *FakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.strings[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *FakeStore) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strings[key] = value
	return nil
}

func (f *FakeStore) GetBytes(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.bytes[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (f *FakeStore) SetBytes(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	f.bytes[key] = cp
	return nil
}

func (f *FakeStore) hash(key string) map[string]string {
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	return h
}

func (f *FakeStore) HGet(_ context.Context, key, field string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[key]
	if !ok {
		return "", ErrNotFound
	}
	v, ok := h[field]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *FakeStore) HSet(_ context.Context, key, field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hash(key)[field] = value
	return nil
}

func (f *FakeStore) HLen(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.hashes[key])), nil
}

func (f *FakeStore) HIncrBy(_ context.Context, key, field string, delta int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.hash(key)
	v := parseInt64(h[field])
	v += delta
	h[field] = formatInt64(v)
	return v, nil
}

func (f *FakeStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.hashes[key]))
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (f *FakeStore) set(key string) map[string]bool {
	s, ok := f.sets[key]
	if !ok {
		s = make(map[string]bool)
		f.sets[key] = s
	}
	return s
}

func (f *FakeStore) SAdd(_ context.Context, key, member string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.set(key)
	if s[member] {
		return false, nil
	}
	s[member] = true
	return true, nil
}

func (f *FakeStore) SIsMember(_ context.Context, key, member string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets[key][member], nil
}

func (f *FakeStore) SMembers(_ context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sets[key]))
	for m := range f.sets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (f *FakeStore) zset(key string) map[string]float64 {
	z, ok := f.zsets[key]
	if !ok {
		z = make(map[string]float64)
		f.zsets[key] = z
	}
	return z
}

func (f *FakeStore) ZAdd(_ context.Context, key string, members ...Z) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	z := f.zset(key)
	for _, m := range members {
		z[m.Member] = m.Score
	}
	return nil
}

func (f *FakeStore) ZScore(_ context.Context, key, member string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	z, ok := f.zsets[key]
	if !ok {
		return 0, ErrNotFound
	}
	v, ok := z[member]
	if !ok {
		return 0, ErrNotFound
	}
	return v, nil
}

func (f *FakeStore) ZRemRangeByScore(_ context.Context, key string, min, max float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	z, ok := f.zsets[key]
	if !ok {
		return nil
	}
	for m, score := range z {
		if score >= min && score <= max {
			delete(z, m)
		}
	}
	return nil
}

func (f *FakeStore) ZRangeByScore(_ context.Context, key string, min, max float64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	type pair struct {
		m string
		s float64
	}
	var pairs []pair
	for m, score := range f.zsets[key] {
		if score >= min && score <= max {
			pairs = append(pairs, pair{m, score})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].s < pairs[j].s })
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.m
	}
	return out, nil
}

func (f *FakeStore) LPush(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[key] = append([]string{value}, f.lists[key]...)
	return nil
}

func (f *FakeStore) RPopLPush(_ context.Context, src, dst string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.lists[src]
	if len(l) == 0 {
		return "", ErrNotFound
	}
	v := l[len(l)-1]
	f.lists[src] = l[:len(l)-1]
	f.lists[dst] = append([]string{v}, f.lists[dst]...)
	return v, nil
}

func (f *FakeStore) LRem(_ context.Context, key string, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.lists[key]
	for i, v := range l {
		if v == value {
			f.lists[key] = append(l[:i], l[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *FakeStore) LLen(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.lists[key])), nil
}

func (f *FakeStore) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.lists[key]
	n := int64(len(l))
	if n == 0 {
		return nil, nil
	}
	if start < 0 {
		start = 0
	}
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if start > stop {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, l[start:stop+1])
	return out, nil
}

// Pipeline applies every queued operation to the backing maps only after
// fn returns without error, so a reader holding the store's lock never
// observes a partial batch (the lock is held for the whole apply).
func (f *FakeStore) Pipeline(ctx context.Context, fn func(p Pipeline) error) error {
	fp := &fakePipeline{}
	if err := fn(fp); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, op := range fp.ops {
		op(f)
	}
	return nil
}

type fakePipeline struct {
	ops []func(f *FakeStore)
}

func (p *fakePipeline) SetBytes(key string, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	p.ops = append(p.ops, func(f *FakeStore) { f.bytes[key] = cp })
}

func (p *fakePipeline) HSet(key, field, value string) {
	p.ops = append(p.ops, func(f *FakeStore) { f.hash(key)[field] = value })
}

func (p *fakePipeline) HIncrBy(key, field string, delta int64) {
	p.ops = append(p.ops, func(f *FakeStore) {
		h := f.hash(key)
		h[field] = formatInt64(parseInt64(h[field]) + delta)
	})
}

func (p *fakePipeline) ZAdd(key string, members ...Z) {
	if len(members) == 0 {
		return
	}
	p.ops = append(p.ops, func(f *FakeStore) {
		z := f.zset(key)
		for _, m := range members {
			z[m.Member] = m.Score
		}
	})
}

func (p *fakePipeline) ZRemRangeByScore(key string, min, max float64) {
	p.ops = append(p.ops, func(f *FakeStore) {
		z, ok := f.zsets[key]
		if !ok {
			return
		}
		for m, score := range z {
			if score >= min && score <= max {
				delete(z, m)
			}
		}
	})
}

func (p *fakePipeline) LRem(key, value string) {
	p.ops = append(p.ops, func(f *FakeStore) {
		l := f.lists[key]
		for i, v := range l {
			if v == value {
				f.lists[key] = append(l[:i], l[i+1:]...)
				return
			}
		}
	})
}

func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}
	var neg bool
	i := 0
	if s[0] == '-' {
		neg = true
		i = 1
	}
	var v int64
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0
		}
		v = v*10 + int64(s[i]-'0')
	}
	if neg {
		v = -v
	}
	return v
}

func formatInt64(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
