package chain

import (
	"context"
	"errors"
)

// ErrExhausted is returned once a FakeBlockSource has yielded every block it
// was seeded with.
var ErrExhausted = errors.New("chain: fake source exhausted")

// FakeBlockSource is a test double that replays a fixed slice of blocks in
// order, one per Next call, without any network or polling involved.
type FakeBlockSource struct {
	blocks []Block
	pos    int
	closed bool
}

// NewFakeBlockSource returns a source that replays blocks in order.
func NewFakeBlockSource(blocks []Block) *FakeBlockSource {
	return &FakeBlockSource{blocks: blocks}
}

// Next returns the next seeded block, or ErrExhausted once they are
// consumed, or ctx.Err() if ctx is already canceled.
func (f *FakeBlockSource) Next(ctx context.Context) (Block, error) {
	if err := ctx.Err(); err != nil {
		return Block{}, err
	}
	if f.pos >= len(f.blocks) {
		return Block{}, ErrExhausted
	}
	b := f.blocks[f.pos]
	f.pos++
	return b, nil
}

// Close marks the source closed; idempotent.
func (f *FakeBlockSource) Close() error {
	f.closed = true
	return nil
}
