package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	flowgrpc "github.com/onflow/flow-go-sdk/access/grpc"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// cadenceDrawArgs mirrors the JSON-CDC shape of the draw transaction's
// argument list: a single array-valued argument of {x,y,color} structs
// (spec.md §4.2). We decode through encoding/json rather than the full
// Cadence JSON-CDC grammar since the Ingestor only ever needs these three
// primitive fields back out.
type cadenceDrawArgs struct {
	Pixels []struct {
		X     int32  `json:"x"`
		Y     int32  `json:"y"`
		Color string `json:"color"`
	} `json:"pixels"`
}

// GRPCBlockSource polls a pool of Flow access nodes for new sealed blocks,
// round-robining across them and retrying transient failures, in the same
// shape as a multi-node Flow Access Client: any one node may lag or drop a
// connection without stalling ingestion.
type GRPCBlockSource struct {
	clients     []*flowgrpc.Client
	nodes       []string
	contractID  string
	functionTag string
	limiter     *rate.Limiter
	pollEvery   time.Duration

	rr     uint32
	height uint64
}

// GRPCBlockSourceConfig configures a GRPCBlockSource.
type GRPCBlockSourceConfig struct {
	Nodes         []string
	ContractID    string // e.g. "A.0123456789abcdef.PixelBoard"
	FunctionTag   string // event/function discriminator, e.g. "draw"
	StartHeight   uint64
	RPSPerNode    float64
	PollInterval  time.Duration
}

// NewGRPCBlockSource dials every node in cfg.Nodes, tolerating individual
// dial failures as long as at least one succeeds (spec.md's ingestor must
// keep running through a single node's outage).
func NewGRPCBlockSource(cfg GRPCBlockSourceConfig) (*GRPCBlockSource, error) {
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("chain: no access nodes configured")
	}
	var clients []*flowgrpc.Client
	var connected []string
	var firstErr error
	for _, node := range cfg.Nodes {
		c, err := flowgrpc.NewClient(node)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("chain: dial %s: %w", node, err)
			}
			log.Printf("[chain] warn: failed to connect to access node %s: %v", node, err)
			continue
		}
		clients = append(clients, c)
		connected = append(connected, node)
	}
	if len(clients) == 0 {
		return nil, firstErr
	}

	rps := cfg.RPSPerNode
	if rps <= 0 {
		rps = 5
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}

	return &GRPCBlockSource{
		clients:     clients,
		nodes:       connected,
		contractID:  cfg.ContractID,
		functionTag: cfg.FunctionTag,
		limiter:     rate.NewLimiter(rate.Limit(rps)*rate.Limit(len(clients)), len(clients)),
		pollEvery:   poll,
		height:      cfg.StartHeight,
	}, nil
}

// ConfigFromEnv builds a GRPCBlockSourceConfig from FLOW_ACCESS_NODES
// (comma/space-separated) and the CONTRACT_ID/FUNCTION_TAG pair the
// deployment draws its board from.
func ConfigFromEnv(startHeight uint64) GRPCBlockSourceConfig {
	raw := os.Getenv("FLOW_ACCESS_NODES")
	nodes := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t'
	})
	return GRPCBlockSourceConfig{
		Nodes:       nodes,
		ContractID:  os.Getenv("CONTRACT_ID"),
		FunctionTag: envOrDefault("FUNCTION_TAG", "draw"),
		StartHeight: startHeight,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *GRPCBlockSource) pick() *flowgrpc.Client {
	n := atomic.AddUint32(&s.rr, 1)
	return s.clients[int(n)%len(s.clients)]
}

// Next blocks until the block at s.height+1 is sealed, fetches it along with
// its collections and transactions, filters down to qualifying draw
// calls, and advances s.height. It repins to another node on a NotFound or
// Unavailable response from the current one (spec.md's ingestor must not
// wedge on a single node that has pruned old history or is mid-restart).
func (s *GRPCBlockSource) Next(ctx context.Context) (Block, error) {
	target := s.height + 1
	for {
		latest, err := s.latestSealedHeight(ctx)
		if err != nil {
			return Block{}, err
		}
		if latest >= target {
			break
		}
		select {
		case <-time.After(s.pollEvery):
		case <-ctx.Done():
			return Block{}, ctx.Err()
		}
	}

	block, calls, tsMs, err := s.fetchAndFilter(ctx, target)
	if err != nil {
		return Block{}, err
	}
	s.height = target
	return Block{Height: block, TimestampMs: tsMs, Calls: calls}, nil
}

func (s *GRPCBlockSource) latestSealedHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := s.withRetry(ctx, func() error {
		header, err := s.pick().GetLatestBlockHeader(ctx, true)
		if err != nil {
			return err
		}
		height = header.Height
		return nil
	})
	return height, err
}

func (s *GRPCBlockSource) fetchAndFilter(ctx context.Context, height uint64) (uint64, []FunctionCall, uint64, error) {
	var (
		calls []FunctionCall
		tsMs  uint64
	)
	err := s.withRetry(ctx, func() error {
		header, err := s.pick().GetBlockHeaderByHeight(ctx, height)
		if err != nil {
			return err
		}
		tsMs = uint64(header.Timestamp.UnixMilli())

		collections, err := s.pick().GetBlockByHeight(ctx, height)
		if err != nil {
			return err
		}
		calls = calls[:0]
		for _, guarantee := range collections.CollectionGuarantees {
			coll, err := s.pick().GetCollectionByID(ctx, guarantee.CollectionID)
			if err != nil {
				continue
			}
			for _, txID := range coll.TransactionIDs {
				tx, err := s.pick().GetTransaction(ctx, txID)
				if err != nil {
					continue
				}
				if !strings.Contains(string(tx.Script), s.functionTag) || !strings.Contains(string(tx.Script), s.contractID) {
					continue
				}
				if len(tx.Arguments) == 0 {
					continue
				}
				calls = append(calls, FunctionCall{
					TransactionID: txID.String(),
					PredecessorID: tx.ProposalKey.Address.String(),
					Args:          normalizeDrawArgs(tx.Arguments[0]),
				})
			}
		}
		return nil
	})
	return height, calls, tsMs, err
}

// normalizeDrawArgs re-encodes a raw JSON-CDC argument into the flattened
// {"pixels":[...]} shape the Ingestor expects, tolerating payloads already
// in that shape (the fake source and tests use the flattened form directly).
func normalizeDrawArgs(raw []byte) []byte {
	var flat cadenceDrawArgs
	if err := json.Unmarshal(raw, &flat); err == nil && len(flat.Pixels) > 0 {
		out, _ := json.Marshal(flat)
		return out
	}
	return raw
}

func (s *GRPCBlockSource) withRetry(ctx context.Context, fn func() error) error {
	const maxRetries = 5
	backoff := 500 * time.Millisecond
	for i := 0; i < maxRetries; i++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		st, ok := status.FromError(err)
		if !ok {
			return err
		}
		switch st.Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded, codes.NotFound:
			if i == maxRetries-1 {
				return fmt.Errorf("chain: max retries: %w", err)
			}
			select {
			case <-time.After(backoff * time.Duration(1<<i)):
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			return err
		}
	}
	return nil
}

// Close tears down every underlying gRPC connection.
func (s *GRPCBlockSource) Close() error {
	var firstErr error
	for _, c := range s.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
