// Package snapshot is an optional durable checkpoint store: it periodically
// records the ingest pipeline's progress and a handful of board-wide
// counters to Postgres so an operator dashboard has something to query
// that survives a Redis/Valkey flush. The pixel board's own source of
// truth always stays the KV store; this package only ever mirrors it.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store holds a periodic snapshot of pipeline progress in Postgres.
type Store struct {
	db *pgxpool.Pool
}

// NewStore connects to dbURL, tuning the pool the way the teacher's
// repository package does, and ensures the checkpoints table exists.
func NewStore(ctx context.Context, dbURL string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("snapshot: parse db url: %w", err)
	}

	if maxConnStr := os.Getenv("SNAPSHOT_DB_MAX_OPEN_CONNS"); maxConnStr != "" {
		if maxConn, err := strconv.Atoi(maxConnStr); err == nil {
			config.MaxConns = int32(maxConn)
		}
	}
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("snapshot: connect: %w", err)
	}

	s := &Store{db: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("snapshot: ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS pixelboard_checkpoints (
			service_name    TEXT PRIMARY KEY,
			last_height     BIGINT NOT NULL,
			drawn_pixels    BIGINT NOT NULL DEFAULT 0,
			open_regions    BIGINT NOT NULL DEFAULT 0,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`
	_, err := s.db.Exec(ctx, ddl)
	return err
}

// Record upserts the current checkpoint for serviceName.
func (s *Store) Record(ctx context.Context, serviceName string, lastHeight, drawnPixels, openRegions uint64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO pixelboard_checkpoints (service_name, last_height, drawn_pixels, open_regions, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (service_name) DO UPDATE SET
			last_height = EXCLUDED.last_height,
			drawn_pixels = EXCLUDED.drawn_pixels,
			open_regions = EXCLUDED.open_regions,
			updated_at = NOW()
	`, serviceName, lastHeight, drawnPixels, openRegions)
	if err != nil {
		return fmt.Errorf("snapshot: record checkpoint: %w", err)
	}
	return nil
}

// Last returns the most recently recorded checkpoint for serviceName, or
// zero values if none has been recorded yet.
func (s *Store) Last(ctx context.Context, serviceName string) (lastHeight, drawnPixels, openRegions uint64, err error) {
	row := s.db.QueryRow(ctx, `
		SELECT last_height, drawn_pixels, open_regions
		FROM pixelboard_checkpoints WHERE service_name = $1
	`, serviceName)
	if scanErr := row.Scan(&lastHeight, &drawnPixels, &openRegions); scanErr != nil {
		return 0, 0, 0, nil
	}
	return lastHeight, drawnPixels, openRegions, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.db.Close()
}

// RunPeriodic calls record every interval until ctx is canceled, reading
// current counters from getCounters. Errors are swallowed into a single
// best-effort attempt per tick since the snapshot store is a dashboard
// convenience, never load-bearing for correctness.
func (s *Store) RunPeriodic(ctx context.Context, serviceName string, interval time.Duration, getCounters func(ctx context.Context) (lastHeight, drawnPixels, openRegions uint64, err error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h, d, o, err := getCounters(ctx)
			if err != nil {
				continue
			}
			_ = s.Record(ctx, serviceName, h, d, o)
		}
	}
}
