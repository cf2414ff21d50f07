package clickhouse

import (
	"context"
	"fmt"
	"time"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/observability"
	"kol-scoreboard/internal/storage"
)

// ScrapeRunStore implements storage.ScrapeRunStore using ClickHouse.
// Rows are append-only and expire by table TTL.
type ScrapeRunStore struct {
	conn *Conn
}

// NewScrapeRunStore creates a new ScrapeRunStore.
func NewScrapeRunStore(conn *Conn) *ScrapeRunStore {
	return &ScrapeRunStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ScrapeRunStore = (*ScrapeRunStore)(nil)

// Insert adds one scrape run.
func (s *ScrapeRunStore) Insert(ctx context.Context, run *domain.ScrapeRun) error {
	if run == nil {
		return storage.ErrInvalidInput
	}
	return s.InsertBulk(ctx, []*domain.ScrapeRun{run})
}

// InsertBulk adds runs in a single batch.
func (s *ScrapeRunStore) InsertBulk(ctx context.Context, runs []*domain.ScrapeRun) error {
	if len(runs) == 0 {
		return nil
	}
	for _, r := range runs {
		if r == nil || r.Address == "" || r.DurationMs < 0 {
			return storage.ErrInvalidInput
		}
	}

	start := time.Now()
	err := s.insertBatch(ctx, runs)
	observability.RecordDBQuery("clickhouse", "scrape_runs_insert", time.Since(start).Seconds(), err)
	return err
}

func (s *ScrapeRunStore) insertBatch(ctx context.Context, runs []*domain.ScrapeRun) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO scrape_runs (
			address, started_at, duration_ms, outcome, reason, rank
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range runs {
		err = batch.Append(
			r.Address, r.StartedAt.UTC(), uint64(r.DurationMs),
			string(r.Outcome), r.Reason, string(r.Rank),
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByAddress retrieves runs for an address, newest first, up to limit.
// A non-positive limit returns every run.
func (s *ScrapeRunStore) GetByAddress(ctx context.Context, address string, limit int) ([]*domain.ScrapeRun, error) {
	query := `
		SELECT address, started_at, duration_ms, outcome, reason, rank
		FROM scrape_runs
		WHERE address = ?
		ORDER BY started_at DESC
	`
	args := []interface{}{address}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, uint64(limit))
	}

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, args...)
	observability.RecordDBQuery("clickhouse", "scrape_runs_by_address", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query by address: %w", err)
	}
	defer rows.Close()

	return scanScrapeRuns(rows)
}

// OutcomeCounts returns run counts per outcome since the given time.
func (s *ScrapeRunStore) OutcomeCounts(ctx context.Context, since time.Time) (map[domain.ScrapeOutcome]uint64, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT outcome, count() AS runs
		FROM scrape_runs
		WHERE started_at >= ?
		GROUP BY outcome
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query outcome counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ScrapeOutcome]uint64)
	for rows.Next() {
		var outcome string
		var n uint64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[domain.ScrapeOutcome(outcome)] = n
	}
	return counts, rows.Err()
}

func scanScrapeRuns(rows chRows) ([]*domain.ScrapeRun, error) {
	var runs []*domain.ScrapeRun

	for rows.Next() {
		var r domain.ScrapeRun
		var durationMs uint64
		var outcome, rank string

		if err := rows.Scan(&r.Address, &r.StartedAt, &durationMs, &outcome, &r.Reason, &rank); err != nil {
			return nil, fmt.Errorf("scan scrape run: %w", err)
		}
		r.StartedAt = r.StartedAt.UTC()
		r.DurationMs = int64(durationMs)
		r.Outcome = domain.ScrapeOutcome(outcome)
		r.Rank = domain.RankLabel(rank)
		runs = append(runs, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return runs, nil
}
