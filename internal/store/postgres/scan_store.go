package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

// ScanStore implements domain.ScanStore.
type ScanStore struct {
	pool *pgxpool.Pool
}

// NewScanStore creates a ScanStore backed by pool.
func NewScanStore(pool *pgxpool.Pool) *ScanStore {
	return &ScanStore{pool: pool}
}

const pairSelectCols = `id, run_id, a_title, a_yes, a_no, a_link,
	b_title, b_yes, b_no, b_link, direction, edge, score, detected_at`

const runSelectCols = `run_id, started_at, finished_at, polymarket_count, kalshi_count,
	after_close_time, after_strike, after_similarity, after_adjudicate,
	arbitrage_count, best_edge`

// InsertRun records a finished scan run. Re-inserting a run ID overwrites it.
func (s *ScanStore) InsertRun(ctx context.Context, r domain.ScanSummary) error {
	const query = `
		INSERT INTO scan_runs (` + runSelectCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at      = EXCLUDED.finished_at,
			polymarket_count = EXCLUDED.polymarket_count,
			kalshi_count     = EXCLUDED.kalshi_count,
			after_close_time = EXCLUDED.after_close_time,
			after_strike     = EXCLUDED.after_strike,
			after_similarity = EXCLUDED.after_similarity,
			after_adjudicate = EXCLUDED.after_adjudicate,
			arbitrage_count  = EXCLUDED.arbitrage_count,
			best_edge        = EXCLUDED.best_edge`

	_, err := s.pool.Exec(ctx, query,
		r.RunID, r.StartedAt, r.FinishedAt, r.PolymarketCount, r.KalshiCount,
		r.AfterCloseTime, r.AfterStrike, r.AfterSimilarity, r.AfterAdjudicate,
		r.ArbitrageCount, r.BestEdge,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert scan run %s: %w", r.RunID, err)
	}
	return nil
}

// InsertPairs stores the arbitrage pairs of one run in a single batch.
func (s *ScanStore) InsertPairs(ctx context.Context, runID string, detectedAt time.Time, pairs []domain.ArbitragePair) error {
	if len(pairs) == 0 {
		return nil
	}
	const query = `
		INSERT INTO arbitrage_pairs (` + pairSelectCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	batch := &pgx.Batch{}
	for _, p := range pairs {
		batch.Queue(query,
			uuid.NewString(), runID, p.ATitle, p.AYes, p.ANo, p.ALink,
			p.BTitle, p.BYes, p.BNo, p.BLink, string(p.Direction), p.Edge, p.Score, detectedAt,
		)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: insert %d pairs for run %s: %w", len(pairs), runID, err)
	}
	return nil
}

// ListRecent returns the most recently detected pairs, newest first.
// limit <= 0 returns everything.
func (s *ScanStore) ListRecent(ctx context.Context, limit int) ([]domain.ScanRecord, error) {
	query := `SELECT ` + pairSelectCols + ` FROM arbitrage_pairs ORDER BY detected_at DESC, edge DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	return s.queryRecords(ctx, query, args...)
}

// ListBefore returns every pair detected strictly before the cutoff, oldest
// first.
func (s *ScanStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ScanRecord, error) {
	query := `SELECT ` + pairSelectCols + ` FROM arbitrage_pairs WHERE detected_at < $1 ORDER BY detected_at`
	return s.queryRecords(ctx, query, before)
}

func (s *ScanStore) queryRecords(ctx context.Context, query string, args ...any) ([]domain.ScanRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query arbitrage pairs: %w", err)
	}
	defer rows.Close()

	var out []domain.ScanRecord
	for rows.Next() {
		var (
			rec       domain.ScanRecord
			direction string
		)
		if err := rows.Scan(
			&rec.ID, &rec.RunID, &rec.Pair.ATitle, &rec.Pair.AYes, &rec.Pair.ANo, &rec.Pair.ALink,
			&rec.Pair.BTitle, &rec.Pair.BYes, &rec.Pair.BNo, &rec.Pair.BLink,
			&direction, &rec.Pair.Edge, &rec.Pair.Score, &rec.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan arbitrage pair: %w", err)
		}
		rec.Pair.Direction = domain.Direction(direction)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: arbitrage pair rows: %w", err)
	}
	return out, nil
}

// ListRuns returns the latest runs, newest first.
func (s *ScanStore) ListRuns(ctx context.Context, limit int) ([]domain.ScanSummary, error) {
	query := `SELECT ` + runSelectCols + ` FROM scan_runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list scan runs: %w", err)
	}
	defer rows.Close()

	var out []domain.ScanSummary
	for rows.Next() {
		var r domain.ScanSummary
		if err := rows.Scan(
			&r.RunID, &r.StartedAt, &r.FinishedAt, &r.PolymarketCount, &r.KalshiCount,
			&r.AfterCloseTime, &r.AfterStrike, &r.AfterSimilarity, &r.AfterAdjudicate,
			&r.ArbitrageCount, &r.BestEdge,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan run row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scan run rows: %w", err)
	}
	return out, nil
}

var _ domain.ScanStore = (*ScanStore)(nil)
