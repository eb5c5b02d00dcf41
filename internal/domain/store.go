package domain

import (
	"context"
	"time"
)

// ScanStore persists scan runs and the arbitrage pairs they found.
type ScanStore interface {
	InsertRun(ctx context.Context, summary ScanSummary) error
	InsertPairs(ctx context.Context, runID string, detectedAt time.Time, pairs []ArbitragePair) error
	ListRecent(ctx context.Context, limit int) ([]ScanRecord, error)
	ListRuns(ctx context.Context, limit int) ([]ScanSummary, error)
	ListBefore(ctx context.Context, before time.Time) ([]ScanRecord, error)
}
