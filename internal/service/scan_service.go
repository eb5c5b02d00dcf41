// Package service runs one end-to-end scan: acquire, normalize, match,
// price, then persist and announce the results.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/arbitrage"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/instrumentation"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/matching"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/normalize"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/notify"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/oracle"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/pipeline"
)

// Signal bus names used for scan output.
const (
	ArbitrageChannel = "arbitrage"
	ArbitrageStream  = "arbitrage:stream"
	scanLockKey      = "scan"
)

// Acquirer fetches raw markets from both exchanges.
type Acquirer interface {
	Acquire(ctx context.Context) (pipeline.Raw, error)
}

// Matcher runs the matching funnel.
type Matcher interface {
	Match(ctx context.Context, a, b map[string]domain.MarketRecord) ([]domain.CandidatePair, matching.Stats, error)
}

// ScanConfig holds the tunables of a ScanService.
type ScanConfig struct {
	MinEdge       float64
	LockTTL       time.Duration
	DumpSnapshots bool
}

// ScanDeps are the collaborators of a ScanService. Only Acquirer, Matcher
// and Cache are required; every other field may be nil.
type ScanDeps struct {
	Acquirer  Acquirer
	Matcher   Matcher
	Cache     *oracle.EmbeddingCache
	Persister oracle.Persister
	Locks     domain.LockManager
	Store     domain.ScanStore
	Bus       domain.SignalBus
	Snapshots domain.SnapshotWriter
	Alerter   *notify.Alerter
	Notifier  *notify.Notifier
	Metrics   *instrumentation.Metrics
	Report    io.Writer
}

// ScanService executes scan runs. It implements pipeline.Scanner.
type ScanService struct {
	deps   ScanDeps
	cfg    ScanConfig
	logger *slog.Logger
	now    func() time.Time

	mu   sync.RWMutex
	last *Result
}

// Result is the outcome of one scan run.
type Result struct {
	Summary domain.ScanSummary
	Pairs   []domain.ArbitragePair
	Stats   matching.Stats
}

// NewScanService creates a ScanService.
func NewScanService(deps ScanDeps, cfg ScanConfig, logger *slog.Logger) *ScanService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	if deps.Cache == nil {
		deps.Cache = oracle.NewEmbeddingCache()
	}
	return &ScanService{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "scan")),
		now:    time.Now,
	}
}

// Scan runs once and discards the result.
func (s *ScanService) Scan(ctx context.Context) error {
	_, err := s.Run(ctx)
	return err
}

// Last returns the most recent successful result, or nil before the first.
func (s *ScanService) Last() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Run executes one scan. When another replica holds the scan lock the run
// is skipped and Run returns a nil Result with no error.
func (s *ScanService) Run(ctx context.Context) (*Result, error) {
	started := s.now()
	runID := uuid.NewString()
	logger := s.logger.With(slog.String("run_id", runID))

	if s.deps.Locks != nil {
		unlock, err := s.deps.Locks.Acquire(ctx, scanLockKey, s.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			logger.InfoContext(ctx, "scan already running elsewhere, skipping")
			return nil, nil
		}
		if err != nil {
			return nil, s.fail(ctx, started, fmt.Errorf("scan: acquire lock: %w", err))
		}
		defer unlock()
	}

	s.deps.Cache.Load(ctx, s.deps.Persister, logger)
	defer s.saveCache(ctx, logger)

	res, err := s.run(ctx, runID, started, logger)
	if err != nil {
		return nil, s.fail(ctx, started, err)
	}

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	return res, nil
}

func (s *ScanService) run(ctx context.Context, runID string, started time.Time, logger *slog.Logger) (*Result, error) {
	raw, err := s.deps.Acquirer.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: acquire: %w", err)
	}

	poly := normalize.Polymarket(raw.Polymarket, logger)
	kal := normalize.Kalshi(raw.Kalshi, logger)
	logger.InfoContext(ctx, "markets normalized",
		slog.Int("polymarket", len(poly.Records)),
		slog.Int("polymarket_skipped", poly.Skipped),
		slog.Int("kalshi", len(kal.Records)),
		slog.Int("kalshi_skipped", kal.Skipped),
	)

	if s.cfg.DumpSnapshots && s.deps.Snapshots != nil {
		s.writeSnapshots(ctx, runID, poly.Records, kal.Records, logger)
	}

	matched, stats, err := s.deps.Matcher.Match(ctx, poly.Records, kal.Records)
	if err != nil {
		return nil, fmt.Errorf("scan: match: %w", err)
	}

	pairs := arbitrage.FilterMinEdge(arbitrage.Rank(matched), s.cfg.MinEdge)
	finished := s.now()

	summary := domain.ScanSummary{
		RunID:           runID,
		StartedAt:       started,
		FinishedAt:      finished,
		PolymarketCount: stats.Polymarket,
		KalshiCount:     stats.Kalshi,
		AfterCloseTime:  stats.AfterCloseTime,
		AfterStrike:     stats.AfterStrike,
		AfterSimilarity: stats.AfterSimilarity,
		AfterAdjudicate: stats.Accepted,
		ArbitrageCount:  len(pairs),
	}
	if len(pairs) > 0 {
		summary.BestEdge = pairs[0].Edge
	}

	s.persist(ctx, summary, pairs, logger)
	s.publish(ctx, pairs, logger)
	s.announce(ctx, summary, pairs, logger)

	if m := s.deps.Metrics; m != nil {
		m.RecordScan(summary)
		m.RecordOracleFailures("embed", stats.EmbedFailures)
		m.RecordOracleFailures("adjudicate", stats.AdjudicateFailures)
	}

	if s.deps.Report != nil {
		if err := arbitrage.WriteReport(s.deps.Report, pairs); err != nil {
			logger.WarnContext(ctx, "report write failed", slog.String("error", err.Error()))
		}
	}

	logger.InfoContext(ctx, "scan complete",
		slog.Int("matched", len(matched)),
		slog.Int("arbitrage", len(pairs)),
		slog.Float64("best_edge", summary.BestEdge),
		slog.Duration("took", finished.Sub(started)),
	)
	return &Result{Summary: summary, Pairs: pairs, Stats: stats}, nil
}

func (s *ScanService) writeSnapshots(ctx context.Context, runID string, poly, kal map[string]domain.MarketRecord, logger *slog.Logger) {
	for ex, recs := range map[domain.Exchange]map[string]domain.MarketRecord{
		domain.ExchangePolymarket: poly,
		domain.ExchangeKalshi:     kal,
	} {
		if err := s.deps.Snapshots.WriteSnapshot(ctx, runID, ex, recs); err != nil {
			logger.WarnContext(ctx, "snapshot write failed",
				slog.String("exchange", string(ex)),
				slog.String("error", err.Error()),
			)
			s.recordError("snapshot")
		}
	}
}

// persist stores the run and its pairs. Storage failures do not fail the
// scan; the report is still printed and announced.
func (s *ScanService) persist(ctx context.Context, summary domain.ScanSummary, pairs []domain.ArbitragePair, logger *slog.Logger) {
	if s.deps.Store == nil {
		return
	}
	if err := s.deps.Store.InsertRun(ctx, summary); err != nil {
		logger.ErrorContext(ctx, "insert run failed", slog.String("error", err.Error()))
		s.recordError("store")
		return
	}
	if err := s.deps.Store.InsertPairs(ctx, summary.RunID, summary.FinishedAt, pairs); err != nil {
		logger.ErrorContext(ctx, "insert pairs failed", slog.String("error", err.Error()))
		s.recordError("store")
	}
}

func (s *ScanService) publish(ctx context.Context, pairs []domain.ArbitragePair, logger *slog.Logger) {
	if s.deps.Bus == nil {
		return
	}
	for _, p := range pairs {
		payload, err := json.Marshal(p)
		if err != nil {
			continue
		}
		if err := s.deps.Bus.Publish(ctx, ArbitrageChannel, payload); err != nil {
			logger.WarnContext(ctx, "publish failed", slog.String("error", err.Error()))
			s.recordError("bus")
			return
		}
		if err := s.deps.Bus.StreamAppend(ctx, ArbitrageStream, payload); err != nil {
			logger.WarnContext(ctx, "stream append failed", slog.String("error", err.Error()))
			s.recordError("bus")
			return
		}
	}
}

func (s *ScanService) announce(ctx context.Context, summary domain.ScanSummary, pairs []domain.ArbitragePair, logger *slog.Logger) {
	if s.deps.Alerter != nil {
		if _, err := s.deps.Alerter.Alert(ctx, pairs); err != nil {
			logger.WarnContext(ctx, "alerts failed", slog.String("error", err.Error()))
			s.recordError("notify")
		}
	}
	if s.deps.Notifier != nil {
		msg := fmt.Sprintf("%d markets vs %d markets, %d matched, %d with arbitrage, best edge %s",
			summary.PolymarketCount, summary.KalshiCount, summary.AfterAdjudicate,
			summary.ArbitrageCount, arbitrage.FormatEdge(summary.BestEdge))
		if err := s.deps.Notifier.Notify(ctx, notify.EventScanDone, "Scan complete", msg); err != nil {
			logger.WarnContext(ctx, "scan summary notify failed", slog.String("error", err.Error()))
		}
	}
}

func (s *ScanService) fail(ctx context.Context, started time.Time, err error) error {
	if m := s.deps.Metrics; m != nil {
		m.RecordScanFailure(s.now().Sub(started))
		m.RecordError("scan")
	}
	if s.deps.Notifier != nil && ctx.Err() == nil {
		if nerr := s.deps.Notifier.Notify(ctx, notify.EventScanFailed, "Scan failed", err.Error()); nerr != nil {
			s.logger.WarnContext(ctx, "failure notify failed", slog.String("error", nerr.Error()))
		}
	}
	return err
}

// saveCache persists new embeddings even when the run was cancelled, so the
// next run does not pay for them again.
func (s *ScanService) saveCache(ctx context.Context, logger *slog.Logger) {
	if !s.deps.Cache.Dirty() {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.deps.Cache.Save(saveCtx, s.deps.Persister); err != nil {
		logger.WarnContext(ctx, "embedding cache save failed", slog.String("error", err.Error()))
		s.recordError("cache")
		return
	}
	logger.DebugContext(ctx, "embedding cache saved", slog.Int("entries", s.deps.Cache.Len()))
}

func (s *ScanService) recordError(component string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordError(component)
	}
}
