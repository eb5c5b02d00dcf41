// Package matching pairs Polymarket markets with Kalshi markets that resolve
// on the same event. Candidates pass through four stages: close time, strike
// reconciliation, title similarity and adjudication.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/oracle"
)

// Stats counts the candidates that survive each stage of one Match call.
type Stats struct {
	Polymarket      int
	Kalshi          int
	AfterCloseTime  int
	AfterStrike     int
	AfterSimilarity int
	Accepted        int

	AutoAccepted       int
	Adjudicated        int
	EmbedFailures      int
	AdjudicateFailures int
}

// Funnel runs the matching stages. It is safe for concurrent use when its
// embedder and judge are.
type Funnel struct {
	embedder oracle.Embedder
	judge    oracle.Adjudicator
	cfg      Config
	logger   *slog.Logger
}

// NewFunnel wires a Funnel. A nil judge behaves as an oracle that always
// fails, so cfg.Failure.AdjudicateFailure decides borderline pairs.
func NewFunnel(embedder oracle.Embedder, judge oracle.Adjudicator, cfg Config, logger *slog.Logger) *Funnel {
	return &Funnel{
		embedder: embedder,
		judge:    judge,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "funnel")),
	}
}

// Config returns the funnel configuration.
func (f *Funnel) Config() Config { return f.cfg }

// Match returns the accepted cross-exchange pairs ordered by (A title,
// B title). Oracle failures follow the configured policies; only context
// cancellation is returned as an error.
func (f *Funnel) Match(ctx context.Context, a, b map[string]domain.MarketRecord) ([]domain.CandidatePair, Stats, error) {
	stats := Stats{Polymarket: len(a), Kalshi: len(b)}

	pairs := MatchByCloseTime(a, b, f.cfg.CloseWindow)
	stats.AfterCloseTime = len(pairs)

	pairs = ReconcileStrikes(pairs, f.cfg.StrikeTolerancePct, f.cfg.AllowCrossBounds)
	stats.AfterStrike = len(pairs)

	if len(pairs) == 0 {
		f.logStats(ctx, stats)
		return nil, stats, nil
	}

	pairs, err := f.scoreSimilarity(ctx, pairs, &stats)
	if err != nil {
		return nil, stats, err
	}
	stats.AfterSimilarity = len(pairs)

	pairs, err = f.adjudicate(ctx, pairs, &stats)
	if err != nil {
		return nil, stats, err
	}
	stats.Accepted = len(pairs)

	f.logStats(ctx, stats)
	return pairs, stats, nil
}

func (f *Funnel) scoreSimilarity(ctx context.Context, pairs []domain.CandidatePair, stats *Stats) ([]domain.CandidatePair, error) {
	index := make(map[string]int)
	var titles []string
	for _, p := range pairs {
		for _, t := range []string{p.A.Title, p.B.Title} {
			if _, ok := index[t]; !ok {
				index[t] = len(titles)
				titles = append(titles, t)
			}
		}
	}

	vecs, err := f.embedder.EmbedBatch(ctx, titles)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		f.logger.WarnContext(ctx, "embedding incomplete", slog.String("error", err.Error()))
	}
	if len(vecs) != len(titles) {
		// A misbehaving embedder is treated as a total failure.
		vecs = make([][]float32, len(titles))
	}

	out := make([]domain.CandidatePair, 0, len(pairs))
	for _, p := range pairs {
		va, vb := vecs[index[p.A.Title]], vecs[index[p.B.Title]]
		if va == nil || vb == nil {
			stats.EmbedFailures++
			if f.cfg.Failure.EmbedFailure == PolicyAccept {
				out = append(out, p)
			}
			continue
		}
		score := oracle.Cosine(va, vb)
		if score < f.cfg.SimilarityThreshold {
			continue
		}
		p.Score = &score
		out = append(out, p)
	}
	return out, nil
}

func (f *Funnel) adjudicate(ctx context.Context, pairs []domain.CandidatePair, stats *Stats) ([]domain.CandidatePair, error) {
	out := make([]domain.CandidatePair, 0, len(pairs))
	for _, p := range pairs {
		if p.Score != nil && *p.Score >= f.cfg.AutoAcceptScore {
			stats.AutoAccepted++
			out = append(out, p)
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		same, err := f.ask(ctx, p)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			stats.AdjudicateFailures++
			f.logger.WarnContext(ctx, "adjudication failed",
				slog.String("a", p.A.Title),
				slog.String("b", p.B.Title),
				slog.String("error", err.Error()),
			)
			if f.cfg.Failure.AdjudicateFailure == PolicyAccept {
				out = append(out, p)
			}
			continue
		}
		stats.Adjudicated++
		if same {
			out = append(out, p)
		}
	}
	return out, nil
}

var errNoJudge = fmt.Errorf("matching: no adjudicator: %w", domain.ErrOracleUnavailable)

func (f *Funnel) ask(ctx context.Context, p domain.CandidatePair) (bool, error) {
	if f.judge == nil {
		return false, errNoJudge
	}
	same, err := f.judge.Adjudicate(ctx, p.A.Title, p.B.Title)
	if err != nil && !errors.Is(err, domain.ErrOracleUnavailable) {
		err = fmt.Errorf("%w: %w", domain.ErrOracleUnavailable, err)
	}
	return same, err
}

func (f *Funnel) logStats(ctx context.Context, s Stats) {
	f.logger.InfoContext(ctx, "matching funnel complete",
		slog.Int("polymarket", s.Polymarket),
		slog.Int("kalshi", s.Kalshi),
		slog.Int("after_close_time", s.AfterCloseTime),
		slog.Int("after_strike", s.AfterStrike),
		slog.Int("after_similarity", s.AfterSimilarity),
		slog.Int("accepted", s.Accepted),
		slog.Int("auto_accepted", s.AutoAccepted),
		slog.Int("embed_failures", s.EmbedFailures),
		slog.Int("adjudicate_failures", s.AdjudicateFailures),
	)
}
