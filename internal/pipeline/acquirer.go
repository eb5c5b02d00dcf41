// Package pipeline gathers raw listings from both exchanges and schedules
// recurring work (scans, history archival).
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/platform/kalshi"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/platform/polymarket"
)

// Category maps one Polymarket tag to the matching Kalshi category and,
// optionally, a set of Kalshi series tags.
type Category struct {
	Name           string
	PolymarketTag  string
	KalshiCategory string
	KalshiTags     []string
}

// EventLister is the Gamma surface the acquirer needs.
type EventLister interface {
	ListOpenEvents(ctx context.Context, tagLabel string, pageSize int) ([]polymarket.APIEvent, error)
}

// MarketLister is the Kalshi surface the acquirer needs.
type MarketLister interface {
	ListOpenMarkets(ctx context.Context, seriesTicker string, pageSize int) ([]kalshi.KalshiMarket, error)
	GetSeries(ctx context.Context, category, tag string) ([]kalshi.KalshiSeries, error)
}

// AcquirerConfig tunes acquisition.
type AcquirerConfig struct {
	Categories []Category
	// KalshiBySeries walks the series of each category instead of listing
	// every open market in one paginated sweep.
	KalshiBySeries       bool
	PolymarketPageSize   int
	KalshiPageSize       int
	PolymarketConcurrent int
}

// Raw is one acquisition: raw markets keyed by their matching title.
type Raw struct {
	Polymarket map[string]polymarket.APIMarket
	Kalshi     map[string]kalshi.KalshiMarket
	Took       time.Duration
}

// Acquirer fetches open markets from both exchanges concurrently.
type Acquirer struct {
	poly   EventLister
	kalshi MarketLister
	cfg    AcquirerConfig
	logger *slog.Logger
}

// NewAcquirer wires an Acquirer.
func NewAcquirer(poly EventLister, k MarketLister, cfg AcquirerConfig, logger *slog.Logger) *Acquirer {
	if cfg.PolymarketConcurrent <= 0 {
		cfg.PolymarketConcurrent = 6
	}
	return &Acquirer{
		poly:   poly,
		kalshi: k,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "acquirer")),
	}
}

// Acquire returns the open markets of both exchanges. A failing Polymarket
// category is logged and skipped. Kalshi failures abort the acquisition,
// since a partial Kalshi sweep would silently hide pairs.
func (a *Acquirer) Acquire(ctx context.Context) (Raw, error) {
	start := time.Now()
	var out Raw

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.Polymarket = a.acquirePolymarket(gctx)
		return gctx.Err()
	})
	g.Go(func() error {
		m, err := a.acquireKalshi(gctx)
		if err != nil {
			return fmt.Errorf("kalshi: %w", err)
		}
		out.Kalshi = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return Raw{}, err
	}

	out.Took = time.Since(start)
	a.logger.InfoContext(ctx, "acquisition complete",
		slog.Int("polymarket", len(out.Polymarket)),
		slog.Int("kalshi", len(out.Kalshi)),
		slog.Duration("took", out.Took),
	)
	return out, nil
}

func (a *Acquirer) polymarketTags() []string {
	seen := make(map[string]bool)
	var tags []string
	for _, c := range a.cfg.Categories {
		if c.PolymarketTag == "" || seen[strings.ToLower(c.PolymarketTag)] {
			continue
		}
		seen[strings.ToLower(c.PolymarketTag)] = true
		tags = append(tags, c.PolymarketTag)
	}
	if len(tags) == 0 {
		// An empty label lists every open event.
		tags = []string{""}
	}
	return tags
}

func (a *Acquirer) acquirePolymarket(ctx context.Context) map[string]polymarket.APIMarket {
	tags := a.polymarketTags()
	results := make([][]polymarket.APIEvent, len(tags))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.PolymarketConcurrent)
	for i, tag := range tags {
		g.Go(func() error {
			events, err := a.poly.ListOpenEvents(gctx, tag, a.cfg.PolymarketPageSize)
			if err != nil {
				a.logger.WarnContext(gctx, "polymarket category failed",
					slog.String("tag", tag),
					slog.String("error", err.Error()),
				)
			}
			results[i] = events
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]polymarket.APIMarket)
	for i, events := range results {
		before := len(out)
		for _, ev := range events {
			if bool(ev.Closed) {
				continue
			}
			for _, m := range ev.Markets {
				if bool(m.Closed) {
					continue
				}
				if m.Category == "" {
					m.Category = ev.Category
				}
				if m.EndDate == "" {
					m.EndDate = ev.EndDate
				}
				title := strings.TrimSpace(m.Question)
				if title == "" {
					continue
				}
				if _, dup := out[title]; !dup {
					out[title] = m
				}
			}
		}
		a.logger.DebugContext(ctx, "polymarket category acquired",
			slog.String("tag", tags[i]),
			slog.Int("events", len(events)),
			slog.Int("new_markets", len(out)-before),
		)
	}
	return out
}

func (a *Acquirer) acquireKalshi(ctx context.Context) (map[string]kalshi.KalshiMarket, error) {
	var markets []kalshi.KalshiMarket
	if a.cfg.KalshiBySeries {
		tickers, err := a.seriesTickers(ctx)
		if err != nil {
			return nil, err
		}
		for _, t := range tickers {
			ms, err := a.kalshi.ListOpenMarkets(ctx, t, a.cfg.KalshiPageSize)
			if err != nil {
				return nil, fmt.Errorf("series %s: %w", t, err)
			}
			markets = append(markets, ms...)
		}
	} else {
		ms, err := a.kalshi.ListOpenMarkets(ctx, "", a.cfg.KalshiPageSize)
		if err != nil {
			return nil, err
		}
		markets = ms
	}

	out := make(map[string]kalshi.KalshiMarket, len(markets))
	for _, m := range markets {
		title := m.FullTitle()
		if title == "" {
			continue
		}
		if _, dup := out[title]; !dup {
			out[title] = m
		}
	}
	return out, nil
}

// seriesTickers lists the distinct series of every configured category, in
// first-seen order.
func (a *Acquirer) seriesTickers(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var tickers []string
	add := func(series []kalshi.KalshiSeries) {
		for _, s := range series {
			if s.Ticker != "" && !seen[s.Ticker] {
				seen[s.Ticker] = true
				tickers = append(tickers, s.Ticker)
			}
		}
	}
	for _, c := range a.cfg.Categories {
		if c.KalshiCategory == "" {
			continue
		}
		tags := c.KalshiTags
		if len(tags) == 0 {
			tags = []string{""}
		}
		for _, tag := range tags {
			series, err := a.kalshi.GetSeries(ctx, c.KalshiCategory, tag)
			if err != nil {
				return nil, fmt.Errorf("series for %s/%s: %w", c.KalshiCategory, tag, err)
			}
			add(series)
		}
	}
	return tickers, nil
}
