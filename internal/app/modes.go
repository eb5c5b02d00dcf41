package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/notify"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/pipeline"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/server"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/server/handler"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/service"
)

// ScanMode runs one scan, prints the report and returns.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	res, err := deps.Scan.Run(ctx)
	if err != nil {
		return err
	}
	if res == nil {
		a.logger.InfoContext(ctx, "scan skipped: another instance holds the scan lock")
	}
	return nil
}

// WatchMode repeats the scan every scan_interval until cancelled, archiving
// history on its cron schedule when storage is configured.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	orch := a.newOrchestrator(deps)
	g.Go(func() error { return orch.Run(ctx) })
	a.startRelay(ctx, g, deps)
	return ignoreCanceled(g.Wait())
}

// ServerMode runs the periodic scan alongside the HTTP API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	orch := a.newOrchestrator(deps)
	g.Go(func() error { return orch.Run(ctx) })
	a.startRelay(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, orch)
	return ignoreCanceled(g.Wait())
}

// ArchiveMode moves scan history past the retention window to object storage
// once and returns.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode needs s3 and supabase configured")
	}
	return deps.Archiver.Run(ctx)
}

func (a *App) newOrchestrator(deps *Dependencies) *pipeline.Orchestrator {
	return pipeline.NewOrchestrator(deps.Scan, deps.Archiver, a.cfg.ScanInterval.Duration, a.cfg.Archive.Cron, a.logger)
}

// startRelay forwards bus-published pairs to the alerter when the relay is
// enabled. Relay failures are logged, not fatal.
func (a *App) startRelay(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Notify.Relay || deps.SignalBus == nil || !deps.Notifier.Enabled() {
		return
	}
	relay := notify.NewRelay(deps.SignalBus, service.ArbitrageChannel, deps.Alerter, a.logger)
	g.Go(func() error {
		if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.ErrorContext(ctx, "alert relay stopped", slog.String("error", err.Error()))
		}
		return nil
	})
}

// startHTTPServer adds the HTTP server to g. The server is shut down
// gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, orch *pipeline.Orchestrator) {
	latest := func() (domain.ScanSummary, bool) {
		if res := deps.Scan.Last(); res != nil {
			return res.Summary, true
		}
		return domain.ScanSummary{}, false
	}

	var history handler.HistoryReader
	var runs handler.RunLister
	if deps.Store != nil {
		history, runs = deps.Store, deps.Store
	}
	var stream handler.StreamReader
	if deps.SignalBus != nil {
		stream = deps.SignalBus
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks, a.logger),
		Arb:     handler.NewArbHandler(history, stream, service.ArbitrageStream, a.logger),
		Scans:   handler.NewScanHandler(runs, orch, a.logger),
		Status:  handler.NewStatusHandler(a.cfg.Mode, a.cfg.ScanInterval.Duration, a.cfg.MinEdge, latest),
		Metrics: deps.Metrics.Handler(),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		JWTSecret:   a.cfg.Server.JWTSecret,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
