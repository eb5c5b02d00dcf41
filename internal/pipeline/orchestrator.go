package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Scanner runs one full scan.
type Scanner interface {
	Scan(ctx context.Context) error
}

// Orchestrator repeats scans on an interval and, when an archiver is set,
// runs history archival on its cron schedule alongside.
type Orchestrator struct {
	scanner      Scanner
	archiver     *Archiver
	scanInterval time.Duration
	archiveCron  string
	trigger      chan struct{}
	logger       *slog.Logger
}

// NewOrchestrator creates an Orchestrator. archiver may be nil.
func NewOrchestrator(scanner Scanner, archiver *Archiver, scanInterval time.Duration, archiveCron string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		scanner:      scanner,
		archiver:     archiver,
		scanInterval: scanInterval,
		archiveCron:  archiveCron,
		trigger:      make(chan struct{}, 1),
		logger:       logger.With(slog.String("component", "orchestrator")),
	}
}

// Trigger requests an immediate scan. It reports false when a request is
// already pending.
func (o *Orchestrator) Trigger() bool {
	select {
	case o.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run blocks until ctx is cancelled. A failed scan is logged and retried on
// the next tick; only a bad archive schedule stops the orchestrator early.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "orchestrator starting",
		slog.Duration("scan_interval", o.scanInterval),
		slog.Bool("archive", o.archiver != nil),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o.scanLoop(ctx)
		return nil
	})
	if o.archiver != nil && o.archiveCron != "" {
		g.Go(func() error {
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("orchestrator stopped")
	return nil
}

func (o *Orchestrator) scanLoop(ctx context.Context) {
	o.scanOnce(ctx)

	ticker := time.NewTicker(o.scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.scanOnce(ctx)
		case <-o.trigger:
			o.logger.InfoContext(ctx, "manual scan triggered")
			o.scanOnce(ctx)
			ticker.Reset(o.scanInterval)
		}
	}
}

func (o *Orchestrator) scanOnce(ctx context.Context) {
	if err := o.scanner.Scan(ctx); err != nil && ctx.Err() == nil {
		o.logger.ErrorContext(ctx, "scan failed", slog.String("error", err.Error()))
	}
}
