package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// HistoryArchiver uploads arbitrage history older than a cutoff.
type HistoryArchiver interface {
	ArchiveHistory(ctx context.Context, before time.Time) (path string, count int, err error)
}

// Archiver copies scan history past the retention window to cold storage on
// a cron schedule.
type Archiver struct {
	blob          HistoryArchiver
	retentionDays int
	logger        *slog.Logger
	now           func() time.Time
}

// NewArchiver creates an Archiver keeping retentionDays of history hot.
func NewArchiver(blob HistoryArchiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blob:          blob,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
		now:           time.Now,
	}
}

// Run archives everything detected before now minus the retention window.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := a.now().UTC().AddDate(0, 0, -a.retentionDays)
	path, n, err := a.blob.ArchiveHistory(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive history before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	a.logger.InfoContext(ctx, "archive run complete",
		slog.Time("cutoff", cutoff),
		slog.String("path", path),
		slog.Int("records", n),
	)
	return nil
}

// RunCron runs the archiver on a five-field cron schedule ("minute hour
// day-of-month month day-of-week") until ctx is cancelled.
func (a *Archiver) RunCron(ctx context.Context, expr string) error {
	sched, err := parseCron(expr)
	if err != nil {
		return fmt.Errorf("parse cron %q: %w", expr, err)
	}
	for {
		next, ok := sched.next(a.now().UTC())
		if !ok {
			return fmt.Errorf("cron %q never fires", expr)
		}
		a.logger.DebugContext(ctx, "archiver waiting", slog.Time("next_run", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField is either a wildcard or a set of allowed values.
type cronField struct {
	any    bool
	values map[int]bool
}

func (f cronField) matches(v int) bool {
	return f.any || f.values[v]
}

type schedule struct {
	minute, hour, dom, month, dow cronField
}

func (s schedule) matches(t time.Time) bool {
	return s.minute.matches(t.Minute()) &&
		s.hour.matches(t.Hour()) &&
		s.dom.matches(t.Day()) &&
		s.month.matches(int(t.Month())) &&
		s.dow.matches(int(t.Weekday()))
}

// next returns the first matching minute after t, searching one year ahead.
func (s schedule) next(t time.Time) (time.Time, bool) {
	limit := t.AddDate(1, 0, 1)
	for c := t.Truncate(time.Minute).Add(time.Minute); c.Before(limit); c = c.Add(time.Minute) {
		if s.matches(c) {
			return c, true
		}
	}
	return time.Time{}, false
}

var cronBounds = [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}

func parseCron(expr string) (schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return schedule{}, fmt.Errorf("want 5 fields, got %d", len(fields))
	}
	var parsed [5]cronField
	for i, f := range fields {
		cf, err := parseCronField(f, cronBounds[i][0], cronBounds[i][1])
		if err != nil {
			return schedule{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		parsed[i] = cf
	}
	return schedule{parsed[0], parsed[1], parsed[2], parsed[3], parsed[4]}, nil
}

// parseCronField accepts "*", "*/n", "a", "a-b" and comma lists of those.
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{any: true}, nil
	}
	values := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		start, end, step := lo, hi, 1
		rangePart, stepPart, hasStep := strings.Cut(part, "/")
		if hasStep {
			n, err := strconv.Atoi(stepPart)
			if err != nil || n <= 0 {
				return cronField{}, fmt.Errorf("bad step %q", part)
			}
			step = n
		}
		switch {
		case rangePart == "*":
		case strings.Contains(rangePart, "-"):
			a, b, _ := strings.Cut(rangePart, "-")
			var err1, err2 error
			start, err1 = strconv.Atoi(a)
			end, err2 = strconv.Atoi(b)
			if err1 != nil || err2 != nil {
				return cronField{}, fmt.Errorf("bad range %q", part)
			}
		default:
			v, err := strconv.Atoi(rangePart)
			if err != nil {
				return cronField{}, fmt.Errorf("bad value %q", part)
			}
			start, end = v, v
		}
		if start < lo || end > hi || start > end {
			return cronField{}, fmt.Errorf("%q outside %d-%d", part, lo, hi)
		}
		for v := start; v <= end; v += step {
			values[v] = true
		}
	}
	return cronField{values: values}, nil
}
