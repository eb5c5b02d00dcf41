package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/arbitrage"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

// Alerter turns arbitrage pairs into notifications. A pair is announced once
// per cooldown unless its edge grows.
type Alerter struct {
	notifier *Notifier
	minEdge  float64
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	sent map[string]sentAlert
}

type sentAlert struct {
	at   time.Time
	edge float64
}

// NewAlerter creates an Alerter announcing pairs with edge >= minEdge.
func NewAlerter(n *Notifier, minEdge float64, cooldown time.Duration, logger *slog.Logger) *Alerter {
	return &Alerter{
		notifier: n,
		minEdge:  minEdge,
		cooldown: cooldown,
		logger:   logger.With(slog.String("component", "alerter")),
		now:      time.Now,
		sent:     make(map[string]sentAlert),
	}
}

// Alert announces each qualifying pair and returns how many were sent.
func (a *Alerter) Alert(ctx context.Context, pairs []domain.ArbitragePair) (int, error) {
	if !a.notifier.Enabled() {
		return 0, nil
	}
	var errs []string
	sent := 0
	for _, p := range arbitrage.FilterMinEdge(pairs, a.minEdge) {
		if !p.HasArbitrage() || !a.due(p) {
			continue
		}
		if err := a.notifier.Notify(ctx, EventArbitrage, AlertTitle(p), FormatPair(p)); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		a.markSent(p)
		sent++
	}
	if len(errs) > 0 {
		return sent, fmt.Errorf("notify: %d alert(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return sent, nil
}

func pairKey(p domain.ArbitragePair) string {
	return p.ATitle + "\x00" + p.BTitle + "\x00" + string(p.Direction)
}

func (a *Alerter) due(p domain.ArbitragePair) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev, ok := a.sent[pairKey(p)]
	if !ok {
		return true
	}
	return p.Edge > prev.edge || a.now().Sub(prev.at) >= a.cooldown
}

func (a *Alerter) markSent(p domain.ArbitragePair) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent[pairKey(p)] = sentAlert{at: a.now(), edge: p.Edge}
}

// AlertTitle is the notification headline for p.
func AlertTitle(p domain.ArbitragePair) string {
	return "Arbitrage " + arbitrage.FormatEdge(p.Edge)
}

// FormatPair renders both legs, the action and the links.
func FormatPair(p domain.ArbitragePair) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Polymarket: %s\n  yes %.4f / no %.4f\n  %s\n", p.ATitle, p.AYes, p.ANo, p.ALink)
	fmt.Fprintf(&b, "Kalshi: %s\n  yes %.4f / no %.4f\n  %s\n", p.BTitle, p.BYes, p.BNo, p.BLink)
	b.WriteString(arbitrage.Action(p.Direction))
	return b.String()
}

// Relay forwards arbitrage pairs published on a signal bus channel to an
// Alerter, so a single replica can own notifications while others scan.
type Relay struct {
	bus     domain.SignalBus
	channel string
	alerter *Alerter
	logger  *slog.Logger
}

// NewRelay creates a Relay listening on channel.
func NewRelay(bus domain.SignalBus, channel string, alerter *Alerter, logger *slog.Logger) *Relay {
	return &Relay{
		bus:     bus,
		channel: channel,
		alerter: alerter,
		logger:  logger.With(slog.String("component", "alert_relay")),
	}
}

// Run blocks until ctx is cancelled or the subscription closes.
func (r *Relay) Run(ctx context.Context) error {
	ch, err := r.bus.Subscribe(ctx, r.channel)
	if err != nil {
		return fmt.Errorf("alert relay: subscribe %s: %w", r.channel, err)
	}
	r.logger.InfoContext(ctx, "alert relay started", slog.String("channel", r.channel))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			var p domain.ArbitragePair
			if err := json.Unmarshal(data, &p); err != nil {
				r.logger.WarnContext(ctx, "alert relay: bad payload",
					slog.String("error", err.Error()),
					slog.Int("bytes", len(data)),
				)
				continue
			}
			if _, err := r.alerter.Alert(ctx, []domain.ArbitragePair{p}); err != nil {
				r.logger.WarnContext(ctx, "alert relay: deliver failed", slog.String("error", err.Error()))
			}
		}
	}
}
