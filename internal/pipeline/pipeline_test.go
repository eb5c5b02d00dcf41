package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/platform/kalshi"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/platform/polymarket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGamma struct {
	mu     sync.Mutex
	byTag  map[string][]polymarket.APIEvent
	failOn map[string]bool
	asked  []string
}

func (f *fakeGamma) ListOpenEvents(_ context.Context, tag string, _ int) ([]polymarket.APIEvent, error) {
	f.mu.Lock()
	f.asked = append(f.asked, tag)
	f.mu.Unlock()
	if f.failOn[tag] {
		return nil, errors.New("gamma down")
	}
	return f.byTag[tag], nil
}

type fakeKalshi struct {
	all      []kalshi.KalshiMarket
	bySeries map[string][]kalshi.KalshiMarket
	series   map[string][]kalshi.KalshiSeries
	err      error
}

func (f *fakeKalshi) ListOpenMarkets(_ context.Context, series string, _ int) ([]kalshi.KalshiMarket, error) {
	if f.err != nil {
		return nil, f.err
	}
	if series == "" {
		return f.all, nil
	}
	return f.bySeries[series], nil
}

func (f *fakeKalshi) GetSeries(_ context.Context, category, tag string) ([]kalshi.KalshiSeries, error) {
	return f.series[category+"/"+tag], nil
}

func km(ticker, title, sub string) kalshi.KalshiMarket {
	return kalshi.KalshiMarket{Ticker: ticker, Title: title, YesSubTitle: sub}
}

func TestAcquirer_MergesAndDedupes(t *testing.T) {
	gamma := &fakeGamma{
		byTag: map[string][]polymarket.APIEvent{
			"Crypto": {{
				Category: "Crypto",
				EndDate:  "2025-01-01T00:00:00Z",
				Markets: []polymarket.APIMarket{
					{Question: "Will BTC hit $100k?"},
					{Question: "Closed one", Closed: true},
				},
			}},
			"Bitcoin": {{Markets: []polymarket.APIMarket{{Question: "Will BTC hit $100k?"}, {Question: "Other"}}}},
		},
		failOn: map[string]bool{"Politics": true},
	}
	k := &fakeKalshi{all: []kalshi.KalshiMarket{
		km("A-1", "BTC above", "100k"),
		km("A-2", "BTC above", "100k"),
		km("B-1", "ETH above", "5k"),
	}}
	a := NewAcquirer(gamma, k, AcquirerConfig{Categories: []Category{
		{Name: "crypto", PolymarketTag: "Crypto"},
		{Name: "btc", PolymarketTag: "Bitcoin"},
		{Name: "dup", PolymarketTag: "crypto"},
		{Name: "politics", PolymarketTag: "Politics"},
	}}, testLogger())

	raw, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(raw.Polymarket) != 2 {
		t.Fatalf("polymarket=%d want 2: %v", len(raw.Polymarket), raw.Polymarket)
	}
	m := raw.Polymarket["Will BTC hit $100k?"]
	if m.Category != "Crypto" || m.EndDate != "2025-01-01T00:00:00Z" {
		t.Fatalf("event fields not inherited: %+v", m)
	}
	if len(raw.Kalshi) != 2 {
		t.Fatalf("kalshi=%d want 2", len(raw.Kalshi))
	}
	if len(gamma.asked) != 3 {
		t.Fatalf("tags asked=%v, duplicate tag should be skipped", gamma.asked)
	}
}

func TestAcquirer_KalshiFailureAborts(t *testing.T) {
	a := NewAcquirer(&fakeGamma{}, &fakeKalshi{err: kalshiErr}, AcquirerConfig{}, testLogger())
	if _, err := a.Acquire(context.Background()); !errors.Is(err, kalshiErr) {
		t.Fatalf("err=%v want kalshi error", err)
	}
}

var kalshiErr = errors.New("kalshi 500")

func TestAcquirer_KalshiBySeries(t *testing.T) {
	k := &fakeKalshi{
		series: map[string][]kalshi.KalshiSeries{
			"Crypto/BTC": {{Ticker: "KXBTC"}},
			"Crypto/ETH": {{Ticker: "KXETH"}, {Ticker: "KXBTC"}},
		},
		bySeries: map[string][]kalshi.KalshiMarket{
			"KXBTC": {km("KXBTC-1", "BTC", "100k")},
			"KXETH": {km("KXETH-1", "ETH", "5k")},
		},
	}
	a := NewAcquirer(&fakeGamma{}, k, AcquirerConfig{
		KalshiBySeries: true,
		Categories:     []Category{{KalshiCategory: "Crypto", KalshiTags: []string{"BTC", "ETH"}}},
	}, testLogger())

	raw, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(raw.Kalshi) != 2 {
		t.Fatalf("kalshi=%d want 2", len(raw.Kalshi))
	}
}

func TestParseCron(t *testing.T) {
	s, err := parseCron("30 3 * * 1-5")
	if err != nil {
		t.Fatalf("parseCron: %v", err)
	}
	// Friday 2025-01-31 10:00 UTC -> Monday 03:30
	next, ok := s.next(time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC))
	if !ok {
		t.Fatalf("no next time")
	}
	if want := time.Date(2025, 2, 3, 3, 30, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("next=%v want %v", next, want)
	}

	s, err = parseCron("*/15 * * * *")
	if err != nil {
		t.Fatalf("parseCron step: %v", err)
	}
	next, _ = s.next(time.Date(2025, 1, 1, 0, 16, 0, 0, time.UTC))
	if next.Minute() != 30 {
		t.Fatalf("step next=%v", next)
	}

	for _, bad := range []string{"", "* * * *", "61 * * * *", "*/0 * * * *", "a * * * *", "5-2 * * * *"} {
		if _, err := parseCron(bad); err == nil {
			t.Fatalf("parseCron(%q) should fail", bad)
		}
	}
}

type fakeHistoryArchiver struct {
	cutoff time.Time
}

func (f *fakeHistoryArchiver) ArchiveHistory(_ context.Context, before time.Time) (string, int, error) {
	f.cutoff = before
	return "archive/arbitrage/x.jsonl", 3, nil
}

func TestArchiver_RunUsesRetention(t *testing.T) {
	h := &fakeHistoryArchiver{}
	a := NewArchiver(h, 30, testLogger())
	a.now = func() time.Time { return time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC) }
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC); !h.cutoff.Equal(want) {
		t.Fatalf("cutoff=%v want %v", h.cutoff, want)
	}
}

type countingScanner struct {
	n      atomic.Int32
	cancel context.CancelFunc
	stopAt int32
}

func (c *countingScanner) Scan(context.Context) error {
	if c.n.Add(1) >= c.stopAt {
		c.cancel()
	}
	return errors.New("scan failed")
}

func TestOrchestrator_KeepsScanningAfterFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &countingScanner{cancel: cancel, stopAt: 3}

	o := NewOrchestrator(s, nil, time.Millisecond, "", testLogger())
	if err := o.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.n.Load() < 3 {
		t.Fatalf("scans=%d want >= 3", s.n.Load())
	}
}

func TestOrchestrator_TriggerRunsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &countingScanner{cancel: cancel, stopAt: 2}

	o := NewOrchestrator(s, nil, time.Hour, "", testLogger())
	if !o.Trigger() {
		t.Fatalf("first trigger should be accepted")
	}
	if o.Trigger() {
		t.Fatalf("second trigger should report a pending request")
	}

	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("triggered scan did not run")
	}
}
