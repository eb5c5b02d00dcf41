package kalshi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastClient(url string) *Client {
	c := NewClient(url, "", testLogger())
	c.SetRateLimit(1000, 10)
	c.SetRetryPolicy(RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Factor:     1,
		MinDelay:   time.Millisecond,
	})
	return c
}

func TestListOpenMarkets_PaginatesAndDedupes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("status"); got != "open" {
			http.Error(w, "bad status", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("cursor") {
		case "":
			_, _ = w.Write([]byte(`{"cursor":"p2","markets":[{"ticker":"A"},{"ticker":"B"}]}`))
		case "p2":
			_, _ = w.Write([]byte(`{"cursor":"","markets":[{"ticker":"B"},{"ticker":"C"}]}`))
		default:
			http.Error(w, "bad cursor", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	markets, err := fastClient(srv.URL).ListOpenMarkets(ctx, "", 2)
	if err != nil {
		t.Fatalf("ListOpenMarkets: %v", err)
	}
	if len(markets) != 3 {
		t.Fatalf("got %d markets want 3", len(markets))
	}
	for i, want := range []string{"A", "B", "C"} {
		if markets[i].Ticker != want {
			t.Fatalf("markets[%d].Ticker=%q want %q", i, markets[i].Ticker, want)
		}
	}
}

func TestGetMarkets_RetriesOnTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"code":"too_many_requests","message":"slow down"}`))
			return
		}
		_, _ = w.Write([]byte(`{"markets":[{"ticker":"X"}]}`))
	}))
	defer srv.Close()

	page, err := fastClient(srv.URL).GetMarkets(context.Background(), MarketsQuery{Limit: 10})
	if err != nil {
		t.Fatalf("GetMarkets: %v", err)
	}
	if len(page.Markets) != 1 || page.Markets[0].Ticker != "X" {
		t.Fatalf("unexpected page: %#v", page)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls=%d want 3", got)
	}
}

func TestGetMarkets_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).GetMarkets(context.Background(), MarketsQuery{})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err=%v want ErrRateLimited", err)
	}
	if got := calls.Load(); got != 4 {
		t.Fatalf("calls=%d want 4", got)
	}
}

func TestGetMarkets_DoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).GetMarkets(context.Background(), MarketsQuery{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls=%d want 1", got)
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{BaseDelay: 800 * time.Millisecond, Factor: 2, MinDelay: 500 * time.Millisecond}
	if got := p.delay(0, ""); got != 800*time.Millisecond {
		t.Fatalf("delay(0)=%v", got)
	}
	if got := p.delay(2, ""); got != 3200*time.Millisecond {
		t.Fatalf("delay(2)=%v", got)
	}
	if got := p.delay(0, "3"); got != 3*time.Second {
		t.Fatalf("retry-after delay=%v", got)
	}
	if got := p.delay(0, "0.1"); got != 500*time.Millisecond {
		t.Fatalf("retry-after below floor=%v", got)
	}
}

func TestToMarketRecord(t *testing.T) {
	var m KalshiMarket
	raw := `{
		"ticker": "KXBTCD-25DEC3117-T99999.99",
		"event_ticker": "KXBTCD-25DEC3117",
		"title": "Bitcoin price on Dec 31, 2025?",
		"yes_sub_title": "$100,000 or above",
		"category": "Crypto",
		"market_type": "binary",
		"yes_ask": 58,
		"no_ask": 40,
		"floor_strike": 99999.99,
		"close_time": "2025-12-31T22:00:00Z"
	}`
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	rec, err := m.ToMarketRecord()
	if err != nil {
		t.Fatalf("ToMarketRecord: %v", err)
	}
	if rec.Title != "Bitcoin price on Dec 31, 2025? $100,000 or above" {
		t.Fatalf("title=%q", rec.Title)
	}
	if rec.YesPrice != 58 || rec.NoPrice != 40 {
		t.Fatalf("prices=%v/%v want cents kept as-is", rec.YesPrice, rec.NoPrice)
	}
	if rec.Link != "https://kalshi.com/markets/kxbtcd" {
		t.Fatalf("link=%q", rec.Link)
	}
	if rec.StrikeLower == nil || *rec.StrikeLower != 99999.99 || rec.StrikeUpper != nil {
		t.Fatalf("unexpected strikes: %v %v", rec.StrikeLower, rec.StrikeUpper)
	}
	if rec.Exchange != domain.ExchangeKalshi {
		t.Fatalf("exchange=%q", rec.Exchange)
	}
}

func TestToMarketRecord_MissingAsk(t *testing.T) {
	yes := 10.0
	m := KalshiMarket{Ticker: "T", Title: "Some market", YesAsk: &yes}
	if _, err := m.ToMarketRecord(); !errors.Is(err, domain.ErrMalformedRecord) {
		t.Fatalf("err=%v want ErrMalformedRecord", err)
	}

	m = KalshiMarket{Ticker: "T", YesAsk: &yes, NoAsk: &yes}
	if _, err := m.ToMarketRecord(); !errors.Is(err, domain.ErrMalformedRecord) {
		t.Fatalf("err=%v want ErrMalformedRecord for empty title", err)
	}
}
