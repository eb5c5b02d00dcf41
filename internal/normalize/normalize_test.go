package normalize

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/platform/kalshi"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/platform/polymarket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPolymarket_SkipsMalformed(t *testing.T) {
	raw := map[string]polymarket.APIMarket{
		"Will BTC reach $120k?": {
			Question:      "Will BTC reach $120k?",
			Slug:          "btc-120k",
			EndDate:       "2025-12-31T12:00:00Z",
			OutcomePrices: json.RawMessage(`"[\"0.40\",\"0.60\"]"`),
		},
		"Broken": {Question: "Broken"},
	}

	res := Polymarket(raw, testLogger())
	if res.Skipped != 1 {
		t.Fatalf("skipped=%d want 1", res.Skipped)
	}
	rec, ok := res.Records["Will BTC reach $120k?"]
	if !ok {
		t.Fatalf("missing record, got %v", res.Records)
	}
	if rec.StrikeUpper == nil || *rec.StrikeUpper != 120000 {
		t.Fatalf("upper=%v want 120000", rec.StrikeUpper)
	}
}

func TestKalshi_KeysByFullTitle(t *testing.T) {
	yes, no := 58.0, 40.0
	raw := map[string]kalshi.KalshiMarket{
		"Bitcoin above 100k?": {
			Ticker:      "KXBTC-1",
			EventTicker: "KXBTC-25DEC31",
			Title:       "Bitcoin price on Dec 31?",
			YesSubTitle: "Above $100,000",
			YesAsk:      &yes,
			NoAsk:       &no,
		},
		"no quotes": {Ticker: "KXBTC-2", Title: "Quote-less"},
	}

	res := Kalshi(raw, testLogger())
	if res.Skipped != 1 || len(res.Records) != 1 {
		t.Fatalf("records=%d skipped=%d", len(res.Records), res.Skipped)
	}
	rec, ok := res.Records["Bitcoin price on Dec 31? Above $100,000"]
	if !ok {
		t.Fatalf("record not keyed by full title: %v", res.Records)
	}
	if rec.YesPrice != 58 || rec.NoPrice != 40 {
		t.Fatalf("prices scaled too early: %v/%v", rec.YesPrice, rec.NoPrice)
	}
}

func TestRecords_DecodesRawJSON(t *testing.T) {
	raw := map[string]json.RawMessage{
		"ok":  json.RawMessage(`{"ticker":"T1","title":"Fed cuts in March","yes_ask":12,"no_ask":90,"close_time":"2026-03-18T18:00:00Z"}`),
		"bad": json.RawMessage(`{"ticker":`),
	}
	res, err := Records(domain.ExchangeKalshi, raw, testLogger())
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(res.Records) != 1 || res.Skipped != 1 {
		t.Fatalf("records=%d skipped=%d", len(res.Records), res.Skipped)
	}
	if _, err := Records("unknown", raw, testLogger()); err == nil {
		t.Fatalf("expected error for unknown exchange")
	}
}
