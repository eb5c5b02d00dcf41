package arbitrage

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

func pair(aYes, aNo, bYesCents, bNoCents float64) domain.CandidatePair {
	return domain.CandidatePair{
		A: domain.MarketRecord{Title: "poly", YesPrice: aYes, NoPrice: aNo, Exchange: domain.ExchangePolymarket, Link: "https://polymarket.com/event/x"},
		B: domain.MarketRecord{Title: "kalshi", YesPrice: bYesCents, NoPrice: bNoCents, Exchange: domain.ExchangeKalshi, Link: "https://kalshi.com/markets/x"},
	}
}

func TestNormalizePrice(t *testing.T) {
	if got := NormalizePrice(domain.ExchangeKalshi, 58); math.Abs(got-0.58) > 1e-12 {
		t.Fatalf("kalshi 58 -> %v", got)
	}
	if got := NormalizePrice(domain.ExchangePolymarket, 0.42); got != 0.42 {
		t.Fatalf("polymarket 0.42 -> %v", got)
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		pair     domain.CandidatePair
		wantDir  domain.Direction
		wantEdge float64
	}{
		// s1 = 0.40 + 0.40 = 0.80, s2 = 0.58 + 0.55 = 1.13
		{"buy A yes", pair(0.40, 0.55, 58, 40), domain.DirectionBuyAYes, 0.20},
		// s1 = 0.70 + 0.45 = 1.15, s2 = 0.30 + 0.35 = 0.65
		{"buy B yes", pair(0.70, 0.35, 30, 45), domain.DirectionBuyBYes, 0.35},
		// s1 = 0.50 + 0.52 = 1.02, s2 = 0.49 + 0.52 = 1.01
		{"no arbitrage", pair(0.50, 0.52, 49, 52), domain.DirectionNone, 0},
		// s1 = 0.40 + 0.50 = 0.90, s2 = 0.45 + 0.50 = 0.95
		{"both qualify, cheaper wins", pair(0.40, 0.50, 45, 50), domain.DirectionBuyAYes, 0.10},
		// s1 = s2 = 0.90
		{"tie favors A yes", pair(0.45, 0.45, 45, 45), domain.DirectionBuyAYes, 0.10},
		// s1 = 0.50 + 0.50 = 1.00 exactly
		{"sum of one is not arbitrage", pair(0.50, 0.50, 50, 50), domain.DirectionNone, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.pair)
			if got.Direction != tt.wantDir {
				t.Fatalf("direction=%s want %s", got.Direction, tt.wantDir)
			}
			if math.Abs(got.Edge-tt.wantEdge) > 1e-9 {
				t.Fatalf("edge=%v want %v", got.Edge, tt.wantEdge)
			}
			if got.Direction == domain.DirectionNone && got.Edge != 0 {
				t.Fatalf("edge must be zero without a direction")
			}
		})
	}
}

func TestEvaluate_ScalesKalshiAndKeepsLinks(t *testing.T) {
	got := Evaluate(pair(0.40, 0.55, 58, 40))
	if math.Abs(got.BYes-0.58) > 1e-12 || math.Abs(got.BNo-0.40) > 1e-12 {
		t.Fatalf("kalshi prices not scaled: %v %v", got.BYes, got.BNo)
	}
	if got.AYes != 0.40 || got.ANo != 0.55 {
		t.Fatalf("polymarket prices changed: %v %v", got.AYes, got.ANo)
	}
	if got.ALink == "" || got.BLink == "" || got.ATitle != "poly" || got.BTitle != "kalshi" {
		t.Fatalf("identity fields lost: %+v", got)
	}
}

func TestRank_SortsAndDropsNone(t *testing.T) {
	pairs := []domain.CandidatePair{
		pair(0.45, 0.50, 50, 50), // edge 0.05
		pair(0.50, 0.52, 49, 52), // none
		pair(0.40, 0.55, 58, 40), // edge 0.20
		pair(0.40, 0.50, 45, 50), // edge 0.10
	}
	got := Rank(pairs)
	if len(got) != 3 {
		t.Fatalf("len=%d want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Edge > got[i-1].Edge {
			t.Fatalf("not sorted by edge desc: %v", got)
		}
	}
	if math.Abs(got[0].Edge-0.20) > 1e-9 {
		t.Fatalf("best edge=%v want 0.20", got[0].Edge)
	}
}

func TestFilterMinEdge(t *testing.T) {
	in := []domain.ArbitragePair{{Edge: 0.2}, {Edge: 0.05}, {Edge: 0.01}}
	if got := FilterMinEdge(in, 0.05); len(got) != 2 {
		t.Fatalf("len=%d want 2", len(got))
	}
	if got := FilterMinEdge(in, 0); len(got) != 3 {
		t.Fatalf("zero min edge should keep everything")
	}
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	pairs := []domain.ArbitragePair{
		Evaluate(pair(0.40, 0.55, 58, 40)),
		Evaluate(pair(0.50, 0.52, 49, 52)),
	}
	if err := WriteReport(&buf, pairs); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Buy yes on Polymarket, No on Kalshi", "Edge = 20.0000%", "YES:   0.5800", "https://kalshi.com/markets/x"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "POLYMARKET") != 1 {
		t.Fatalf("pair without arbitrage should be skipped:\n%s", out)
	}
}
