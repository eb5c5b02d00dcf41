// Package arbitrage prices matched Polymarket/Kalshi pairs and reports the
// ones whose combined yes/no quotes cost less than the one-unit payout.
package arbitrage

import (
	"sort"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

// NormalizePrice converts an exchange-native quote to the [0, 1] scale.
// Kalshi quotes cents; every other exchange already quotes probabilities.
func NormalizePrice(ex domain.Exchange, p float64) float64 {
	if ex == domain.ExchangeKalshi {
		return p / 100
	}
	return p
}

// Evaluate prices one matched pair. Buying yes on A and no on B costs s1;
// buying yes on B and no on A costs s2. A sum under 1 locks in 1 - sum.
// When both sums qualify the cheaper wins and an exact tie goes to s1.
func Evaluate(pair domain.CandidatePair) domain.ArbitragePair {
	aYes := NormalizePrice(pair.A.Exchange, pair.A.YesPrice)
	aNo := NormalizePrice(pair.A.Exchange, pair.A.NoPrice)
	bYes := NormalizePrice(pair.B.Exchange, pair.B.YesPrice)
	bNo := NormalizePrice(pair.B.Exchange, pair.B.NoPrice)

	out := domain.ArbitragePair{
		ATitle:    pair.A.Title,
		AYes:      aYes,
		ANo:       aNo,
		ALink:     pair.A.Link,
		BTitle:    pair.B.Title,
		BYes:      bYes,
		BNo:       bNo,
		BLink:     pair.B.Link,
		Direction: domain.DirectionNone,
		Score:     pair.Score,
	}

	s1 := aYes + bNo
	s2 := bYes + aNo
	switch {
	case s1 < 1 && s2 < 1:
		if s1 <= s2 {
			out.Direction, out.Edge = domain.DirectionBuyAYes, 1-s1
		} else {
			out.Direction, out.Edge = domain.DirectionBuyBYes, 1-s2
		}
	case s1 < 1:
		out.Direction, out.Edge = domain.DirectionBuyAYes, 1-s1
	case s2 < 1:
		out.Direction, out.Edge = domain.DirectionBuyBYes, 1-s2
	}
	return out
}

// Rank evaluates every pair and returns only those with an arbitrage,
// largest edge first. Equal edges keep their input order.
func Rank(pairs []domain.CandidatePair) []domain.ArbitragePair {
	out := make([]domain.ArbitragePair, 0, len(pairs))
	for _, p := range pairs {
		if ap := Evaluate(p); ap.HasArbitrage() {
			out = append(out, ap)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Edge > out[j].Edge })
	return out
}

// FilterMinEdge returns the pairs whose edge is at least minEdge, preserving
// order.
func FilterMinEdge(pairs []domain.ArbitragePair, minEdge float64) []domain.ArbitragePair {
	if minEdge <= 0 {
		return pairs
	}
	out := make([]domain.ArbitragePair, 0, len(pairs))
	for _, p := range pairs {
		if p.Edge >= minEdge {
			out = append(out, p)
		}
	}
	return out
}
