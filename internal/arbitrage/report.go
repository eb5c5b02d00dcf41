package arbitrage

import (
	"fmt"
	"io"
	"strings"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

var rule = strings.Repeat("=", 80)

// Action describes the trade for a direction in plain words.
func Action(d domain.Direction) string {
	switch d {
	case domain.DirectionBuyAYes:
		return "Buy yes on Polymarket, No on Kalshi"
	case domain.DirectionBuyBYes:
		return "Buy yes on Kalshi, No on Polymarket"
	default:
		return "No arbitrage"
	}
}

// FormatEdge renders an edge as a percentage with four decimals.
func FormatEdge(edge float64) string {
	return fmt.Sprintf("%.4f%%", edge*100)
}

// WriteReport prints each pair that has an arbitrage as a block with both
// legs, the action and the edge. Pairs without arbitrage are skipped.
func WriteReport(w io.Writer, pairs []domain.ArbitragePair) error {
	var b strings.Builder
	b.WriteString("Arb Pairs:\n")
	for _, p := range pairs {
		if !p.HasArbitrage() {
			continue
		}
		b.WriteString(rule + "\n")
		fmt.Fprintf(&b, "\nKALSHI\n  Title: %s\n  YES:   %.4f\n  NO:    %.4f\n  LINK:  %s\n", p.BTitle, p.BYes, p.BNo, p.BLink)
		fmt.Fprintf(&b, "\nPOLYMARKET\n  Title: %s\n  YES:   %.4f\n  NO:    %.4f\n  LINK:  %s\n", p.ATitle, p.AYes, p.ANo, p.ALink)
		fmt.Fprintf(&b, "\n%s\n\nEdge = %s\n\n", Action(p.Direction), FormatEdge(p.Edge))
		b.WriteString(rule + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
