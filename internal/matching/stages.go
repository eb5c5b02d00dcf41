package matching

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

// closeTimeLayouts are tried in order. Layouts without a zone parse as UTC.
var closeTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseCloseTime parses an ISO-8601 close time. A trailing "Z" or a missing
// offset means UTC.
func ParseCloseTime(s string) (time.Time, error) {
	for _, layout := range closeTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("matching: unparsable close time %q", s)
}

type timed struct {
	rec domain.MarketRecord
	at  time.Time
}

func parseAll(records map[string]domain.MarketRecord) []timed {
	out := make([]timed, 0, len(records))
	for _, r := range records {
		at, err := ParseCloseTime(r.CloseTime)
		if err != nil {
			continue
		}
		out = append(out, timed{rec: r, at: at})
	}
	return out
}

// MatchByCloseTime returns every (a, b) pair whose close times both parse and
// differ by at most window. Records with unparsable times never pair. The
// result is ordered by (A title, B title).
func MatchByCloseTime(a, b map[string]domain.MarketRecord, window time.Duration) []domain.CandidatePair {
	as := parseAll(a)
	bs := parseAll(b)
	sort.Slice(bs, func(i, j int) bool { return bs[i].at.Before(bs[j].at) })

	var out []domain.CandidatePair
	for _, x := range as {
		lo := x.at.Add(-window)
		hi := x.at.Add(window)
		start := sort.Search(len(bs), func(i int) bool { return !bs[i].at.Before(lo) })
		for j := start; j < len(bs) && !bs[j].at.After(hi); j++ {
			out = append(out, domain.CandidatePair{A: x.rec, B: bs[j].rec})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].A.Title != out[j].A.Title {
			return out[i].A.Title < out[j].A.Title
		}
		return out[i].B.Title < out[j].B.Title
	})
	return out
}

// WithinTolerance reports whether x and y differ by at most pct of their mean
// magnitude. Two zeros are always within tolerance.
func WithinTolerance(x, y, pct float64) bool {
	if x == 0 && y == 0 {
		return true
	}
	avg := (math.Abs(x) + math.Abs(y)) / 2
	return math.Abs(x-y) <= avg*pct
}

// StrikesCompatible applies the strike reconciliation rules to one pair:
//   - neither side has a strike: incompatible
//   - exactly one side has no strike: compatible
//   - otherwise lower~lower or upper~upper, or, when allowCross is set, a
//     lower bound against an upper bound if neither side carries the
//     opposite bound.
func StrikesCompatible(a, b domain.MarketRecord, pct float64, allowCross bool) bool {
	aHas, bHas := a.HasStrike(), b.HasStrike()
	switch {
	case !aHas && !bHas:
		return false
	case !aHas || !bHas:
		return true
	}

	if a.StrikeLower != nil && b.StrikeLower != nil && WithinTolerance(*a.StrikeLower, *b.StrikeLower, pct) {
		return true
	}
	if a.StrikeUpper != nil && b.StrikeUpper != nil && WithinTolerance(*a.StrikeUpper, *b.StrikeUpper, pct) {
		return true
	}
	if !allowCross {
		return false
	}
	if a.StrikeLower != nil && b.StrikeUpper != nil && a.StrikeUpper == nil && b.StrikeLower == nil &&
		WithinTolerance(*a.StrikeLower, *b.StrikeUpper, pct) {
		return true
	}
	if a.StrikeUpper != nil && b.StrikeLower != nil && a.StrikeLower == nil && b.StrikeUpper == nil &&
		WithinTolerance(*a.StrikeUpper, *b.StrikeLower, pct) {
		return true
	}
	return false
}

// ReconcileStrikes keeps the pairs whose strikes are compatible.
func ReconcileStrikes(pairs []domain.CandidatePair, pct float64, allowCross bool) []domain.CandidatePair {
	out := make([]domain.CandidatePair, 0, len(pairs))
	for _, p := range pairs {
		if StrikesCompatible(p.A, p.B, pct, allowCross) {
			out = append(out, p)
		}
	}
	return out
}
