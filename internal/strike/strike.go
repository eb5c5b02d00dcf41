// Package strike derives numeric strike bounds for a market from its short
// group label or, failing that, from cue phrases in its title.
package strike

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

var (
	amountRe     = regexp.MustCompile(`(\$)?(\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?([kKmMbB]\b)?`)
	upwardRe     = cueRegexp(UpwardCues)
	downwardRe   = cueRegexp(DownwardCues)
	comparisonRe = cueRegexp(ComparisonWords)
)

// cueRegexp compiles a case-insensitive, word-bounded alternation of the
// given phrases. Longer phrases are tried first.
func cueRegexp(phrases []string) *regexp.Regexp {
	sorted := append([]string(nil), phrases...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	alts := make([]string, 0, len(sorted))
	for _, p := range sorted {
		words := strings.Fields(p)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		alts = append(alts, strings.Join(words, `\s*`))
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
}

// Extract returns the strike bounds for a market. A usable group label wins;
// otherwise the title is parsed.
func Extract(label, title string) domain.Bounds {
	if b, ok := FromLabel(label); ok {
		return b
	}
	return FromTitle(title)
}

// FromLabel parses a short group label such as "<80,000", ">$1.2k",
// "90000-95000" or "100000". It reports false when the label carries no
// usable bound and the caller should fall back to the title.
func FromLabel(label string) (domain.Bounds, bool) {
	s := strings.TrimSpace(strings.NewReplacer(",", "", "$", "").Replace(label))
	if s == "" {
		return domain.Bounds{}, false
	}

	switch {
	case s[0] == '<':
		v, ok := parseAmount(s[1:])
		if !ok {
			return domain.Bounds{}, false
		}
		return domain.Bounds{Upper: domain.Float(v)}, true

	case s[0] == '>':
		v, ok := parseAmount(s[1:])
		if !ok {
			return domain.Bounds{}, false
		}
		return domain.Bounds{Lower: domain.Float(v)}, true

	case isDigit(s[0]) && strings.Contains(s, "-"):
		lo, hi, _ := strings.Cut(s, "-")
		l, okL := parseAmount(lo)
		h, okH := parseAmount(hi)
		if !okL || !okH {
			return domain.Bounds{}, false
		}
		return domain.Bounds{Lower: domain.Float(l), Upper: domain.Float(h)}, true

	case allDigits(s):
		v, ok := parseAmount(s)
		if !ok {
			return domain.Bounds{}, false
		}
		return domain.Bounds{Upper: domain.Float(v)}, true
	}

	return domain.Bounds{}, false
}

type amount struct {
	pos   int
	value float64
}

type span struct{ start, end int }

// FromTitle infers strike bounds from cue phrases in a free-text title.
// Titles without amounts or cues yield empty bounds.
func FromTitle(title string) domain.Bounds {
	amounts := findAmounts(title)
	if len(amounts) == 0 {
		return domain.Bounds{}
	}

	ups := findSpans(upwardRe, title)
	downs := findSpans(downwardRe, title)

	if len(ups) > 0 && len(downs) > 0 && len(amounts) >= 2 {
		return spread(amounts)
	}

	var b domain.Bounds
	for _, c := range ups {
		if v, ok := nearest(amounts, c); ok && (b.Upper == nil || v > *b.Upper) {
			b.Upper = domain.Float(v)
		}
	}
	for _, c := range downs {
		if v, ok := nearest(amounts, c); ok && (b.Lower == nil || v < *b.Lower) {
			b.Lower = domain.Float(v)
		}
	}

	// "hit 100k or 90k first": a single upward cue racing two levels.
	if b.Upper != nil && b.Lower == nil && len(amounts) >= 2 && comparisonRe.MatchString(title) {
		return spread(amounts)
	}
	return b
}

func findAmounts(text string) []amount {
	var out []amount
	for _, loc := range amountRe.FindAllStringIndex(text, -1) {
		if v, ok := parseAmount(text[loc[0]:loc[1]]); ok {
			out = append(out, amount{pos: loc[0], value: v})
		}
	}
	return out
}

func findSpans(re *regexp.Regexp, text string) []span {
	locs := re.FindAllStringIndex(text, -1)
	out := make([]span, 0, len(locs))
	for _, loc := range locs {
		out = append(out, span{start: loc[0], end: loc[1]})
	}
	return out
}

// nearest returns the first amount after the cue, else the closest amount
// before it.
func nearest(amounts []amount, cue span) (float64, bool) {
	for _, a := range amounts {
		if a.pos >= cue.end {
			return a.value, true
		}
	}
	for i := len(amounts) - 1; i >= 0; i-- {
		if amounts[i].pos < cue.start {
			return amounts[i].value, true
		}
	}
	return 0, false
}

// spread returns (min, max) across all amounts as (lower, upper).
func spread(amounts []amount) domain.Bounds {
	lo, hi := amounts[0].value, amounts[0].value
	for _, a := range amounts[1:] {
		if a.value < lo {
			lo = a.value
		}
		if a.value > hi {
			hi = a.value
		}
	}
	return domain.Bounds{Lower: domain.Float(lo), Upper: domain.Float(hi)}
}

// parseAmount converts "$120k", "1,000,000" or "2.5m" to a number.
func parseAmount(raw string) (float64, bool) {
	s := strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(raw))
	if s == "" || !isDigit(s[0]) {
		return 0, false
	}
	mult := 1.0
	if m, ok := magnitudes[lower(s[len(s)-1])]; ok {
		mult = m
		s = s[:len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v * mult, true
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return s != ""
}
