package polymarket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/strike"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APITag is an entry of GET /tags.
type APITag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// APIEvent represents an event as returned by the Polymarket Gamma API.
// An event groups one or more related markets.
type APIEvent struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Slug     string      `json:"slug"`
	Category string      `json:"category"`
	Active   flexBool    `json:"active"`
	Closed   flexBool    `json:"closed"`
	EndDate  string      `json:"endDate"`
	Markets  []APIMarket `json:"markets"`
}

// APIMarket represents a market as returned by the Polymarket Gamma API.
type APIMarket struct {
	ID             string          `json:"id"`
	Question       string          `json:"question"`
	ConditionID    string          `json:"conditionId"`
	Slug           string          `json:"slug"`
	Category       string          `json:"category"`
	MarketType     string          `json:"marketType"`
	GroupItemTitle string          `json:"groupItemTitle"`
	EndDate        string          `json:"endDate"`
	Active         flexBool        `json:"active"`
	Closed         flexBool        `json:"closed"`
	Outcomes       json.RawMessage `json:"outcomes"`      // e.g. "[\"Yes\",\"No\"]"
	OutcomePrices  json.RawMessage `json:"outcomePrices"` // e.g. "[\"0.4\",\"0.6\"]"
}

// Link returns the public market URL, or "" when the slug is absent.
func (m *APIMarket) Link() string {
	if m.Slug == "" {
		return ""
	}
	return "https://polymarket.com/market/" + m.Slug
}

// Prices decodes the yes and no prices from outcomePrices.
func (m *APIMarket) Prices() (yes, no float64, err error) {
	prices, err := parsePriceList(m.OutcomePrices)
	if err != nil {
		return 0, 0, err
	}
	if len(prices) < 2 {
		return 0, 0, fmt.Errorf("expected 2 outcome prices, got %d", len(prices))
	}
	return prices[0], prices[1], nil
}

// ToMarketRecord converts an APIMarket to the canonical record. Strike bounds
// come from the group item label when it is usable, else from the question.
// It returns domain.ErrMalformedRecord when the question or either price is
// missing.
func (m *APIMarket) ToMarketRecord() (domain.MarketRecord, error) {
	title := strings.TrimSpace(m.Question)
	if title == "" {
		return domain.MarketRecord{}, fmt.Errorf("polymarket: market %s: %w: missing question", m.ID, domain.ErrMalformedRecord)
	}
	yes, no, err := m.Prices()
	if err != nil {
		return domain.MarketRecord{}, fmt.Errorf("polymarket: %s: %w: %v", title, domain.ErrMalformedRecord, err)
	}

	bounds := strike.Extract(m.GroupItemTitle, title)
	return domain.MarketRecord{
		Title:       title,
		Category:    m.Category,
		YesPrice:    yes,
		NoPrice:     no,
		CloseTime:   m.EndDate,
		MarketType:  m.MarketType,
		Exchange:    domain.ExchangePolymarket,
		StrikeLower: bounds.Lower,
		StrikeUpper: bounds.Upper,
		Link:        m.Link(),
	}, nil
}

// parsePriceList accepts a JSON array or a JSON string holding an array,
// with elements given as numbers or numeric strings.
func parsePriceList(raw json.RawMessage) ([]float64, error) {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil, fmt.Errorf("missing outcomePrices")
	}

	if b[0] == '"' {
		var inner string
		if err := json.Unmarshal(b, &inner); err != nil {
			return nil, fmt.Errorf("decode outcomePrices: %w", err)
		}
		b = []byte(strings.TrimSpace(inner))
		if len(b) == 0 {
			return nil, fmt.Errorf("missing outcomePrices")
		}
	}

	var items []any
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("decode outcomePrices: %w", err)
	}

	out := make([]float64, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case float64:
			out = append(out, v)
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("outcome price %q: %w", v, err)
			}
			out = append(out, f)
		default:
			return nil, fmt.Errorf("outcome price of type %T", it)
		}
	}
	return out, nil
}
