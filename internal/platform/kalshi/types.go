package kalshi

import (
	"fmt"
	"strings"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// KalshiMarket represents a market as returned by the Kalshi REST API. Quote
// and strike fields are pointers because Kalshi omits them for markets that
// do not carry them.
type KalshiMarket struct {
	Ticker       string   `json:"ticker"`
	EventTicker  string   `json:"event_ticker"`
	Title        string   `json:"title"`
	Subtitle     string   `json:"subtitle"`
	YesSubTitle  string   `json:"yes_sub_title"`
	NoSubTitle   string   `json:"no_sub_title"`
	Status       string   `json:"status"` // "open", "closed", "settled"
	MarketType   string   `json:"market_type"`
	Category     string   `json:"category"`
	YesBid       *float64 `json:"yes_bid"`
	YesAsk       *float64 `json:"yes_ask"`
	NoBid        *float64 `json:"no_bid"`
	NoAsk        *float64 `json:"no_ask"`
	LastPrice    *float64 `json:"last_price"`
	Volume       int64    `json:"volume"`
	Volume24H    int64    `json:"volume_24h"`
	OpenInterest int64    `json:"open_interest"`
	StrikeType   string   `json:"strike_type"`
	FloorStrike  *float64 `json:"floor_strike"`
	CapStrike    *float64 `json:"cap_strike"`
	OpenTime     string   `json:"open_time"`
	CloseTime    string   `json:"close_time"`
}

// FullTitle is the market title joined with its yes sub-title, which is how
// Kalshi distinguishes the strikes of one event.
func (m *KalshiMarket) FullTitle() string {
	return strings.TrimSpace(m.Title + " " + m.YesSubTitle)
}

// SeriesTicker returns the lowercase series prefix of the event ticker, e.g.
// "kxbtcd" for "KXBTCD-25DEC3117".
func (m *KalshiMarket) SeriesTicker() string {
	series, _, _ := strings.Cut(m.EventTicker, "-")
	return strings.ToLower(series)
}

// Link returns the public market URL, or "" when the event ticker is absent.
func (m *KalshiMarket) Link() string {
	series := m.SeriesTicker()
	if series == "" {
		return ""
	}
	return "https://kalshi.com/markets/" + series
}

// ToMarketRecord converts a KalshiMarket to the canonical record. Asks are
// kept in cents. It returns domain.ErrMalformedRecord when the title or
// either ask is missing.
func (m *KalshiMarket) ToMarketRecord() (domain.MarketRecord, error) {
	title := m.FullTitle()
	if title == "" {
		return domain.MarketRecord{}, fmt.Errorf("kalshi: %s: %w: missing title", m.Ticker, domain.ErrMalformedRecord)
	}
	if m.YesAsk == nil || m.NoAsk == nil {
		return domain.MarketRecord{}, fmt.Errorf("kalshi: %s: %w: missing yes_ask/no_ask", title, domain.ErrMalformedRecord)
	}

	rec := domain.MarketRecord{
		Title:      title,
		Category:   m.Category,
		YesPrice:   *m.YesAsk,
		NoPrice:    *m.NoAsk,
		CloseTime:  m.CloseTime,
		MarketType: m.MarketType,
		Exchange:   domain.ExchangeKalshi,
		Link:       m.Link(),
	}
	if m.FloorStrike != nil {
		rec.StrikeLower = domain.Float(*m.FloorStrike)
	}
	if m.CapStrike != nil {
		rec.StrikeUpper = domain.Float(*m.CapStrike)
	}
	return rec, nil
}

// KalshiSeries is a series entry from GET /series.
type KalshiSeries struct {
	Ticker    string   `json:"ticker"`
	Title     string   `json:"title"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
	Frequency string   `json:"frequency"`
}

// MarketsQuery are the filters accepted by GET /markets.
type MarketsQuery struct {
	Limit        int
	Cursor       string
	Status       string
	SeriesTicker string
	EventTicker  string
}

// MarketsPage is one page of GET /markets.
type MarketsPage struct {
	Markets []KalshiMarket `json:"markets"`
	Cursor  string         `json:"cursor"`
}

// SeriesPage is one page of GET /series.
type SeriesPage struct {
	Series []KalshiSeries `json:"series"`
	Cursor string         `json:"cursor"`
}

// KalshiErrorResponse represents a Kalshi API error response.
type KalshiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
