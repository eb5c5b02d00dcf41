package domain

// Exchange identifies the venue a market record came from.
type Exchange string

const (
	// ExchangePolymarket quotes yes/no as decimal probabilities in [0, 1].
	ExchangePolymarket Exchange = "polymarket"
	// ExchangeKalshi quotes yes/no asks as integer cents in [0, 100].
	ExchangeKalshi Exchange = "kalshi"
)

// Valid reports whether e is one of the supported exchanges.
func (e Exchange) Valid() bool {
	return e == ExchangePolymarket || e == ExchangeKalshi
}

// MarketRecord is the canonical, exchange-agnostic view of a single binary
// market. Prices stay in exchange-native units; scaling happens at arbitrage
// evaluation time. A nil strike bound means the bound is absent.
type MarketRecord struct {
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	YesPrice    float64  `json:"yes_price"`
	NoPrice     float64  `json:"no_price"`
	CloseTime   string   `json:"close_time"`
	MarketType  string   `json:"market_type"`
	Exchange    Exchange `json:"exchange"`
	StrikeLower *float64 `json:"strike_lower"`
	StrikeUpper *float64 `json:"strike_upper"`
	Link        string   `json:"link"`
}

// HasStrike reports whether at least one strike bound is present.
func (m MarketRecord) HasStrike() bool {
	return m.StrikeLower != nil || m.StrikeUpper != nil
}

// Bounds is the result of strike extraction. Either side may be nil.
type Bounds struct {
	Lower *float64
	Upper *float64
}

// Empty reports whether neither bound was found.
func (b Bounds) Empty() bool {
	return b.Lower == nil && b.Upper == nil
}

// Float returns a pointer to a copy of v.
func Float(v float64) *float64 {
	return &v
}
