package domain

import "time"

// CandidatePair is a (Polymarket, Kalshi) pair that survived some prefix of
// the matching funnel. Score is set once the similarity stage has run.
type CandidatePair struct {
	A     MarketRecord
	B     MarketRecord
	Score *float64
}

// Direction names which side of an arbitrage is bought on yes.
type Direction string

const (
	DirectionNone Direction = "none"
	// DirectionBuyAYes buys yes on Polymarket and no on Kalshi.
	DirectionBuyAYes Direction = "buy-A-yes-sell-B"
	// DirectionBuyBYes buys yes on Kalshi and no on Polymarket.
	DirectionBuyBYes Direction = "buy-B-yes-sell-A"
)

// ArbitragePair is a matched pair with prices scaled to [0, 1] and the
// resulting edge. Edge is zero exactly when Direction is DirectionNone.
type ArbitragePair struct {
	ATitle    string    `json:"a_title"`
	AYes      float64   `json:"a_yes"`
	ANo       float64   `json:"a_no"`
	ALink     string    `json:"a_link"`
	BTitle    string    `json:"b_title"`
	BYes      float64   `json:"b_yes"`
	BNo       float64   `json:"b_no"`
	BLink     string    `json:"b_link"`
	Direction Direction `json:"direction"`
	Edge      float64   `json:"edge"`
	Score     *float64  `json:"score,omitempty"`
}

// HasArbitrage reports whether the pair carries a positive edge.
func (p ArbitragePair) HasArbitrage() bool {
	return p.Direction != DirectionNone && p.Edge > 0
}

// ScanRecord is one persisted arbitrage observation from a scan run.
type ScanRecord struct {
	ID         string
	RunID      string
	Pair       ArbitragePair
	DetectedAt time.Time
}

// ScanSummary describes one completed scan run.
type ScanSummary struct {
	RunID           string
	StartedAt       time.Time
	FinishedAt      time.Time
	PolymarketCount int
	KalshiCount     int
	AfterCloseTime  int
	AfterStrike     int
	AfterSimilarity int
	AfterAdjudicate int
	ArbitrageCount  int
	BestEdge        float64
}
