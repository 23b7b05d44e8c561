package domain

import "time"

// Ticker is the raw top-of-book view returned by an exchange.
type Ticker struct {
	Symbol    string
	LastPrice float64
	BidPrice  float64
	AskPrice  float64
	Volume24h float64
}

// MarketSnapshot is the per-instrument market view used for one cycle.
type MarketSnapshot struct {
	Symbol        string
	LastPrice     float64
	BidPrice      float64
	AskPrice      float64
	Volume        float64        // 24h volume
	ATR           float64        // Average True Range in price units
	Trend         TrendDirection // Classifier output
	Tradable      bool           // Classifier tradability flag
	RSI           float64        // Oscillator in [0, 100]
	MomentumScore float64        // Signed momentum in ATR units
	Volatility    float64        // ATR as a percentage of price
	Timestamp     time.Time
}

// Spread returns ask minus bid in price units.
func (s MarketSnapshot) Spread() float64 {
	return s.AskPrice - s.BidPrice
}
