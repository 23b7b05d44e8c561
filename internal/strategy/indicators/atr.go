package indicators

import (
	"context"

	"quantumFlowBot/internal/domain"
)

// ATRConfig holds configuration for the Average True Range indicator
type ATRConfig struct {
	IndicatorConfig
}

// ATR is the Average True Range with Wilder's smoothing, in price units.
type ATR struct {
	BaseIndicator
}

// NewATR creates a new Average True Range indicator instance
func NewATR(config ATRConfig) *ATR {
	return &ATR{BaseIndicator: BaseIndicator{Config: config.IndicatorConfig}}
}

// Name returns the name of the indicator
func (a *ATR) Name() string {
	return "ATR"
}

// RequiredDataPoints is period+1: every true range after the first needs the previous close.
func (a *ATR) RequiredDataPoints() int {
	return a.Config.Period + 1
}

// Calculate computes the Average True Range value for the given klines
func (a *ATR) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	period := a.Config.Period
	if err := requireKlines(a.Name(), period, klines, period+1); err != nil {
		return 0, err
	}

	trueRanges := make([]float64, len(klines))
	trueRanges[0] = klines[0].TrueRange(0)
	for i := 1; i < len(klines); i++ {
		trueRanges[i] = klines[i].TrueRange(klines[i-1].Close)
	}

	// Seed with the simple average of the first period ranges, then smooth.
	atr := 0.0
	for _, tr := range trueRanges[:period] {
		atr += tr
	}
	atr /= float64(period)
	for _, tr := range trueRanges[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr, nil
}
