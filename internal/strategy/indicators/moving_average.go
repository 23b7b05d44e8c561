package indicators

import (
	"context"
	"fmt"

	"quantumFlowBot/internal/domain"
)

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	SimpleMovingAverage      MovingAverageType = "SMA"
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage implements both SMA and EMA over closing prices.
type MovingAverage struct {
	BaseIndicator
	maType MovingAverageType
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		maType:        config.Type,
	}
}

// NewSMA is a shortcut for a simple moving average over period closes.
func NewSMA(period int) *MovingAverage {
	return NewMovingAverage(MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: period}, Type: SimpleMovingAverage})
}

// NewEMA is a shortcut for an exponential moving average over period closes.
func NewEMA(period int) *MovingAverage {
	return NewMovingAverage(MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: period}, Type: ExponentialMovingAverage})
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return string(m.maType)
}

// Calculate computes the moving average value based on the configured type
func (m *MovingAverage) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	switch m.maType {
	case SimpleMovingAverage:
		return m.sma(klines)
	case ExponentialMovingAverage:
		return m.ema(klines)
	default:
		return 0, fmt.Errorf("unsupported moving average type: %s", m.maType)
	}
}

// sma averages the last period closes.
func (m *MovingAverage) sma(klines []*domain.Kline) (float64, error) {
	period := m.Config.Period
	if err := requireKlines(m.Name(), period, klines, period); err != nil {
		return 0, err
	}
	total := 0.0
	for _, k := range klines[len(klines)-period:] {
		total += k.Close
	}
	return total / float64(period), nil
}

// ema seeds with the SMA of the first period closes and smooths over the rest.
func (m *MovingAverage) ema(klines []*domain.Kline) (float64, error) {
	period := m.Config.Period
	if err := requireKlines(m.Name(), period, klines, period); err != nil {
		return 0, err
	}

	ema := 0.0
	for _, k := range klines[:period] {
		ema += k.Close
	}
	ema /= float64(period)

	alpha := 2.0 / float64(period+1)
	for _, k := range klines[period:] {
		ema += (k.Close - ema) * alpha
	}
	return ema, nil
}
