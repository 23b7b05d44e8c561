package indicators

import (
	"context"
	"fmt"

	"quantumFlowBot/internal/domain"
	"quantumFlowBot/internal/ports"
)

// Indicator computes one value from a kline series ordered oldest first.
type Indicator interface {
	Calculate(ctx context.Context, klines []*domain.Kline) (float64, error)

	// RequiredDataPoints returns the minimum number of klines needed for calculation
	RequiredDataPoints() int

	Name() string
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the minimum number of klines needed for calculation
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}

// requireKlines fails with ports.ErrInsufficientData when fewer than need
// klines are available or the period is unusable.
func requireKlines(name string, period int, klines []*domain.Kline, need int) error {
	if period <= 0 {
		return fmt.Errorf("%s: period must be positive, got %d", name, period)
	}
	if len(klines) < need {
		return fmt.Errorf("%w: %s(%d) needs %d klines, got %d", ports.ErrInsufficientData, name, period, need, len(klines))
	}
	return nil
}
