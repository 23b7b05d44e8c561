package domain

import (
	"errors"
	"fmt"
)

// RiskSettings holds per-instrument risk parameters.
type RiskSettings struct {
	BaseDailyTrades int     // Base number of trades per day, scaled by the balance tier
	StopLossATR     float64 // Stop-loss distance in ATR units
	TakeProfitATR   float64 // Take-profit distance in ATR units
	TrailingStart   float64 // Trailing activates once profit exceeds this multiple of the initial stop distance
	TrailingStep    float64 // Fraction of the favourable move kept between price and the trailed stop
	MaxPositionSize float64 // Maximum position size as a fraction of balance
}

// InstrumentConfig is the immutable per-instrument configuration.
type InstrumentConfig struct {
	Symbol       string
	OptimalHours map[int]struct{} // UTC hours of day during which entries are allowed
	MaxSpread    float64          // Maximum spread, in ticks
	MinVolume    float64          // Minimum 24h volume
	Risk         RiskSettings
}

// NewHourWindow builds a set of UTC hours from a list.
func NewHourWindow(hours ...int) map[int]struct{} {
	w := make(map[int]struct{}, len(hours))
	for _, h := range hours {
		w[h] = struct{}{}
	}
	return w
}

// HourSpan lists the hours of the half-open range [from, to). A range with
// to before from wraps past midnight, so 22 to 3 covers 22, 23, 0, 1 and 2.
// 0 to 24 is the whole day.
func HourSpan(from, to int) ([]int, error) {
	if from < 0 || from > 23 || to < 0 || to > 24 {
		return nil, fmt.Errorf("hour range %d to %d outside 0..24", from, to)
	}
	span := (to - from + 24) % 24
	if span == 0 {
		if to-from != 24 {
			return nil, fmt.Errorf("hour range %d to %d is empty", from, to)
		}
		span = 24
	}
	hours := make([]int, span)
	for i := range hours {
		hours[i] = (from + i) % 24
	}
	return hours, nil
}

// HourRange builds the window [from, to), wrapping past midnight when to is
// before from. Invalid ranges give an empty window, which Validate rejects.
func HourRange(from, to int) map[int]struct{} {
	hours, err := HourSpan(from, to)
	if err != nil {
		return map[int]struct{}{}
	}
	return NewHourWindow(hours...)
}

// InWindow reports whether the UTC hour is inside the optimal trading window.
func (c InstrumentConfig) InWindow(hour int) bool {
	_, ok := c.OptimalHours[hour]
	return ok
}

// Validate checks the configuration for values that would make the risk engine unsafe.
func (c InstrumentConfig) Validate() error {
	var errs []error
	if c.Symbol == "" {
		errs = append(errs, errors.New("symbol must be set"))
	}
	if len(c.OptimalHours) == 0 {
		errs = append(errs, errors.New("optimal_hours must not be empty"))
	}
	for h := range c.OptimalHours {
		if h < 0 || h > 23 {
			errs = append(errs, fmt.Errorf("optimal hour %d out of range 0-23", h))
		}
	}
	if c.MaxSpread <= 0 {
		errs = append(errs, errors.New("max_spread must be positive"))
	}
	if c.MinVolume < 0 {
		errs = append(errs, errors.New("min_volume cannot be negative"))
	}
	r := c.Risk
	if r.BaseDailyTrades <= 0 {
		errs = append(errs, errors.New("base_daily_trades must be positive"))
	}
	if r.StopLossATR <= 0 {
		errs = append(errs, errors.New("stop_loss_atr must be positive"))
	}
	if r.TakeProfitATR <= 0 {
		errs = append(errs, errors.New("take_profit_atr must be positive"))
	}
	if r.TrailingStart <= 0 {
		errs = append(errs, errors.New("trailing_start must be positive"))
	}
	if r.TrailingStep <= 0 || r.TrailingStep >= 1 {
		errs = append(errs, errors.New("trailing_step must be between 0 and 1 (exclusive)"))
	}
	if r.MaxPositionSize <= 0 || r.MaxPositionSize > 1 {
		errs = append(errs, errors.New("max_position_size must be in (0, 1]"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("instrument %q: %w", c.Symbol, errors.Join(errs...))
	}
	return nil
}
