package risk

import (
	"time"

	"quantumFlowBot/internal/domain"
)

// TradeLimits maps an instrument to its daily trade cap.
type TradeLimits map[string]int

// Limit returns the cap for symbol and whether one has been computed.
func (l TradeLimits) Limit(symbol string) (int, bool) {
	v, ok := l[symbol]
	return v, ok
}

// Clone returns an independent copy.
func (l TradeLimits) Clone() TradeLimits {
	if l == nil {
		return nil
	}
	out := make(TradeLimits, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// LimitConfig controls how often limits are recomputed.
type LimitConfig struct {
	RefreshInterval time.Duration // Recompute at most this often unless the tier changes
	MaxTradesCap    int           // Optional upper bound per instrument, 0 = unbounded
}

// TradeLimitCalculator derives per-instrument daily caps from the balance tier.
// It is the only writer of TradeLimits.
type TradeLimitCalculator struct {
	tiers       *TierTable
	instruments []domain.InstrumentConfig
	cfg         LimitConfig

	limits    TradeLimits
	tier      Tier
	updatedAt time.Time
}

// NewTradeLimitCalculator creates a calculator. Limits are empty until the
// first successful Refresh.
func NewTradeLimitCalculator(tiers *TierTable, instruments []domain.InstrumentConfig, cfg LimitConfig) (*TradeLimitCalculator, error) {
	if tiers == nil {
		return nil, configError("tier table is required")
	}
	if len(instruments) == 0 {
		return nil, configError("at least one instrument is required")
	}
	if cfg.RefreshInterval <= 0 {
		return nil, configError("limit refresh interval must be positive")
	}
	if cfg.MaxTradesCap < 0 {
		return nil, configError("max trades cap cannot be negative")
	}
	return &TradeLimitCalculator{
		tiers:       tiers,
		instruments: instruments,
		cfg:         cfg,
	}, nil
}

// Calculate computes limits for balance without touching the stored limits.
//
//	limit = floor(base_daily_trades * tier_max_trades / reference_trades), at least 1
func (c *TradeLimitCalculator) Calculate(balance float64) TradeLimits {
	tierMax := c.tiers.MaxTrades(balance)
	ref := c.tiers.ReferenceTrades()

	limits := make(TradeLimits, len(c.instruments))
	for _, inst := range c.instruments {
		scaled := inst.Risk.BaseDailyTrades * tierMax / ref
		if scaled < 1 {
			scaled = 1
		}
		if c.cfg.MaxTradesCap > 0 && scaled > c.cfg.MaxTradesCap {
			scaled = c.cfg.MaxTradesCap
		}
		limits[inst.Symbol] = scaled
	}
	return limits
}

// Due reports whether limits should be recomputed: never computed, the
// refresh interval has elapsed, or balance now falls into a different tier.
func (c *TradeLimitCalculator) Due(now time.Time, balance float64) bool {
	if c.limits == nil {
		return true
	}
	if now.Sub(c.updatedAt) >= c.cfg.RefreshInterval {
		return true
	}
	return c.tiers.Lookup(balance) != c.tier
}

// Refresh recomputes limits when due. A failed balance read keeps the
// previous limits as they are; it never falls back to defaults.
// It returns whether the limits changed.
func (c *TradeLimitCalculator) Refresh(now time.Time, balance float64, balanceErr error) (bool, error) {
	if balanceErr != nil {
		return false, &TransientDataError{Source: "balance", Err: balanceErr}
	}
	if !c.Due(now, balance) {
		return false, nil
	}
	next := c.Calculate(balance)
	changed := !sameLimits(c.limits, next)
	c.limits = next
	c.tier = c.tiers.Lookup(balance)
	c.updatedAt = now
	return changed, nil
}

// Limits returns a copy of the current limits (nil before the first refresh).
func (c *TradeLimitCalculator) Limits() TradeLimits {
	return c.limits.Clone()
}

// Tier returns the tier used for the current limits.
func (c *TradeLimitCalculator) Tier() Tier {
	return c.tier
}

// UpdatedAt returns when limits were last recomputed.
func (c *TradeLimitCalculator) UpdatedAt() time.Time {
	return c.updatedAt
}

func sameLimits(a, b TradeLimits) bool {
	if len(a) != len(b) || a == nil {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}
