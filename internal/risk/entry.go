package risk

import (
	"fmt"
	"math"
	"time"

	"quantumFlowBot/internal/domain"
)

// DenyReason is the machine-readable cause of a refused entry.
type DenyReason string

const (
	DenyHalted         DenyReason = "halted"
	DenyOutsideWindow  DenyReason = "outside_trading_window"
	DenyNoSnapshot     DenyReason = "missing_snapshot"
	DenyNoTickSize     DenyReason = "missing_tick_size"
	DenySpread         DenyReason = "spread_too_wide"
	DenyVolume         DenyReason = "volume_too_low"
	DenyNoLimit        DenyReason = "missing_trade_limit"
	DenyLimitReached   DenyReason = "daily_limit_reached"
	DenyNotTradable    DenyReason = "not_tradable"
	DenyTrendMismatch  DenyReason = "trend_mismatch"
	DenyRSI            DenyReason = "rsi_out_of_band"
	DenyMomentum       DenyReason = "momentum_too_weak"
	DenyDailyLoss      DenyReason = "daily_loss_limit"
	DenyDrawdown       DenyReason = "max_drawdown"
	DenyPositionOpen   DenyReason = "position_already_open"
	DenyInvalidRequest DenyReason = "invalid_request"
)

// Decision is the EntryValidator verdict. A denial is a normal outcome, not an error.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	Detail  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason DenyReason, format string, args ...interface{}) Decision {
	return Decision{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// EntryConfig holds the signal-quality thresholds.
type EntryConfig struct {
	RSIMin      float64
	RSIMax      float64
	MinMomentum float64
}

// Validate checks the thresholds.
func (c EntryConfig) Validate() error {
	if c.RSIMin < 0 || c.RSIMax > 100 || c.RSIMin >= c.RSIMax {
		return configError("entry rsi band [%v, %v] is invalid", c.RSIMin, c.RSIMax)
	}
	if c.MinMomentum < 0 {
		return configError("entry min_momentum cannot be negative")
	}
	return nil
}

// EntryRequest collects every input needed to gate one candidate trade.
type EntryRequest struct {
	Instrument domain.InstrumentConfig
	Side       domain.PositionSide
	Snapshot   *domain.MarketSnapshot
	TickSize   float64
	TickErr    error
	Count      int
	Limits     TradeLimits
	Recovery   RecoveryState
	Now        time.Time
}

// EntryValidator gates new positions. It fails closed on any missing input.
type EntryValidator struct {
	cfg EntryConfig
}

// NewEntryValidator validates cfg and returns a validator.
func NewEntryValidator(cfg EntryConfig) (*EntryValidator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &EntryValidator{cfg: cfg}, nil
}

// Validate returns the verdict for req.
func (v *EntryValidator) Validate(req EntryRequest) Decision {
	inst := req.Instrument
	if !req.Side.Valid() {
		return deny(DenyInvalidRequest, "unknown side %q", req.Side)
	}
	if req.Recovery.Halted() {
		return deny(DenyHalted, "trading halted below the recovery balance floor")
	}
	if hour := req.Now.UTC().Hour(); !inst.InWindow(hour) {
		return deny(DenyOutsideWindow, "hour %d outside %s window", hour, inst.Symbol)
	}

	snap := req.Snapshot
	if snap == nil {
		return deny(DenyNoSnapshot, "no market snapshot for %s", inst.Symbol)
	}
	if req.TickErr != nil || !finitePositive(req.TickSize) {
		return deny(DenyNoTickSize, "tick size unavailable for %s", inst.Symbol)
	}
	if snap.BidPrice <= 0 || snap.AskPrice < snap.BidPrice {
		return deny(DenySpread, "invalid quote bid=%v ask=%v", snap.BidPrice, snap.AskPrice)
	}
	if ticks := snap.Spread() / req.TickSize; ticks > inst.MaxSpread {
		return deny(DenySpread, "spread %.2f ticks above %.2f", ticks, inst.MaxSpread)
	}
	if snap.Volume < inst.MinVolume {
		return deny(DenyVolume, "volume %.2f below %.2f", snap.Volume, inst.MinVolume)
	}

	limit, ok := req.Limits.Limit(inst.Symbol)
	if !ok {
		return deny(DenyNoLimit, "no trade limit computed for %s", inst.Symbol)
	}
	if req.Count >= limit {
		return deny(DenyLimitReached, "%d of %d trades used today", req.Count, limit)
	}

	if !snap.Tradable {
		return deny(DenyNotTradable, "market not tradable")
	}
	if side, ok := snap.Trend.Side(); !ok || side != req.Side {
		return deny(DenyTrendMismatch, "trend %q does not support %s", snap.Trend, req.Side)
	}
	if math.IsNaN(snap.RSI) || snap.RSI < v.cfg.RSIMin || snap.RSI > v.cfg.RSIMax {
		return deny(DenyRSI, "rsi %.2f outside [%.2f, %.2f]", snap.RSI, v.cfg.RSIMin, v.cfg.RSIMax)
	}
	if math.IsNaN(snap.MomentumScore) || math.Abs(snap.MomentumScore) < v.cfg.MinMomentum {
		return deny(DenyMomentum, "momentum %.2f below %.2f", snap.MomentumScore, v.cfg.MinMomentum)
	}
	return allow()
}
