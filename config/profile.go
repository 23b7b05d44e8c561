package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"quantumFlowBot/internal/domain"
	"quantumFlowBot/internal/ports"
	"quantumFlowBot/internal/risk"
	"quantumFlowBot/internal/strategy"
)

// Profile is a loaded and validated risk profile.
type Profile struct {
	Risk     risk.Config
	Strategy strategy.Config
	// Simple is set for profiles without a tier table. They trade a static
	// max_daily_trades per pair with recovery and compounding disabled.
	Simple bool
}

// Symbols returns the configured instruments in profile order.
func (p *Profile) Symbols() []string {
	out := make([]string, 0, len(p.Risk.Instruments))
	for _, inst := range p.Risk.Instruments {
		out = append(out, inst.Symbol)
	}
	return out
}

// HourWindow decodes either a list of hours or a {from, to} half-open range.
// A range whose to is before from wraps past midnight.
type HourWindow []int

// UnmarshalYAML implements yaml.Unmarshaler.
func (w *HourWindow) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var hours []int
		if err := node.Decode(&hours); err != nil {
			return err
		}
		*w = hours
		return nil
	case yaml.MappingNode:
		var r struct {
			From *int `yaml:"from"`
			To   *int `yaml:"to"`
		}
		if err := node.Decode(&r); err != nil {
			return err
		}
		if r.From == nil || r.To == nil {
			return fmt.Errorf("line %d: hour range needs both from and to", node.Line)
		}
		hours, err := domain.HourSpan(*r.From, *r.To)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*w = hours
		return nil
	default:
		return fmt.Errorf("line %d: optimal_hours must be a list or a {from, to} range", node.Line)
	}
}

type profileFile struct {
	Tiers        map[float64]int     `yaml:"tiers"`
	MaxTradesCap int                 `yaml:"max_trades_cap"`
	Settings     settingsSection     `yaml:"settings"`
	Pairs        map[string]pairSpec `yaml:"pairs"`
	Recovery     *recoverySection    `yaml:"recovery"`
	Compound     *compoundSection    `yaml:"compound"`
	Entry        entrySection        `yaml:"entry"`
	Strategy     strategySection     `yaml:"strategy"`
}

type settingsSection struct {
	BaseLot              float64  `yaml:"base_lot"`
	RiskPerTrade         *float64 `yaml:"risk_per_trade"`
	MaxDrawdown          float64  `yaml:"max_drawdown"`
	MaxDailyLoss         float64  `yaml:"max_daily_loss"`
	RecoveryMode         *bool    `yaml:"recovery_mode"`
	CompoundProfits      *bool    `yaml:"compound_profits"`
	ReferenceBalance     float64  `yaml:"reference_balance"`
	BalanceMultiplierCap float64  `yaml:"balance_multiplier_cap"`
	HighVolatility       float64  `yaml:"high_volatility"`
	LowVolatility        float64  `yaml:"low_volatility"`
	HighVolatilityFactor float64  `yaml:"high_volatility_factor"`
	LowVolatilityFactor  float64  `yaml:"low_volatility_factor"`
	MinLot               float64  `yaml:"min_lot"`
	LotPrecision         int32    `yaml:"lot_precision"`
}

type pairSpec struct {
	OptimalHours HourWindow `yaml:"optimal_hours"`
	MaxSpread    float64    `yaml:"max_spread"`
	MinVolume    float64    `yaml:"min_volume"`
	RiskSettings struct {
		BaseDailyTrades int     `yaml:"base_daily_trades"`
		MaxDailyTrades  int     `yaml:"max_daily_trades"`
		StopLossATR     float64 `yaml:"stop_loss_atr"`
		TakeProfitATR   float64 `yaml:"take_profit_atr"`
		TrailingStart   float64 `yaml:"trailing_start"`
		TrailingStep    float64 `yaml:"trailing_step"`
		MaxPositionSize float64 `yaml:"max_position_size"`
	} `yaml:"risk_settings"`
}

type recoverySection struct {
	Enabled              *bool   `yaml:"enabled"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	LotReduction         float64 `yaml:"lot_reduction"`
	MinRecoveryBalance   float64 `yaml:"min_recovery_balance"`
	CoolOffPeriod        float64 `yaml:"cool_off_period"` // hours
	AutoResume           bool    `yaml:"auto_resume"`
}

type compoundSection struct {
	Enabled                 *bool   `yaml:"enabled"`
	BaseIncrement           float64 `yaml:"base_increment"`
	ProfitThreshold         float64 `yaml:"profit_threshold"`
	MaxLevel                int     `yaml:"max_level"`
	ResetOnLoss             bool    `yaml:"reset_on_loss"`
	SignificantLossFraction float64 `yaml:"significant_loss_fraction"`
}

type entrySection struct {
	RSIMin      float64 `yaml:"rsi_min"`
	RSIMax      float64 `yaml:"rsi_max"`
	MinMomentum float64 `yaml:"min_momentum"`
}

type strategySection struct {
	KlineInterval     string `yaml:"kline_interval"`
	ShortTermMAPeriod int    `yaml:"short_ma_period"`
	LongTermMAPeriod  int    `yaml:"long_ma_period"`
	EMAPeriod         int    `yaml:"ema_period"`
	RSIPeriod         int    `yaml:"rsi_period"`
	ATRPeriod         int    `yaml:"atr_period"`
}

// defaultProfileFile pre-fills the optional parameters before decoding.
func defaultProfileFile() profileFile {
	sizing := risk.DefaultSizingConfig()
	sc := strategy.DefaultConfig()
	return profileFile{
		Settings: settingsSection{
			ReferenceBalance:     sizing.ReferenceBalance,
			BalanceMultiplierCap: sizing.BalanceMultiplierCap,
			HighVolatility:       sizing.HighVolatility,
			LowVolatility:        sizing.LowVolatility,
			HighVolatilityFactor: sizing.HighVolatilityFactor,
			LowVolatilityFactor:  sizing.LowVolatilityFactor,
			MinLot:               sizing.MinLot,
			LotPrecision:         sizing.LotPrecision,
		},
		Entry: entrySection{RSIMin: 30, RSIMax: 70, MinMomentum: 0.5},
		Strategy: strategySection{
			KlineInterval:     sc.KlineInterval,
			ShortTermMAPeriod: sc.ShortTermMAPeriod,
			LongTermMAPeriod:  sc.LongTermMAPeriod,
			EMAPeriod:         sc.EMAPeriod,
			RSIPeriod:         sc.RSIPeriod,
			ATRPeriod:         sc.ATRPeriod,
		},
	}
}

// LoadProfile reads and validates the risk profile at path.
func LoadProfile(path string, limitRefresh time.Duration) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read risk profile: %w", ports.ErrConfigurationError, err)
	}
	return ParseProfile(data, limitRefresh)
}

// ParseProfile decodes a YAML risk profile. Missing or malformed core risk
// parameters are reported together as a configuration error.
func ParseProfile(data []byte, limitRefresh time.Duration) (*Profile, error) {
	f := defaultProfileFile()
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse risk profile: %w", ports.ErrConfigurationError, err)
	}

	var errs []error
	simple := len(f.Tiers) == 0
	tiers := tiersFrom(f.Tiers)
	if simple {
		// One static tier: every pair's limit equals its max_daily_trades.
		tiers = []risk.Tier{{Threshold: 0, MaxTrades: 1}}
	}

	if len(f.Pairs) == 0 {
		errs = append(errs, errors.New("pairs must define at least one instrument"))
	}
	symbols := make([]string, 0, len(f.Pairs))
	for s := range f.Pairs {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	instruments := make([]domain.InstrumentConfig, 0, len(symbols))
	for _, s := range symbols {
		inst, err := instrumentFrom(s, f.Pairs[s], simple)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		instruments = append(instruments, inst)
	}

	if f.Settings.BaseLot <= 0 {
		errs = append(errs, errors.New("settings.base_lot is required and must be positive"))
	}
	if f.Settings.RiskPerTrade == nil {
		errs = append(errs, errors.New("settings.risk_per_trade is required"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ports.ErrConfigurationError, errors.Join(errs...))
	}

	recovery, err := recoveryFrom(f, simple)
	if err != nil {
		return nil, err
	}
	compound, err := compoundFrom(f, simple)
	if err != nil {
		return nil, err
	}

	s := f.Settings
	cfg := risk.Config{
		Tiers:       tiers,
		Instruments: instruments,
		Limits:      risk.LimitConfig{RefreshInterval: limitRefresh, MaxTradesCap: f.MaxTradesCap},
		Recovery:    recovery,
		Compound:    compound,
		Sizing: risk.SizingConfig{
			BaseLot:              s.BaseLot,
			RiskPerTrade:         *s.RiskPerTrade,
			ReferenceBalance:     s.ReferenceBalance,
			BalanceMultiplierCap: s.BalanceMultiplierCap,
			HighVolatility:       s.HighVolatility,
			LowVolatility:        s.LowVolatility,
			HighVolatilityFactor: s.HighVolatilityFactor,
			LowVolatilityFactor:  s.LowVolatilityFactor,
			MinLot:               s.MinLot,
			LotPrecision:         s.LotPrecision,
		},
		Entry: risk.EntryConfig{
			RSIMin:      f.Entry.RSIMin,
			RSIMax:      f.Entry.RSIMax,
			MinMomentum: f.Entry.MinMomentum,
		},
		Guards: risk.GuardConfig{
			MaxDailyLossPct: s.MaxDailyLoss,
			MaxDrawdownPct:  s.MaxDrawdown,
		},
	}
	sc := strategy.Config{
		KlineInterval:     f.Strategy.KlineInterval,
		ShortTermMAPeriod: f.Strategy.ShortTermMAPeriod,
		LongTermMAPeriod:  f.Strategy.LongTermMAPeriod,
		EMAPeriod:         f.Strategy.EMAPeriod,
		RSIPeriod:         f.Strategy.RSIPeriod,
		ATRPeriod:         f.Strategy.ATRPeriod,
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	// Build once so every policy is checked before the bot starts.
	if _, err := risk.NewEngine(cfg); err != nil {
		return nil, err
	}
	return &Profile{Risk: cfg, Strategy: sc, Simple: simple}, nil
}

func tiersFrom(m map[float64]int) []risk.Tier {
	tiers := make([]risk.Tier, 0, len(m))
	for threshold, maxTrades := range m {
		tiers = append(tiers, risk.Tier{Threshold: threshold, MaxTrades: maxTrades})
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Threshold < tiers[j].Threshold })
	return tiers
}

func instrumentFrom(symbol string, p pairSpec, simple bool) (domain.InstrumentConfig, error) {
	rs := p.RiskSettings
	base := rs.BaseDailyTrades
	if base == 0 {
		base = rs.MaxDailyTrades
	}
	if simple && rs.MaxDailyTrades > 0 {
		base = rs.MaxDailyTrades
	}
	inst := domain.InstrumentConfig{
		Symbol:       symbol,
		OptimalHours: domain.NewHourWindow(p.OptimalHours...),
		MaxSpread:    p.MaxSpread,
		MinVolume:    p.MinVolume,
		Risk: domain.RiskSettings{
			BaseDailyTrades: base,
			StopLossATR:     rs.StopLossATR,
			TakeProfitATR:   rs.TakeProfitATR,
			TrailingStart:   rs.TrailingStart,
			TrailingStep:    rs.TrailingStep,
			MaxPositionSize: rs.MaxPositionSize,
		},
	}
	if err := inst.Validate(); err != nil {
		return domain.InstrumentConfig{}, err
	}
	return inst, nil
}

func recoveryFrom(f profileFile, simple bool) (risk.RecoveryConfig, error) {
	enabled := f.Recovery != nil && !simple
	if f.Recovery != nil && f.Recovery.Enabled != nil {
		enabled = enabled && *f.Recovery.Enabled
	}
	if f.Settings.RecoveryMode != nil {
		enabled = enabled && *f.Settings.RecoveryMode
	}
	if !enabled {
		return risk.RecoveryConfig{}, nil
	}
	r := f.Recovery
	cfg := risk.RecoveryConfig{
		Enabled:              true,
		MaxConsecutiveLosses: r.MaxConsecutiveLosses,
		LotReduction:         r.LotReduction,
		MinRecoveryBalance:   r.MinRecoveryBalance,
		CoolOff:              time.Duration(r.CoolOffPeriod * float64(time.Hour)),
		AutoResume:           r.AutoResume,
	}
	return cfg, cfg.Validate()
}

func compoundFrom(f profileFile, simple bool) (risk.CompoundConfig, error) {
	enabled := f.Compound != nil && !simple
	if f.Compound != nil && f.Compound.Enabled != nil {
		enabled = enabled && *f.Compound.Enabled
	}
	if f.Settings.CompoundProfits != nil {
		enabled = enabled && *f.Settings.CompoundProfits
	}
	if !enabled {
		return risk.CompoundConfig{}, nil
	}
	c := f.Compound
	cfg := risk.CompoundConfig{
		Enabled:                 true,
		BaseIncrement:           c.BaseIncrement,
		ProfitThreshold:         c.ProfitThreshold,
		MaxLevel:                c.MaxLevel,
		ResetOnLoss:             c.ResetOnLoss,
		SignificantLossFraction: c.SignificantLossFraction,
	}
	return cfg, cfg.Validate()
}
