package strategy

import (
	"context"
	"fmt"
	"time"

	"quantumFlowBot/internal/domain"
	"quantumFlowBot/internal/ports"
	"quantumFlowBot/internal/strategy/indicators"
)

// Config holds the indicator parameters of the market classifier.
type Config struct {
	KlineInterval     string // e.g., "15"
	ShortTermMAPeriod int    // e.g., 20
	LongTermMAPeriod  int    // e.g., 50
	EMAPeriod         int    // e.g., 20
	RSIPeriod         int    // e.g., 14
	ATRPeriod         int    // e.g., 14
}

// DefaultConfig returns the periods used by the reference profile.
func DefaultConfig() Config {
	return Config{
		KlineInterval:     "15",
		ShortTermMAPeriod: 20,
		LongTermMAPeriod:  50,
		EMAPeriod:         20,
		RSIPeriod:         14,
		ATRPeriod:         14,
	}
}

// Validate checks the periods.
func (c Config) Validate() error {
	if c.KlineInterval == "" {
		return fmt.Errorf("%w: kline interval is required", ports.ErrConfigurationError)
	}
	if c.ShortTermMAPeriod <= 0 || c.LongTermMAPeriod <= 0 || c.EMAPeriod <= 0 || c.RSIPeriod <= 0 || c.ATRPeriod <= 0 {
		return fmt.Errorf("%w: strategy periods must be positive", ports.ErrConfigurationError)
	}
	if c.ShortTermMAPeriod >= c.LongTermMAPeriod {
		return fmt.Errorf("%w: short term MA period must be less than long term MA period", ports.ErrConfigurationError)
	}
	return nil
}

// SnapshotBuilder classifies the market of an instrument from its ticker and
// recent klines. It implements ports.MarketSnapshotSource.
type SnapshotBuilder struct {
	cfg    Config
	market ports.MarketDataClient
	logger ports.Logger
	now    func() time.Time

	shortMA *indicators.MovingAverage
	longMA  *indicators.MovingAverage
	ema     *indicators.MovingAverage
	rsi     *indicators.RSI
	atr     *indicators.ATR
}

// New creates a SnapshotBuilder reading from market.
func New(cfg Config, market ports.MarketDataClient, logger ports.Logger) (*SnapshotBuilder, error) {
	if market == nil {
		return nil, fmt.Errorf("market data client is required for strategy")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SnapshotBuilder{
		cfg:     cfg,
		market:  market,
		logger:  logger,
		now:     time.Now,
		shortMA: indicators.NewSMA(cfg.ShortTermMAPeriod),
		longMA:  indicators.NewSMA(cfg.LongTermMAPeriod),
		ema:     indicators.NewEMA(cfg.EMAPeriod),
		rsi:     indicators.NewRSI(indicators.RSIConfig{IndicatorConfig: indicators.IndicatorConfig{Period: cfg.RSIPeriod}}),
		atr:     indicators.NewATR(indicators.ATRConfig{IndicatorConfig: indicators.IndicatorConfig{Period: cfg.ATRPeriod}}),
	}, nil
}

// RequiredDataPoints returns the number of klines fetched per snapshot.
func (s *SnapshotBuilder) RequiredDataPoints() int {
	n := 0
	for _, ind := range []indicators.Indicator{s.shortMA, s.longMA, s.ema, s.rsi, s.atr} {
		if r := ind.RequiredDataPoints(); r > n {
			n = r
		}
	}
	return n
}

// GetSnapshot fetches market data for symbol and derives the snapshot.
func (s *SnapshotBuilder) GetSnapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error) {
	ticker, err := s.market.GetTicker(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetching ticker for %s: %w", symbol, err)
	}
	klines, err := s.market.GetKlines(ctx, symbol, s.cfg.KlineInterval, s.RequiredDataPoints())
	if err != nil {
		return nil, fmt.Errorf("fetching klines for %s: %w", symbol, err)
	}
	return s.Build(ctx, ticker, klines)
}

// Build derives a snapshot from already fetched data.
func (s *SnapshotBuilder) Build(ctx context.Context, ticker *domain.Ticker, klines []*domain.Kline) (*domain.MarketSnapshot, error) {
	if ticker == nil {
		return nil, fmt.Errorf("%w: missing ticker", ports.ErrInsufficientData)
	}
	if need := s.RequiredDataPoints(); len(klines) < need {
		return nil, fmt.Errorf("%w: %s has %d klines, need %d", ports.ErrInsufficientData, ticker.Symbol, len(klines), need)
	}

	price := ticker.LastPrice
	if price <= 0 {
		price = klines[len(klines)-1].Close
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: no usable price for %s", ports.ErrInsufficientData, ticker.Symbol)
	}

	values := make(map[string]float64, 5)
	for name, ind := range map[string]indicators.Indicator{
		"shortMA": s.shortMA, "longMA": s.longMA, "ema": s.ema, "rsi": s.rsi, "atr": s.atr,
	} {
		v, err := ind.Calculate(ctx, klines)
		if err != nil {
			return nil, fmt.Errorf("calculating %s for %s: %w", ind.Name(), ticker.Symbol, err)
		}
		values[name] = v
	}

	atr := values["atr"]
	snap := &domain.MarketSnapshot{
		Symbol:    ticker.Symbol,
		LastPrice: price,
		BidPrice:  ticker.BidPrice,
		AskPrice:  ticker.AskPrice,
		Volume:    ticker.Volume24h,
		ATR:       atr,
		RSI:       values["rsi"],
		Trend:     classifyTrend(price, values["shortMA"], values["longMA"], values["ema"]),
		Timestamp: s.now().UTC(),
	}
	if atr > 0 {
		snap.MomentumScore = (price - values["longMA"]) / atr
		snap.Volatility = atr / price * 100
	}
	snap.Tradable = atr > 0 && snap.Trend != domain.TrendFlat

	s.logger.Debug(ctx, "Market snapshot built", ports.Fields{
		"symbol":     snap.Symbol,
		"price":      price,
		"shortMA":    values["shortMA"],
		"longMA":     values["longMA"],
		"ema":        values["ema"],
		"rsi":        snap.RSI,
		"atr":        atr,
		"momentum":   snap.MomentumScore,
		"volatility": snap.Volatility,
		"trend":      snap.Trend,
	})
	return snap, nil
}

// classifyTrend calls an uptrend when the short MA leads the long MA and
// price holds above the EMA, and the mirror image for a downtrend.
func classifyTrend(price, shortMA, longMA, ema float64) domain.TrendDirection {
	switch {
	case shortMA > longMA && price > ema:
		return domain.TrendUp
	case shortMA < longMA && price < ema:
		return domain.TrendDown
	default:
		return domain.TrendFlat
	}
}
