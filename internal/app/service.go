package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"quantumFlowBot/config"
	"quantumFlowBot/internal/domain"
	"quantumFlowBot/internal/ports"
	"quantumFlowBot/internal/risk"
	"quantumFlowBot/internal/strategy/analytics"
)

// persistTimeout bounds a state write.
const persistTimeout = 5 * time.Second

// performanceSummarizer is implemented by win-rate sources that can report
// the statistics of their window.
type performanceSummarizer interface {
	Summary(symbol string, initialBalance float64) *analytics.PerformanceMetrics
}

// TradingService runs the risk control loop: it reads the account and the
// market, opens positions the risk engine allows, and trails their stops.
type TradingService struct {
	cfg       *config.Config
	logger    ports.Logger
	engine    *risk.Engine
	exchange  ports.Exchange
	snapshots ports.MarketSnapshotSource
	winRates  ports.WinRateSource
	store     ports.StateStore
	metrics   ports.Metrics

	cycleMu sync.Mutex // Serializes cycles

	// State fields
	mu             sync.Mutex // Protects everything below and the engine's limit cache
	state          risk.EngineState
	lastPositions  map[string]domain.OpenPosition
	positionsKnown bool
	recorded       map[string]struct{} // Open positions whose outcome was reported through RecordTradeOutcome
	autoClosed     map[string]struct{} // Positions whose outcome was inferred from the position diff
}

// NewTradingService creates a new application service instance.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	engine *risk.Engine,
	exchange ports.Exchange,
	snapshots ports.MarketSnapshotSource,
	winRates ports.WinRateSource,
	store ports.StateStore,
	metrics ports.Metrics,
) (*TradingService, error) {
	if cfg == nil || logger == nil || engine == nil || exchange == nil || snapshots == nil ||
		winRates == nil || store == nil || metrics == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if cfg.CycleInterval <= 0 {
		return nil, fmt.Errorf("%w: cycle interval must be positive", ports.ErrConfigurationError)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("%w: request timeout must be positive", ports.ErrConfigurationError)
	}

	return &TradingService{
		cfg:           cfg,
		logger:        logger,
		engine:        engine,
		exchange:      exchange,
		snapshots:     snapshots,
		winRates:      winRates,
		store:         store,
		metrics:       metrics,
		state:         engine.InitialState(time.Now().UTC()),
		lastPositions: make(map[string]domain.OpenPosition),
		recorded:      make(map[string]struct{}),
		autoClosed:    make(map[string]struct{}),
	}, nil
}

// Start restores persisted state and runs cycles until ctx is cancelled or
// the process receives SIGINT/SIGTERM.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...")

	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", ports.Fields{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	// --- Initialization Steps ---
	pingCtx, pingCancel := s.requestContext(ctx)
	err := s.exchange.Ping(pingCtx)
	pingCancel()
	if err != nil {
		s.logger.Error(ctx, err, "Failed to reach exchange")
		return fmt.Errorf("exchange connectivity check failed: %w", err)
	}
	s.logger.Info(ctx, "Exchange reachable")

	if err := s.Restore(ctx); err != nil {
		return err
	}

	// --- Main Loop ---
	ticker := time.NewTicker(s.cfg.CycleInterval)
	defer ticker.Stop()

	s.runLoggedCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")
			s.persist(ctx, time.Now().UTC())
			s.logger.Info(ctx, "Trading Service stopped.")
			return nil
		case <-ticker.C:
			s.runLoggedCycle(ctx)
		}
	}
}

// Restore loads the persisted engine state, if any.
func (s *TradingService) Restore(ctx context.Context) error {
	persisted, err := s.store.LoadState(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load persisted risk state")
		return fmt.Errorf("failed to load risk state: %w", err)
	}
	if persisted == nil {
		s.logger.Info(ctx, "No persisted risk state found, starting fresh")
		return nil
	}

	s.mu.Lock()
	s.state = s.state.Restore(*persisted)
	st := s.state
	s.mu.Unlock()

	s.logger.Info(ctx, "Risk state restored", ports.Fields{
		"recoveryMode":      st.Recovery.Mode,
		"consecutiveLosses": st.Recovery.ConsecutiveLosses,
		"compoundLevel":     st.Compound.Level,
		"counterDay":        st.Counters.Day.Format("2006-01-02"),
		"savedAt":           persisted.UpdatedAt,
	})
	return nil
}

func (s *TradingService) runLoggedCycle(ctx context.Context) {
	if err := s.RunCycle(ctx, time.Now()); err != nil {
		s.logger.Warn(ctx, "Cycle finished with errors", ports.Fields{"error": err.Error()})
	}
}

// RunCycle executes one control cycle at now. Per-instrument failures are
// logged and never abort the cycle; the returned error joins the
// account-level failures (balance and positions).
func (s *TradingService) RunCycle(ctx context.Context, now time.Time) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	started := time.Now()
	err := s.runCycle(ctx, now.UTC())
	s.metrics.ObserveCycle(time.Since(started), err)
	return err
}

func (s *TradingService) runCycle(ctx context.Context, now time.Time) error {
	s.update(func(st risk.EngineState) risk.EngineState {
		next, reset := s.engine.StartCycle(st, now)
		if reset {
			s.logger.Info(ctx, "Daily trade counters reset", ports.Fields{"day": next.Counters.Day.Format("2006-01-02")})
		}
		return next
	})

	var errs []error
	balanceErr := s.refreshBalance(ctx, now)
	if balanceErr != nil {
		errs = append(errs, balanceErr)
	}

	positions, posErr := s.syncPositions(ctx, now)
	if posErr != nil {
		errs = append(errs, posErr)
		s.logger.Warn(ctx, "Open positions unavailable, skipping stop management and entries", ports.Fields{"error": posErr.Error()})
	} else {
		s.trailStops(ctx, positions, now)
	}

	switch {
	case posErr != nil:
	case balanceErr != nil:
		s.logger.Warn(ctx, "Balance unavailable, skipping entries this cycle")
	default:
		s.evaluateEntries(ctx, positions, now)
	}

	s.publishMetrics()
	s.persist(ctx, now)
	return errors.Join(errs...)
}

// refreshBalance reads the balance and recomputes the trade limits when due.
// A failed read leaves the previous balance and limits untouched.
func (s *TradingService) refreshBalance(ctx context.Context, now time.Time) error {
	callCtx, cancel := s.requestContext(ctx)
	balance, err := s.exchange.GetBalance(callCtx)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		s.state = s.engine.ApplyBalance(s.state, balance, now)
	}
	changed, refreshErr := s.engine.Limits.Refresh(now, balance, err)
	if refreshErr != nil {
		s.logger.Warn(ctx, "Balance read failed, keeping previous limits", ports.Fields{"error": refreshErr.Error()})
		return refreshErr
	}
	if changed {
		tier := s.engine.Limits.Tier()
		s.logger.Info(ctx, "Trade limits updated", ports.Fields{
			"balance":       balance,
			"tierThreshold": tier.Threshold,
			"tierMaxTrades": tier.MaxTrades,
			"limits":        s.engine.Limits.Limits(),
		})
	}
	return nil
}

// syncPositions fetches the open positions and turns every position that
// disappeared since the previous cycle into a closed trade.
func (s *TradingService) syncPositions(ctx context.Context, now time.Time) ([]domain.OpenPosition, error) {
	callCtx, cancel := s.requestContext(ctx)
	positions, err := s.exchange.GetOpenPositions(callCtx)
	cancel()
	if err != nil {
		return nil, &risk.TransientDataError{Source: "positions", Err: err}
	}

	current := make(map[string]domain.OpenPosition, len(positions))
	open := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		current[p.ID] = p
		open[p.ID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.positionsKnown {
		for id, prev := range s.lastPositions {
			if _, stillOpen := current[id]; stillOpen {
				continue
			}
			if _, done := s.recorded[id]; done {
				delete(s.recorded, id)
				continue
			}
			s.applyOutcomeLocked(ctx, closedTrade(prev, now), now)
			s.autoClosed[id] = struct{}{}
		}
	}
	for id := range current {
		delete(s.autoClosed, id)
	}
	s.lastPositions = current
	s.positionsKnown = true
	s.state.Trailing = s.state.Trailing.Retain(open)
	return positions, nil
}

// RecordTradeOutcome applies a closed trade reported by the execution layer.
// A trade already inferred from the position diff is not applied twice.
func (s *TradingService) RecordTradeOutcome(ctx context.Context, trade domain.Trade) error {
	if trade.Symbol == "" {
		return fmt.Errorf("%w: trade outcome without symbol", ports.ErrInvalidRequest)
	}
	now := time.Now().UTC()
	if trade.ExitTime.IsZero() {
		trade.ExitTime = now
	}

	s.mu.Lock()
	if id := trade.PositionID; id != "" {
		if _, done := s.autoClosed[id]; done {
			delete(s.autoClosed, id)
			s.mu.Unlock()
			s.logger.Debug(ctx, "Trade outcome already applied from position sync", ports.Fields{"positionID": id})
			return nil
		}
		if _, open := s.lastPositions[id]; open {
			s.recorded[id] = struct{}{}
		}
	}
	s.applyOutcomeLocked(ctx, trade, trade.ExitTime)
	s.mu.Unlock()

	s.persist(ctx, now)
	return nil
}

// applyOutcomeLocked feeds trade to the engine and the win-rate source.
// NOTE: the caller must hold s.mu.
func (s *TradingService) applyOutcomeLocked(ctx context.Context, trade domain.Trade, now time.Time) {
	before := s.state
	s.state = s.engine.ApplyTradeOutcome(s.state, trade, now)
	s.winRates.RecordTrade(trade)

	s.logger.Info(ctx, "Trade outcome applied", ports.Fields{
		"positionID":        trade.PositionID,
		"symbol":            trade.Symbol,
		"side":              trade.Side,
		"pnl":               trade.PNL,
		"reason":            trade.CloseReason,
		"consecutiveLosses": s.state.Recovery.ConsecutiveLosses,
		"compoundLevel":     s.state.Compound.Level,
	})
	if before.Recovery.Mode != s.state.Recovery.Mode {
		s.logger.Warn(ctx, "Recovery mode changed", ports.Fields{
			"from":         before.Recovery.Mode,
			"to":           s.state.Recovery.Mode,
			"coolOffUntil": s.state.Recovery.CoolOffUntil,
		})
	}
	if before.Compound.Level != s.state.Compound.Level {
		s.logger.Info(ctx, "Compound level changed", ports.Fields{"from": before.Compound.Level, "to": s.state.Compound.Level})
	}
	if ps, ok := s.winRates.(performanceSummarizer); ok {
		m := ps.Summary(trade.Symbol, 0)
		s.logger.Debug(ctx, "Instrument performance", ports.Fields{
			"symbol":       trade.Symbol,
			"trades":       m.TotalTrades,
			"winRate":      m.WinRate,
			"profit":       m.TotalProfit,
			"profitFactor": m.ProfitFactor,
			"expectancy":   m.Expectancy,
		})
	}
}

// closedTrade builds the outcome of a position that is no longer reported.
// The realized PnL is approximated by the last unrealized PnL seen.
func closedTrade(p domain.OpenPosition, now time.Time) domain.Trade {
	return domain.Trade{
		PositionID:  p.ID,
		Symbol:      p.Symbol,
		Side:        p.Side,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   p.MarkPrice,
		Quantity:    p.Size,
		PNL:         p.UnrealizedPNL,
		ExitTime:    now,
		CloseReason: inferCloseReason(p),
	}
}

func inferCloseReason(p domain.OpenPosition) domain.CloseReason {
	switch {
	case p.UnrealizedPNL < 0 && p.HasStop():
		return domain.CloseReasonStopLoss
	case p.UnrealizedPNL > 0 && p.TakeProfit > 0:
		return domain.CloseReasonTakeProfit
	default:
		return domain.CloseReasonUnknown
	}
}

// trailStops tightens the stops of open positions that moved far enough in
// their favour.
func (s *TradingService) trailStops(ctx context.Context, positions []domain.OpenPosition, now time.Time) {
	op := "trailStops"
	for _, pos := range positions {
		if ctx.Err() != nil {
			return
		}
		if pos.MarkPrice <= 0 {
			continue
		}

		callCtx, cancel := s.requestContext(ctx)
		tick, err := s.exchange.GetTickSize(callCtx, pos.Symbol)
		cancel()
		if err != nil {
			s.logger.Warn(ctx, op+": Tick size unavailable, leaving stop unchanged", ports.Fields{"symbol": pos.Symbol, "error": err.Error()})
			continue
		}

		s.mu.Lock()
		trailing := s.state.Trailing.Clone()
		s.mu.Unlock()

		intent, ok := s.engine.Trailing.Evaluate(pos, pos.MarkPrice, tick, trailing, now)
		if !ok {
			continue
		}

		s.update(func(st risk.EngineState) risk.EngineState {
			next := st.AddStop(intent)
			next.Trailing = next.Trailing.MarkEmitted(pos.ID, intent.NewStop)
			return next
		})
		s.logger.Info(ctx, op+": Tightening stop", ports.Fields{
			"intentID":   intent.ID,
			"positionID": pos.ID,
			"symbol":     pos.Symbol,
			"oldStop":    intent.OldStop,
			"newStop":    intent.NewStop,
			"price":      intent.Price,
		})

		callCtx, cancel = s.requestContext(ctx)
		err = s.exchange.ModifyStop(callCtx, intent)
		cancel()
		if err != nil {
			rejected := &risk.ExecutionRejectedError{Action: "modify_stop", Symbol: pos.Symbol, Err: err}
			s.logger.Error(ctx, rejected, op+": Stop modification rejected", ports.Fields{"intentID": intent.ID})
			s.update(func(st risk.EngineState) risk.EngineState {
				next := st.ResolveStop(intent.ID, domain.IntentRejected, err.Error())
				next.Trailing = next.Trailing.ClearEmitted(pos.ID)
				return next
			})
			s.metrics.IncStopAdjustment(pos.Symbol, string(domain.IntentRejected))
			continue
		}
		s.update(func(st risk.EngineState) risk.EngineState {
			return st.ResolveStop(intent.ID, domain.IntentApplied, "")
		})
		s.metrics.IncStopAdjustment(pos.Symbol, string(domain.IntentApplied))
	}
}

// evaluateEntries runs the entry pipeline for every configured instrument.
func (s *TradingService) evaluateEntries(ctx context.Context, positions []domain.OpenPosition, now time.Time) {
	openSymbols := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		openSymbols[p.Symbol] = struct{}{}
	}

	s.mu.Lock()
	guard := s.engine.Guards.Check(s.state.Guards, s.state.Balance)
	s.mu.Unlock()
	if !guard.Allowed {
		s.logger.Warn(ctx, "Account guard tripped, no new entries", ports.Fields{"reason": guard.Reason, "detail": guard.Detail})
		for _, inst := range s.engine.Instruments {
			s.metrics.IncEntryDenied(inst.Symbol, string(guard.Reason))
		}
		return
	}

	for _, inst := range s.engine.Instruments {
		if ctx.Err() != nil {
			return
		}
		if _, open := openSymbols[inst.Symbol]; open {
			s.logger.Debug(ctx, "Position already open, skipping entry", ports.Fields{"symbol": inst.Symbol})
			s.metrics.IncEntryDenied(inst.Symbol, string(risk.DenyPositionOpen))
			continue
		}
		s.evaluateEntry(ctx, inst, now)
	}
}

// evaluateEntry gates, sizes and submits one candidate trade.
func (s *TradingService) evaluateEntry(ctx context.Context, inst domain.InstrumentConfig, now time.Time) {
	op := "evaluateEntry"
	symbol := inst.Symbol

	callCtx, cancel := s.requestContext(ctx)
	snap, err := s.snapshots.GetSnapshot(callCtx, symbol)
	cancel()
	if err != nil {
		s.logger.Warn(ctx, op+": Market snapshot unavailable", ports.Fields{
			"symbol": symbol,
			"error":  (&risk.TransientDataError{Source: "snapshot", Symbol: symbol, Err: err}).Error(),
		})
		snap = nil
	}

	// A flat trend has no side; the validator reports the mismatch.
	side := domain.Long
	if snap != nil {
		if trendSide, ok := snap.Trend.Side(); ok {
			side = trendSide
		}
	}

	callCtx, cancel = s.requestContext(ctx)
	tick, tickErr := s.exchange.GetTickSize(callCtx, symbol)
	cancel()

	s.mu.Lock()
	st := s.state.Clone()
	limits := s.engine.Limits.Limits()
	s.mu.Unlock()

	decision := s.engine.Validator.Validate(risk.EntryRequest{
		Instrument: inst,
		Side:       side,
		Snapshot:   snap,
		TickSize:   tick,
		TickErr:    tickErr,
		Count:      st.Counters.Count(symbol),
		Limits:     limits,
		Recovery:   st.Recovery,
		Now:        now,
	})
	if !decision.Allowed {
		s.logger.Debug(ctx, op+": Entry denied", ports.Fields{"symbol": symbol, "reason": decision.Reason, "detail": decision.Detail})
		s.metrics.IncEntryDenied(symbol, string(decision.Reason))
		return
	}

	levels, err := risk.Levels(side, snap.LastPrice, snap.ATR, inst.Risk)
	if err != nil {
		s.logger.Warn(ctx, op+": Cannot derive protective levels", ports.Fields{"symbol": symbol, "error": err.Error()})
		s.metrics.IncEntryDenied(symbol, string(risk.DenyInvalidRequest))
		return
	}
	levels = risk.RoundLevels(side, levels, tick)
	stopDistance := levels.StopDistance(snap.LastPrice)

	winRate, winRateErr := s.winRates.WinRate(symbol)

	callCtx, cancel = s.requestContext(ctx)
	minQty, minErr := s.exchange.GetMinOrderSize(callCtx, symbol)
	cancel()
	lotStep := 0.0
	if minErr == nil {
		lotStep = minQty
	} else {
		s.logger.Warn(ctx, op+": Minimum order size unavailable, rounding to lot precision", ports.Fields{"symbol": symbol, "error": minErr.Error()})
	}

	sizing := s.engine.Sizer.Size(risk.SizingInput{
		Instrument: inst,
		BaseLot:    s.engine.Sizer.OptimalLot(st.Balance, stopDistance),
		Balance:    st.Balance,
		WinRate:    winRate,
		WinRateErr: winRateErr,
		Snapshot:   snap,
		LotStep:    lotStep,
		Recovery:   st.Recovery,
		Compound:   st.Compound,
	})
	if sizing.Fallback {
		s.logger.Warn(ctx, op+": Sizing fell back to base lot", ports.Fields{"symbol": symbol, "reason": sizing.FallbackReason})
	}
	if minErr == nil && sizing.Size < minQty {
		s.logger.Info(ctx, op+": Size below exchange minimum, skipping entry", ports.Fields{"symbol": symbol, "size": sizing.Size, "minQty": minQty})
		s.metrics.IncEntryDenied(symbol, "below_min_order_size")
		return
	}

	if ctx.Err() != nil {
		return
	}
	intent := domain.OrderIntent{
		Symbol:     symbol,
		Side:       side,
		Size:       sizing.Size,
		EntryPrice: snap.LastPrice,
		StopLoss:   levels.StopLoss,
		TakeProfit: levels.TakeProfit,
	}
	s.logger.Info(ctx, op+": Submitting order", ports.Fields{
		"symbol":     symbol,
		"side":       side,
		"size":       intent.Size,
		"entryPrice": intent.EntryPrice,
		"stopLoss":   intent.StopLoss,
		"takeProfit": intent.TakeProfit,
		"multiplier": sizing.Multiplier,
		"winRate":    winRate,
	})

	callCtx, cancel = s.requestContext(ctx)
	result, err := s.exchange.SubmitOrder(callCtx, intent)
	cancel()
	if err != nil {
		rejected := &risk.ExecutionRejectedError{Action: "submit_order", Symbol: symbol, Err: err}
		s.logger.Error(ctx, rejected, op+": Order rejected")
		s.metrics.IncOrder(symbol, "rejected")
		return
	}

	s.update(func(st risk.EngineState) risk.EngineState {
		return s.engine.ApplyEntry(st, domain.PositionKey(symbol, side), symbol, stopDistance)
	})
	s.metrics.IncOrder(symbol, "submitted")
	fields := ports.Fields{"symbol": symbol, "side": side}
	if result != nil {
		fields["orderID"] = result.OrderID
		fields["clientOrderID"] = result.ClientOrderID
		fields["avgPrice"] = result.AvgPrice
	}
	s.logger.Info(ctx, op+": Order placed", fields)
}

// Status returns a deep copy of the engine's reporting view.
func (s *TradingService) Status() risk.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Status(s.state)
}

func (s *TradingService) publishMetrics() {
	st := s.Status()
	s.metrics.SetBalance(st.Balance)
	s.metrics.SetRecoveryMode(string(st.Recovery.Mode))
	s.metrics.SetCompoundLevel(st.Compound.Level)
	for _, inst := range s.engine.Instruments {
		s.metrics.SetTradesToday(inst.Symbol, st.Counters.Count(inst.Symbol))
		if limit, ok := st.Limits.Limit(inst.Symbol); ok {
			s.metrics.SetTradeLimit(inst.Symbol, limit)
		}
	}
}

// persist writes the restart-relevant state. It outlives a cancelled ctx so
// the final write on shutdown still happens. Failures are logged only.
func (s *TradingService) persist(ctx context.Context, now time.Time) {
	s.mu.Lock()
	persisted := s.state.Persisted(now)
	s.mu.Unlock()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.store.SaveState(saveCtx, persisted); err != nil {
		s.logger.Error(ctx, err, "Failed to persist risk state")
	}
}

// update applies fn to the state under the lock.
func (s *TradingService) update(fn func(risk.EngineState) risk.EngineState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = fn(s.state)
}

func (s *TradingService) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}
