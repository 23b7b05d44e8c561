// Package metrics exposes the engine's observations in Prometheus format.
//
// Metrics:
//   - quantumflow_balance                          account balance seen by the last cycle
//   - quantumflow_trade_limit{symbol}              current daily trade limit
//   - quantumflow_trades_today{symbol}             trades opened today
//   - quantumflow_recovery_mode{mode}              1 for the active recovery mode
//   - quantumflow_compound_level                   current compounding level
//   - quantumflow_orders_total{symbol,result}      order submissions
//   - quantumflow_stop_adjustments_total{symbol,result}
//   - quantumflow_entries_denied_total{symbol,reason}
//   - quantumflow_cycle_duration_seconds           cycle latency histogram
//   - quantumflow_cycle_errors_total               cycles that ended with an error
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"quantumFlowBot/internal/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var recoveryModes = []string{"normal", "recovery", "halted"}

// Prometheus implements ports.Metrics on a dedicated registry.
type Prometheus struct {
	registry *prometheus.Registry

	balance         prometheus.Gauge
	tradeLimit      *prometheus.GaugeVec
	tradesToday     *prometheus.GaugeVec
	recoveryMode    *prometheus.GaugeVec
	compoundLevel   prometheus.Gauge
	orders          *prometheus.CounterVec
	stopAdjustments *prometheus.CounterVec
	entriesDenied   *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	cycleErrors     prometheus.Counter
}

var _ ports.Metrics = (*Prometheus)(nil)

// NewPrometheus creates the collectors and registers them on a fresh registry.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quantumflow_balance",
			Help: "Account balance seen by the last cycle.",
		}),
		tradeLimit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quantumflow_trade_limit",
			Help: "Current daily trade limit per instrument.",
		}, []string{"symbol"}),
		tradesToday: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quantumflow_trades_today",
			Help: "Trades opened today per instrument.",
		}, []string{"symbol"}),
		recoveryMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quantumflow_recovery_mode",
			Help: "Active recovery mode (1) and inactive modes (0).",
		}, []string{"mode"}),
		compoundLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quantumflow_compound_level",
			Help: "Current compounding level.",
		}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quantumflow_orders_total",
			Help: "Order submissions by instrument and result.",
		}, []string{"symbol", "result"}),
		stopAdjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quantumflow_stop_adjustments_total",
			Help: "Trailing stop modifications by instrument and result.",
		}, []string{"symbol", "result"}),
		entriesDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quantumflow_entries_denied_total",
			Help: "Denied entries by instrument and reason.",
		}, []string{"symbol", "reason"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quantumflow_cycle_duration_seconds",
			Help:    "Duration of a control cycle.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		cycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantumflow_cycle_errors_total",
			Help: "Cycles that ended with an error.",
		}),
	}
	p.registry.MustRegister(
		p.balance, p.tradeLimit, p.tradesToday, p.recoveryMode, p.compoundLevel,
		p.orders, p.stopAdjustments, p.entriesDenied, p.cycleDuration, p.cycleErrors,
	)
	return p
}

func (p *Prometheus) ObserveCycle(duration time.Duration, err error) {
	p.cycleDuration.Observe(duration.Seconds())
	if err != nil {
		p.cycleErrors.Inc()
	}
}

func (p *Prometheus) SetBalance(balance float64) { p.balance.Set(balance) }

func (p *Prometheus) SetTradeLimit(symbol string, limit int) {
	p.tradeLimit.WithLabelValues(symbol).Set(float64(limit))
}

func (p *Prometheus) SetTradesToday(symbol string, count int) {
	p.tradesToday.WithLabelValues(symbol).Set(float64(count))
}

// SetRecoveryMode flips the mode series so exactly one of them reads 1.
func (p *Prometheus) SetRecoveryMode(mode string) {
	for _, m := range recoveryModes {
		v := 0.0
		if m == mode {
			v = 1
		}
		p.recoveryMode.WithLabelValues(m).Set(v)
	}
}

func (p *Prometheus) SetCompoundLevel(level int) { p.compoundLevel.Set(float64(level)) }

func (p *Prometheus) IncOrder(symbol, result string) {
	p.orders.WithLabelValues(symbol, result).Inc()
}

func (p *Prometheus) IncStopAdjustment(symbol, result string) {
	p.stopAdjustments.WithLabelValues(symbol, result).Inc()
}

func (p *Prometheus) IncEntryDenied(symbol, reason string) {
	p.entriesDenied.WithLabelValues(symbol, reason).Inc()
}

// Handler serves the registry in the Prometheus text exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (p *Prometheus) Serve(ctx context.Context, addr string, logger ports.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "Serving metrics", ports.Fields{"addr": addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Nop discards all observations.
type Nop struct{}

var _ ports.Metrics = Nop{}

func (Nop) ObserveCycle(time.Duration, error) {}
func (Nop) SetBalance(float64)                {}
func (Nop) SetTradeLimit(string, int)         {}
func (Nop) SetTradesToday(string, int)        {}
func (Nop) SetRecoveryMode(string)            {}
func (Nop) SetCompoundLevel(int)              {}
func (Nop) IncOrder(string, string)           {}
func (Nop) IncStopAdjustment(string, string)  {}
func (Nop) IncEntryDenied(string, string)     {}
