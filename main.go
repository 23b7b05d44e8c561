package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"quantumFlowBot/config"
	"quantumFlowBot/internal/adapters/binanceclient"
	"quantumFlowBot/internal/adapters/bybitclient"
	"quantumFlowBot/internal/adapters/logger"
	"quantumFlowBot/internal/adapters/metrics"
	"quantumFlowBot/internal/adapters/sqlite"
	"quantumFlowBot/internal/app"
	"quantumFlowBot/internal/ports"
	"quantumFlowBot/internal/risk"
	"quantumFlowBot/internal/strategy"
	"quantumFlowBot/internal/strategy/analytics"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(cfg.LogFormat, cfg.LogLevel.String())
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	if zl, ok := appLogger.(*logger.ZapLogger); ok {
		defer func() { _ = zl.Sync() }()
	}
	appLogger.Info(ctx, "Logger initialized", ports.Fields{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Load the risk profile and build the engine
	profile, err := config.LoadProfile(cfg.RiskProfilePath, cfg.LimitRefreshInterval)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load risk profile", ports.Fields{"path": cfg.RiskProfilePath})
		log.Fatalf("FATAL: Failed to load risk profile: %v", err)
	}
	engine, err := risk.NewEngine(profile.Risk)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Invalid risk configuration")
		log.Fatalf("FATAL: Invalid risk configuration: %v", err)
	}
	appLogger.Info(ctx, "Risk engine initialized", ports.Fields{
		"instruments": profile.Symbols(),
		"tiers":       len(profile.Risk.Tiers),
		"simple":      profile.Simple,
		"recovery":    profile.Risk.Recovery.Enabled,
		"compound":    profile.Risk.Compound.Enabled,
	})

	// 4. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized")

	// 5. Initialize Exchange Client
	exchange, err := newExchange(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize exchange client")
		log.Fatalf("FATAL: Failed to initialize exchange client: %v", err)
	}
	appLogger.Info(ctx, "Exchange client initialized", ports.Fields{"exchange": cfg.Exchange, "testnet": cfg.IsTestnet})

	// 6. Initialize Market Snapshot Builder
	snapshots, err := strategy.New(profile.Strategy, exchange, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize market snapshot builder")
		log.Fatalf("FATAL: Failed to initialize market snapshot builder: %v", err)
	}

	// 7. Metrics
	var sink ports.Metrics = metrics.Nop{}
	runCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	if cfg.MetricsAddr != "" {
		prom := metrics.NewPrometheus()
		sink = prom
		go func() {
			if err := prom.Serve(runCtx, cfg.MetricsAddr, appLogger); err != nil {
				appLogger.Error(ctx, err, "Metrics server stopped")
			}
		}()
	}

	// 8. Initialize Application Service
	tradingService, err := app.NewTradingService(
		cfg,
		appLogger,
		engine,
		exchange,
		snapshots,
		analytics.NewWinRateTracker(cfg.WinRateWindow),
		repo,
		sink,
	)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(ctx, "Trading service initialized")

	// 9. Start the Service
	if err := tradingService.Start(runCtx); err != nil {
		appLogger.Error(ctx, err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}

// newExchange builds the adapter selected by EXCHANGE.
func newExchange(cfg *config.Config, appLogger ports.Logger) (ports.Exchange, error) {
	if cfg.Exchange == config.ExchangeBinance {
		return binanceclient.New(binanceclient.Config{
			APIKey:     cfg.APIKey,
			SecretKey:  cfg.APISecret,
			UseTestnet: cfg.IsTestnet,
			QuoteAsset: cfg.QuoteAsset,
			Logger:     appLogger,
		})
	}
	return bybitclient.New(bybitclient.Config{
		APIKey:     cfg.APIKey,
		APISecret:  cfg.APISecret,
		Testnet:    cfg.IsTestnet,
		Category:   cfg.Category,
		QuoteAsset: cfg.QuoteAsset,
		Logger:     appLogger,
	})
}
