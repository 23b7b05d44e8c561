package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"quantumFlowBot/internal/adapters/logger"
	"quantumFlowBot/internal/ports"
)

// Supported exchanges.
const (
	ExchangeBybit   = "bybit"
	ExchangeBinance = "binance"
)

// Config holds the process-level configuration. Risk policy lives in the
// profile file referenced by RiskProfilePath.
type Config struct {
	// Exchange API
	Exchange   string // "bybit" or "binance"
	APIKey     string
	APISecret  string
	IsTestnet  bool
	Category   string // Bybit product category, e.g. "linear"
	QuoteAsset string // Asset the balance is read in, e.g. "USDT"

	// Risk profile
	RiskProfilePath string

	// Control loop
	CycleInterval        time.Duration
	LimitRefreshInterval time.Duration
	RequestTimeout       time.Duration
	WinRateWindow        int // Closed trades per instrument used for the win rate

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string // "text" or "json"

	// Metrics; empty disables the HTTP endpoint.
	MetricsAddr string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string

	// Exchange API
	cfg.Exchange = strings.ToLower(getEnv("EXCHANGE", ExchangeBybit))
	if cfg.Exchange != ExchangeBybit && cfg.Exchange != ExchangeBinance {
		errs = append(errs, fmt.Sprintf("EXCHANGE must be %q or %q, got %q", ExchangeBybit, ExchangeBinance, cfg.Exchange))
	}
	cfg.APIKey = getEnv("API_KEY", "")
	cfg.APISecret = getEnv("API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("TESTNET", true) // Default to testnet for safety
	if cfg.APIKey == "" {
		errs = append(errs, "API_KEY must be set")
	}
	if cfg.APISecret == "" {
		errs = append(errs, "API_SECRET must be set")
	}
	cfg.Category = getEnv("CATEGORY", "linear")
	cfg.QuoteAsset = getEnv("QUOTE_ASSET", "USDT")

	cfg.RiskProfilePath = getEnv("RISK_PROFILE_PATH", "config/quantumflow.yaml")

	// Control loop
	cfg.CycleInterval, err = getEnvAsDuration("CYCLE_INTERVAL", time.Minute)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CYCLE_INTERVAL: %v", err))
	} else if cfg.CycleInterval < time.Second {
		errs = append(errs, "CYCLE_INTERVAL must be at least 1s")
	}
	cfg.LimitRefreshInterval, err = getEnvAsDuration("LIMIT_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LIMIT_REFRESH_INTERVAL: %v", err))
	} else if cfg.LimitRefreshInterval <= 0 {
		errs = append(errs, "LIMIT_REFRESH_INTERVAL must be positive")
	}
	cfg.RequestTimeout, err = getEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REQUEST_TIMEOUT: %v", err))
	} else if cfg.RequestTimeout <= 0 {
		errs = append(errs, "REQUEST_TIMEOUT must be positive")
	}
	if cfg.RequestTimeout > 0 && cfg.CycleInterval > 0 && cfg.RequestTimeout >= cfg.CycleInterval {
		errs = append(errs, "REQUEST_TIMEOUT must be shorter than CYCLE_INTERVAL")
	}
	cfg.WinRateWindow, err = getEnvAsIntRequired("WIN_RATE_WINDOW", 20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid WIN_RATE_WINDOW: %v", err))
	} else if cfg.WinRateWindow <= 0 {
		errs = append(errs, "WIN_RATE_WINDOW must be positive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/quantumflow.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be 'text' or 'json'")
	}

	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: configuration validation failed: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

// getEnvAsDuration accepts Go durations ("90s", "4h") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
