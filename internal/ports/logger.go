package ports

import "context"

// Fields carries structured key/value pairs attached to a log line.
type Fields = map[string]interface{}

// Logger defines the logging interface used across the bot.
// Implementations live in internal/adapters/logger (text and zap/JSON).
type Logger interface {
	// Debug logs a message at Debug level.
	Debug(ctx context.Context, msg string, fields ...Fields)
	// Info logs a message at Info level.
	Info(ctx context.Context, msg string, fields ...Fields)
	// Warn logs a message at Warning level.
	Warn(ctx context.Context, msg string, fields ...Fields)
	// Error logs an error message at Error level.
	Error(ctx context.Context, err error, msg string, fields ...Fields)
}

// NopLogger discards everything. Useful for tests and optional components.
type NopLogger struct{}

func (NopLogger) Debug(ctx context.Context, msg string, fields ...Fields)            {}
func (NopLogger) Info(ctx context.Context, msg string, fields ...Fields)             {}
func (NopLogger) Warn(ctx context.Context, msg string, fields ...Fields)             {}
func (NopLogger) Error(ctx context.Context, err error, msg string, fields ...Fields) {}
