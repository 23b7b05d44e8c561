package risk

import (
	"fmt"

	"quantumFlowBot/internal/ports"
)

// TransientDataError marks a failed fetch of balance, market or position data.
// The cycle keeps the last known state and skips the affected decision.
type TransientDataError struct {
	Source string // "balance", "snapshot", "positions", "metadata"
	Symbol string // empty for account-wide data
	Err    error
}

func (e *TransientDataError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("transient %s data error for %s: %v", e.Source, e.Symbol, e.Err)
	}
	return fmt.Sprintf("transient %s data error: %v", e.Source, e.Err)
}

func (e *TransientDataError) Unwrap() error { return e.Err }

// ExecutionRejectedError wraps a refusal from the execution sink.
// It is logged and never retried within the same cycle.
type ExecutionRejectedError struct {
	Action string // "submit_order" or "modify_stop"
	Symbol string
	Err    error
}

func (e *ExecutionRejectedError) Error() string {
	return fmt.Sprintf("%s rejected for %s: %v", e.Action, e.Symbol, e.Err)
}

func (e *ExecutionRejectedError) Unwrap() error { return e.Err }

// configError wraps a configuration problem so that errors.Is(err, ports.ErrConfigurationError) holds.
func configError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ports.ErrConfigurationError, fmt.Sprintf(format, args...))
}
