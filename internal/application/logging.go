package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/appointment-engine/internal/logging"
	"github.com/example/appointment-engine/internal/recurrence"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and typed errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var (
		conflictErr *ConflictError
		staleErr    *StaleError
		stateErr    *InvalidStateError
		ruleErr     *recurrence.RuleError
		vErr        *ValidationError
	)
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &conflictErr):
		return "conflict"
	case errors.As(err, &staleErr):
		return "stale"
	case errors.As(err, &stateErr):
		return "invalid_state"
	case errors.As(err, &ruleErr):
		return "invalid_rule"
	case errors.As(err, &vErr):
		return "validation"
	}
	return "unexpected"
}
