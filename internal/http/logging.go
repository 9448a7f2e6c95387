package http

import (
	"log/slog"
	"net/http"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// requestLogger prefers the logger RequestLogger stored on the request and tags
// it with the handler, the operation and the {id} path value when present.
func requestLogger(r *http.Request, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	logger := LoggerFromContext(r.Context())
	if logger == nil {
		logger = defaultLogger(fallback)
	}

	pairs := []any{"handler", handlerName, "operation", operation}
	if id := r.PathValue("id"); id != "" {
		pairs = append(pairs, "resource_id", id)
	}
	return logger.With(append(pairs, attrs...)...)
}
