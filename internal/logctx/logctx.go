package logctx

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	loggerKey      contextKey = "logger"
	transferKeyKey contextKey = "transfer_key"
)

// WithLogger returns a new context with the provided slog.Logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves the slog.Logger from the context, or returns slog.Default() if not found.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}

	return slog.Default()
}

// WithTransferKey tags the context with the correlation key of the transfer it serves.
// TraceHandler adds it to every record logged with that context.
func WithTransferKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, transferKeyKey, key)
}

// TransferKeyFromContext returns the correlation key, or "" if none was set.
func TransferKeyFromContext(ctx context.Context) string {
	if k, ok := ctx.Value(transferKeyKey).(string); ok {
		return k
	}

	return ""
}
