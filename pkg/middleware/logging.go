package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/atplabs/ledger/pkg/handlers"
)

// LoggingMiddleware logs command execution with timing information using slog.
func LoggingMiddleware(logger *slog.Logger) handlers.Middleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next handlers.HandlerFunc) handlers.HandlerFunc {
		return func(ctx context.Context, env handlers.Envelope, cmd any) (any, error) {
			start := time.Now()

			logger.InfoContext(ctx, "executing command",
				slog.String("command_type", env.CommandType),
				slog.String("command_id", env.CommandID),
				slog.String("correlation_id", env.CorrelationID),
			)

			result, err := next(ctx, env, cmd)
			duration := time.Since(start)

			if err != nil {
				logger.ErrorContext(ctx, "command execution failed",
					slog.String("command_type", env.CommandType),
					slog.String("command_id", env.CommandID),
					slog.Int64("duration_ms", duration.Milliseconds()),
					slog.String("error", err.Error()),
				)
				return nil, err
			}

			logger.InfoContext(ctx, "command executed successfully",
				slog.String("command_type", env.CommandType),
				slog.String("command_id", env.CommandID),
				slog.Int64("duration_ms", duration.Milliseconds()),
			)

			return result, nil
		}
	}
}
