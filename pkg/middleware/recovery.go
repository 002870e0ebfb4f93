package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/atplabs/ledger/pkg/handlers"
)

// RecoveryMiddleware recovers from panics in command handlers.
func RecoveryMiddleware(logger *slog.Logger) handlers.Middleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next handlers.HandlerFunc) handlers.HandlerFunc {
		return func(ctx context.Context, env handlers.Envelope, cmd any) (result any, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "command handler panicked",
						slog.String("command_id", env.CommandID),
						slog.String("command_type", env.CommandType),
						slog.Any("panic", r),
						slog.String("stack_trace", string(debug.Stack())),
					)
					err = fmt.Errorf("command handler panicked: %v", r)
					result = nil
				}
			}()

			return next(ctx, env, cmd)
		}
	}
}
