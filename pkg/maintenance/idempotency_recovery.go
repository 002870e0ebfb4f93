package maintenance

import (
	"context"
	"time"

	"github.com/atplabs/ledger/pkg/runner"
	"github.com/atplabs/ledger/pkg/telemetry"
)

const (
	idempotencyRecoveryInterval = 60 * time.Second
	idempotencyStaleAfter       = 5 * time.Minute
)

// idempotencyRepo is the subset of pkg/idempotency.Repository this job uses.
type idempotencyRepo interface {
	RecoverStale(ctx context.Context, staleAfter time.Duration) (int64, error)
	CleanupExpired(ctx context.Context) (int64, error)
}

// IdempotencyRecovery fails processing rows whose owner crashed more than
// idempotencyStaleAfter ago, then deletes rows past their TTL, every
// idempotencyRecoveryInterval.
type IdempotencyRecovery struct {
	tickerService
}

func NewIdempotencyRecovery(repo idempotencyRepo, logger runner.Logger, metrics *telemetry.PrometheusCollectors) *IdempotencyRecovery {
	if logger == nil {
		logger = runner.NewNoopLogger()
	}

	j := &IdempotencyRecovery{}
	j.tickerService = tickerService{
		name:     "idempotency-recovery",
		interval: idempotencyRecoveryInterval,
		logger:   logger,
		metrics:  metrics,
		run: func(ctx context.Context) {
			recovered, err := repo.RecoverStale(ctx, idempotencyStaleAfter)
			if err != nil {
				logger.Error("idempotency stale recovery failed", "error", err)
				if metrics != nil {
					metrics.MaintenanceJobErrors.WithLabelValues("idempotency-recovery").Inc()
				}
			} else if recovered > 0 {
				logger.Info("recovered stale idempotency keys", "count", recovered)
			}

			expired, err := repo.CleanupExpired(ctx)
			if err != nil {
				logger.Error("idempotency ttl cleanup failed", "error", err)
				if metrics != nil {
					metrics.MaintenanceJobErrors.WithLabelValues("idempotency-recovery").Inc()
				}
			} else if expired > 0 {
				logger.Debug("cleaned up expired idempotency keys", "count", expired)
			}
		},
	}
	return j
}

var _ runner.Service = (*IdempotencyRecovery)(nil)
