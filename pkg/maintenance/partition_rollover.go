package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/atplabs/ledger/pkg/runner"
	"github.com/atplabs/ledger/pkg/telemetry"
)

const partitionRolloverInterval = 3600 * time.Second

// partitionCreator is the subset of pkg/sqlite's CreateMonthlyPartitions the
// job needs — kept as a func type rather than an interface since sqlite's
// function is free-standing, not a method on a store type.
type partitionCreator func(ctx context.Context, suffix string) error

// PartitionRollover pre-creates next month's events/ledger_entries sibling
// tables during the last 3 days of the current month, every
// partitionRolloverInterval. It is safe to run more than once in the
// rollover window: creation is idempotent (CREATE TABLE IF NOT EXISTS).
type PartitionRollover struct {
	tickerService
}

func NewPartitionRollover(create partitionCreator, logger runner.Logger, metrics *telemetry.PrometheusCollectors) *PartitionRollover {
	if logger == nil {
		logger = runner.NewNoopLogger()
	}

	j := &PartitionRollover{}
	j.tickerService = tickerService{
		name:     "partition-rollover",
		interval: partitionRolloverInterval,
		logger:   logger,
		metrics:  metrics,
		run: func(ctx context.Context) {
			now := time.Now().UTC()
			if !inRolloverWindow(now) {
				return
			}
			suffix := nextMonthSuffix(now)
			if err := create(ctx, suffix); err != nil {
				logger.Error("partition rollover failed", "error", err, "suffix", suffix)
				if metrics != nil {
					metrics.MaintenanceJobErrors.WithLabelValues("partition-rollover").Inc()
				}
				return
			}
			logger.Info("created next-month partitions", "suffix", suffix)
		},
	}
	return j
}

// inRolloverWindow reports whether now falls within the last 3 days of its month.
func inRolloverWindow(now time.Time) bool {
	firstOfNextMonth := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	daysRemaining := firstOfNextMonth.Sub(now.Truncate(24 * time.Hour))
	return daysRemaining <= 3*24*time.Hour
}

// nextMonthSuffix returns the YYYY_MM suffix for the month following now.
func nextMonthSuffix(now time.Time) string {
	next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return fmt.Sprintf("%04d_%02d", next.Year(), int(next.Month()))
}

var _ runner.Service = (*PartitionRollover)(nil)
