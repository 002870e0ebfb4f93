package maintenance

import (
	"context"
	"time"

	"github.com/atplabs/ledger/pkg/runner"
	"github.com/atplabs/ledger/pkg/store"
	"github.com/atplabs/ledger/pkg/telemetry"
)

const (
	rateLimitGCInterval = 60 * time.Second
	rateLimitBucketTTL  = 2 * time.Minute
)

// RateLimitGC deletes rate-limit buckets older than rateLimitBucketTTL
// every rateLimitGCInterval.
type RateLimitGC struct {
	tickerService
}

// NewRateLimitGC constructs the job. logger defaults to a no-op logger if
// nil; metrics may be nil to disable the job-run counter.
func NewRateLimitGC(buckets store.RateLimitBucketStore, logger runner.Logger, metrics *telemetry.PrometheusCollectors) *RateLimitGC {
	if logger == nil {
		logger = runner.NewNoopLogger()
	}

	j := &RateLimitGC{}
	j.tickerService = tickerService{
		name:     "ratelimit-bucket-gc",
		interval: rateLimitGCInterval,
		logger:   logger,
		metrics:  metrics,
		run: func(ctx context.Context) {
			cutoff := time.Now().UTC().Add(-rateLimitBucketTTL)
			n, err := buckets.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				logger.Error("rate limit bucket gc failed", "error", err)
				if metrics != nil {
					metrics.MaintenanceJobErrors.WithLabelValues("ratelimit-bucket-gc").Inc()
				}
				return
			}
			if n > 0 {
				logger.Debug("rate limit bucket gc swept rows", "deleted", n)
			}
		},
	}
	return j
}

var (
	_ runner.Service = (*RateLimitGC)(nil)
)
