// Package maintenance implements the background jobs this module runs
// alongside command handling — rate-limit bucket GC, idempotency-key
// recovery, and partition rollover — each as its own runner.Service with
// its own interval ticker.
package maintenance

import (
	"context"
	"time"

	"github.com/atplabs/ledger/pkg/runner"
	"github.com/atplabs/ledger/pkg/telemetry"
)

// loop runs fn once immediately and then every interval, until ctx is
// cancelled. Every job is independent: a failing fn logs and moves on
// rather than stopping the ticker.
func loop(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// tickerService is the common Start/Stop lifecycle shared by the three jobs
// below: each wraps one tickerService with its own name and run function.
type tickerService struct {
	name     string
	interval time.Duration
	logger   runner.Logger
	metrics  *telemetry.PrometheusCollectors // optional; nil disables the counter
	run      func(ctx context.Context)

	cancel context.CancelFunc
	done   chan struct{}
}

func (s *tickerService) Name() string { return s.name }

func (s *tickerService) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("starting maintenance job", "job", s.name, "interval", s.interval)

	run := s.run
	if s.metrics != nil {
		run = func(ctx context.Context) {
			s.metrics.MaintenanceJobRuns.WithLabelValues(s.name).Inc()
			s.run(ctx)
		}
	}

	go func() {
		defer close(s.done)
		loop(runCtx, s.interval, run)
	}()

	return nil
}

func (s *tickerService) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.logger.Info("maintenance job stopped", "job", s.name)
	return nil
}
