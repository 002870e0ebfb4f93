package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atplabs/ledger/pkg/runner"
)

// fakeRateLimitBuckets counts DeleteOlderThan calls and can be made to fail.
type fakeRateLimitBuckets struct {
	calls   int32
	failErr error
}

func (f *fakeRateLimitBuckets) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.failErr != nil {
		return 0, f.failErr
	}
	return 3, nil
}

func TestRateLimitGC_RunsAndSweeps(t *testing.T) {
	buckets := &fakeRateLimitBuckets{}
	job := NewRateLimitGC(buckets, runner.NewNoopLogger(), nil)

	require.NoError(t, job.Start(context.Background()))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&buckets.calls) >= 1 }, time.Second, time.Millisecond)
	require.NoError(t, job.Stop(context.Background()))
}

func TestRateLimitGC_FailureDoesNotStopTheLoop(t *testing.T) {
	buckets := &fakeRateLimitBuckets{failErr: errors.New("db unavailable")}
	job := NewRateLimitGC(buckets, runner.NewNoopLogger(), nil)
	// The production 60s interval would allow only the immediate first run
	// within the one-second window below.
	job.interval = 5 * time.Millisecond

	require.NoError(t, job.Start(context.Background()))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&buckets.calls) >= 2 }, time.Second, time.Millisecond)
	require.NoError(t, job.Stop(context.Background()))
}

// fakeIdempotencyRepo implements the maintenance-local idempotencyRepo interface.
type fakeIdempotencyRepo struct {
	recoverCalls int32
	cleanupCalls int32
}

func (f *fakeIdempotencyRepo) RecoverStale(_ context.Context, _ time.Duration) (int64, error) {
	atomic.AddInt32(&f.recoverCalls, 1)
	return 1, nil
}

func (f *fakeIdempotencyRepo) CleanupExpired(_ context.Context) (int64, error) {
	atomic.AddInt32(&f.cleanupCalls, 1)
	return 2, nil
}

func TestIdempotencyRecovery_RunsBothSteps(t *testing.T) {
	repo := &fakeIdempotencyRepo{}
	job := NewIdempotencyRecovery(repo, runner.NewNoopLogger(), nil)

	require.NoError(t, job.Start(context.Background()))
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&repo.recoverCalls) >= 1 && atomic.LoadInt32(&repo.cleanupCalls) >= 1
	}, time.Second, time.Millisecond)
	require.NoError(t, job.Stop(context.Background()))
}

func TestPartitionRollover_SkipsOutsideWindow(t *testing.T) {
	var calls int32
	job := NewPartitionRollover(func(ctx context.Context, suffix string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, runner.NewNoopLogger(), nil)

	// The job's own run closure reads time.Now(), so this test only checks
	// that a job outside today's actual rollover window never calls create
	// — it is a smoke test for wiring, not a determinism test, since
	// inRolloverWindow/nextMonthSuffix already have dedicated unit tests
	// in maintenance_test.go for the date-math itself.
	require.NoError(t, job.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, job.Stop(context.Background()))

	if !inRolloverWindow(time.Now().UTC()) {
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	} else {
		assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
	}
}
