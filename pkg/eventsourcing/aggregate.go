// Package eventsourcing provides small, aggregate-agnostic building blocks
// shared by every aggregate and store in this module: a generic fold over
// an event stream (Repository[T]) and a retry helper for optimistic
// concurrency conflicts. It deliberately holds no storage or transport
// code — those contracts live in pkg/store.
package eventsourcing

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Repository folds a stream of events into an aggregate of type T without
// any type switch or dynamic dispatch at the call site — callers supply
// Factory/Apply once per aggregate type (see pkg/domain's Account.Apply
// and User.Apply) and every load, whether starting fresh or resuming from
// a snapshot, goes through the same generic path.
type Repository[T any, E any] struct {
	// Factory builds the zero-value aggregate before any event is folded.
	Factory func() T
	// Apply folds one event into the aggregate, returning the next state.
	Apply func(T, E) T
}

// NewRepository constructs a Repository for aggregate type T over events
// of type E.
func NewRepository[T any, E any](factory func() T, apply func(T, E) T) Repository[T, E] {
	return Repository[T, E]{Factory: factory, Apply: apply}
}

// Load folds events onto a freshly constructed aggregate.
func (r Repository[T, E]) Load(events []E) T {
	return r.LoadFrom(r.Factory(), events)
}

// LoadFrom folds events onto base, which may already carry state restored
// from a snapshot — the fold itself doesn't care whether the aggregate
// started at zero or mid-stream.
func (r Repository[T, E]) LoadFrom(base T, events []E) T {
	agg := base
	for _, e := range events {
		agg = r.Apply(agg, e)
	}
	return agg
}

// linearBackOff grows by unit per failed attempt (unit, 2*unit, 3*unit,
// ...), the schedule optimistic-concurrency conflicts on an aggregate
// append are retried under.
type linearBackOff struct {
	unit    time.Duration
	attempt uint
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.unit * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// Retry runs fn up to maxAttempts times, retrying only while
// shouldRetry(err) is true, sleeping unit*attempt between tries.
// cenkalti/backoff/v4 drives the loop and the sleeping; shouldRetry's
// false turns an error permanent so backoff.Retry stops immediately
// instead of exhausting the remaining attempts.
func Retry(maxAttempts int, unit time.Duration, shouldRetry func(error) bool, fn func(attempt int) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if !shouldRetry(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithMaxRetries(&linearBackOff{unit: unit}, uint64(maxAttempts-1))
	err := backoff.Retry(operation, policy)
	if err == nil {
		return nil
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	return err
}
