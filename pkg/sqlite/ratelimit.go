package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RateLimitBucketStore implements store.RateLimitBucketStore. The bucket
// rows themselves are written by the out-of-scope HTTP rate limiter;
// this module only garbage-collects them.
type RateLimitBucketStore struct {
	db *sql.DB
}

func NewRateLimitBucketStore(db *sql.DB) *RateLimitBucketStore {
	return &RateLimitBucketStore{db: db}
}

func (r *RateLimitBucketStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rate_limit_buckets WHERE window_start < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale rate limit buckets: %w", err)
	}
	return res.RowsAffected()
}
