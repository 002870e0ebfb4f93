package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atplabs/ledger/pkg/domain"
	"github.com/atplabs/ledger/pkg/eventsourcing"
	"github.com/atplabs/ledger/pkg/store"
)

// IdempotencyStore implements store.IdempotencyStore. EventStore's own
// AppendAtomic owns the completed/processing/failed check inline
// (EventStore.checkIdempotency); this type backs the repository-level
// operations pkg/idempotency needs on top of that: start, complete,
// fail, get, cleanup.
type IdempotencyStore struct {
	db *sql.DB
}

func NewIdempotencyStore(db *sql.DB) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

func (s *IdempotencyStore) Get(ctx context.Context, key uuid.UUID) (*store.IdempotencyRecord, error) {
	var r store.IdempotencyRecord
	var keyStr string
	var eventID, respBody sql.NullString
	var respStatus sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT key, request_hash, processing_status, event_id, response_status, response_body, processing_started_at, created_at, expires_at
		 FROM idempotency_keys WHERE key = ?`, key.String(),
	).Scan(&keyStr, &r.RequestHash, &r.Status, &eventID, &respStatus, &respBody, &r.ProcessingStartedAt, &r.CreatedAt, &r.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	r.Key = key
	if eventID.Valid {
		r.EventID = &eventID.String
	}
	if respStatus.Valid {
		v := int(respStatus.Int64)
		r.ResponseStatus = &v
	}
	if respBody.Valid {
		r.ResponseBody = []byte(respBody.String)
	}
	return &r, nil
}

// StartProcessing creates a fresh row, or resurrects a stale/failed one.
// A completed row with a different request_hash is rejected outright —
// the same key must never dedupe two distinct requests.
func (s *IdempotencyStore) StartProcessing(ctx context.Context, key uuid.UUID, requestHash string, ttl time.Duration) (*store.IdempotencyRecord, error) {
	now := eventsourcing.Now()
	existing, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == store.IdempotencyCompleted {
		if existing.RequestHash != requestHash {
			return nil, domain.ErrHashMismatch
		}
		return existing, nil
	}
	if existing != nil && existing.Status == store.IdempotencyProcessing && now.Sub(existing.ProcessingStartedAt) < staleProcessingWindow {
		return nil, domain.ErrKeyInProgress
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (key, request_hash, processing_status, processing_started_at, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET request_hash = excluded.request_hash, processing_status = excluded.processing_status, processing_started_at = excluded.processing_started_at`,
		key.String(), requestHash, store.IdempotencyProcessing, now, now, now.Add(ttl),
	)
	if err != nil {
		return nil, fmt.Errorf("start processing: %w", err)
	}
	return s.Get(ctx, key)
}

func (s *IdempotencyStore) MarkCompleted(ctx context.Context, key uuid.UUID, eventID string, responseStatus int, responseBody []byte) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE idempotency_keys SET processing_status = ?, event_id = ?, response_status = ?, response_body = ? WHERE key = ?`,
		store.IdempotencyCompleted, eventID, responseStatus, responseBody, key.String(),
	)
	return err
}

func (s *IdempotencyStore) MarkFailed(ctx context.Context, key uuid.UUID, responseStatus *int, responseBody []byte) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE idempotency_keys SET processing_status = ?, response_status = ?, response_body = ? WHERE key = ?`,
		store.IdempotencyFailed, responseStatus, responseBody, key.String(),
	)
	return err
}

func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE expires_at < ?`, eventsourcing.Now())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired: %w", err)
	}
	return res.RowsAffected()
}

func (s *IdempotencyStore) RecoverStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	cutoff := eventsourcing.Now().Add(-staleAfter)
	res, err := s.db.ExecContext(ctx,
		`UPDATE idempotency_keys SET processing_status = ? WHERE processing_status = ? AND processing_started_at < ?`,
		store.IdempotencyFailed, store.IdempotencyProcessing, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("recover stale: %w", err)
	}
	return res.RowsAffected()
}

