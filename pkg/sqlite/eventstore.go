package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/atplabs/ledger/pkg/domain"
	"github.com/atplabs/ledger/pkg/eventsourcing"
	"github.com/atplabs/ledger/pkg/store"
)

// EventStore implements store.EventStore against sqlite.
//
// db is the connection or transaction every query runs against; beginner
// is set only when db is a plain *sql.DB, meaning AppendAtomic must open
// its own transaction. When an EventStore is handed a shared *sql.Tx by
// Store.Execute, beginner is nil and AppendAtomic runs directly against
// it without beginning or committing anything itself, so its writes
// belong to whatever transaction the caller is already inside.
type EventStore struct {
	db       dbtx
	beginner *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db, beginner: db}
}

// staleProcessingWindow is the window after which a "processing"
// idempotency row is considered crashed and eligible for takeover.
const staleProcessingWindow = 5 * time.Minute

// AppendAtomic appends one event per op, in order, inside a single
// transaction. Retry across optimistic-concurrency conflicts is the
// caller's responsibility (see eventsourcing.Retry, used by pkg/handlers).
func (s *EventStore) AppendAtomic(ctx context.Context, ops []store.AggregateOp, idempotencyKey *uuid.UUID, requestHash string, opCtx domain.OperationContext) (*store.AppendResult, error) {
	if s.beginner == nil {
		return s.appendAtomic(ctx, s.db, ops, idempotencyKey, requestHash, opCtx)
	}

	tx, err := s.beginner.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := s.appendAtomic(ctx, tx, ops, idempotencyKey, requestHash, opCtx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}

func (s *EventStore) appendAtomic(ctx context.Context, tx dbtx, ops []store.AggregateOp, idempotencyKey *uuid.UUID, requestHash string, opCtx domain.OperationContext) (*store.AppendResult, error) {
	if idempotencyKey != nil {
		result, shortCircuit, err := s.checkIdempotency(ctx, tx, *idempotencyKey, requestHash)
		if err != nil {
			return nil, err
		}
		if shortCircuit {
			return result, nil
		}
	}

	contextBlob, err := json.Marshal(opCtx)
	if err != nil {
		return nil, fmt.Errorf("marshal context: %w", err)
	}

	eventIDs := make([]string, 0, len(ops))
	now := eventsourcing.Now()

	for i, op := range ops {
		var current int64
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = ?`, op.AggregateID.String(),
		).Scan(&current)
		if err != nil {
			return nil, fmt.Errorf("read current version: %w", err)
		}
		if current != op.ExpectedVersion {
			return nil, domain.NewError(domain.CodeVersionConflict,
				fmt.Sprintf("aggregate %s: expected version %d, actual %d", op.AggregateID, op.ExpectedVersion, current), true)
		}

		eventID := eventsourcing.GenerateID()
		var idemForRow *string
		if idempotencyKey != nil && i == 0 {
			// Only the first op's row carries the idempotency key — a
			// multi-aggregate append is one logical command, so one key
			// is enough to dedupe the whole operation.
			v := idempotencyKey.String()
			idemForRow = &v
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO events (id, aggregate_type, aggregate_id, version, event_type, event_data, context, idempotency_key, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			eventID, op.AggregateType, op.AggregateID.String(), op.ExpectedVersion+1, op.EventType, op.EventData, contextBlob, idemForRow, now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert event: %w", err)
		}
		eventIDs = append(eventIDs, eventID)
	}

	if idempotencyKey != nil {
		_, err = tx.ExecContext(ctx,
			`UPDATE idempotency_keys SET processing_status = ?, event_id = ? WHERE key = ?`,
			store.IdempotencyCompleted, eventIDs[0], idempotencyKey.String(),
		)
		if err != nil {
			return nil, fmt.Errorf("complete idempotency key: %w", err)
		}
	}

	return &store.AppendResult{EventIDs: eventIDs}, nil
}

// checkIdempotency returns (result, true) when the caller should
// short-circuit without appending.
func (s *EventStore) checkIdempotency(ctx context.Context, tx dbtx, key uuid.UUID, requestHash string) (*store.AppendResult, bool, error) {
	var status string
	var eventID, responseBody sql.NullString
	var startedAt time.Time
	err := tx.QueryRowContext(ctx,
		`SELECT processing_status, event_id, processing_started_at, response_body FROM idempotency_keys WHERE key = ?`, key.String(),
	).Scan(&status, &eventID, &startedAt, &responseBody)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO idempotency_keys (key, request_hash, processing_status, processing_started_at, created_at, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			key.String(), requestHash, store.IdempotencyProcessing, eventsourcing.Now(), eventsourcing.Now(), eventsourcing.Now().Add(24*time.Hour),
		)
		return nil, false, err
	case err != nil:
		return nil, false, fmt.Errorf("read idempotency key: %w", err)
	}

	switch store.IdempotencyStatus(status) {
	case store.IdempotencyCompleted:
		result := &store.AppendResult{EventIDs: []string{eventID.String}, AlreadyProcessed: true}
		if responseBody.Valid {
			result.CachedResponseBody = []byte(responseBody.String)
		}
		return result, true, nil
	case store.IdempotencyProcessing:
		if eventsourcing.Now().Sub(startedAt) < staleProcessingWindow {
			return nil, false, domain.ErrKeyInProgress
		}
		// Stale: resurrect for this attempt.
		_, err = tx.ExecContext(ctx,
			`UPDATE idempotency_keys SET processing_status = ?, processing_started_at = ? WHERE key = ?`,
			store.IdempotencyProcessing, eventsourcing.Now(), key.String(),
		)
		return nil, false, err
	default: // failed
		_, err = tx.ExecContext(ctx,
			`UPDATE idempotency_keys SET processing_status = ?, processing_started_at = ? WHERE key = ?`,
			store.IdempotencyProcessing, eventsourcing.Now(), key.String(),
		)
		return nil, false, err
	}
}

func (s *EventStore) CurrentVersion(ctx context.Context, aggregateID uuid.UUID) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = ?`, aggregateID.String(),
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("current version: %w", err)
	}
	return v, nil
}

func (s *EventStore) LoadEvents(ctx context.Context, aggregateID uuid.UUID, afterVersion int64) ([]store.StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, aggregate_type, aggregate_id, version, event_type, event_data, context, idempotency_key, created_at
		 FROM events WHERE aggregate_id = ? AND version > ? ORDER BY version ASC`,
		aggregateID.String(), afterVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	var events []store.StoredEvent
	for rows.Next() {
		var e store.StoredEvent
		var aggID string
		var idem sql.NullString
		var contextBlob []byte
		if err := rows.Scan(&e.ID, &e.AggregateType, &aggID, &e.Version, &e.EventType, &e.EventData, &contextBlob, &idem, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.AggregateID = uuid.MustParse(aggID)
		if idem.Valid {
			id := uuid.MustParse(idem.String)
			e.IdempotencyKey = &id
		}
		if len(contextBlob) > 0 {
			_ = json.Unmarshal(contextBlob, &e.Context)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *EventStore) LoadSnapshot(ctx context.Context, aggregateType string, aggregateID uuid.UUID) (*store.Snapshot, error) {
	var snap store.Snapshot
	var aggID string
	err := s.db.QueryRowContext(ctx,
		`SELECT aggregate_type, aggregate_id, version, state, created_at FROM event_snapshots WHERE aggregate_type = ? AND aggregate_id = ?`,
		aggregateType, aggregateID.String(),
	).Scan(&snap.AggregateType, &aggID, &snap.Version, &snap.State, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	snap.AggregateID = uuid.MustParse(aggID)
	return &snap, nil
}

func (s *EventStore) SaveSnapshot(ctx context.Context, snap store.Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_snapshots (aggregate_type, aggregate_id, version, state, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (aggregate_type, aggregate_id) DO UPDATE SET version = excluded.version, state = excluded.state, created_at = excluded.created_at`,
		snap.AggregateType, snap.AggregateID.String(), snap.Version, snap.State, eventsourcing.Now(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}
