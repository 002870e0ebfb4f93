package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/atplabs/ledger/pkg/eventsourcing"
	"github.com/atplabs/ledger/pkg/store"
)

// AuditStore implements store.AuditStore. Hash chain computation happens
// here, inside the same transaction as the insert, so that no caller can
// observe (and therefore forge) a row's previous_hash before the row
// exists — the Go-level equivalent of a BEFORE-INSERT trigger, since
// sqlite triggers cannot easily call into Go's crypto package. Like the
// other stores, it runs against whatever dbtx it's handed: its own
// transaction when beginner is set, or a shared one from Store.Execute.
type AuditStore struct {
	db       dbtx
	beginner *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db, beginner: db}
}

func (a *AuditStore) Append(ctx context.Context, entry store.AuditLogEntry) (*store.AuditLogEntry, error) {
	if a.beginner == nil {
		return a.append(ctx, a.db, entry)
	}

	tx, err := a.beginner.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := a.append(ctx, tx, entry)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}

func (a *AuditStore) append(ctx context.Context, tx dbtx, entry store.AuditLogEntry) (*store.AuditLogEntry, error) {
	var lastSeq int64
	var lastHash string
	err := tx.QueryRowContext(ctx, `SELECT sequence_number, current_hash FROM audit_logs ORDER BY sequence_number DESC LIMIT 1`).
		Scan(&lastSeq, &lastHash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		lastSeq = 0
		lastHash = store.GenesisHash
	case err != nil:
		return nil, fmt.Errorf("read latest audit entry: %w", err)
	}

	entry.SequenceNumber = lastSeq + 1
	entry.PreviousHash = lastHash
	entry.CurrentHash = computeAuditHash(entry)
	entry.CreatedAt = eventsourcing.Now()

	var actorUser, actorKey, resourceType, resourceID, clientIP *string
	if entry.ActorUserID != nil {
		v := entry.ActorUserID.String()
		actorUser = &v
	}
	if entry.ActorAPIKeyID != nil {
		v := entry.ActorAPIKeyID.String()
		actorKey = &v
	}
	resourceType = entry.ResourceType
	resourceID = entry.ResourceID
	clientIP = entry.ClientIP

	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_logs (id, sequence_number, actor_user_id, actor_api_key_id, action, resource_type, resource_id, before_state, after_state, changed_fields, client_ip, previous_hash, current_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.SequenceNumber, actorUser, actorKey, entry.Action, resourceType, resourceID,
		entry.BeforeState, entry.AfterState, strings.Join(entry.ChangedFields, ","), clientIP,
		entry.PreviousHash, entry.CurrentHash, entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}

	return &entry, nil
}

func (a *AuditStore) ListFrom(ctx context.Context, fromSequence int64, limit int) ([]store.AuditLogEntry, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, sequence_number, actor_user_id, action, before_state, after_state, previous_hash, current_hash, created_at FROM audit_logs
		 WHERE sequence_number >= ? ORDER BY sequence_number ASC LIMIT ?`, fromSequence, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []store.AuditLogEntry
	for rows.Next() {
		var e store.AuditLogEntry
		var idStr string
		var actorUser *string
		if err := rows.Scan(&idStr, &e.SequenceNumber, &actorUser, &e.Action, &e.BeforeState, &e.AfterState, &e.PreviousHash, &e.CurrentHash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse audit entry id: %w", err)
		}
		if actorUser != nil {
			id, err := uuid.Parse(*actorUser)
			if err != nil {
				return nil, fmt.Errorf("parse audit entry actor_user_id: %w", err)
			}
			e.ActorUserID = &id
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (a *AuditStore) Latest(ctx context.Context) (*store.AuditLogEntry, error) {
	var lastSeq int64
	err := a.db.QueryRowContext(ctx, `SELECT sequence_number FROM audit_logs ORDER BY sequence_number DESC LIMIT 1`).Scan(&lastSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read latest audit sequence: %w", err)
	}
	entries, err := a.ListFrom(ctx, lastSeq, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[len(entries)-1], nil
}

// computeAuditHash hashes the canonical concatenation:
// id ‖ seq ‖ action ‖ actor ‖ before ‖ after ‖ previous_hash.
func computeAuditHash(e store.AuditLogEntry) string {
	h := sha256.New()
	h.Write([]byte(e.ID.String()))
	fmt.Fprintf(h, "%d", e.SequenceNumber)
	h.Write([]byte(e.Action))
	if e.ActorUserID != nil {
		h.Write([]byte(e.ActorUserID.String()))
	}
	h.Write(e.BeforeState)
	h.Write(e.AfterState)
	h.Write([]byte(e.PreviousHash))
	return hex.EncodeToString(h.Sum(nil))
}
