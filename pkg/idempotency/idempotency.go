// Package idempotency implements the IdempotencyKey repository:
// request-hash binding, the processing/completed/failed lifecycle, and
// the 24h TTL. The serializable-transaction mechanics of start/complete
// live in pkg/sqlite; this package owns the request-hash computation and
// the thin policy wrapper handlers call.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/atplabs/ledger/pkg/store"
)

const DefaultTTL = 24 * time.Hour

// Repository is the orchestration layer handlers call. It never opens
// its own transaction, and store.IdempotencyStore's sqlite implementation
// runs its statements without an enclosing transaction too; Repository
// only computes the canonical request hash and exposes the lifecycle by
// name.
type Repository struct {
	store store.IdempotencyStore
}

func New(s store.IdempotencyStore) *Repository {
	return &Repository{store: s}
}

// ComputeRequestHash hashes the canonical JSON encoding of a command
// payload, so the same logical request always hashes identically
// regardless of struct field ordering in memory.
func ComputeRequestHash(payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Begin starts (or resumes) processing for key, bound to requestHash.
// Returns the existing record unchanged if already completed with a
// matching hash; returns domain.ErrHashMismatch/ErrKeyInProgress via the
// underlying store otherwise (see pkg/sqlite/idempotency.go).
func (r *Repository) Begin(ctx context.Context, key uuid.UUID, payload any) (*store.IdempotencyRecord, error) {
	hash, err := ComputeRequestHash(payload)
	if err != nil {
		return nil, err
	}
	return r.store.StartProcessing(ctx, key, hash, DefaultTTL)
}

func (r *Repository) Complete(ctx context.Context, key uuid.UUID, eventID string, status int, body []byte) error {
	return r.store.MarkCompleted(ctx, key, eventID, status, body)
}

func (r *Repository) Fail(ctx context.Context, key uuid.UUID, status *int, body []byte) error {
	return r.store.MarkFailed(ctx, key, status, body)
}

func (r *Repository) Get(ctx context.Context, key uuid.UUID) (*store.IdempotencyRecord, error) {
	return r.store.Get(ctx, key)
}

// CleanupExpired deletes rows past their TTL; called by pkg/maintenance.
func (r *Repository) CleanupExpired(ctx context.Context) (int64, error) {
	return r.store.CleanupExpired(ctx)
}

// RecoverStale fails processing rows whose owner crashed mid-request and
// has not completed within staleAfter.
func (r *Repository) RecoverStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	return r.store.RecoverStale(ctx, staleAfter)
}
