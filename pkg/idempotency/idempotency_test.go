package idempotency_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atplabs/ledger/pkg/domain"
	"github.com/atplabs/ledger/pkg/idempotency"
	"github.com/atplabs/ledger/pkg/store"
)

// fakeStore is an in-memory store.IdempotencyStore, enough to exercise
// pkg/idempotency.Repository's orchestration without a database.
type fakeStore struct {
	records map[uuid.UUID]*store.IdempotencyRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[uuid.UUID]*store.IdempotencyRecord)}
}

func (f *fakeStore) Get(_ context.Context, key uuid.UUID) (*store.IdempotencyRecord, error) {
	r, ok := f.records[key]
	if !ok {
		return nil, nil
	}
	return r, nil
}

func (f *fakeStore) StartProcessing(_ context.Context, key uuid.UUID, requestHash string, ttl time.Duration) (*store.IdempotencyRecord, error) {
	if existing, ok := f.records[key]; ok {
		if existing.RequestHash != requestHash {
			return nil, domain.ErrHashMismatch
		}
		return existing, nil
	}
	now := time.Now().UTC()
	r := &store.IdempotencyRecord{
		Key: key, RequestHash: requestHash, Status: store.IdempotencyProcessing,
		ProcessingStartedAt: now, CreatedAt: now, ExpiresAt: now.Add(ttl),
	}
	f.records[key] = r
	return r, nil
}

func (f *fakeStore) MarkCompleted(_ context.Context, key uuid.UUID, eventID string, status int, body []byte) error {
	r := f.records[key]
	r.Status = store.IdempotencyCompleted
	r.EventID = &eventID
	r.ResponseStatus = &status
	r.ResponseBody = body
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, key uuid.UUID, status *int, body []byte) error {
	r := f.records[key]
	r.Status = store.IdempotencyFailed
	r.ResponseStatus = status
	r.ResponseBody = body
	return nil
}

func (f *fakeStore) CleanupExpired(_ context.Context) (int64, error) {
	now := time.Now().UTC()
	var n int64
	for k, r := range f.records {
		if r.ExpiresAt.Before(now) {
			delete(f.records, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) RecoverStale(_ context.Context, staleAfter time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	var n int64
	for _, r := range f.records {
		if r.Status == store.IdempotencyProcessing && r.ProcessingStartedAt.Before(cutoff) {
			r.Status = store.IdempotencyFailed
			n++
		}
	}
	return n, nil
}

func TestComputeRequestHash_Deterministic(t *testing.T) {
	payload := map[string]string{"from": "a", "to": "b", "amount": "10"}

	h1, err := idempotency.ComputeRequestHash(payload)
	require.NoError(t, err)
	h2, err := idempotency.ComputeRequestHash(payload)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}

func TestComputeRequestHash_DifferentPayloadsDiffer(t *testing.T) {
	h1, err := idempotency.ComputeRequestHash(map[string]string{"amount": "10"})
	require.NoError(t, err)
	h2, err := idempotency.ComputeRequestHash(map[string]string{"amount": "20"})
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestRepository_Begin_SameKeySameHashReturnsExisting(t *testing.T) {
	repo := idempotency.New(newFakeStore())
	key := uuid.New()
	payload := map[string]string{"amount": "10"}

	first, err := repo.Begin(context.Background(), key, payload)
	require.NoError(t, err)
	assert.Equal(t, store.IdempotencyProcessing, first.Status)

	second, err := repo.Begin(context.Background(), key, payload)
	require.NoError(t, err)
	assert.Equal(t, first.Key, second.Key)
}

func TestRepository_Begin_SameKeyDifferentHashFails(t *testing.T) {
	repo := idempotency.New(newFakeStore())
	key := uuid.New()

	_, err := repo.Begin(context.Background(), key, map[string]string{"amount": "10"})
	require.NoError(t, err)

	_, err = repo.Begin(context.Background(), key, map[string]string{"amount": "20"})
	require.Error(t, err)
}

func TestRepository_CompleteThenGet(t *testing.T) {
	repo := idempotency.New(newFakeStore())
	key := uuid.New()

	_, err := repo.Begin(context.Background(), key, map[string]string{"amount": "10"})
	require.NoError(t, err)
	require.NoError(t, repo.Complete(context.Background(), key, "evt-1", 200, []byte(`{"ok":true}`)))

	record, err := repo.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, store.IdempotencyCompleted, record.Status)
	assert.Equal(t, []byte(`{"ok":true}`), record.ResponseBody)
}

func TestRepository_RecoverStale(t *testing.T) {
	fs := newFakeStore()
	repo := idempotency.New(fs)
	key := uuid.New()

	_, err := repo.Begin(context.Background(), key, map[string]string{"amount": "10"})
	require.NoError(t, err)
	fs.records[key].ProcessingStartedAt = time.Now().UTC().Add(-10 * time.Minute)

	n, err := repo.RecoverStale(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	record, err := repo.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, store.IdempotencyFailed, record.Status)
}
