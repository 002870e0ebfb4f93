package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atplabs/ledger/pkg/audit"
	"github.com/atplabs/ledger/pkg/domain"
	"github.com/atplabs/ledger/pkg/sqlite"
	"github.com/atplabs/ledger/pkg/store"
)

// testDSN gives each test its own named in-memory database — a bare
// "file::memory:" shares state across every *sql.DB opened with the same
// DSN in the process when cache=shared, which would let tests bleed into
// each other.
func testDSN(t *testing.T) string {
	t.Helper()
	return "file:" + uuid.New().String() + "?mode=memory&cache=shared"
}

func openRawTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(testDSN(t), 1)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(context.Background(), db))
	return db
}

func openTestDB(t *testing.T) *sqlite.EventStore {
	t.Helper()
	db := openRawTestDB(t)

	ok, err := sqlite.CheckSchema(context.Background(), db)
	require.NoError(t, err)
	require.True(t, ok)

	return sqlite.NewEventStore(db)
}

func TestEventStore_AppendAtomic_RejectsStaleExpectedVersion(t *testing.T) {
	es := openTestDB(t)
	ctx := context.Background()
	accountID := uuid.New()

	_, err := es.AppendAtomic(ctx, []store.AggregateOp{
		{AggregateType: "Account", AggregateID: accountID, ExpectedVersion: 0, EventType: "AccountCreated", EventData: []byte(`{}`)},
	}, nil, "", domain.OperationContext{})
	require.NoError(t, err)

	_, err = es.AppendAtomic(ctx, []store.AggregateOp{
		{AggregateType: "Account", AggregateID: accountID, ExpectedVersion: 0, EventType: "MoneyCredited", EventData: []byte(`{}`)},
	}, nil, "", domain.OperationContext{})

	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeVersionConflict))
}

func TestEventStore_AppendAtomic_IdempotentReplayReturnsCachedEventID(t *testing.T) {
	es := openTestDB(t)
	ctx := context.Background()
	accountID := uuid.New()
	key := uuid.New()

	first, err := es.AppendAtomic(ctx, []store.AggregateOp{
		{AggregateType: "Account", AggregateID: accountID, ExpectedVersion: 0, EventType: "AccountCreated", EventData: []byte(`{}`)},
	}, &key, "req-hash-1", domain.OperationContext{})
	require.NoError(t, err)
	require.False(t, first.AlreadyProcessed)

	second, err := es.AppendAtomic(ctx, []store.AggregateOp{
		{AggregateType: "Account", AggregateID: accountID, ExpectedVersion: 0, EventType: "AccountCreated", EventData: []byte(`{}`)},
	}, &key, "req-hash-1", domain.OperationContext{})
	require.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, first.EventIDs[0], second.EventIDs[0])

	version, err := es.CurrentVersion(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version, "replay must not append a second row")
}

func TestIdempotencyStore_StartProcessing_HashMismatchAfterCompletionRejected(t *testing.T) {
	db := openRawTestDB(t)

	idemStore := sqlite.NewIdempotencyStore(db)
	ctx := context.Background()
	key := uuid.New()

	_, err := idemStore.StartProcessing(ctx, key, "req-hash-1", time.Hour)
	require.NoError(t, err)
	require.NoError(t, idemStore.MarkCompleted(ctx, key, "evt-1", 200, []byte(`{}`)))

	_, err = idemStore.StartProcessing(ctx, key, "req-hash-DIFFERENT", time.Hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrHashMismatch)
}

// TestAuditHashChain_VerifyAfterListFrom exercises the real regression:
// ListFrom once omitted actor_user_id/before_state/after_state, which
// made VerifyHashChain's recomputation diverge from the hash Append
// actually wrote, reporting every entry as tampered.
func TestAuditHashChain_VerifyAfterListFrom(t *testing.T) {
	db := openRawTestDB(t)

	auditStore := sqlite.NewAuditStore(db)
	recorder := audit.New(auditStore)
	ctx := context.Background()

	actorID := uuid.New()
	resourceType, resourceID := "account", uuid.New().String()

	for i := 0; i < 3; i++ {
		_, err := recorder.Record(ctx, "transfer", &actorID, &resourceType, &resourceID,
			[]byte(`{"balance":"100"}`), []byte(`{"balance":"90"}`), []string{"balance"}, nil)
		require.NoError(t, err)
	}

	result, err := audit.VerifyHashChain(ctx, auditStore)
	require.NoError(t, err)
	assert.True(t, result.IsValid, "freshly written, unmodified chain must verify intact")
	assert.Equal(t, 3, result.EntriesChecked)
	assert.Nil(t, result.FirstInvalidEntry)
}

func TestDirectory_WalletAccountLookup(t *testing.T) {
	db := openRawTestDB(t)

	dir := sqlite.NewDirectory(db)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, dir.CreateUserRow(ctx, store.UserRow{ID: userID, Username: "alice", Email: "alice@example.com", IsActive: true}, time.Now().UTC()))

	accountID := uuid.New()
	require.NoError(t, dir.CreateAccountRow(ctx, store.AccountRow{ID: accountID, UserID: userID, AccountType: "user_wallet", IsActive: true}))

	row, err := dir.WalletAccountByUserID(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, accountID, row.ID)

	missing, err := dir.WalletAccountByUserID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
