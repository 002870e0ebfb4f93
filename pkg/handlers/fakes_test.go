package handlers_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/atplabs/ledger/pkg/domain"
	"github.com/atplabs/ledger/pkg/store"
)

// encodeForTest mirrors pkg/handlers' unexported encodeEvent — a thin
// goccy/go-json wrapper — since this package's tests live outside
// package handlers and can't call it directly.
func encodeForTest(v any) ([]byte, error) {
	return json.Marshal(v)
}

// loadAccountForTest replays an account's events straight off a
// fakeEventStore, standing in for pkg/handlers' unexported loadAccount
// for tests that need to derive a pre-existing aggregate (e.g. to freeze
// it) before calling an exported handler.
func loadAccountForTest(t *testing.T, tl *testLedger, accountID uuid.UUID) (*domain.Account, error) {
	t.Helper()
	rows, err := tl.events.LoadEvents(context.Background(), accountID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	var created domain.AccountCreated
	require.NoError(t, json.Unmarshal(rows[0].EventData, &created))
	acc, _ := domain.NewAccount(created.AccountID, created.UserID, created.AccountType)

	for _, row := range rows[1:] {
		evt, err := decodeAccountEventForTest(row.EventType, row.EventData)
		if err != nil {
			return nil, err
		}
		acc = acc.Apply(evt)
	}
	return acc, nil
}

// decodeAccountEventForTest covers only the event types these tests emit
// (MoneyCredited/MoneyDebited/AccountFrozen/AccountUnfrozen) — the full
// type switch lives in pkg/handlers' unexported decodeAccountEvent.
func decodeAccountEventForTest(eventType string, data []byte) (domain.AccountEvent, error) {
	switch eventType {
	case "MoneyCredited":
		var e domain.MoneyCredited
		return e, json.Unmarshal(data, &e)
	case "MoneyDebited":
		var e domain.MoneyDebited
		return e, json.Unmarshal(data, &e)
	case "AccountFrozen":
		var e domain.AccountFrozen
		return e, json.Unmarshal(data, &e)
	case "AccountUnfrozen":
		var e domain.AccountUnfrozen
		return e, json.Unmarshal(data, &e)
	default:
		panic("decodeAccountEventForTest: unhandled event type " + eventType)
	}
}

// fakeEventStore is an in-memory store.EventStore: enough optimistic-
// concurrency and idempotency-key semantics to exercise pkg/handlers
// without a database. It mirrors pkg/sqlite/eventstore.go's AppendAtomic
// closely enough that tests written against it also describe the real
// store's contract.
type fakeEventStore struct {
	mu        sync.Mutex
	events    map[uuid.UUID][]store.StoredEvent
	snapshots map[string]store.Snapshot
	idem      map[uuid.UUID]*idemRow

	// versionConflictOnce, if set, injects a single version-conflict
	// error the first time AppendAtomic is called for accountID, then
	// clears itself — used to exercise twoLegMovement's retry path.
	versionConflictOnce uuid.UUID
}

type idemRow struct {
	status       store.IdempotencyStatus
	requestHash  string
	eventID      string
	responseBody []byte
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{
		events:    make(map[uuid.UUID][]store.StoredEvent),
		snapshots: make(map[string]store.Snapshot),
		idem:      make(map[uuid.UUID]*idemRow),
	}
}

func (f *fakeEventStore) AppendAtomic(ctx context.Context, ops []store.AggregateOp, idempotencyKey *uuid.UUID, requestHash string, opCtx domain.OperationContext) (*store.AppendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if idempotencyKey != nil {
		if row, ok := f.idem[*idempotencyKey]; ok {
			if row.status == store.IdempotencyCompleted {
				return &store.AppendResult{EventIDs: []string{row.eventID}, AlreadyProcessed: true, CachedResponseBody: row.responseBody}, nil
			}
		} else {
			f.idem[*idempotencyKey] = &idemRow{status: store.IdempotencyProcessing, requestHash: requestHash}
		}
	}

	for _, op := range ops {
		current := int64(len(f.events[op.AggregateID]))
		if op.AggregateID == f.versionConflictOnce && current == op.ExpectedVersion {
			f.versionConflictOnce = uuid.Nil
			return nil, domain.ErrVersionConflict
		}
		if current != op.ExpectedVersion {
			return nil, domain.ErrVersionConflict
		}
	}

	eventIDs := make([]string, 0, len(ops))
	for _, op := range ops {
		id := uuid.New().String()
		f.events[op.AggregateID] = append(f.events[op.AggregateID], store.StoredEvent{
			ID: id, AggregateType: op.AggregateType, AggregateID: op.AggregateID,
			Version: op.ExpectedVersion + 1, EventType: op.EventType, EventData: op.EventData,
			Context: opCtx, CreatedAt: time.Now().UTC(),
		})
		eventIDs = append(eventIDs, id)
	}

	if idempotencyKey != nil {
		f.idem[*idempotencyKey].eventID = eventIDs[0]
	}

	return &store.AppendResult{EventIDs: eventIDs}, nil
}

func (f *fakeEventStore) CurrentVersion(ctx context.Context, aggregateID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.events[aggregateID])), nil
}

func (f *fakeEventStore) LoadEvents(ctx context.Context, aggregateID uuid.UUID, afterVersion int64) ([]store.StoredEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.StoredEvent
	for _, e := range f.events[aggregateID] {
		if e.Version > afterVersion {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEventStore) LoadSnapshot(ctx context.Context, aggregateType string, aggregateID uuid.UUID) (*store.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snapshots[aggregateType+"/"+aggregateID.String()]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (f *fakeEventStore) SaveSnapshot(ctx context.Context, snap store.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[snap.AggregateType+"/"+snap.AggregateID.String()] = snap
	return nil
}

// completeIdempotency lets the fake IdempotencyRepo below mark a key as
// completed with a response body, mirroring the shared idempotency_keys
// table that both store.EventStore and pkg/idempotency.Repository
// ultimately write to in the real sqlite-backed implementation.
func (f *fakeEventStore) completeIdempotency(key uuid.UUID, status int, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.idem[key]; ok {
		row.status = store.IdempotencyCompleted
		row.responseBody = body
	}
}

// fakeIdempotencyRepo forwards Complete into the same fakeEventStore
// idempotency table AppendAtomic checks, so a replayed command sees the
// cached response body the first attempt produced.
type fakeIdempotencyRepo struct {
	events *fakeEventStore
}

func (f *fakeIdempotencyRepo) Complete(ctx context.Context, key uuid.UUID, eventID string, status int, body []byte) error {
	f.events.completeIdempotency(key, status, body)
	return nil
}

// fakeDirectory is an in-memory store.Directory.
type fakeDirectory struct {
	mu       sync.Mutex
	users    map[uuid.UUID]store.UserRow
	accounts map[uuid.UUID]store.AccountRow
	byUser   map[uuid.UUID]uuid.UUID // userID -> single-account id, for system accounts
	wallets  map[uuid.UUID]uuid.UUID // userID -> wallet account id
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:    make(map[uuid.UUID]store.UserRow),
		accounts: make(map[uuid.UUID]store.AccountRow),
		byUser:   make(map[uuid.UUID]uuid.UUID),
		wallets:  make(map[uuid.UUID]uuid.UUID),
	}
}

func (f *fakeDirectory) CreateUserRow(ctx context.Context, u store.UserRow, createdAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	return nil
}

func (f *fakeDirectory) CreateAccountRow(ctx context.Context, a store.AccountRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[a.ID] = a
	f.byUser[a.UserID] = a.ID
	if a.AccountType == "user_wallet" {
		f.wallets[a.UserID] = a.ID
	}
	return nil
}

func (f *fakeDirectory) WalletAccountByUserID(ctx context.Context, userID uuid.UUID) (*store.AccountRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.wallets[userID]
	if !ok {
		return nil, nil
	}
	row := f.accounts[id]
	return &row, nil
}

func (f *fakeDirectory) AccountByUserID(ctx context.Context, userID uuid.UUID) (*store.AccountRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byUser[userID]
	if !ok {
		return nil, nil
	}
	row := f.accounts[id]
	return &row, nil
}

func (f *fakeDirectory) AccountByID(ctx context.Context, accountID uuid.UUID) (*store.AccountRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.accounts[accountID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

// fakeProjection is an in-memory handlers.ProjectionEngine.
type fakeProjection struct {
	mu       sync.Mutex
	balances map[uuid.UUID]store.AccountBalance
}

func newFakeProjection() *fakeProjection {
	return &fakeProjection{balances: make(map[uuid.UUID]store.AccountBalance)}
}

func (f *fakeProjection) CreateAccountBalance(ctx context.Context, accountID uuid.UUID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[accountID] = store.AccountBalance{AccountID: accountID, Balance: "0", LastEventID: eventID}
	return nil
}

func (f *fakeProjection) ApplyTransfer(ctx context.Context, journalID uuid.UUID, eventID string, debitAccount, creditAccount uuid.UUID, amount string, version int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[debitAccount] = store.AccountBalance{AccountID: debitAccount, Balance: f.balances[debitAccount].Balance, LastEventID: eventID}
	f.balances[creditAccount] = store.AccountBalance{AccountID: creditAccount, Balance: f.balances[creditAccount].Balance, LastEventID: eventID}
	return nil
}

// ApplyLedgerMovement is ApplyTransfer's raw store.ProjectionStore name —
// the fake backs both the cached handlers.ProjectionEngine surface and
// the uncached one a fakeUnitOfWork hands a transaction, sharing the same
// balances map.
func (f *fakeProjection) ApplyLedgerMovement(ctx context.Context, journalID uuid.UUID, eventID string, debitAccount, creditAccount uuid.UUID, amount string, version int64) error {
	return f.ApplyTransfer(ctx, journalID, eventID, debitAccount, creditAccount, amount, version)
}

func (f *fakeProjection) GetBalance(ctx context.Context, accountID uuid.UUID) (*store.AccountBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[accountID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

// Invalidate is a no-op: the fake has no read-cache distinct from
// balances itself, so there's nothing to drop.
func (f *fakeProjection) Invalidate(accountIDs ...uuid.UUID) {}

// fakeAuditStore is an in-memory store.AuditStore, backing both
// handlers.Deps.Audit (via audit.New) and the store.AuditStore a
// fakeUnitOfWork hands a transaction, so assertions on the entry count
// see writes from either path.
type fakeAuditStore struct {
	mu      sync.Mutex
	entries []store.AuditLogEntry
}

func (f *fakeAuditStore) Append(ctx context.Context, entry store.AuditLogEntry) (*store.AuditLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.SequenceNumber = int64(len(f.entries)) + 1
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *fakeAuditStore) ListFrom(ctx context.Context, fromSequence int64, limit int) ([]store.AuditLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.AuditLogEntry
	for _, e := range f.entries {
		if e.SequenceNumber >= fromSequence {
			out = append(out, e)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeAuditStore) Latest(ctx context.Context) (*store.AuditLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return nil, nil
	}
	last := f.entries[len(f.entries)-1]
	return &last, nil
}

func (f *fakeAuditStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// fakeUnitOfWork is store.UnitOfWork without a database: it just hands fn
// the same fakes a testLedger already built, since the fakes have no
// transactional boundary of their own to simulate.
type fakeUnitOfWork struct {
	events     *fakeEventStore
	projection *fakeProjection
	directory  *fakeDirectory
	audit      *fakeAuditStore
}

func (u *fakeUnitOfWork) Execute(ctx context.Context, fn func(ctx context.Context, tx store.TxStores) error) error {
	return fn(ctx, store.TxStores{
		Events:     u.events,
		Projection: u.projection,
		Directory:  u.directory,
		Audit:      u.audit,
	})
}
