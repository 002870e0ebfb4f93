// Package store defines the storage-agnostic contracts the ATP ledger's
// domain/handler layers are built against. pkg/sqlite provides the only
// concrete implementation in this module, but nothing above this package
// imports database/sql or modernc.org/sqlite directly.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/atplabs/ledger/pkg/domain"
)

// StoredEvent is an immutable fact as persisted by the event store. Once
// written, rows are never updated or deleted.
type StoredEvent struct {
	ID              string
	AggregateType   string
	AggregateID     uuid.UUID
	Version         int64
	EventType       string
	EventData       []byte
	Context         domain.OperationContext
	IdempotencyKey  *uuid.UUID
	CreatedAt       time.Time
}

// AggregateOp is one leg of a multi-aggregate atomic append.
type AggregateOp struct {
	AggregateType   string
	AggregateID     uuid.UUID
	ExpectedVersion int64
	EventType       string
	EventData       []byte
}

// AppendResult is the outcome of a successful AppendAtomic call: the event
// IDs assigned, in the same order as the ops supplied.
type AppendResult struct {
	EventIDs []string
	// AlreadyProcessed is true when an idempotency key short-circuited the
	// append: EventIDs contains only the single cached event id.
	AlreadyProcessed bool
	// CachedResponseBody is the previously-stored response_body for a
	// completed idempotency key, present only when AlreadyProcessed is
	// true. Handlers unmarshal it into their own result type rather than
	// fabricating a new id from the cached event.
	CachedResponseBody []byte
}

// Snapshot is a captured aggregate state at a known version.
type Snapshot struct {
	AggregateType string
	AggregateID   uuid.UUID
	Version       int64
	State         []byte
	CreatedAt     time.Time
}

// EventStore is the durable append-only log. Every method that mutates
// state is atomic with respect to the invariants it's documented to
// preserve; AppendAtomic in particular runs each call in one serializable
// transaction — its own, or the caller's when bound to a UnitOfWork.
type EventStore interface {
	// AppendAtomic appends one event per op, in order, inside a single
	// serializable transaction. If idempotencyKey is set, a completed row
	// for that key short-circuits the call and a fresh processing row
	// rejects it, before any op is written; a stale processing or failed
	// row is taken over. The key is attached
	// only to the first op's row — one key always maps to one logical
	// command, even when that command spans several aggregates.
	// requestHash is stored on a newly inserted key row; it is not
	// compared against an existing row's hash. Ignored when
	// idempotencyKey is nil.
	AppendAtomic(ctx context.Context, ops []AggregateOp, idempotencyKey *uuid.UUID, requestHash string, opCtx domain.OperationContext) (*AppendResult, error)

	// CurrentVersion returns the latest version recorded for an
	// aggregate, or 0 if none exists.
	CurrentVersion(ctx context.Context, aggregateID uuid.UUID) (int64, error)

	// LoadEvents returns all events for an aggregate with version >
	// afterVersion, ordered ascending.
	LoadEvents(ctx context.Context, aggregateID uuid.UUID, afterVersion int64) ([]StoredEvent, error)

	// LoadSnapshot returns the most recent snapshot for an aggregate, or
	// nil if none exists.
	LoadSnapshot(ctx context.Context, aggregateType string, aggregateID uuid.UUID) (*Snapshot, error)

	// SaveSnapshot upserts the snapshot row for (aggregateType,
	// aggregateID), replacing any earlier snapshot.
	SaveSnapshot(ctx context.Context, snap Snapshot) error
}

// IdempotencyStatus is the lifecycle state of an idempotency key.
type IdempotencyStatus string

const (
	IdempotencyProcessing IdempotencyStatus = "processing"
	IdempotencyCompleted  IdempotencyStatus = "completed"
	IdempotencyFailed     IdempotencyStatus = "failed"
)

// IdempotencyRecord is the persisted row tracking an in-flight or
// completed idempotent command.
type IdempotencyRecord struct {
	Key                 uuid.UUID
	RequestHash         string
	Status              IdempotencyStatus
	EventID             *string
	ResponseStatus      *int
	ResponseBody        []byte
	ProcessingStartedAt time.Time
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// IdempotencyStore is the persistence contract for pkg/idempotency.
type IdempotencyStore interface {
	Get(ctx context.Context, key uuid.UUID) (*IdempotencyRecord, error)
	StartProcessing(ctx context.Context, key uuid.UUID, requestHash string, ttl time.Duration) (*IdempotencyRecord, error)
	MarkCompleted(ctx context.Context, key uuid.UUID, eventID string, responseStatus int, responseBody []byte) error
	MarkFailed(ctx context.Context, key uuid.UUID, responseStatus *int, responseBody []byte) error
	CleanupExpired(ctx context.Context) (int64, error)
	// RecoverStale sets processing rows older than staleAfter to failed.
	RecoverStale(ctx context.Context, staleAfter time.Duration) (int64, error)
}

// LedgerEntryType distinguishes the two sides of a ledger entry.
type LedgerEntryType string

const (
	EntryDebit  LedgerEntryType = "debit"
	EntryCredit LedgerEntryType = "credit"
)

// LedgerEntry is one row of the double-entry ledger.
type LedgerEntry struct {
	JournalID       uuid.UUID
	TransferEventID string
	AccountID       uuid.UUID
	Amount          string
	EntryType       LedgerEntryType
	Description     *string
	CreatedAt       time.Time
}

// AccountBalance is the read-cache row mirroring an account's aggregate
// balance, updated transactionally alongside the event that caused it.
type AccountBalance struct {
	AccountID        uuid.UUID
	Balance          string
	LastEventID      string
	LastEventVersion int64
	UpdatedAt        time.Time
}

// ProjectionStore is the persistence contract for pkg/projection.
type ProjectionStore interface {
	CreateAccountBalance(ctx context.Context, accountID uuid.UUID, eventID string) error
	ApplyLedgerMovement(ctx context.Context, journalID uuid.UUID, eventID string, debitAccount, creditAccount uuid.UUID, amount string, version int64) error
	GetBalance(ctx context.Context, accountID uuid.UUID) (*AccountBalance, error)
}

// AuditLogEntry is one row of the tamper-evident audit log.
type AuditLogEntry struct {
	ID              uuid.UUID
	SequenceNumber  int64
	ActorUserID     *uuid.UUID
	ActorAPIKeyID   *uuid.UUID
	Action          string
	ResourceType    *string
	ResourceID      *string
	BeforeState     []byte
	AfterState      []byte
	ChangedFields   []string
	ClientIP        *string
	PreviousHash    string
	CurrentHash     string
	CreatedAt       time.Time
}

// GenesisHash is previous_hash for the first audit log row: 64 zero hex
// characters.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// AuditStore is the persistence contract for pkg/audit. Hash computation
// happens inside Append, mirroring a storage-layer BEFORE-INSERT trigger,
// so callers cannot forge PreviousHash.
type AuditStore interface {
	Append(ctx context.Context, entry AuditLogEntry) (*AuditLogEntry, error)
	ListFrom(ctx context.Context, fromSequence int64, limit int) ([]AuditLogEntry, error)
	Latest(ctx context.Context) (*AuditLogEntry, error)
}

// AccountRow is the relational shadow of an account's identity — not its
// event-sourced balance, which lives only in the event stream and its
// projection. Handlers consult this to resolve user_id -> account_id
// before loading the aggregate.
type AccountRow struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	AccountType string
	IsActive    bool
	CreatedAt   time.Time
}

// UserRow is the relational shadow of a user's identity fields that the
// User aggregate's own event stream also derives; kept here only so
// handlers can resolve username/email uniqueness and existence without
// replaying every user's event stream on every command.
type UserRow struct {
	ID          uuid.UUID
	Username    string
	Email       string
	DisplayName *string
	IsSystem    bool
	IsActive    bool
}

// Directory is the relational lookup surface handlers use to resolve
// identities before touching the event-sourced aggregates themselves.
type Directory interface {
	CreateUserRow(ctx context.Context, u UserRow, createdAt time.Time) error
	CreateAccountRow(ctx context.Context, a AccountRow) error
	// WalletAccountByUserID resolves a user's user_wallet account only.
	WalletAccountByUserID(ctx context.Context, userID uuid.UUID) (*AccountRow, error)
	// AccountByUserID resolves whatever single account a user id owns,
	// regardless of account_type — used for the two system accounts,
	// which own exactly one account each but not of type user_wallet.
	AccountByUserID(ctx context.Context, userID uuid.UUID) (*AccountRow, error)
	AccountByID(ctx context.Context, accountID uuid.UUID) (*AccountRow, error)
}

// RateLimitBucketStore backs the rate-limit bucket GC maintenance job.
// The HTTP-layer rate limiter that populates these buckets is out of
// scope; this module owns only the table and its GC.
type RateLimitBucketStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// TxStores is the same collaborators a command handler normally holds,
// each bound to the single database transaction a UnitOfWork opened for
// the call to Execute that produced them.
type TxStores struct {
	Events     EventStore
	Projection ProjectionStore
	Directory  Directory
	Audit      AuditStore
}

// UnitOfWork lets a handler extend the event store's own transaction to
// cover the projection, directory, and audit writes that belong to the
// same command, so a crash between an event append and its side effects
// can never leave one without the other. fn runs inside one transaction;
// a non-nil return rolls the whole thing back.
type UnitOfWork interface {
	Execute(ctx context.Context, fn func(ctx context.Context, tx TxStores) error) error
}
