package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/atplabs/ledger/pkg/domain"
	"github.com/atplabs/ledger/pkg/eventsourcing"
	"github.com/atplabs/ledger/pkg/store"
	"github.com/atplabs/ledger/pkg/telemetry"
)

// Deps bundles every collaborator a command handler composes. Handlers
// never talk to database/sql directly — only through these interfaces —
// so pkg/sqlite remains swappable.
type Deps struct {
	Events      store.EventStore
	Directory   store.Directory
	Projection  ProjectionEngine
	Audit       AuditRecorder
	Idempotency IdempotencyRepo

	// UnitOfWork extends an event append into the projection/directory/audit
	// writes that belong with it, so the whole command commits atomically.
	UnitOfWork store.UnitOfWork

	// Metrics is optional — nil disables the replay-hit counter.
	Metrics *telemetry.PrometheusCollectors
}

// recordReplayHit increments the idempotent-replay counter if metrics were configured.
func recordReplayHit(d Deps) {
	if d.Metrics != nil {
		d.Metrics.IdempotencyReplayHits.Inc()
	}
}

// ProjectionEngine is the subset of pkg/projection.Engine the handlers use.
type ProjectionEngine interface {
	CreateAccountBalance(ctx context.Context, accountID uuid.UUID, eventID string) error
	ApplyTransfer(ctx context.Context, journalID uuid.UUID, eventID string, debitAccount, creditAccount uuid.UUID, amount string, version int64) error
	GetBalance(ctx context.Context, accountID uuid.UUID) (*store.AccountBalance, error)
	// Invalidate drops any cached balance for the given accounts. Handlers
	// call it after a UnitOfWork transaction that wrote through the raw
	// store.ProjectionStore commits, so the long-lived cached engine never
	// serves a balance the transaction just replaced.
	Invalidate(accountIDs ...uuid.UUID)
}

// AuditRecorder is the subset of pkg/audit.Recorder the handlers use.
type AuditRecorder interface {
	Record(ctx context.Context, action string, actorUserID *uuid.UUID, resourceType, resourceID *string, before, after []byte, changedFields []string, clientIP *string) (*store.AuditLogEntry, error)
}

// IdempotencyRepo is the subset of pkg/idempotency.Repository the handlers use.
type IdempotencyRepo interface {
	Complete(ctx context.Context, key uuid.UUID, eventID string, status int, body []byte) error
}

// accountRepository folds AccountEvent streams into an Account the same
// way whether the fold starts from a snapshot or from scratch.
var accountRepository = eventsourcing.NewRepository[*domain.Account, domain.AccountEvent](
	func() *domain.Account { return &domain.Account{} },
	func(a *domain.Account, e domain.AccountEvent) *domain.Account { return a.Apply(e) },
)

// userRepository is accountRepository's counterpart for User aggregates.
var userRepository = eventsourcing.NewRepository[*domain.User, domain.UserEvent](
	func() *domain.User { return &domain.User{} },
	func(u *domain.User, e domain.UserEvent) *domain.User { return u.Apply(e) },
)

// loadAccount replays an account's full event stream (from its latest
// snapshot forward). Returns nil, nil if the aggregate has no events at
// all.
func loadAccount(ctx context.Context, events store.EventStore, accountID uuid.UUID) (*domain.Account, error) {
	var base *domain.Account
	var afterVersion int64

	snap, err := events.LoadSnapshot(ctx, "Account", accountID)
	if err != nil {
		return nil, fmt.Errorf("load account snapshot: %w", err)
	}
	if snap != nil {
		base, err = domain.AccountFromSnapshotState(snap.State)
		if err != nil {
			return nil, fmt.Errorf("restore account snapshot: %w", err)
		}
		afterVersion = snap.Version
	}

	rows, err := events.LoadEvents(ctx, accountID, afterVersion)
	if err != nil {
		return nil, fmt.Errorf("load account events: %w", err)
	}
	if base == nil && len(rows) == 0 {
		return nil, nil
	}
	if base == nil {
		base = &domain.Account{}
	}

	decoded := make([]domain.AccountEvent, 0, len(rows))
	for _, row := range rows {
		evt, err := decodeAccountEvent(row.EventType, row.EventData)
		if err != nil {
			return nil, err
		}
		decoded = append(decoded, evt)
	}
	return accountRepository.LoadFrom(base, decoded), nil
}

// loadAccountFromDBState constructs an Account straight from the
// relational accounts/account_balances/events tables, bypassing replay
// entirely — reserved for system accounts, whose balance is permitted
// negative and whose history predates any stream a normal load can
// reasonably replay.
func loadAccountFromDBState(ctx context.Context, dir store.Directory, events store.EventStore, projection ProjectionEngine, accountID uuid.UUID) (*domain.Account, error) {
	row, err := dir.AccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account row: %w", err)
	}
	if row == nil {
		return nil, domain.ErrInternal("system account not found: " + accountID.String())
	}

	balance, err := projection.GetBalance(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account balance: %w", err)
	}
	balStr := "0"
	if balance != nil {
		balStr = balance.Balance
	}
	bal, err := domain.ParseBalanceAny(balStr)
	if err != nil {
		return nil, err
	}

	version, err := events.CurrentVersion(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account version: %w", err)
	}

	return domain.AccountFromDBStateBalance(row.ID, row.UserID, row.AccountType, bal, version), nil
}

// loadAccountWithFallback tries event-sourced replay first, falling back
// to the relational DB-state path for brand-new accounts that have not
// yet accumulated events.
func loadAccountWithFallback(ctx context.Context, d Deps, accountID uuid.UUID) (*domain.Account, error) {
	acc, err := loadAccount(ctx, d.Events, accountID)
	if err != nil {
		return nil, err
	}
	if acc != nil {
		return acc, nil
	}
	return loadAccountFromDBState(ctx, d.Directory, d.Events, d.Projection, accountID)
}

// loadUser replays a user's full event stream from its latest snapshot.
func loadUser(ctx context.Context, events store.EventStore, userID uuid.UUID) (*domain.User, error) {
	var base *domain.User
	var afterVersion int64

	snap, err := events.LoadSnapshot(ctx, "User", userID)
	if err != nil {
		return nil, fmt.Errorf("load user snapshot: %w", err)
	}
	if snap != nil {
		base, err = domain.UserFromSnapshotState(snap.State)
		if err != nil {
			return nil, fmt.Errorf("restore user snapshot: %w", err)
		}
		afterVersion = snap.Version
	}

	rows, err := events.LoadEvents(ctx, userID, afterVersion)
	if err != nil {
		return nil, fmt.Errorf("load user events: %w", err)
	}
	if base == nil && len(rows) == 0 {
		return nil, domain.ErrUserNotFound(userID.String())
	}
	if base == nil {
		base = &domain.User{}
	}

	decoded := make([]domain.UserEvent, 0, len(rows))
	for _, row := range rows {
		evt, err := decodeUserEvent(row.EventType, row.EventData)
		if err != nil {
			return nil, err
		}
		decoded = append(decoded, evt)
	}
	return userRepository.LoadFrom(base, decoded), nil
}

// saveAccountSnapshotIfNeeded writes a fresh snapshot only when the
// aggregate's own ShouldSnapshot policy says to.
func saveAccountSnapshotIfNeeded(ctx context.Context, events store.EventStore, a *domain.Account) error {
	if !a.ShouldSnapshot() {
		return nil
	}
	state, err := a.SnapshotState()
	if err != nil {
		return err
	}
	return events.SaveSnapshot(ctx, store.Snapshot{
		AggregateType: "Account", AggregateID: a.ID(), Version: a.Version(), State: state,
	})
}

func saveUserSnapshotIfNeeded(ctx context.Context, events store.EventStore, u *domain.User) error {
	if !u.ShouldSnapshot() {
		return nil
	}
	state, err := u.SnapshotState()
	if err != nil {
		return err
	}
	return events.SaveSnapshot(ctx, store.Snapshot{
		AggregateType: "User", AggregateID: u.ID(), Version: u.Version(), State: state,
	})
}
