package domain

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusFrozen AccountStatus = "frozen"
)

// Account is the Account aggregate: a pure fold over AccountEvent. Command
// methods (Debit, Credit, Freeze, Unfreeze) validate against the current
// state and return the event the caller must persist; they never mutate
// receiver state themselves. Apply is the only way state changes, and it
// is total: a payload the current code cannot revalidate poisons the
// aggregate rather than aborting the fold (see replayErr).
type Account struct {
	id          uuid.UUID
	userID      uuid.UUID
	accountType string
	balance     Balance
	status      AccountStatus
	version     int64
	createdAt   *time.Time

	// replayErr is set when Apply could not revalidate an event's amount
	// payload. The version still reflects every event applied (I5); all
	// further command methods refuse with ErrAggregatePoisoned.
	replayErr error
}

// NewAccount creates a fresh Account and the AccountCreated event a caller
// must persist alongside it.
func NewAccount(id, userID uuid.UUID, accountType string) (*Account, AccountCreated) {
	now := time.Now().UTC()
	event := AccountCreated{
		AccountID:   id,
		UserID:      userID,
		AccountType: accountType,
		CreatedAt:   now,
	}
	a := &Account{
		id:          id,
		userID:      userID,
		accountType: accountType,
		balance:     ZeroBalance(),
		status:      AccountStatusActive,
		version:     1,
		createdAt:   &now,
	}
	return a, event
}

// AccountFromDBState constructs an Account directly from relational state,
// bypassing event sourcing entirely. Reserved for system accounts
// (SYSTEM_MINT, SYSTEM_BURN) whose balance may be negative and whose
// history predates any event stream the handler can replay.
func AccountFromDBState(id, userID uuid.UUID, accountType string, balance decimal.Decimal, version int64) *Account {
	var bal Balance
	if balance.Sign() >= 0 {
		var err error
		bal, err = NewBalance(balance)
		if err != nil {
			bal = ZeroBalance()
		}
	} else {
		bal = FromDecimalUnchecked(balance)
	}
	return &Account{
		id:          id,
		userID:      userID,
		accountType: accountType,
		balance:     bal,
		status:      AccountStatusActive,
		version:     version,
	}
}

// AccountFromDBStateBalance is AccountFromDBState for a caller that
// already holds a validated Balance (e.g. from a projection read),
// avoiding a redundant decimal round-trip.
func AccountFromDBStateBalance(id, userID uuid.UUID, accountType string, balance Balance, version int64) *Account {
	return &Account{id: id, userID: userID, accountType: accountType, balance: balance, status: AccountStatusActive, version: version}
}

func (a *Account) ID() uuid.UUID          { return a.id }
func (a *Account) UserID() uuid.UUID      { return a.userID }
func (a *Account) AccountType() string    { return a.accountType }
func (a *Account) Balance() Balance       { return a.balance }
func (a *Account) Status() AccountStatus  { return a.status }
func (a *Account) Version() int64         { return a.version }
func (a *Account) IsFrozen() bool         { return a.status == AccountStatusFrozen }
func (a *Account) CreatedAt() *time.Time  { return a.createdAt }
func (a *Account) ReplayError() error     { return a.replayErr }
func (a *Account) IsPoisoned() bool       { return a.replayErr != nil }

func (a *Account) checkLive() error {
	if a.replayErr != nil {
		return ErrAggregatePoisoned(a.id.String(), a.replayErr)
	}
	return nil
}

// Debit withdraws amount from the account, yielding MoneyDebited.
func (a *Account) Debit(amount Amount, transferID uuid.UUID, description string) (AccountEvent, error) {
	if err := a.checkLive(); err != nil {
		return nil, err
	}
	if a.status == AccountStatusFrozen {
		return nil, ErrAccountFrozen
	}
	if !a.balance.IsSufficientFor(amount) {
		return nil, ErrInsufficientBalance
	}
	return MoneyDebited{
		AccountID:   a.id,
		Amount:      amount.Value().String(),
		TransferID:  transferID,
		Description: description,
		DebitedAt:   time.Now().UTC(),
	}, nil
}

// UncheckedDebit withdraws amount without the sufficient-balance guard.
// Reserved for the SYSTEM_MINT account, whose balance is the ledger's
// liability side and is permitted (by design, invariant I4) to go
// negative — the normal Debit check would otherwise reject every mint.
func (a *Account) UncheckedDebit(amount Amount, transferID uuid.UUID, description string) (AccountEvent, error) {
	if err := a.checkLive(); err != nil {
		return nil, err
	}
	if a.status == AccountStatusFrozen {
		return nil, ErrAccountFrozen
	}
	return MoneyDebited{
		AccountID:   a.id,
		Amount:      amount.Value().String(),
		TransferID:  transferID,
		Description: description,
		DebitedAt:   time.Now().UTC(),
	}, nil
}

// Credit deposits amount into the account, yielding MoneyCredited.
func (a *Account) Credit(amount Amount, transferID uuid.UUID, description string) (AccountEvent, error) {
	if err := a.checkLive(); err != nil {
		return nil, err
	}
	if a.status == AccountStatusFrozen {
		return nil, ErrAccountFrozen
	}
	return MoneyCredited{
		AccountID:   a.id,
		Amount:      amount.Value().String(),
		TransferID:  transferID,
		Description: description,
		CreditedAt:  time.Now().UTC(),
	}, nil
}

// Freeze yields AccountFrozen, refusing if already frozen.
func (a *Account) Freeze(reason string) (AccountEvent, error) {
	if err := a.checkLive(); err != nil {
		return nil, err
	}
	if a.status == AccountStatusFrozen {
		return nil, ErrInvalidRequest("account is already frozen")
	}
	return AccountFrozen{AccountID: a.id, Reason: reason, FrozenAt: time.Now().UTC()}, nil
}

// Unfreeze yields AccountUnfrozen, refusing if not frozen.
func (a *Account) Unfreeze() (AccountEvent, error) {
	if err := a.checkLive(); err != nil {
		return nil, err
	}
	if a.status != AccountStatusFrozen {
		return nil, ErrInvalidRequest("account is not frozen")
	}
	return AccountUnfrozen{AccountID: a.id, UnfrozenAt: time.Now().UTC()}, nil
}

// accountSnapshotState is the JSON wire form event_snapshots.state carries
// for an Account — the aggregate's private fields made marshalable, since
// Apply's poisoned-aggregate flag must survive a snapshot round-trip too.
type accountSnapshotState struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	AccountType string     `json:"account_type"`
	Balance     string     `json:"balance"`
	Status      AccountStatus `json:"status"`
	Version     int64      `json:"version"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	ReplayErr   string     `json:"replay_err,omitempty"`
}

// SnapshotState marshals the aggregate's current state for
// store.Snapshot.State.
func (a *Account) SnapshotState() ([]byte, error) {
	s := accountSnapshotState{
		ID: a.id, UserID: a.userID, AccountType: a.accountType,
		Balance: a.balance.String(), Status: a.status, Version: a.version, CreatedAt: a.createdAt,
	}
	if a.replayErr != nil {
		s.ReplayErr = a.replayErr.Error()
	}
	return json.Marshal(s)
}

// AccountFromSnapshotState restores an Account from a previously saved
// snapshot, skipping the replay of every event up to that version.
func AccountFromSnapshotState(data []byte) (*Account, error) {
	var s accountSnapshotState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	bal, err := ParseBalanceAny(s.Balance)
	if err != nil {
		return nil, err
	}
	a := &Account{
		id: s.ID, userID: s.UserID, accountType: s.AccountType,
		balance: bal, status: s.Status, version: s.Version, createdAt: s.CreatedAt,
	}
	if s.ReplayErr != "" {
		a.replayErr = ErrInternal(s.ReplayErr)
	}
	return a, nil
}

// ShouldSnapshot reports whether the event store should write a snapshot
// for this aggregate at its current version.
func (a *Account) ShouldSnapshot() bool {
	return a.version > 0 && a.version%100 == 0
}

// Apply folds event into the aggregate's state, returning the updated
// Account. Apply is total: it always increments the version (preserving
// I5, contiguous per-aggregate versions) even when the payload cannot be
// revalidated, in which case the aggregate is marked poisoned instead of
// aborting the fold.
func (a *Account) Apply(event AccountEvent) *Account {
	next := *a
	next.version++

	switch e := event.(type) {
	case AccountCreated:
		next.id = e.AccountID
		next.userID = e.UserID
		next.accountType = e.AccountType
		next.balance = ZeroBalance()
		next.status = AccountStatusActive
		next.createdAt = &e.CreatedAt

	case MoneyCredited:
		amt, err := ParseAmount(e.Amount)
		if err != nil {
			next.replayErr = err
			return &next
		}
		next.balance = next.balance.Add(amt)

	case MoneyDebited:
		amt, err := ParseAmount(e.Amount)
		if err != nil {
			next.replayErr = err
			return &next
		}
		next.balance = next.balance.Sub(amt)

	case AccountFrozen:
		next.status = AccountStatusFrozen

	case AccountUnfrozen:
		next.status = AccountStatusActive
	}

	return &next
}
