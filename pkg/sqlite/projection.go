package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atplabs/ledger/pkg/eventsourcing"
	"github.com/atplabs/ledger/pkg/store"
)

// addDecimalStrings adds two decimal-string values and returns the exact
// decimal-string sum, preserving shopspring/decimal's arbitrary-precision
// semantics through the TEXT-typed balance column.
func addDecimalStrings(a, b string) (string, error) {
	da, err := decimal.NewFromString(a)
	if err != nil {
		return "", err
	}
	db2, err := decimal.NewFromString(b)
	if err != nil {
		return "", err
	}
	return da.Add(db2).String(), nil
}

// ProjectionStore implements store.ProjectionStore: double-entry ledger
// rows plus the balance read-cache. Like EventStore, it runs against
// whatever dbtx it's handed — its own transaction when beginner is set,
// or a transaction some other store (usually the event store) already
// opened, via Store.Execute.
type ProjectionStore struct {
	db       dbtx
	beginner *sql.DB
}

func NewProjectionStore(db *sql.DB) *ProjectionStore {
	return &ProjectionStore{db: db, beginner: db}
}

func (p *ProjectionStore) CreateAccountBalance(ctx context.Context, accountID uuid.UUID, eventID string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO account_balances (account_id, balance, last_event_id, last_event_version, updated_at)
		 VALUES (?, '0', ?, 1, ?)
		 ON CONFLICT (account_id) DO NOTHING`,
		accountID.String(), eventID, eventsourcing.Now(),
	)
	if err != nil {
		return fmt.Errorf("create account balance: %w", err)
	}
	return nil
}

// ApplyLedgerMovement debits one account's cached balance, credits the
// other by the same amount, and inserts a matched debit/credit entry
// pair sharing journalID. The debit entry is recorded against the credit
// ("to") account and the credit entry against the debit ("from")
// account — each row names the account on the opposite side of the
// movement it settles.
func (p *ProjectionStore) ApplyLedgerMovement(ctx context.Context, journalID uuid.UUID, eventID string, debitAccount, creditAccount uuid.UUID, amount string, version int64) error {
	if p.beginner == nil {
		return p.applyLedgerMovement(ctx, p.db, journalID, eventID, debitAccount, creditAccount, amount, version)
	}

	tx, err := p.beginner.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := p.applyLedgerMovement(ctx, tx, journalID, eventID, debitAccount, creditAccount, amount, version); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *ProjectionStore) applyLedgerMovement(ctx context.Context, tx dbtx, journalID uuid.UUID, eventID string, debitAccount, creditAccount uuid.UUID, amount string, version int64) error {
	if err := adjustBalance(ctx, tx, debitAccount, "-"+amount, eventID, version); err != nil {
		return err
	}
	if err := adjustBalance(ctx, tx, creditAccount, amount, eventID, version); err != nil {
		return err
	}

	now := eventsourcing.Now()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (journal_id, transfer_event_id, account_id, amount, entry_type, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		journalID.String(), eventID, creditAccount.String(), amount, store.EntryDebit, now,
	)
	if err != nil {
		return fmt.Errorf("insert debit entry: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (journal_id, transfer_event_id, account_id, amount, entry_type, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		journalID.String(), eventID, debitAccount.String(), amount, store.EntryCredit, now,
	)
	if err != nil {
		return fmt.Errorf("insert credit entry: %w", err)
	}

	return nil
}

// adjustBalance applies a signed decimal-string delta to an account's
// cached balance. The balance column is TEXT, for exact
// shopspring/decimal round-tripping, so the arithmetic happens in Go
// rather than as native SQL addition.
func adjustBalance(ctx context.Context, tx dbtx, accountID uuid.UUID, deltaDecimalExpr string, eventID string, version int64) error {
	var current string
	err := tx.QueryRowContext(ctx, `SELECT balance FROM account_balances WHERE account_id = ?`, accountID.String()).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("account balance row missing for %s", accountID)
	}
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}

	next, err := addDecimalStrings(current, deltaDecimalExpr)
	if err != nil {
		return fmt.Errorf("compute next balance: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE account_balances SET balance = ?, last_event_id = ?, last_event_version = ?, updated_at = ? WHERE account_id = ?`,
		next, eventID, version, eventsourcing.Now(), accountID.String(),
	)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

func (p *ProjectionStore) GetBalance(ctx context.Context, accountID uuid.UUID) (*store.AccountBalance, error) {
	var b store.AccountBalance
	var idStr string
	err := p.db.QueryRowContext(ctx,
		`SELECT account_id, balance, last_event_id, last_event_version, updated_at FROM account_balances WHERE account_id = ?`,
		accountID.String(),
	).Scan(&idStr, &b.Balance, &b.LastEventID, &b.LastEventVersion, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	b.AccountID = accountID
	return &b, nil
}
