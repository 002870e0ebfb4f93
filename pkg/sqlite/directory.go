package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atplabs/ledger/pkg/store"
)

// Directory implements store.Directory against the users/accounts
// tables. These rows are the relational identity surface handlers
// consult to resolve a user_id to its wallet account_id before loading
// the event-sourced Account aggregate; the aggregate's balance and
// status are never read from here. Its writes run against whatever dbtx
// it's handed, so a unit of work can fold them into the same transaction
// as the event append they accompany.
type Directory struct {
	db dbtx
}

func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) CreateUserRow(ctx context.Context, u store.UserRow, createdAt time.Time) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, display_name, is_system, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID.String(), u.Username, u.Email, u.DisplayName, u.IsSystem, u.IsActive, createdAt, createdAt,
	)
	if err != nil {
		return fmt.Errorf("create user row: %w", err)
	}
	return nil
}

func (d *Directory) CreateAccountRow(ctx context.Context, a store.AccountRow) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, account_type, is_active, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID.String(), a.UserID.String(), a.AccountType, a.IsActive, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create account row: %w", err)
	}
	return nil
}

func (d *Directory) WalletAccountByUserID(ctx context.Context, userID uuid.UUID) (*store.AccountRow, error) {
	var a store.AccountRow
	var idStr, userStr string
	err := d.db.QueryRowContext(ctx,
		`SELECT id, user_id, account_type, is_active, created_at FROM accounts WHERE user_id = ? AND account_type = 'user_wallet'`,
		userID.String(),
	).Scan(&idStr, &userStr, &a.AccountType, &a.IsActive, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup wallet account: %w", err)
	}
	a.ID, a.UserID = uuid.MustParse(idStr), uuid.MustParse(userStr)
	return &a, nil
}

func (d *Directory) AccountByUserID(ctx context.Context, userID uuid.UUID) (*store.AccountRow, error) {
	var a store.AccountRow
	var idStr, userStr string
	err := d.db.QueryRowContext(ctx,
		`SELECT id, user_id, account_type, is_active, created_at FROM accounts WHERE user_id = ?`,
		userID.String(),
	).Scan(&idStr, &userStr, &a.AccountType, &a.IsActive, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup account by user: %w", err)
	}
	a.ID, a.UserID = uuid.MustParse(idStr), uuid.MustParse(userStr)
	return &a, nil
}

func (d *Directory) AccountByID(ctx context.Context, accountID uuid.UUID) (*store.AccountRow, error) {
	var a store.AccountRow
	var idStr, userStr string
	err := d.db.QueryRowContext(ctx,
		`SELECT id, user_id, account_type, is_active, created_at FROM accounts WHERE id = ?`,
		accountID.String(),
	).Scan(&idStr, &userStr, &a.AccountType, &a.IsActive, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	a.ID, a.UserID = uuid.MustParse(idStr), uuid.MustParse(userStr)
	return &a, nil
}
