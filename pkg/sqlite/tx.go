package sqlite

import (
	"context"
	"database/sql"
)

// dbtx is the subset of *sql.DB and *sql.Tx every store in this package
// needs. A store whose beginner field is nil is already bound to someone
// else's transaction (see Store.Execute) and must not try to start or
// commit one of its own.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
