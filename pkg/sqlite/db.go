// Package sqlite is the concrete storage-engine adapter for every
// pkg/store interface, backed by modernc.org/sqlite (pure Go, no cgo).
// All SQL here is hand-written against database/sql rather than
// generated by a query-builder layer.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens the sqlite database at dsn and configures the connection
// pool. maxConns is the caller's DATABASE_MAX_CONNECTIONS setting.
func Open(dsn string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(maxConns)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// RequiredTables is the table list CheckSchema verifies exist before the
// store is considered usable. api_keys and account_types are
// deliberately absent: api_keys belongs to the out-of-scope HTTP auth
// surface, and account_types is a closed three-value set (user_wallet,
// system_mint, system_burn) expressed as a Go string constant rather
// than a lookup table.
var RequiredTables = []string{
	"rate_limit_buckets",
	"events",
	"event_snapshots",
	"users",
	"accounts",
	"account_balances",
	"ledger_entries",
	"idempotency_keys",
	"audit_logs",
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	version INTEGER NOT NULL,
	event_type TEXT NOT NULL,
	event_data BLOB NOT NULL,
	context BLOB NOT NULL,
	idempotency_key TEXT,
	created_at TIMESTAMP NOT NULL,
	UNIQUE(aggregate_id, version)
);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
CREATE INDEX IF NOT EXISTS idx_events_idempotency_key ON events(idempotency_key);

CREATE TABLE IF NOT EXISTS event_snapshots (
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	version INTEGER NOT NULL,
	state BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (aggregate_type, aggregate_id)
);

CREATE TABLE IF NOT EXISTS idempotency_keys (
	key TEXT PRIMARY KEY,
	request_hash TEXT NOT NULL,
	event_id TEXT,
	response_status INTEGER,
	response_body BLOB,
	processing_status TEXT NOT NULL,
	processing_started_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_idempotency_expires_at ON idempotency_keys(expires_at);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	display_name TEXT,
	is_system INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	account_type TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_accounts_user_id ON accounts(user_id);

CREATE TABLE IF NOT EXISTS account_balances (
	account_id TEXT PRIMARY KEY,
	balance TEXT NOT NULL,
	last_event_id TEXT NOT NULL,
	last_event_version INTEGER NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	journal_id TEXT NOT NULL,
	transfer_event_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	amount TEXT NOT NULL,
	entry_type TEXT NOT NULL,
	description TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_journal_id ON ledger_entries(journal_id);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_account_id ON ledger_entries(account_id);

CREATE TABLE IF NOT EXISTS audit_logs (
	id TEXT PRIMARY KEY,
	sequence_number INTEGER NOT NULL UNIQUE,
	actor_user_id TEXT,
	actor_api_key_id TEXT,
	action TEXT NOT NULL,
	resource_type TEXT,
	resource_id TEXT,
	before_state BLOB,
	after_state BLOB,
	changed_fields TEXT,
	client_ip TEXT,
	previous_hash TEXT NOT NULL,
	current_hash TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS rate_limit_buckets (
	bucket_key TEXT PRIMARY KEY,
	window_start TIMESTAMP NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL
);
`

// Migrate creates every table this module owns, idempotently.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schemaDDL)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CheckSchema reports whether every RequiredTables entry exists.
func CheckSchema(ctx context.Context, db *sql.DB) (bool, error) {
	for _, table := range RequiredTables {
		var name string
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&name)
		if err == sql.ErrNoRows {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("check table %s: %w", table, err)
		}
	}
	return true, nil
}

// CreateMonthlyPartitions creates the next month's sibling tables for
// events and ledger_entries (YYYY_MM suffix). sqlite has no native
// declarative partitioning, so this approximates a partitioned-monthly
// schema with pre-created, empty sibling tables; the maintenance job
// (pkg/maintenance) that calls this drives the same rollover cadence a
// partitioned relational store would need.
func CreateMonthlyPartitions(ctx context.Context, db *sql.DB, suffix string) error {
	// sqlite has no "LIKE" table clause; CREATE TABLE ... AS SELECT * WHERE 0
	// copies column shape without copying rows.
	for _, pair := range [][2]string{{"events", "events_" + suffix}, {"ledger_entries", "ledger_entries_" + suffix}} {
		q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s AS SELECT * FROM %s WHERE 0`, pair[1], pair[0])
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create partition %s: %w", pair[1], err)
		}
	}
	return nil
}
