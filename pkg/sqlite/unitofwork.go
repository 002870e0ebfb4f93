package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atplabs/ledger/pkg/store"
)

// Store is the sqlite implementation of store.UnitOfWork: it opens one
// serializable transaction and hands fn a full set of store collaborators
// bound to it, so an event append and the projection/directory/audit
// writes that belong with it commit — or roll back — together.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Execute(ctx context.Context, fn func(ctx context.Context, tx store.TxStores) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}
	defer tx.Rollback()

	txStores := store.TxStores{
		Events:     &EventStore{db: tx},
		Projection: &ProjectionStore{db: tx},
		Directory:  &Directory{db: tx},
		Audit:      &AuditStore{db: tx},
	}

	if err := fn(ctx, txStores); err != nil {
		return err
	}
	return tx.Commit()
}
