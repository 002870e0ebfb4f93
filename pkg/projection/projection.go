// Package projection is the read-side engine that turns committed
// MoneyDebited/MoneyCredited events into matched double-entry ledger
// rows and keeps a balance read-cache, both backed by
// store.ProjectionStore, plus an in-process LRU fronting GetBalance so
// repeated balance reads for the same hot accounts (a wallet being
// polled, a system account being debited/credited continuously) don't
// round-trip to storage every time.
package projection

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"

	"github.com/atplabs/ledger/pkg/store"
)

const defaultCacheSize = 4096

type Engine struct {
	store store.ProjectionStore
	cache *lru.Cache[uuid.UUID, store.AccountBalance]
}

func New(s store.ProjectionStore) *Engine {
	c, _ := lru.New[uuid.UUID, store.AccountBalance](defaultCacheSize)
	return &Engine{store: s, cache: c}
}

func (e *Engine) CreateAccountBalance(ctx context.Context, accountID uuid.UUID, eventID string) error {
	return e.store.CreateAccountBalance(ctx, accountID, eventID)
}

// ApplyTransfer records a matched debit/credit pair moving amount from
// debitAccount to creditAccount and invalidates both accounts' cache
// entries — invalidated, not refreshed in place, so the next read always
// reflects the write this call just committed.
func (e *Engine) ApplyTransfer(ctx context.Context, journalID uuid.UUID, eventID string, debitAccount, creditAccount uuid.UUID, amount string, version int64) error {
	if err := e.store.ApplyLedgerMovement(ctx, journalID, eventID, debitAccount, creditAccount, amount, version); err != nil {
		return err
	}
	e.cache.Remove(debitAccount)
	e.cache.Remove(creditAccount)
	return nil
}

// Mint and burn movements are also double-entry movements between a
// system account and a wallet account. pkg/handlers writes transfer, mint
// and burn alike through store.ProjectionStore.ApplyLedgerMovement inside
// its UnitOfWork transaction, then calls Invalidate — the legs differ only
// in which account plays debit and which plays credit, which the caller
// already decides.

// Invalidate drops any cached balance for the given accounts. A caller
// that wrote a ledger movement through the raw store.ProjectionStore
// inside its own transaction — rather than through ApplyTransfer — uses
// this to keep the engine's cache from serving a now-stale balance.
func (e *Engine) Invalidate(accountIDs ...uuid.UUID) {
	for _, id := range accountIDs {
		e.cache.Remove(id)
	}
}

func (e *Engine) GetBalance(ctx context.Context, accountID uuid.UUID) (*store.AccountBalance, error) {
	if b, ok := e.cache.Get(accountID); ok {
		return &b, nil
	}
	b, err := e.store.GetBalance(ctx, accountID)
	if err != nil || b == nil {
		return b, err
	}
	e.cache.Add(accountID, *b)
	return b, nil
}
