package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atplabs/ledger/pkg/audit"
	"github.com/atplabs/ledger/pkg/domain"
	"github.com/atplabs/ledger/pkg/eventsourcing"
	"github.com/atplabs/ledger/pkg/idempotency"
	"github.com/atplabs/ledger/pkg/store"
)

// retryUnit/retryAttempts express the "up to 3 attempts, 50/100 ms linear
// backoff between them" schedule used to retry optimistic version conflicts.
const (
	retryAttempts = 3
	retryUnit     = 50 * time.Millisecond
)

// movementResult is what twoLegMovement hands back to its caller: either
// a freshly-applied pair of accounts, or, on an idempotent replay, the
// raw cached response body the original call produced.
type movementResult struct {
	AppendResult *store.AppendResult
	DebitAfter   *domain.Account
	CreditAfter  *domain.Account
}

// twoLegMovement loads both accounts, asks makeEvents to derive the
// debit/credit pair from their current state, and appends them
// atomically alongside the projection update, snapshot maintenance, and
// audit entries for both legs — all inside one UnitOfWork transaction, so
// a crash partway through can never leave the event log ahead of the
// balances it's supposed to back. The whole load-compute-append cycle
// is attempted up to retryAttempts times on a version conflict, since a
// conflict means another writer advanced one of the two aggregates after
// this call's load. journalID doubles as the transfer/mint/burn id shared
// by both ledger entries.
func twoLegMovement(
	ctx context.Context,
	d Deps,
	action string,
	journalID uuid.UUID,
	loadDebit, loadCredit func(ctx context.Context) (*domain.Account, error),
	makeEvents func(debit, credit *domain.Account) (domain.AccountEvent, domain.AccountEvent, error),
	amount domain.Amount,
	idempotencyKey *uuid.UUID,
	requestPayload any,
	opCtx domain.OperationContext,
) (*movementResult, error) {
	var requestHash string
	if idempotencyKey != nil {
		h, err := idempotency.ComputeRequestHash(requestPayload)
		if err != nil {
			return nil, err
		}
		requestHash = h
	}

	var out *movementResult
	var touched []uuid.UUID
	err := eventsourcing.Retry(retryAttempts, retryUnit, func(err error) bool {
		return domain.IsCode(err, domain.CodeVersionConflict)
	}, func(attempt int) error {
		debitAccount, err := loadDebit(ctx)
		if err != nil {
			return err
		}
		creditAccount, err := loadCredit(ctx)
		if err != nil {
			return err
		}

		debitEvent, creditEvent, err := makeEvents(debitAccount, creditAccount)
		if err != nil {
			return err
		}

		debitData, err := encodeEvent(debitEvent)
		if err != nil {
			return err
		}
		creditData, err := encodeEvent(creditEvent)
		if err != nil {
			return err
		}

		ops := []store.AggregateOp{
			{AggregateType: "Account", AggregateID: debitAccount.ID(), ExpectedVersion: debitAccount.Version(), EventType: debitEvent.EventType(), EventData: debitData},
			{AggregateType: "Account", AggregateID: creditAccount.ID(), ExpectedVersion: creditAccount.Version(), EventType: creditEvent.EventType(), EventData: creditData},
		}

		var result *store.AppendResult
		var debitAfter, creditAfter *domain.Account

		txErr := d.UnitOfWork.Execute(ctx, func(ctx context.Context, tx store.TxStores) error {
			var err error
			result, err = tx.Events.AppendAtomic(ctx, ops, idempotencyKey, requestHash, opCtx)
			if err != nil {
				return err
			}
			if result.AlreadyProcessed {
				return nil
			}

			if err := tx.Projection.ApplyLedgerMovement(ctx, journalID, result.EventIDs[0], debitAccount.ID(), creditAccount.ID(), amount.String(), debitAccount.Version()+1); err != nil {
				return fmt.Errorf("apply movement projection: %w", err)
			}

			debitAfter = debitAccount.Apply(debitEvent)
			creditAfter = creditAccount.Apply(creditEvent)

			if err := saveAccountSnapshotIfNeeded(ctx, tx.Events, debitAfter); err != nil {
				return err
			}
			if err := saveAccountSnapshotIfNeeded(ctx, tx.Events, creditAfter); err != nil {
				return err
			}

			recordMovementAudit(ctx, audit.New(tx.Audit), action, journalID, debitAccount, debitAfter, creditAccount, creditAfter, opCtx)
			return nil
		})
		if txErr != nil {
			return txErr
		}

		if result.AlreadyProcessed {
			recordReplayHit(d)
			out = &movementResult{AppendResult: result}
			return nil
		}

		touched = []uuid.UUID{debitAccount.ID(), creditAccount.ID()}
		out = &movementResult{AppendResult: result, DebitAfter: debitAfter, CreditAfter: creditAfter}
		return nil
	})
	if err != nil {
		if domain.IsCode(err, domain.CodeVersionConflict) {
			return nil, domain.ErrMaxRetriesExceeded
		}
		return nil, err
	}
	// Cache invalidation happens after the transaction that wrote the new
	// balances has committed — the cache isn't a durability concern, so
	// there's no need to fold it into the unit of work itself.
	if touched != nil {
		d.Projection.Invalidate(touched...)
	}
	return out, nil
}

// accountAuditSnapshot is the before/after shape recorded for each leg of
// a movement, kept deliberately small — the full ledger row already lives
// in ledger_entries, so the audit log only needs enough to verify the
// balance transition independently.
type accountAuditSnapshot struct {
	AccountID uuid.UUID `json:"account_id"`
	Balance   string    `json:"balance"`
	Version   int64     `json:"version"`
	JournalID uuid.UUID `json:"journal_id"`
}

// recordMovementAudit writes one audit entry per leg of a transfer/mint/burn
// through rec, which twoLegMovement binds to the UnitOfWork transaction.
// Record errors are ignored and never fail the command itself. An entry
// that is never written leaves no broken hash-chain link: the next Append
// chains from whatever row is latest.
func recordMovementAudit(ctx context.Context, rec AuditRecorder, action string, journalID uuid.UUID, debitBefore, debitAfter, creditBefore, creditAfter *domain.Account, opCtx domain.OperationContext) {
	clientIP := clientIPString(opCtx)

	for _, leg := range []struct {
		before, after *domain.Account
	}{
		{debitBefore, debitAfter},
		{creditBefore, creditAfter},
	} {
		before, _ := encodeEvent(accountAuditSnapshot{AccountID: leg.before.ID(), Balance: leg.before.Balance().String(), Version: leg.before.Version(), JournalID: journalID})
		after, _ := encodeEvent(accountAuditSnapshot{AccountID: leg.after.ID(), Balance: leg.after.Balance().String(), Version: leg.after.Version(), JournalID: journalID})
		accountID := leg.after.ID().String()
		resourceType := "account"
		// Best-effort: the error is discarded (see the note above).
		_, _ = rec.Record(ctx, action, opCtx.RequestUserID, &resourceType, &accountID, before, after, []string{"balance", "version"}, clientIP)
	}
}

func clientIPString(opCtx domain.OperationContext) *string {
	if opCtx.ClientIP == nil {
		return nil
	}
	s := opCtx.ClientIP.String()
	return &s
}

// completeIdempotent marshals result and attaches it to the idempotency
// row as its response_body, so a future replay of the same key returns
// this exact payload instead of a freshly synthesized id.
func completeIdempotent(ctx context.Context, d Deps, idempotencyKey *uuid.UUID, eventID string, result any) error {
	if idempotencyKey == nil {
		return nil
	}
	body, err := encodeEvent(result)
	if err != nil {
		return err
	}
	return d.Idempotency.Complete(ctx, *idempotencyKey, eventID, 200, body)
}
