package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/atplabs/ledger/pkg/audit"
	"github.com/atplabs/ledger/pkg/domain"
	"github.com/atplabs/ledger/pkg/idempotency"
	"github.com/atplabs/ledger/pkg/store"
)

// CreateUserCommand creates a user and its wallet account together.
type CreateUserCommand struct {
	UserID      uuid.UUID
	Username    string
	Email       string
	DisplayName *string
}

type CreateUserResult struct {
	UserID    uuid.UUID
	AccountID uuid.UUID
	Username  string
}

// CreateUser appends the user's UserCreated event and the wallet
// account's AccountCreated event as one atomic operation, then creates
// the account's balance row — the only handler that creates a brand-new
// aggregate on both sides of the append rather than mutating existing
// ones.
func CreateUser(ctx context.Context, d Deps, cmd CreateUserCommand, idempotencyKey *uuid.UUID, opCtx domain.OperationContext) (*CreateUserResult, error) {
	if cmd.Username == "" || cmd.Email == "" {
		return nil, domain.ErrInvalidRequest("username and email are required")
	}

	user, userCreated := domain.NewUser(cmd.UserID, cmd.Username, cmd.Email, cmd.DisplayName)
	accountID := uuid.New()
	account, accountCreated := domain.NewAccount(accountID, cmd.UserID, AccountTypeUserWallet)

	userData, err := encodeEvent(userCreated)
	if err != nil {
		return nil, err
	}
	accountData, err := encodeEvent(accountCreated)
	if err != nil {
		return nil, err
	}

	ops := []store.AggregateOp{
		{AggregateType: "User", AggregateID: user.ID(), ExpectedVersion: 0, EventType: userCreated.EventType(), EventData: userData},
		{AggregateType: "Account", AggregateID: account.ID(), ExpectedVersion: 0, EventType: accountCreated.EventType(), EventData: accountData},
	}

	var requestHash string
	if idempotencyKey != nil {
		h, err := idempotency.ComputeRequestHash(cmd)
		if err != nil {
			return nil, err
		}
		requestHash = h
	}

	var result *store.AppendResult
	out := &CreateUserResult{UserID: cmd.UserID, AccountID: account.ID(), Username: cmd.Username}

	txErr := d.UnitOfWork.Execute(ctx, func(ctx context.Context, tx store.TxStores) error {
		var err error
		result, err = tx.Events.AppendAtomic(ctx, ops, idempotencyKey, requestHash, opCtx)
		if err != nil {
			return fmt.Errorf("append create-user events: %w", err)
		}
		if result.AlreadyProcessed {
			return nil
		}

		if err := tx.Directory.CreateUserRow(ctx, store.UserRow{ID: user.ID(), Username: user.Username(), Email: user.Email(), DisplayName: user.DisplayName(), IsSystem: false, IsActive: true}, time.Now().UTC()); err != nil {
			return fmt.Errorf("create user row: %w", err)
		}
		if err := tx.Directory.CreateAccountRow(ctx, store.AccountRow{ID: account.ID(), UserID: cmd.UserID, AccountType: AccountTypeUserWallet, IsActive: true, CreatedAt: time.Now().UTC()}); err != nil {
			return fmt.Errorf("create account row: %w", err)
		}
		if err := tx.Projection.CreateAccountBalance(ctx, account.ID(), result.EventIDs[1]); err != nil {
			return fmt.Errorf("create account balance: %w", err)
		}

		after, _ := encodeEvent(out)
		resourceType, resourceID := "user", cmd.UserID.String()
		// Best-effort: see recordMovementAudit's note on audit as a secondary trail.
		_, _ = audit.New(tx.Audit).Record(ctx, "create_user", opCtx.RequestUserID, &resourceType, &resourceID, nil, after, []string{"username", "email", "display_name"}, clientIPString(opCtx))
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	if result.AlreadyProcessed {
		recordReplayHit(d)
		var cached CreateUserResult
		if err := json.Unmarshal(result.CachedResponseBody, &cached); err != nil {
			return nil, err
		}
		return &cached, nil
	}

	if err := completeIdempotent(ctx, d, idempotencyKey, result.EventIDs[0], out); err != nil {
		return nil, err
	}
	return out, nil
}
