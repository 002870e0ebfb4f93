package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atplabs/ledger/pkg/domain"
	"github.com/atplabs/ledger/pkg/store"
)

// SeedSystemAccount creates one of the two fixed system identities
// (SYSTEM_MINT/SYSTEM_BURN) the first time cmd/ledgerd runs against a fresh
// store. It is a no-op if the account already exists, so it is safe to
// call on every process start.
func SeedSystemAccount(ctx context.Context, d Deps, userID uuid.UUID, username, accountType string) error {
	existing, err := d.Directory.AccountByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("check existing system account: %w", err)
	}
	if existing != nil {
		return nil
	}

	user, userCreated := domain.NewUser(userID, username, username+"@system.internal", nil)
	accountID := uuid.New()
	account, accountCreated := domain.NewAccount(accountID, userID, accountType)

	userData, err := encodeEvent(userCreated)
	if err != nil {
		return err
	}
	accountData, err := encodeEvent(accountCreated)
	if err != nil {
		return err
	}

	ops := []store.AggregateOp{
		{AggregateType: "User", AggregateID: user.ID(), ExpectedVersion: 0, EventType: userCreated.EventType(), EventData: userData},
		{AggregateType: "Account", AggregateID: account.ID(), ExpectedVersion: 0, EventType: accountCreated.EventType(), EventData: accountData},
	}

	now := time.Now().UTC()
	return d.UnitOfWork.Execute(ctx, func(ctx context.Context, tx store.TxStores) error {
		result, err := tx.Events.AppendAtomic(ctx, ops, nil, "", domain.OperationContext{})
		if err != nil {
			return fmt.Errorf("append system account events: %w", err)
		}
		if err := tx.Directory.CreateUserRow(ctx, store.UserRow{ID: user.ID(), Username: user.Username(), Email: user.Email(), DisplayName: user.DisplayName(), IsSystem: true, IsActive: true}, now); err != nil {
			return fmt.Errorf("create system user row: %w", err)
		}
		if err := tx.Directory.CreateAccountRow(ctx, store.AccountRow{ID: account.ID(), UserID: userID, AccountType: accountType, IsActive: true, CreatedAt: now}); err != nil {
			return fmt.Errorf("create system account row: %w", err)
		}
		if err := tx.Projection.CreateAccountBalance(ctx, account.ID(), result.EventIDs[1]); err != nil {
			return fmt.Errorf("create system account balance: %w", err)
		}
		return nil
	})
}
