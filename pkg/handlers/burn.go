package handlers

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/atplabs/ledger/pkg/domain"
)

// BurnCommand removes ATP from circulation into the SYSTEM_BURN account.
// Mirrors Mint with the legs reversed.
type BurnCommand struct {
	FromUserID uuid.UUID
	Amount     string
	Reason     string
}

type BurnResult struct {
	BurnID     uuid.UUID
	FromUserID uuid.UUID
	Amount     string
}

// Burn withdraws from a user's wallet into SYSTEM_BURN as a two-leg
// movement, the same shape Mint and Transfer use.
func Burn(ctx context.Context, d Deps, cmd BurnCommand, idempotencyKey *uuid.UUID, opCtx domain.OperationContext) (*BurnResult, error) {
	amount, err := domain.ParseAmount(cmd.Amount)
	if err != nil {
		return nil, err
	}

	burnAccountID, err := getSystemAccountID(ctx, d.Directory, SystemBurnUserID)
	if err != nil {
		return nil, err
	}
	fromAccountID, err := getWalletAccountID(ctx, d.Directory, cmd.FromUserID)
	if err != nil {
		return nil, err
	}

	burnID := uuid.New()

	mv, err := twoLegMovement(ctx, d, "burn", burnID,
		func(ctx context.Context) (*domain.Account, error) { return loadAccountWithFallback(ctx, d, fromAccountID) },
		func(ctx context.Context) (*domain.Account, error) {
			return loadAccountFromDBState(ctx, d.Directory, d.Events, d.Projection, burnAccountID)
		},
		func(from, burnAccount *domain.Account) (domain.AccountEvent, domain.AccountEvent, error) {
			debitEvent, err := from.Debit(amount, burnID, fmt.Sprintf("Burn: %s", cmd.Reason))
			if err != nil {
				return nil, nil, err
			}
			creditEvent, err := burnAccount.Credit(amount, burnID, fmt.Sprintf("Burned from user: %s", cmd.Reason))
			if err != nil {
				return nil, nil, err
			}
			return debitEvent, creditEvent, nil
		},
		amount, idempotencyKey, cmd, opCtx,
	)
	if err != nil {
		return nil, err
	}

	if mv.AppendResult.AlreadyProcessed {
		var cached BurnResult
		if err := json.Unmarshal(mv.AppendResult.CachedResponseBody, &cached); err != nil {
			return nil, err
		}
		return &cached, nil
	}

	result := &BurnResult{BurnID: burnID, FromUserID: cmd.FromUserID, Amount: amount.String()}
	if err := completeIdempotent(ctx, d, idempotencyKey, mv.AppendResult.EventIDs[0], result); err != nil {
		return nil, err
	}
	return result, nil
}
