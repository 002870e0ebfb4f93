package handlers

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/atplabs/ledger/pkg/domain"
)

// TransferCommand moves ATP between two users' wallets.
type TransferCommand struct {
	FromUserID uuid.UUID
	ToUserID   uuid.UUID
	Amount     string
	Memo       string
}

type TransferResult struct {
	TransferID uuid.UUID
	FromUserID uuid.UUID
	ToUserID   uuid.UUID
	Amount     string
}

// Transfer executes a wallet-to-wallet transfer: the same two-leg
// movement Mint/Burn use, generalized to two ordinary wallets instead of
// a wallet and a system account.
func Transfer(ctx context.Context, d Deps, cmd TransferCommand, idempotencyKey *uuid.UUID, opCtx domain.OperationContext) (*TransferResult, error) {
	if cmd.FromUserID == cmd.ToUserID {
		return nil, domain.ErrSameAccountTransfer
	}
	if opCtx.RequestUserID != nil && *opCtx.RequestUserID != cmd.FromUserID {
		return nil, domain.ErrUnauthorized("transfer must be initiated by its sender")
	}
	amount, err := domain.ParseAmount(cmd.Amount)
	if err != nil {
		return nil, err
	}

	fromAccountID, err := getWalletAccountID(ctx, d.Directory, cmd.FromUserID)
	if err != nil {
		return nil, err
	}
	toAccountID, err := getWalletAccountID(ctx, d.Directory, cmd.ToUserID)
	if err != nil {
		return nil, err
	}

	transferID := uuid.New()

	mv, err := twoLegMovement(ctx, d, "transfer", transferID,
		func(ctx context.Context) (*domain.Account, error) { return loadAccountWithFallback(ctx, d, fromAccountID) },
		func(ctx context.Context) (*domain.Account, error) { return loadAccountWithFallback(ctx, d, toAccountID) },
		func(from, to *domain.Account) (domain.AccountEvent, domain.AccountEvent, error) {
			debitEvent, err := from.Debit(amount, transferID, cmd.Memo)
			if err != nil {
				return nil, nil, err
			}
			creditEvent, err := to.Credit(amount, transferID, cmd.Memo)
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
		var cached TransferResult
		if err := json.Unmarshal(mv.AppendResult.CachedResponseBody, &cached); err != nil {
			return nil, err
		}
		return &cached, nil
	}

	result := &TransferResult{TransferID: transferID, FromUserID: cmd.FromUserID, ToUserID: cmd.ToUserID, Amount: amount.String()}
	if err := completeIdempotent(ctx, d, idempotencyKey, mv.AppendResult.EventIDs[0], result); err != nil {
		return nil, err
	}
	return result, nil
}
