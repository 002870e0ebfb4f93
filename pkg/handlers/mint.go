package handlers

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/atplabs/ledger/pkg/domain"
)

// MintCommand creates new ATP from the SYSTEM_MINT account into a
// recipient's wallet.
type MintCommand struct {
	RecipientUserID uuid.UUID
	Amount          string
	Reason          string
}

type MintResult struct {
	MintID          uuid.UUID
	RecipientUserID uuid.UUID
	Amount          string
}

// Mint runs the same two-leg movement as Burn/Transfer with the debit leg
// on SYSTEM_MINT instead of a user's wallet. The debit event is built
// with UncheckedDebit — SYSTEM_MINT is allowed to go negative — and an
// idempotent replay returns the original cached MintResult rather than a
// freshly synthesized mint id.
func Mint(ctx context.Context, d Deps, cmd MintCommand, idempotencyKey *uuid.UUID, opCtx domain.OperationContext) (*MintResult, error) {
	amount, err := domain.ParseAmount(cmd.Amount)
	if err != nil {
		return nil, err
	}

	mintAccountID, err := getSystemAccountID(ctx, d.Directory, SystemMintUserID)
	if err != nil {
		return nil, err
	}
	recipientAccountID, err := getWalletAccountID(ctx, d.Directory, cmd.RecipientUserID)
	if err != nil {
		return nil, err
	}

	mintID := uuid.New()

	mv, err := twoLegMovement(ctx, d, "mint", mintID,
		func(ctx context.Context) (*domain.Account, error) {
			return loadAccountFromDBState(ctx, d.Directory, d.Events, d.Projection, mintAccountID)
		},
		func(ctx context.Context) (*domain.Account, error) { return loadAccountWithFallback(ctx, d, recipientAccountID) },
		func(mintAccount, recipient *domain.Account) (domain.AccountEvent, domain.AccountEvent, error) {
			debitEvent, err := mintAccount.UncheckedDebit(amount, mintID, fmt.Sprintf("Mint: %s", cmd.Reason))
			if err != nil {
				return nil, nil, err
			}
			creditEvent, err := recipient.Credit(amount, mintID, fmt.Sprintf("Minted to user: %s", cmd.Reason))
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
		var cached MintResult
		if err := json.Unmarshal(mv.AppendResult.CachedResponseBody, &cached); err != nil {
			return nil, err
		}
		return &cached, nil
	}

	result := &MintResult{MintID: mintID, RecipientUserID: cmd.RecipientUserID, Amount: amount.String()}
	if err := completeIdempotent(ctx, d, idempotencyKey, mv.AppendResult.EventIDs[0], result); err != nil {
		return nil, err
	}
	return result, nil
}
