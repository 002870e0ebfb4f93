package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/atplabs/ledger/pkg/domain"
	"github.com/atplabs/ledger/pkg/store"
)

// SystemMintUserID and SystemBurnUserID are the fixed seed identities for
// the ledger's two system accounts. cmd/ledgerd seeds both users/accounts
// at first boot.
var (
	SystemMintUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	SystemBurnUserID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

const (
	AccountTypeUserWallet = "user_wallet"
	AccountTypeSystemMint = "system_mint"
	AccountTypeSystemBurn = "system_burn"
)

func getWalletAccountID(ctx context.Context, dir store.Directory, userID uuid.UUID) (uuid.UUID, error) {
	row, err := dir.WalletAccountByUserID(ctx, userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("lookup wallet account: %w", err)
	}
	if row == nil {
		return uuid.Nil, domain.ErrUserNotFound(userID.String())
	}
	return row.ID, nil
}

func getSystemAccountID(ctx context.Context, dir store.Directory, systemUserID uuid.UUID) (uuid.UUID, error) {
	row, err := dir.AccountByUserID(ctx, systemUserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("lookup system account: %w", err)
	}
	if row == nil {
		return uuid.Nil, domain.ErrInternal("system account not found for user " + systemUserID.String())
	}
	return row.ID, nil
}
