package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atplabs/ledger/pkg/domain"
)

func mustAmount(t *testing.T, s string) domain.Amount {
	t.Helper()
	a, err := domain.ParseAmount(s)
	require.NoError(t, err)
	return a
}

func TestAccount_Credit(t *testing.T) {
	account, _ := domain.NewAccount(uuid.New(), uuid.New(), "standard")

	event, err := account.Credit(mustAmount(t, "100"), uuid.New(), "deposit")
	require.NoError(t, err)

	after := account.Apply(event)
	assert.Equal(t, "100", after.Balance().String())
	assert.Equal(t, int64(2), after.Version())
}

func TestAccount_Debit_InsufficientBalance(t *testing.T) {
	account, _ := domain.NewAccount(uuid.New(), uuid.New(), "standard")

	_, err := account.Debit(mustAmount(t, "1"), uuid.New(), "withdraw")
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeInsufficientBalance))
}

func TestAccount_Debit_FrozenRejected(t *testing.T) {
	account, _ := domain.NewAccount(uuid.New(), uuid.New(), "standard")
	creditEvent, err := account.Credit(mustAmount(t, "100"), uuid.New(), "deposit")
	require.NoError(t, err)
	account = account.Apply(creditEvent)

	freezeEvent, err := account.Freeze("fraud review")
	require.NoError(t, err)
	account = account.Apply(freezeEvent)

	_, err = account.Debit(mustAmount(t, "10"), uuid.New(), "withdraw")
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeAccountFrozen))
}

func TestAccount_Freeze_AlreadyFrozenRejected(t *testing.T) {
	account, _ := domain.NewAccount(uuid.New(), uuid.New(), "standard")
	freezeEvent, err := account.Freeze("reason")
	require.NoError(t, err)
	account = account.Apply(freezeEvent)

	_, err = account.Freeze("again")
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeInvalidRequest))
}

func TestAccount_Unfreeze_NotFrozenRejected(t *testing.T) {
	account, _ := domain.NewAccount(uuid.New(), uuid.New(), "standard")
	_, err := account.Unfreeze()
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeInvalidRequest))
}

func TestAccount_UncheckedDebit_AllowsNegativeBalance(t *testing.T) {
	account, _ := domain.NewAccount(uuid.New(), uuid.New(), "system_mint")

	event, err := account.UncheckedDebit(mustAmount(t, "500"), uuid.New(), "mint issuance")
	require.NoError(t, err)

	after := account.Apply(event)
	assert.Equal(t, "-500", after.Balance().String())
}

func TestAccount_SnapshotRoundTrip(t *testing.T) {
	account, _ := domain.NewAccount(uuid.New(), uuid.New(), "standard")
	creditEvent, err := account.Credit(mustAmount(t, "250.5"), uuid.New(), "seed")
	require.NoError(t, err)
	account = account.Apply(creditEvent)

	data, err := account.SnapshotState()
	require.NoError(t, err)

	restored, err := domain.AccountFromSnapshotState(data)
	require.NoError(t, err)

	assert.Equal(t, account.ID(), restored.ID())
	assert.Equal(t, account.Balance().String(), restored.Balance().String())
	assert.Equal(t, account.Version(), restored.Version())
}

func TestAccount_ShouldSnapshot(t *testing.T) {
	account, _ := domain.NewAccount(uuid.New(), uuid.New(), "standard")
	assert.False(t, account.ShouldSnapshot())

	for i := 0; i < 99; i++ {
		event, err := account.Credit(mustAmount(t, "1"), uuid.New(), "seed")
		require.NoError(t, err)
		account = account.Apply(event)
	}
	assert.Equal(t, int64(100), account.Version())
	assert.True(t, account.ShouldSnapshot())
}
