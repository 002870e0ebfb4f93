package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atplabs/ledger/pkg/domain"
)

func TestNewAmount(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "positive value", value: "100.50", wantErr: false},
		{name: "zero is rejected", value: "0", wantErr: true},
		{name: "negative is rejected", value: "-1", wantErr: true},
		{name: "exceeds max scale", value: "1.123456789", wantErr: true},
		{name: "exceeds max value", value: "1000000000001", wantErr: true},
		{name: "at max value boundary", value: "1000000000000", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := decimal.NewFromString(tt.value)
			require.NoError(t, err)

			_, err = domain.NewAmount(d)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseAmount_InvalidString(t *testing.T) {
	_, err := domain.ParseAmount("not-a-number")
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeInvalidRequest))
}

func TestBalance_IsSufficientFor(t *testing.T) {
	bal, err := domain.NewBalance(decimal.NewFromInt(100))
	require.NoError(t, err)

	amt, err := domain.ParseAmount("100")
	require.NoError(t, err)
	assert.True(t, bal.IsSufficientFor(amt))

	tooMuch, err := domain.ParseAmount("100.01")
	require.NoError(t, err)
	assert.False(t, bal.IsSufficientFor(tooMuch))
}

func TestBalance_NegativeRejectedByNewBalance(t *testing.T) {
	_, err := domain.NewBalance(decimal.NewFromInt(-1))
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeInvalidRequest))
}

func TestBalance_FromDecimalUncheckedAllowsNegative(t *testing.T) {
	bal := domain.FromDecimalUnchecked(decimal.NewFromInt(-500))
	assert.Equal(t, "-500", bal.String())
}

func TestBalance_AddSub(t *testing.T) {
	bal := domain.ZeroBalance()
	amt, err := domain.ParseAmount("50")
	require.NoError(t, err)

	credited := bal.Add(amt)
	assert.Equal(t, "50", credited.String())

	debited := credited.Sub(amt)
	assert.Equal(t, "0", debited.String())
}
