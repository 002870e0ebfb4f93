package domain

import (
	"github.com/shopspring/decimal"
)

// MaxScale is the maximum number of decimal places a monetary value may carry.
const MaxScale = 8

// maxValueStr bounds the absolute magnitude NewAmount and NewBalance accept.
// 10^12, inclusive. Balance.Add, Balance.Sub and FromDecimalUnchecked do not
// check it.
const maxValueStr = "1000000000000"

var maxValue = decimal.RequireFromString(maxValueStr)

// Amount is a strictly positive decimal value: the unit of every debit and
// credit. It can only be constructed through NewAmount, so a validated Amount
// can never represent zero, a negative value, or a value outside the scale
// and magnitude bounds.
type Amount struct {
	value decimal.Decimal
}

// NewAmount validates and constructs an Amount from a decimal value.
func NewAmount(value decimal.Decimal) (Amount, error) {
	if value.Sign() <= 0 {
		return Amount{}, NewError(CodeInvalidRequest, "amount must be strictly positive", false)
	}
	if value.Exponent() < -MaxScale {
		return Amount{}, NewError(CodeInvalidRequest, "amount exceeds maximum scale", false)
	}
	if value.Abs().GreaterThan(maxValue) {
		return Amount{}, NewError(CodeInvalidRequest, "amount exceeds maximum value", false)
	}
	return Amount{value: value}, nil
}

// ParseAmount parses and validates an Amount from its decimal-string wire form.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, NewError(CodeInvalidRequest, "invalid amount: "+err.Error(), false)
	}
	return NewAmount(d)
}

// Value returns the underlying decimal value.
func (a Amount) Value() decimal.Decimal { return a.value }

func (a Amount) String() string { return a.value.String() }

// Balance is a decimal value that may be zero (but, for ordinary accounts,
// never negative). System liability accounts use FromDecimalUnchecked to
// bypass the non-negativity check.
type Balance struct {
	value decimal.Decimal
}

// ZeroBalance returns the zero balance.
func ZeroBalance() Balance { return Balance{value: decimal.Zero} }

// NewBalance validates and constructs a Balance that must be non-negative.
func NewBalance(value decimal.Decimal) (Balance, error) {
	if value.Sign() < 0 {
		return Balance{}, NewError(CodeInvalidRequest, "balance must not be negative", false)
	}
	if value.Abs().GreaterThan(maxValue) {
		return Balance{}, NewError(CodeInvalidRequest, "balance exceeds maximum value", false)
	}
	return Balance{value: value}, nil
}

// ParseBalanceAny parses a decimal-string balance without enforcing
// non-negativity, for restoring a snapshot or DB row whose balance may
// legitimately be negative (a system liability account).
func ParseBalanceAny(s string) (Balance, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Balance{}, NewError(CodeInvalidRequest, "invalid balance: "+err.Error(), false)
	}
	return FromDecimalUnchecked(d), nil
}

// FromDecimalUnchecked constructs a Balance without the non-negativity check.
// Reserved for system accounts (SYSTEM_MINT, SYSTEM_BURN) which carry the
// ledger's liability side and are therefore permitted to go negative.
func FromDecimalUnchecked(value decimal.Decimal) Balance {
	return Balance{value: value}
}

// Value returns the underlying decimal value.
func (b Balance) Value() decimal.Decimal { return b.value }

func (b Balance) String() string { return b.value.String() }

// IsSufficientFor reports whether the balance can cover a debit of amount.
func (b Balance) IsSufficientFor(amount Amount) bool {
	return b.value.GreaterThanOrEqual(amount.value)
}

// Add returns the balance increased by amount. Used for credits; no upper
// bound is enforced here, not even the maxValueStr magnitude (conservation
// is a ledger-wide property, not a per-balance one).
func (b Balance) Add(amount Amount) Balance {
	return Balance{value: b.value.Add(amount.value)}
}

// Sub returns the balance decreased by amount without validating
// non-negativity, so callers constructing system-account balances can land
// negative. Ordinary-account callers must check IsSufficientFor first.
func (b Balance) Sub(amount Amount) Balance {
	return Balance{value: b.value.Sub(amount.value)}
}
