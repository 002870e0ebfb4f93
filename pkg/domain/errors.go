package domain

import "fmt"

// Code classifies a domain-level error so handlers and transport adapters
// can branch on failure kind without an errors.Is chain per error.
type Code string

const (
	CodeInvalidRequest      Code = "invalid_request"
	CodeAccountFrozen       Code = "account_frozen"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeUserNotFound        Code = "user_not_found"
	CodeAccountNotFound     Code = "account_not_found"
	CodeSameAccountTransfer Code = "same_account_transfer"
	CodeUnauthorized        Code = "unauthorized"
	CodeVersionConflict     Code = "version_conflict"
	CodeMaxRetriesExceeded  Code = "max_retries_exceeded"
	CodeHashMismatch        Code = "hash_mismatch"
	CodeKeyInProgress       Code = "key_in_progress"
	CodeAggregatePoisoned   Code = "aggregate_poisoned"
	CodeInternal            Code = "internal"
)

// Error is the single taxonomy type every command-handling path returns.
// Retryable distinguishes (c) Concurrency/transient-storage errors, which
// callers may retry, from everything else.
type Error struct {
	Code      Code
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError constructs a domain Error.
func NewError(code Code, message string, retryable bool) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable}
}

// IsCode reports whether err is a *Error with the given code.
func IsCode(err error, code Code) bool {
	de, ok := err.(*Error)
	return ok && de.Code == code
}

var (
	ErrAccountFrozen       = NewError(CodeAccountFrozen, "account is frozen", false)
	ErrInsufficientBalance = NewError(CodeInsufficientBalance, "insufficient balance", false)
	ErrSameAccountTransfer = NewError(CodeSameAccountTransfer, "cannot transfer to the same account", false)
	ErrVersionConflict     = NewError(CodeVersionConflict, "aggregate version conflict", true)
	ErrMaxRetriesExceeded  = NewError(CodeMaxRetriesExceeded, "max retries exceeded", false)
	ErrHashMismatch        = NewError(CodeHashMismatch, "idempotency key reused with a different request body", false)
	ErrKeyInProgress       = NewError(CodeKeyInProgress, "idempotency key is already being processed", false)
)

func ErrUserNotFound(id string) error {
	return NewError(CodeUserNotFound, "user not found: "+id, false)
}

func ErrAccountNotFound(id string) error {
	return NewError(CodeAccountNotFound, "account not found: "+id, false)
}

func ErrInvalidRequest(message string) error {
	return NewError(CodeInvalidRequest, message, false)
}

func ErrUnauthorized(message string) error {
	return NewError(CodeUnauthorized, message, false)
}

func ErrInternal(message string) error {
	return NewError(CodeInternal, message, false)
}

// ErrAggregatePoisoned reports that replaying an aggregate's event stream
// hit an event the current code cannot re-validate (see Account.Apply).
// The aggregate's version still reflects every event applied (invariant
// I5), but its domain_state is untrustworthy and further commands refuse.
func ErrAggregatePoisoned(aggregateID string, cause error) error {
	return NewError(CodeAggregatePoisoned, fmt.Sprintf("aggregate %s is poisoned: %v", aggregateID, cause), false)
}
