package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountEvent is the closed set of facts that can happen to an Account.
// Each variant is self-describing: its own fields are the complete payload,
// serialized as JSON for storage (see store.AggregateOp.EventData).
type AccountEvent interface {
	accountEvent()
	EventType() string
}

type AccountCreated struct {
	AccountID   uuid.UUID `json:"account_id"`
	UserID      uuid.UUID `json:"user_id"`
	AccountType string    `json:"account_type"`
	CreatedAt   time.Time `json:"created_at"`
}

func (AccountCreated) accountEvent()        {}
func (AccountCreated) EventType() string    { return "AccountCreated" }

type MoneyDebited struct {
	AccountID   uuid.UUID `json:"account_id"`
	Amount      string    `json:"amount"`
	TransferID  uuid.UUID `json:"transfer_id"`
	Description string    `json:"description"`
	DebitedAt   time.Time `json:"debited_at"`
}

func (MoneyDebited) accountEvent()     {}
func (MoneyDebited) EventType() string { return "MoneyDebited" }

type MoneyCredited struct {
	AccountID   uuid.UUID `json:"account_id"`
	Amount      string    `json:"amount"`
	TransferID  uuid.UUID `json:"transfer_id"`
	Description string    `json:"description"`
	CreditedAt  time.Time `json:"credited_at"`
}

func (MoneyCredited) accountEvent()     {}
func (MoneyCredited) EventType() string { return "MoneyCredited" }

type AccountFrozen struct {
	AccountID uuid.UUID `json:"account_id"`
	Reason    string    `json:"reason"`
	FrozenAt  time.Time `json:"frozen_at"`
}

func (AccountFrozen) accountEvent()     {}
func (AccountFrozen) EventType() string { return "AccountFrozen" }

type AccountUnfrozen struct {
	AccountID  uuid.UUID `json:"account_id"`
	UnfrozenAt time.Time `json:"unfrozen_at"`
}

func (AccountUnfrozen) accountEvent()     {}
func (AccountUnfrozen) EventType() string { return "AccountUnfrozen" }

// UserEvent is the closed set of facts that can happen to a User.
type UserEvent interface {
	userEvent()
	EventType() string
}

// UserChanges is an update diff: nil fields mean "leave unchanged". At
// least one of DisplayName or Email must be set, enforced by User.Update.
type UserChanges struct {
	DisplayName *string `json:"display_name,omitempty"`
	Email       *string `json:"email,omitempty"`
}

func (c UserChanges) IsEmpty() bool {
	return c.DisplayName == nil && c.Email == nil
}

type UserCreated struct {
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName *string   `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (UserCreated) userEvent()       {}
func (UserCreated) EventType() string { return "UserCreated" }

type UserUpdated struct {
	UserID    uuid.UUID   `json:"user_id"`
	Changes   UserChanges `json:"changes"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (UserUpdated) userEvent()       {}
func (UserUpdated) EventType() string { return "UserUpdated" }

type UserDeactivated struct {
	UserID        uuid.UUID `json:"user_id"`
	Reason        *string   `json:"reason,omitempty"`
	DeactivatedAt time.Time `json:"deactivated_at"`
}

func (UserDeactivated) userEvent()       {}
func (UserDeactivated) EventType() string { return "UserDeactivated" }

type UserReactivated struct {
	UserID         uuid.UUID `json:"user_id"`
	ReactivatedAt  time.Time `json:"reactivated_at"`
}

func (UserReactivated) userEvent()       {}
func (UserReactivated) EventType() string { return "UserReactivated" }
