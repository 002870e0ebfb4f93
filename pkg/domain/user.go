package domain

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type UserStatus string

const (
	UserStatusActive      UserStatus = "active"
	UserStatusDeactivated UserStatus = "deactivated"
)

// User is the User aggregate: profile data only. Authentication is an
// out-of-scope external collaborator.
type User struct {
	id          uuid.UUID
	username    string
	email       string
	displayName *string
	status      UserStatus
	version     int64
	createdAt   *time.Time
	updatedAt   *time.Time

	replayErr error
}

func NewUser(id uuid.UUID, username, email string, displayName *string) (*User, UserCreated) {
	now := time.Now().UTC()
	event := UserCreated{
		UserID:      id,
		Username:    username,
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   now,
	}
	u := &User{
		id:          id,
		username:    username,
		email:       email,
		displayName: displayName,
		status:      UserStatusActive,
		version:     1,
		createdAt:   &now,
		updatedAt:   &now,
	}
	return u, event
}

func (u *User) ID() uuid.UUID          { return u.id }
func (u *User) Username() string       { return u.username }
func (u *User) Email() string          { return u.email }
func (u *User) DisplayName() *string   { return u.displayName }
func (u *User) Status() UserStatus     { return u.status }
func (u *User) Version() int64         { return u.version }
func (u *User) IsActive() bool         { return u.status == UserStatusActive }
func (u *User) CreatedAt() *time.Time  { return u.createdAt }
func (u *User) UpdatedAt() *time.Time  { return u.updatedAt }
func (u *User) IsPoisoned() bool       { return u.replayErr != nil }

func (u *User) checkLive() error {
	if u.replayErr != nil {
		return ErrAggregatePoisoned(u.id.String(), u.replayErr)
	}
	return nil
}

// Update yields UserUpdated. Rejects a no-op diff with InvalidRequest and
// rejects updating a deactivated user with UserNotFound.
func (u *User) Update(changes UserChanges) (UserEvent, error) {
	if err := u.checkLive(); err != nil {
		return nil, err
	}
	if u.status == UserStatusDeactivated {
		return nil, ErrUserNotFound(u.id.String())
	}
	if changes.IsEmpty() {
		return nil, ErrInvalidRequest("no changes provided")
	}
	return UserUpdated{UserID: u.id, Changes: changes, UpdatedAt: time.Now().UTC()}, nil
}

// Deactivate yields UserDeactivated.
func (u *User) Deactivate(reason *string) (UserEvent, error) {
	if err := u.checkLive(); err != nil {
		return nil, err
	}
	if u.status == UserStatusDeactivated {
		return nil, ErrInvalidRequest("user is already deactivated")
	}
	return UserDeactivated{UserID: u.id, Reason: reason, DeactivatedAt: time.Now().UTC()}, nil
}

// Reactivate yields UserReactivated.
func (u *User) Reactivate() (UserEvent, error) {
	if err := u.checkLive(); err != nil {
		return nil, err
	}
	if u.status != UserStatusDeactivated {
		return nil, ErrInvalidRequest("user is not deactivated")
	}
	return UserReactivated{UserID: u.id, ReactivatedAt: time.Now().UTC()}, nil
}

// userSnapshotState is the JSON wire form of a User snapshot.
type userSnapshotState struct {
	ID          uuid.UUID  `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	DisplayName *string    `json:"display_name,omitempty"`
	Status      UserStatus `json:"status"`
	Version     int64      `json:"version"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

func (u *User) SnapshotState() ([]byte, error) {
	return json.Marshal(userSnapshotState{
		ID: u.id, Username: u.username, Email: u.email, DisplayName: u.displayName,
		Status: u.status, Version: u.version, CreatedAt: u.createdAt, UpdatedAt: u.updatedAt,
	})
}

func UserFromSnapshotState(data []byte) (*User, error) {
	var s userSnapshotState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &User{
		id: s.ID, username: s.Username, email: s.Email, displayName: s.DisplayName,
		status: s.Status, version: s.Version, createdAt: s.CreatedAt, updatedAt: s.UpdatedAt,
	}, nil
}

func (u *User) ShouldSnapshot() bool {
	return u.version > 0 && u.version%100 == 0
}

// Apply folds event into the aggregate's state. Total: version always
// increments, mirroring Account.Apply's poisoned-aggregate policy even
// though no User event currently carries a revalidatable payload.
func (u *User) Apply(event UserEvent) *User {
	next := *u
	next.version++

	switch e := event.(type) {
	case UserCreated:
		next.id = e.UserID
		next.username = e.Username
		next.email = e.Email
		next.displayName = e.DisplayName
		next.status = UserStatusActive
		next.createdAt = &e.CreatedAt
		next.updatedAt = &e.CreatedAt

	case UserUpdated:
		if e.Changes.DisplayName != nil {
			next.displayName = e.Changes.DisplayName
		}
		if e.Changes.Email != nil {
			next.email = *e.Changes.Email
		}
		next.updatedAt = &e.UpdatedAt

	case UserDeactivated:
		next.status = UserStatusDeactivated
		next.updatedAt = &e.DeactivatedAt

	case UserReactivated:
		next.status = UserStatusActive
		next.updatedAt = &e.ReactivatedAt
	}

	return &next
}
