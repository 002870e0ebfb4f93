package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atplabs/ledger/pkg/domain"
)

func TestUser_Update(t *testing.T) {
	user, _ := domain.NewUser(uuid.New(), "alice", "alice@example.com", nil)

	newEmail := "alice@newdomain.com"
	event, err := user.Update(domain.UserChanges{Email: &newEmail})
	require.NoError(t, err)

	updated := user.Apply(event)
	assert.Equal(t, newEmail, updated.Email())
}

func TestUser_Update_EmptyChangesRejected(t *testing.T) {
	user, _ := domain.NewUser(uuid.New(), "alice", "alice@example.com", nil)

	_, err := user.Update(domain.UserChanges{})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeInvalidRequest))
}

func TestUser_Update_DeactivatedRejected(t *testing.T) {
	user, _ := domain.NewUser(uuid.New(), "alice", "alice@example.com", nil)
	deactivatedEvent, err := user.Deactivate(nil)
	require.NoError(t, err)
	user = user.Apply(deactivatedEvent)

	newEmail := "alice@newdomain.com"
	_, err = user.Update(domain.UserChanges{Email: &newEmail})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeUserNotFound))
}

func TestUser_Deactivate_Reactivate(t *testing.T) {
	user, _ := domain.NewUser(uuid.New(), "alice", "alice@example.com", nil)

	deactivatedEvent, err := user.Deactivate(nil)
	require.NoError(t, err)
	user = user.Apply(deactivatedEvent)
	assert.Equal(t, domain.UserStatusDeactivated, user.Status())

	reactivatedEvent, err := user.Reactivate()
	require.NoError(t, err)
	user = user.Apply(reactivatedEvent)
	assert.Equal(t, domain.UserStatusActive, user.Status())
}

func TestUser_Deactivate_AlreadyDeactivatedRejected(t *testing.T) {
	user, _ := domain.NewUser(uuid.New(), "alice", "alice@example.com", nil)
	deactivatedEvent, err := user.Deactivate(nil)
	require.NoError(t, err)
	user = user.Apply(deactivatedEvent)

	_, err = user.Deactivate(nil)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeInvalidRequest))
}

func TestUser_SnapshotRoundTrip(t *testing.T) {
	user, _ := domain.NewUser(uuid.New(), "alice", "alice@example.com", nil)

	data, err := user.SnapshotState()
	require.NoError(t, err)

	restored, err := domain.UserFromSnapshotState(data)
	require.NoError(t, err)

	assert.Equal(t, user.ID(), restored.ID())
	assert.Equal(t, user.Username(), restored.Username())
	assert.Equal(t, user.Version(), restored.Version())
}
