package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser_Validation(t *testing.T) {
	now := time.Now()
	_, err := NewUser("1", "  ", "hash", now)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewUser("1", "alice", "", now)
	assert.ErrorIs(t, err, ErrValidation)

	u, err := NewUser("1", " alice ", "hash", now)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, Identity{UserID: "1", Username: "alice"}, u.Identity())
}

func TestUser_LockoutLifecycle(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	u, err := NewUser("1", "alice", "hash", now)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		u.RegisterFailedLogin(now, 5, time.Hour)
	}
	assert.False(t, u.IsLocked(now))

	u.RegisterFailedLogin(now, 5, time.Hour)
	assert.True(t, u.IsLocked(now))
	assert.True(t, u.IsLocked(now.Add(59*time.Minute)))
	assert.False(t, u.IsLocked(now.Add(time.Hour)))

	// expired lock resets the counter
	later := now.Add(2 * time.Hour)
	u.RegisterFailedLogin(later, 5, time.Hour)
	assert.Equal(t, 1, u.LoginAttempts)
	assert.False(t, u.IsLocked(later))

	u.RegisterSuccessfulLogin(later)
	assert.Zero(t, u.LoginAttempts)
	assert.Nil(t, u.LockUntil)
	require.NotNil(t, u.LastLogin)
}
