package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate(t *testing.T) {
	svc := newTestServices(t)
	createTestUser(t, svc.store, "alice")

	t.Run("valid credentials", func(t *testing.T) {
		user, err := svc.users.Authenticate(context.Background(), "alice", testPassword)
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
	})

	// Unknown user, wrong password, and inactive account are
	// indistinguishable to the caller.
	t.Run("failure modes collapse", func(t *testing.T) {
		inactive := createTestUser(t, svc.store, "bob")
		inactive.IsActive = false
		require.NoError(t, svc.store.UpdateUser(inactive))

		for name, creds := range map[string][2]string{
			"unknown user":   {"nobody", testPassword},
			"wrong password": {"alice", "wrong"},
			"inactive user":  {"bob", testPassword},
		} {
			_, err := svc.users.Authenticate(context.Background(), creds[0], creds[1])
			assert.ErrorIs(t, err, ErrInvalidCredentials, name)
		}
	})
}

func TestCreateUser(t *testing.T) {
	svc := newTestServices(t)

	user, err := svc.users.CreateUser(CreateUserRequest{
		Username: "  carol  ",
		Email:    "carol@example.org",
		Password: "s3cret-enough",
	})
	require.NoError(t, err)
	assert.Equal(t, "carol", user.Username)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsAdmin)
	// Password is stored hashed.
	assert.NotEqual(t, "s3cret-enough", user.PasswordHash)
	assert.True(t, user.VerifyPassword("s3cret-enough"))

	_, err = svc.users.CreateUser(CreateUserRequest{Username: "", Password: "x"})
	assert.Error(t, err)
	_, err = svc.users.CreateUser(CreateUserRequest{Username: "dave", Password: ""})
	assert.Error(t, err)
}

func TestSetAdmin(t *testing.T) {
	svc := newTestServices(t)
	user := createTestUser(t, svc.store, "alice")

	updated, err := svc.users.SetAdmin(user.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.IsAdmin)

	updated, err = svc.users.SetAdmin(user.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsAdmin)

	_, err = svc.users.SetAdmin("no-such-id", true)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestDeactivateUser_RevokesTokens(t *testing.T) {
	svc := newTestServices(t)
	user := createTestUser(t, svc.store, "alice")
	client := createTestClient(t, svc.store, user.ID, true)

	token, err := svc.tokens.Issue(
		context.Background(), client, user, "users:read", GrantTypePassword, true)
	require.NoError(t, err)

	require.NoError(t, svc.users.DeactivateUser(user.ID))

	// Deactivation takes the user's tokens down with it.
	_, _, err = svc.tokens.Resolve(token.RawAccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	stored, err := svc.store.GetUserByID(user.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	assert.ErrorIs(t, svc.users.DeactivateUser("no-such-id"), ErrUserNotFound)
}
