package permissions

import (
	"errors"
	"net/http"
	"testing"

	"github.com/wildme/houston/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testUser(t *testing.T, mutate func(*models.User)) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	u := &models.User{
		ID:           "u-1",
		Username:     "alice",
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if mutate != nil {
		mutate(u)
	}
	return u
}

func denialStatus(t *testing.T, err error) int {
	t.Helper()
	var denial *Denial
	require.ErrorAs(t, err, &denial)
	return denial.Status
}

func TestActiveUserRule(t *testing.T) {
	rule := ActiveUserRule{}

	assert.NoError(t, rule.Check(&Context{User: testUser(t, nil)}))

	// Missing principal is an authentication failure, not authorization.
	err := rule.Check(&Context{})
	assert.Equal(t, http.StatusUnauthorized, denialStatus(t, err))

	err = rule.Check(&Context{User: testUser(t, func(u *models.User) { u.IsActive = false })})
	assert.Equal(t, http.StatusForbidden, denialStatus(t, err))
}

func TestWriteAccessRule(t *testing.T) {
	rule := WriteAccessRule{}

	assert.NoError(t, rule.Check(&Context{User: testUser(t, nil)}))

	err := rule.Check(&Context{User: testUser(t, func(u *models.User) { u.IsReadOnly = true })})
	assert.Equal(t, http.StatusForbidden, denialStatus(t, err))

	assert.Error(t, rule.Check(&Context{}))
}

func TestAdminRule(t *testing.T) {
	rule := AdminRule{}

	assert.NoError(t, rule.Check(&Context{
		User: testUser(t, func(u *models.User) { u.IsAdmin = true }),
	}))
	err := rule.Check(&Context{User: testUser(t, nil)})
	assert.Equal(t, http.StatusForbidden, denialStatus(t, err))
}

func TestPasswordRequiredRule(t *testing.T) {
	rule := PasswordRequiredRule{}
	user := testUser(t, nil)

	assert.NoError(t, rule.Check(&Context{User: user, Password: "hunter2"}))
	assert.Error(t, rule.Check(&Context{User: user, Password: "wrong"}))
	// A bearer token alone never satisfies step-up.
	assert.Error(t, rule.Check(&Context{User: user}))
}

func TestOwnerRule(t *testing.T) {
	alice := testUser(t, nil)
	bob := testUser(t, func(u *models.User) { u.ID = "u-2"; u.Username = "bob" })

	t.Run("owner passes", func(t *testing.T) {
		rule := OwnerRule{Object: alice}
		assert.NoError(t, rule.Check(&Context{User: alice}))
	})

	t.Run("non-owner denied", func(t *testing.T) {
		rule := OwnerRule{Object: alice}
		assert.Error(t, rule.Check(&Context{User: bob}))
	})

	t.Run("client ownership", func(t *testing.T) {
		client := &models.OAuthClient{ClientID: "c-1", UserID: alice.ID}
		rule := OwnerRule{Object: client}
		assert.NoError(t, rule.Check(&Context{User: alice}))
		assert.Error(t, rule.Check(&Context{User: bob}))
	})

	t.Run("fails closed without ownership capability", func(t *testing.T) {
		rule := OwnerRule{Object: struct{}{}}
		assert.Error(t, rule.Check(&Context{User: alice}))

		rule = OwnerRule{Object: nil}
		assert.Error(t, rule.Check(&Context{User: alice}))
	})
}

func TestAnd_ShortCircuits(t *testing.T) {
	user := testUser(t, nil) // active, not admin

	// AdminRule denies first, so the misuse placeholder is never reached.
	rule := And(AdminRule{}, PartialPermissionDeniedRule{})
	err := rule.Check(&Context{User: user})
	assert.Equal(t, http.StatusForbidden, denialStatus(t, err))
	assert.NotErrorIs(t, err, ErrRuleMisuse)
}

func TestOr_Semantics(t *testing.T) {
	admin := testUser(t, func(u *models.User) { u.IsAdmin = true })
	regular := testUser(t, nil)

	t.Run("any pass suffices", func(t *testing.T) {
		rule := Or(OwnerRule{Object: regular}, AdminRule{})
		assert.NoError(t, rule.Check(&Context{User: admin}))
	})

	t.Run("short-circuits before misuse", func(t *testing.T) {
		rule := Or(AdminRule{}, PartialPermissionDeniedRule{})
		assert.NoError(t, rule.Check(&Context{User: admin}))
	})

	t.Run("prefers 401 over 403", func(t *testing.T) {
		rule := Or(AdminRule{}, ActiveUserRule{})
		err := rule.Check(&Context{})
		assert.Equal(t, http.StatusUnauthorized, denialStatus(t, err))
	})

	t.Run("first 403 when no 401", func(t *testing.T) {
		rule := Or(AdminRule{}, WriteAccessRule{})
		err := rule.Check(&Context{
			User: testUser(t, func(u *models.User) { u.IsReadOnly = true }),
		})
		var denial *Denial
		require.ErrorAs(t, err, &denial)
		assert.Equal(t, "admin", denial.Rule)
	})

	t.Run("misuse propagates", func(t *testing.T) {
		rule := Or(PartialPermissionDeniedRule{}, AdminRule{})
		err := rule.Check(&Context{User: admin})
		assert.ErrorIs(t, err, ErrRuleMisuse)
	})
}

func TestNot(t *testing.T) {
	admin := testUser(t, func(u *models.User) { u.IsAdmin = true })
	regular := testUser(t, nil)

	rule := Not(AdminRule{}, http.StatusForbidden, "admins may not do this")

	err := rule.Check(&Context{User: admin})
	assert.Equal(t, http.StatusForbidden, denialStatus(t, err))

	assert.NoError(t, rule.Check(&Context{User: regular}))

	t.Run("misuse propagates through Not", func(t *testing.T) {
		rule := Not(PartialPermissionDeniedRule{}, http.StatusForbidden, "x")
		err := rule.Check(&Context{User: regular})
		assert.ErrorIs(t, err, ErrRuleMisuse)
	})
}

func TestPartialPermissionDeniedRule(t *testing.T) {
	err := PartialPermissionDeniedRule{}.Check(&Context{User: testUser(t, nil)})
	assert.True(t, errors.Is(err, ErrRuleMisuse))
}

func TestComposites(t *testing.T) {
	admin := testUser(t, func(u *models.User) { u.IsAdmin = true })
	readonly := testUser(t, func(u *models.User) { u.ID = "u-3"; u.IsReadOnly = true })
	owner := testUser(t, func(u *models.User) { u.ID = "u-4" })

	t.Run("WriteAccess", func(t *testing.T) {
		assert.NoError(t, WriteAccess().Check(&Context{User: owner}))
		assert.Error(t, WriteAccess().Check(&Context{User: readonly}))
		assert.Equal(t, http.StatusUnauthorized,
			denialStatus(t, WriteAccess().Check(&Context{})))
	})

	t.Run("AdminWithPassword", func(t *testing.T) {
		assert.NoError(t, AdminWithPassword().Check(&Context{User: admin, Password: "hunter2"}))
		assert.Error(t, AdminWithPassword().Check(&Context{User: admin}))
		assert.Error(t, AdminWithPassword().Check(&Context{User: owner, Password: "hunter2"}))
	})

	t.Run("OwnerOrAdmin", func(t *testing.T) {
		rule := OwnerOrAdmin(owner)
		assert.NoError(t, rule.Check(&Context{User: owner}))
		assert.NoError(t, rule.Check(&Context{User: admin}))
		assert.Error(t, rule.Check(&Context{User: readonly}))
	})

	t.Run("OwnerWithWriteOrAdmin", func(t *testing.T) {
		client := &models.OAuthClient{ClientID: "c-1", UserID: readonly.ID}
		rule := OwnerWithWriteOrAdmin(client)
		// The owner lacks write access; admins bypass the write check.
		assert.Error(t, rule.Check(&Context{User: readonly}))
		assert.NoError(t, rule.Check(&Context{User: admin}))
	})
}
