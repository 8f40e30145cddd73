package models_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ali/internal/user/models"
	dErrors "ali/pkg/domain-errors"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"lowercases and trims", "  User@Example.COM  ", "user@example.com", false},
		{"plus addressing", "user+tag@example.com", "user+tag@example.com", false},
		{"missing at", "userexample.com", "", true},
		{"missing tld", "user@example", "", true},
		{"single letter tld", "user@example.c", "", true},
		{"empty", "   ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := models.NormalizeEmail(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHashPassword(t *testing.T) {
	_, err := models.HashPassword("short")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	hash, err := models.HashPassword("password123")
	require.NoError(t, err)
	assert.NotEqual(t, "password123", hash)
	assert.True(t, strings.HasPrefix(hash, "$2"))
}

func TestNewUser(t *testing.T) {
	user, err := models.NewUser("someone@example.com", "password123", models.RoleEditor, testNow)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, user.Status)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsVerified)
	assert.True(t, user.VerifyPassword("password123"))
	assert.False(t, user.VerifyPassword("wrong"))
	assert.False(t, user.VerifyPassword(""))

	_, err = models.NewUser("someone@example.com", "password123", "superuser", testNow)
	require.Error(t, err)
}

func TestCanPerformAction(t *testing.T) {
	active := func(role models.Role) *models.User {
		user, err := models.NewUser("u@example.com", "password123", role, testNow)
		require.NoError(t, err)
		user.Activate(testNow)
		return user
	}

	admin := active(models.RoleAdmin)
	assert.True(t, admin.CanPerformAction("anything"))

	editor := active(models.RoleEditor)
	assert.True(t, editor.CanPerformAction("create_document"))
	assert.False(t, editor.CanPerformAction("manage_users"))

	guest := active(models.RoleGuest)
	assert.True(t, guest.CanPerformAction("read"))
	assert.False(t, guest.CanPerformAction("chat"))

	guest.AddPermission("chat", testNow)
	assert.True(t, guest.CanPerformAction("chat"))

	guest.Deactivate(testNow)
	assert.False(t, guest.CanPerformAction("read"))

	pending, err := models.NewUser("p@example.com", "password123", models.RoleAdmin, testNow)
	require.NoError(t, err)
	assert.False(t, pending.CanPerformAction("read"))
}

func TestVerifyEmail(t *testing.T) {
	user, err := models.NewUser("v@example.com", "password123", models.RoleViewer, testNow)
	require.NoError(t, err)

	user.VerifyEmail(testNow)
	assert.True(t, user.IsVerified)
	assert.Equal(t, models.StatusActive, user.Status)

	suspended, err := models.NewUser("s@example.com", "password123", models.RoleViewer, testNow)
	require.NoError(t, err)
	suspended.Suspend(testNow)
	suspended.VerifyEmail(testNow)
	assert.True(t, suspended.IsVerified)
	assert.Equal(t, models.StatusSuspended, suspended.Status)
}

func TestRoleRank(t *testing.T) {
	assert.Less(t, models.RoleGuest.Rank(), models.RoleViewer.Rank())
	assert.Less(t, models.RoleViewer.Rank(), models.RoleEditor.Rank())
	assert.Less(t, models.RoleEditor.Rank(), models.RoleAdmin.Rank())
}

func TestRecordLogin(t *testing.T) {
	user, err := models.NewUser("l@example.com", "password123", models.RoleViewer, testNow)
	require.NoError(t, err)

	later := testNow.Add(time.Hour)
	user.RecordLogin(later)
	user.RecordLogin(later.Add(time.Hour))

	assert.Equal(t, 2, user.LoginCount)
	require.NotNil(t, user.LastLogin)
	assert.Equal(t, later.Add(time.Hour), *user.LastLogin)
}

func TestPermissionMutation(t *testing.T) {
	user, err := models.NewUser("perm@example.com", "password123", models.RoleViewer, testNow)
	require.NoError(t, err)

	user.AddPermission("export", testNow)
	user.AddPermission("export", testNow)
	assert.Equal(t, []string{"export"}, user.Permissions)

	user.RemovePermission("export", testNow)
	assert.Empty(t, user.Permissions)
}
