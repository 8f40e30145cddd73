//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ali/internal/user/models"
	"ali/internal/user/ports"
	"ali/internal/user/store"
	id "ali/pkg/domain"
	"ali/pkg/platform/sentinel"
	"ali/pkg/testutil/containers"
)

func TestPostgresUserStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	s := store.NewPostgres(pg.DB)
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))

	now := time.Now().UTC().Truncate(time.Microsecond)
	user, err := models.NewUser("pg@example.com", "password123", models.RoleEditor, now)
	require.NoError(t, err)

	created, err := s.Create(ctx, user)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "pg@example.com", created.Email)
	assert.Equal(t, models.StatusPending, created.Status)

	t.Run("duplicate email conflicts", func(t *testing.T) {
		_, err := s.Create(ctx, user)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("find by id and email", func(t *testing.T) {
		byID, err := s.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.Email, byID.Email)

		byEmail, err := s.FindByEmail(ctx, "pg@example.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byEmail.ID)

		_, err = s.FindByID(ctx, id.UserID(999999))
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("update round-trips nested documents", func(t *testing.T) {
		created.Status = models.StatusActive
		created.IsVerified = true
		created.Profile.Bio = "backend engineer"
		created.Preferences.Theme = "dark"
		created.Permissions = []string{"chat:use", "documents:read"}
		created.UpdatedAt = now.Add(time.Minute)

		updated, err := s.Update(ctx, created)
		require.NoError(t, err)
		assert.Equal(t, "backend engineer", updated.Profile.Bio)
		assert.Equal(t, "dark", updated.Preferences.Theme)
		assert.Equal(t, []string{"chat:use", "documents:read"}, updated.Permissions)
	})

	t.Run("list filters by status", func(t *testing.T) {
		other, err := models.NewUser("second@example.com", "password123", models.RoleViewer, now.Add(time.Second))
		require.NoError(t, err)
		_, err = s.Create(ctx, other)
		require.NoError(t, err)

		active := models.StatusActive
		listed, err := s.List(ctx, ports.Filter{Status: &active})
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, created.ID, listed[0].ID)

		count, err := s.Count(ctx, ports.Filter{})
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("search matches email and profile names", func(t *testing.T) {
		found, err := s.Search(ctx, "second", 10, 0)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "second@example.com", found[0].Email)
	})

	t.Run("bulk status update", func(t *testing.T) {
		updated, err := s.BulkUpdateStatus(ctx, []id.UserID{created.ID, id.UserID(424242)}, models.StatusSuspended)
		require.NoError(t, err)
		assert.Equal(t, 1, updated)

		suspended, err := s.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusSuspended, suspended.Status)
		assert.False(t, suspended.IsActive)
	})

	t.Run("statistics aggregate", func(t *testing.T) {
		stats, err := s.Statistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TotalUsers)
		assert.Equal(t, 1, stats.VerifiedUsers)
		assert.Equal(t, 1, stats.ByStatus[models.StatusSuspended])
		assert.Equal(t, 1, stats.ByRole[models.RoleViewer])
	})
}
