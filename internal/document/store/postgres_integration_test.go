//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ali/internal/document/models"
	"ali/internal/document/ports"
	"ali/internal/document/store"
	id "ali/pkg/domain"
	"ali/pkg/platform/sentinel"
	"ali/pkg/testutil/containers"
)

func TestPostgresDocumentStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	s := store.NewPostgres(pg.DB)
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))

	now := time.Now().UTC().Truncate(time.Microsecond)
	owner := id.UserID(5)
	reader := id.UserID(6)

	document, err := models.NewDocument(owner, "Onboarding guide", "welcome to the team", models.TypeManual, models.CategoryOther, now)
	require.NoError(t, err)
	require.NoError(t, document.SetTags([]string{"Onboarding", "hr"}, now))

	created, err := s.Create(ctx, document)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, created.Status)

	t.Run("duplicate id conflicts", func(t *testing.T) {
		_, err := s.Create(ctx, document)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("drafts are not searchable", func(t *testing.T) {
		found, err := s.Search(ctx, "onboarding", nil, 10, 0)
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("published documents match title and tags", func(t *testing.T) {
		require.NoError(t, created.Publish(now.Add(time.Minute)))
		_, err := s.Update(ctx, created)
		require.NoError(t, err)

		byTitle, err := s.Search(ctx, "onboarding", nil, 10, 0)
		require.NoError(t, err)
		require.Len(t, byTitle, 1)

		byTag, err := s.Search(ctx, "hr", &reader, 10, 0)
		require.NoError(t, err)
		require.Len(t, byTag, 1, "public documents are visible to other users")
	})

	t.Run("find by hash scopes to owner", func(t *testing.T) {
		hash := models.HashContent("welcome to the team")
		matches, err := s.FindByHash(ctx, hash, &owner)
		require.NoError(t, err)
		require.Len(t, matches, 1)

		matches, err = s.FindByHash(ctx, hash, &reader)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("tags aggregate with usage floor", func(t *testing.T) {
		second, err := models.NewDocument(owner, "HR handbook", "policies and leave", models.TypeManual, models.CategoryOther, now.Add(time.Second))
		require.NoError(t, err)
		require.NoError(t, second.SetTags([]string{"hr"}, now))
		_, err = s.Create(ctx, second)
		require.NoError(t, err)

		tags, err := s.AllTags(ctx, 2)
		require.NoError(t, err)
		require.Len(t, tags, 1)
		assert.Equal(t, "hr", tags[0].Tag)
		assert.Equal(t, 2, tags[0].Count)
	})

	t.Run("bulk updates count only existing ids", func(t *testing.T) {
		updated, err := s.BulkUpdateStatus(ctx, []id.DocumentID{created.ID, id.NewDocumentID()}, models.StatusInactive)
		require.NoError(t, err)
		assert.Equal(t, 1, updated)

		found, err := s.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusInactive, found.Status)
	})

	t.Run("soft delete withdraws public access", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, created.ID))

		deleted, err := s.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusDeleted, deleted.Status)
		assert.False(t, deleted.IsPublic)

		found, err := s.Search(ctx, "onboarding", &reader, 10, 0)
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("statistics aggregate", func(t *testing.T) {
		stats, err := s.Statistics(ctx, &owner)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TotalDocuments)
		assert.Equal(t, 1, stats.ByStatus[models.StatusDeleted])
		assert.Equal(t, 2, stats.ByType[models.TypeManual])
	})
}
