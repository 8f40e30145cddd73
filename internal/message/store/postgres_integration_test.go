//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ali/internal/message/models"
	"ali/internal/message/ports"
	"ali/internal/message/store"
	id "ali/pkg/domain"
	"ali/pkg/platform/sentinel"
	"ali/pkg/testutil/containers"
)

func TestPostgresMessageStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	s := store.NewPostgres(pg.DB)
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))

	base := time.Now().UTC().Truncate(time.Microsecond).Add(-time.Hour)
	sessionID := id.NewSessionID()
	userID := id.UserID(3)

	newCompleted := func(t *testing.T, content string, at time.Time, role models.Role, tokens int) *models.Message {
		t.Helper()
		message, err := models.NewMessage(sessionID, userID, role, content, at)
		require.NoError(t, err)
		require.NoError(t, message.Complete(models.Metadata{
			ModelUsed:      "test-model",
			TokensUsed:     tokens,
			ProcessingTime: 1.5,
		}, at))
		created, err := s.Create(ctx, message)
		require.NoError(t, err)
		return created
	}

	first := newCompleted(t, "how do refunds work", base, models.RoleUser, 10)
	second := newCompleted(t, "refunds take five days", base.Add(time.Second), models.RoleAssistant, 120)
	third := newCompleted(t, "and for annual plans?", base.Add(2*time.Second), models.RoleUser, 12)

	t.Run("duplicate id conflicts", func(t *testing.T) {
		_, err := s.Create(ctx, first)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("list by session oldest first with metadata", func(t *testing.T) {
		listed, err := s.ListBySession(ctx, sessionID, ports.Filter{})
		require.NoError(t, err)
		require.Len(t, listed, 3)
		assert.Equal(t, first.ID, listed[0].ID)
		assert.Equal(t, third.ID, listed[2].ID)
		assert.Equal(t, 120, listed[1].Metadata.TokensUsed)
		assert.Equal(t, "test-model", listed[1].Metadata.ModelUsed)
	})

	t.Run("count by user since excludes assistant messages", func(t *testing.T) {
		count, err := s.CountByUserSince(ctx, userID, base)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		count, err = s.CountByUserSince(ctx, userID, base.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("conversation context windows before the anchor", func(t *testing.T) {
		window, err := s.ConversationContext(ctx, sessionID, &third.ID, 10)
		require.NoError(t, err)
		require.Len(t, window, 2)
		assert.Equal(t, first.ID, window[0].ID)
		assert.Equal(t, second.ID, window[1].ID)

		missing := id.NewMessageID()
		_, err = s.ConversationContext(ctx, sessionID, &missing, 10)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("search scopes to session", func(t *testing.T) {
		found, err := s.Search(ctx, "refunds", &sessionID, nil, 10, 0)
		require.NoError(t, err)
		assert.Len(t, found, 2)
	})

	t.Run("statistics and token usage by day", func(t *testing.T) {
		stats, err := s.Statistics(ctx, nil, &sessionID, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.TotalMessages)
		assert.Equal(t, 142, stats.TotalTokens)
		assert.Equal(t, 2, stats.ByRole[models.RoleUser])

		from := base.Add(-time.Hour)
		to := base.Add(time.Hour)
		usage, err := s.TokenUsageByDay(ctx, &userID, from, to)
		require.NoError(t, err)
		require.NotEmpty(t, usage)
		assert.Equal(t, base.Format("2006-01-02"), usage[0].Period)
	})

	t.Run("archive old skips excluded sessions", func(t *testing.T) {
		archived, err := s.ArchiveOld(ctx, base.Add(time.Minute), []id.SessionID{sessionID})
		require.NoError(t, err)
		assert.Equal(t, 0, archived)

		archived, err = s.ArchiveOld(ctx, base.Add(1500*time.Millisecond), nil)
		require.NoError(t, err)
		assert.Equal(t, 2, archived)

		remaining, err := s.CountBySession(ctx, sessionID, ports.Filter{})
		require.NoError(t, err)
		assert.Equal(t, 1, remaining)
	})
}
