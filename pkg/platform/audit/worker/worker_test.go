package worker_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "ali/pkg/domain"
	audit "ali/pkg/platform/audit"
	"ali/pkg/platform/audit/store/memory"
	"ali/pkg/platform/audit/worker"
)

func TestWorkerPersistsPublishedEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewInMemoryStore()
	events := make(chan audit.Event, 8)
	publisher := audit.NewChannelPublisher(events, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- worker.NewWorker(store, events, logger).Run(ctx)
	}()

	userID := id.UserID(12)
	require.NoError(t, publisher.Emit(ctx, audit.Event{
		Action: string(audit.EventUserRegistered),
		UserID: userID,
	}))
	require.NoError(t, publisher.Emit(ctx, audit.Event{
		Action:  string(audit.EventDocumentPublished),
		UserID:  userID,
		Subject: "doc-1",
	}))

	require.Eventually(t, func() bool {
		recent, err := store.ListRecent(context.Background(), 10)
		return err == nil && len(recent) == 2
	}, time.Second, 10*time.Millisecond)

	byUser, err := store.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, string(audit.EventUserRegistered), byUser[0].Action)
	assert.False(t, byUser[0].Timestamp.IsZero(), "publisher stamps the event")
	assert.Equal(t, audit.CategoryOperations, byUser[0].Category)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestEmitDropsWhenBufferFull(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	events := make(chan audit.Event, 1)
	publisher := audit.NewChannelPublisher(events, logger)

	ctx := context.Background()
	require.NoError(t, publisher.Emit(ctx, audit.Event{Action: "first"}))
	require.NoError(t, publisher.Emit(ctx, audit.Event{Action: "second"}), "full buffer must not block or fail")

	assert.Len(t, events, 1)
	assert.Equal(t, "first", (<-events).Action)
}
