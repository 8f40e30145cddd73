// Package maintenance runs the periodic cleanup tasks: stale user
// deactivation, idle session archival, message retention, and document
// archival.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	id "ali/pkg/domain"
)

// Retention defaults applied when the config leaves them unset.
const (
	DefaultInterval             = time.Hour
	DefaultUserInactiveDays     = 90
	DefaultSessionInactiveHours = 24
	DefaultMessageRetentionDays = 365
)

// UserCleaner deactivates unverified accounts past the inactivity window.
type UserCleaner interface {
	CleanupInactiveUsers(ctx context.Context, inactiveDays int) (int, error)
}

// SessionCleaner archives sessions idle past the inactivity window.
type SessionCleaner interface {
	CleanupInactiveSessions(ctx context.Context, inactiveHours int, excludeUserIDs []id.UserID) (int, error)
}

// MessageCleaner soft deletes messages past the retention window.
type MessageCleaner interface {
	CleanupOldMessages(ctx context.Context, retentionDays int, excludeSessionIDs []id.SessionID) (int, error)
}

// DocumentArchiver archives documents past the retention window.
type DocumentArchiver interface {
	ArchiveOldDocuments(ctx context.Context, excludeUserIDs []id.UserID) (int, error)
}

// Worker drives the cleanup services on a fixed interval. Task failures are
// logged and do not stop the loop; only context cancellation does.
type Worker struct {
	users     UserCleaner
	sessions  SessionCleaner
	messages  MessageCleaner
	documents DocumentArchiver

	interval             time.Duration
	userInactiveDays     int
	sessionInactiveHours int
	messageRetentionDays int

	logger *slog.Logger
}

type Option func(*Worker)

func WithInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

func WithRetention(userInactiveDays, sessionInactiveHours, messageRetentionDays int) Option {
	return func(w *Worker) {
		if userInactiveDays > 0 {
			w.userInactiveDays = userInactiveDays
		}
		if sessionInactiveHours > 0 {
			w.sessionInactiveHours = sessionInactiveHours
		}
		if messageRetentionDays > 0 {
			w.messageRetentionDays = messageRetentionDays
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func New(users UserCleaner, sessions SessionCleaner, messages MessageCleaner, documents DocumentArchiver, opts ...Option) *Worker {
	w := &Worker{
		users:                users,
		sessions:             sessions,
		messages:             messages,
		documents:            documents,
		interval:             DefaultInterval,
		userInactiveDays:     DefaultUserInactiveDays,
		sessionInactiveHours: DefaultSessionInactiveHours,
		messageRetentionDays: DefaultMessageRetentionDays,
		logger:               slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run executes the cleanup pass on every tick until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.RunOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs one cleanup pass across all four tasks. Exported for
// testability; Run calls it on every tick.
func (w *Worker) RunOnce(ctx context.Context) {
	w.run(ctx, "users", func() (int, error) {
		return w.users.CleanupInactiveUsers(ctx, w.userInactiveDays)
	})
	w.run(ctx, "sessions", func() (int, error) {
		return w.sessions.CleanupInactiveSessions(ctx, w.sessionInactiveHours, nil)
	})
	w.run(ctx, "messages", func() (int, error) {
		return w.messages.CleanupOldMessages(ctx, w.messageRetentionDays, nil)
	})
	w.run(ctx, "documents", func() (int, error) {
		return w.documents.ArchiveOldDocuments(ctx, nil)
	})
}

func (w *Worker) run(ctx context.Context, task string, fn func() (int, error)) {
	count, err := fn()
	if err != nil {
		w.logger.ErrorContext(ctx, "maintenance task failed", "task", task, "error", err)
		return
	}
	if count > 0 {
		w.logger.InfoContext(ctx, "maintenance task completed", "task", task, "count", count)
	}
}
