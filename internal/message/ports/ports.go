// Package ports defines the interfaces the message feature depends on.
package ports

import (
	"context"
	"time"

	"ali/internal/message/models"
	sessionmodels "ali/internal/session/models"
	usermodels "ali/internal/user/models"
	id "ali/pkg/domain"
	"ali/pkg/platform/audit"
)

// AuditPublisher emits audit events for security-relevant operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// UserReader is the slice of the user store the message service needs.
type UserReader interface {
	FindByID(ctx context.Context, userID id.UserID) (*usermodels.User, error)
}

// SessionStore is the slice of the session store the message service needs:
// access checks and activity accounting.
type SessionStore interface {
	FindByID(ctx context.Context, sessionID id.SessionID) (*sessionmodels.Session, error)
	RecordMessage(ctx context.Context, sessionID id.SessionID, tokensUsed int, responseTime float64) error
}

// Filter narrows session-scoped listings. Nil fields are not applied.
// Messages come back oldest first unless NewestFirst is set.
type Filter struct {
	Role        *models.Role
	Status      *models.Status
	NewestFirst bool
	Limit       int
	Offset      int
}

// Statistics summarizes messages for a user, a session, or the whole system.
type Statistics struct {
	TotalMessages   int                   `json:"total_messages"`
	ByRole          map[models.Role]int   `json:"by_role"`
	ByStatus        map[models.Status]int `json:"by_status"`
	TotalTokens     int                   `json:"total_tokens"`
	AvgTokensPerMsg float64               `json:"avg_tokens_per_message"`
	AvgResponseTime float64               `json:"avg_response_time"`
	ErrorCount      int                   `json:"error_count"`
}

// TokenUsage reports token consumption for one period bucket.
type TokenUsage struct {
	Period   string `json:"period"`
	Tokens   int    `json:"tokens"`
	Messages int    `json:"messages"`
}

// Store is the persistence port for messages.
type Store interface {
	// Create persists a new message.
	// Returns sentinel.ErrConflict if the ID already exists.
	Create(ctx context.Context, message *models.Message) (*models.Message, error)

	// FindByID returns the message or sentinel.ErrNotFound.
	FindByID(ctx context.Context, messageID id.MessageID) (*models.Message, error)

	// Update persists changes to an existing message.
	Update(ctx context.Context, message *models.Message) (*models.Message, error)

	// Delete soft deletes a message by setting its status to deleted.
	Delete(ctx context.Context, messageID id.MessageID) error

	// ListBySession returns a session's messages, oldest first by default.
	ListBySession(ctx context.Context, sessionID id.SessionID, filter Filter) ([]*models.Message, error)

	// CountBySession returns the number of messages matching the filter.
	CountBySession(ctx context.Context, sessionID id.SessionID, filter Filter) (int, error)

	// ListByUser returns a user's messages within an optional time window,
	// newest first.
	ListByUser(ctx context.Context, userID id.UserID, from, to *time.Time, limit, offset int) ([]*models.Message, error)

	// CountByUserSince counts a user's own messages created at or after the
	// cutoff. Deleted messages are excluded.
	CountByUserSince(ctx context.Context, userID id.UserID, since time.Time) (int, error)

	// Search matches the query against message content, optionally scoped to
	// one session or one user.
	Search(ctx context.Context, query string, sessionID *id.SessionID, userID *id.UserID, limit, offset int) ([]*models.Message, error)

	// ConversationContext returns up to size completed messages preceding
	// beforeMessageID (or the newest messages when nil), oldest first.
	ConversationContext(ctx context.Context, sessionID id.SessionID, beforeMessageID *id.MessageID, size int) ([]*models.Message, error)

	// Statistics aggregates message counts, optionally scoped to one user or
	// session and a time window.
	Statistics(ctx context.Context, userID *id.UserID, sessionID *id.SessionID, from, to *time.Time) (*Statistics, error)

	// BulkUpdateStatus sets the status on all given messages, returning the
	// number actually updated.
	BulkUpdateStatus(ctx context.Context, messageIDs []id.MessageID, status models.Status) (int, error)

	// TokenUsageByDay buckets token consumption per day within the window.
	TokenUsageByDay(ctx context.Context, userID *id.UserID, from, to time.Time) ([]TokenUsage, error)

	// FindErrors returns errored messages, newest first.
	FindErrors(ctx context.Context, limit int) ([]*models.Message, error)

	// FindHighTokenUsage returns completed messages at or above the token
	// threshold, highest first.
	FindHighTokenUsage(ctx context.Context, threshold int, limit int) ([]*models.Message, error)

	// ArchiveOld soft deletes messages created before the cutoff, skipping
	// the excluded sessions. Returns the number archived.
	ArchiveOld(ctx context.Context, createdBefore time.Time, excludeSessionIDs []id.SessionID) (int, error)

	// CleanupDeleted permanently removes messages soft deleted before the cutoff.
	CleanupDeleted(ctx context.Context, deletedBefore time.Time) (int, error)
}
