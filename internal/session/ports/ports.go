// Package ports defines the interfaces the session feature depends on.
package ports

import (
	"context"
	"time"

	"ali/internal/session/models"
	usermodels "ali/internal/user/models"
	id "ali/pkg/domain"
	"ali/pkg/platform/audit"
)

// AuditPublisher emits audit events for security-relevant operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// UserReader is the slice of the user store the session service needs.
type UserReader interface {
	FindByID(ctx context.Context, userID id.UserID) (*usermodels.User, error)
}

// Filter narrows List and Count results. Nil fields are not applied.
type Filter struct {
	UserID *id.UserID
	Status *models.Status
	Type   *models.Type
	Limit  int
	Offset int
}

// Statistics summarizes sessions for a user or the whole system.
type Statistics struct {
	TotalSessions    int                 `json:"total_sessions"`
	ActiveSessions   int                 `json:"active_sessions"`
	ArchivedSessions int                 `json:"archived_sessions"`
	ByType           map[models.Type]int `json:"by_type"`
	TotalMessages    int                 `json:"total_messages"`
	TotalTokens      int                 `json:"total_tokens"`
	AvgResponseTime  float64             `json:"avg_response_time"`
}

// Store is the persistence port for sessions.
type Store interface {
	// Create persists a new session.
	// Returns sentinel.ErrConflict if the ID already exists.
	Create(ctx context.Context, session *models.Session) (*models.Session, error)

	// FindByID returns the session or sentinel.ErrNotFound.
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)

	// Update persists changes to an existing session.
	Update(ctx context.Context, session *models.Session) (*models.Session, error)

	// Delete soft deletes a session by setting its status to deleted.
	Delete(ctx context.Context, sessionID id.SessionID) error

	// List returns sessions matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*models.Session, error)

	// Count returns the number of sessions matching the filter.
	Count(ctx context.Context, filter Filter) (int, error)

	// Search matches the query against session names.
	Search(ctx context.Context, query string, userID *id.UserID, limit, offset int) ([]*models.Session, error)

	// FindInactive returns sessions with no activity since the cutoff.
	FindInactive(ctx context.Context, inactiveSince time.Time, limit int) ([]*models.Session, error)

	// RecordMessage folds message activity into the session counters.
	RecordMessage(ctx context.Context, sessionID id.SessionID, tokensUsed int, responseTime float64) error

	// BulkUpdateStatus sets the status on all given sessions, returning the
	// number actually updated.
	BulkUpdateStatus(ctx context.Context, sessionIDs []id.SessionID, status models.Status) (int, error)

	// Statistics aggregates session counts, optionally scoped to one user
	// and a time window.
	Statistics(ctx context.Context, userID *id.UserID, from, to *time.Time) (*Statistics, error)

	// CleanupDeleted permanently removes sessions soft deleted before the cutoff.
	CleanupDeleted(ctx context.Context, deletedBefore time.Time) (int, error)
}
