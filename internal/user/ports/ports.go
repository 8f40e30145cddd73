// Package ports defines the interfaces the user feature depends on.
package ports

import (
	"context"
	"time"

	"ali/internal/user/models"
	id "ali/pkg/domain"
	"ali/pkg/platform/audit"
)

// AuditPublisher emits audit events for security-relevant operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Filter narrows List and Count results. Nil fields are not applied.
type Filter struct {
	Status     *models.Status
	Role       *models.Role
	IsVerified *bool
	Query      string
	Limit      int
	Offset     int
}

// Statistics summarizes the user population.
type Statistics struct {
	TotalUsers    int                   `json:"total_users"`
	ByStatus      map[models.Status]int `json:"by_status"`
	ByRole        map[models.Role]int   `json:"by_role"`
	VerifiedUsers int                   `json:"verified_users"`
}

// Store is the persistence port for users.
type Store interface {
	// Create persists a new user and assigns its ID.
	// Returns sentinel.ErrConflict if the email is taken.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// FindByID returns the user or sentinel.ErrNotFound.
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)

	// FindByEmail returns the user with the given normalized email or sentinel.ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*models.User, error)

	// ExistsByEmail reports whether a user with the email exists.
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// Update persists changes to an existing user.
	Update(ctx context.Context, user *models.User) (*models.User, error)

	// Delete soft deletes a user by setting its status to deleted.
	Delete(ctx context.Context, userID id.UserID) error

	// List returns users matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*models.User, error)

	// Count returns the number of users matching the filter.
	Count(ctx context.Context, filter Filter) (int, error)

	// Search matches the query against email and profile name fields.
	Search(ctx context.Context, query string, limit, offset int) ([]*models.User, error)

	// FindUnverified returns unverified users created before the cutoff.
	FindUnverified(ctx context.Context, createdBefore time.Time, limit int) ([]*models.User, error)

	// BulkUpdateStatus sets the status on all given users, returning the
	// number actually updated.
	BulkUpdateStatus(ctx context.Context, userIDs []id.UserID, status models.Status) (int, error)

	// Statistics aggregates counts by status, role, and verification.
	Statistics(ctx context.Context) (*Statistics, error)
}
