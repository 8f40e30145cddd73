// Package ports defines the interfaces the document feature depends on.
package ports

import (
	"context"
	"time"

	"ali/internal/document/models"
	usermodels "ali/internal/user/models"
	id "ali/pkg/domain"
	"ali/pkg/platform/audit"
)

// AuditPublisher emits audit events for security-relevant operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// UserReader is the slice of the user store the document service needs.
type UserReader interface {
	FindByID(ctx context.Context, userID id.UserID) (*usermodels.User, error)
}

// Filter narrows List and Count results. Nil fields are not applied.
type Filter struct {
	UserID   *id.UserID
	Status   *models.Status
	Type     *models.Type
	Category *models.Category
	IsPublic *bool
	Limit    int
	Offset   int
}

// Statistics summarizes documents for a user or the whole system.
type Statistics struct {
	TotalDocuments  int                     `json:"total_documents"`
	ByStatus        map[models.Status]int   `json:"by_status"`
	ByType          map[models.Type]int     `json:"by_type"`
	ByCategory      map[models.Category]int `json:"by_category"`
	PublicDocuments int                     `json:"public_documents"`
	TotalWords      int                     `json:"total_words"`
	TotalBytes      int                     `json:"total_bytes"`
	ErrorCount      int                     `json:"error_count"`
}

// TagCount reports how often a tag is used.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Store is the persistence port for documents.
type Store interface {
	// Create persists a new document.
	// Returns sentinel.ErrConflict if the ID already exists.
	Create(ctx context.Context, document *models.Document) (*models.Document, error)

	// FindByID returns the document or sentinel.ErrNotFound.
	FindByID(ctx context.Context, documentID id.DocumentID) (*models.Document, error)

	// Update persists changes to an existing document.
	Update(ctx context.Context, document *models.Document) (*models.Document, error)

	// Delete soft deletes a document by setting its status to deleted.
	Delete(ctx context.Context, documentID id.DocumentID) error

	// List returns documents matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*models.Document, error)

	// Count returns the number of documents matching the filter.
	Count(ctx context.Context, filter Filter) (int, error)

	// Search matches the query against searchable documents' titles,
	// descriptions, tags, and text. A nil userID searches everything;
	// otherwise the scope is the user's own documents plus public ones.
	Search(ctx context.Context, query string, userID *id.UserID, limit, offset int) ([]*models.Document, error)

	// FindByHash returns non-deleted documents with the given content hash,
	// optionally scoped to one user.
	FindByHash(ctx context.Context, contentHash string, userID *id.UserID) ([]*models.Document, error)

	// BulkUpdateStatus sets the status on all given documents, returning the
	// number actually updated.
	BulkUpdateStatus(ctx context.Context, documentIDs []id.DocumentID, status models.Status) (int, error)

	// FindOld returns non-deleted documents created before the cutoff,
	// skipping the excluded users.
	FindOld(ctx context.Context, createdBefore time.Time, excludeUserIDs []id.UserID, limit int) ([]*models.Document, error)

	// Statistics aggregates document counts, optionally scoped to one user.
	Statistics(ctx context.Context, userID *id.UserID) (*Statistics, error)

	// AllTags returns tags used at least minUsage times, most used first.
	AllTags(ctx context.Context, minUsage int) ([]TagCount, error)

	// CleanupDeleted permanently removes documents soft deleted before the cutoff.
	CleanupDeleted(ctx context.Context, deletedBefore time.Time) (int, error)
}
