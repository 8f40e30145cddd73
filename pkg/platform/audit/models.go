package audit

import (
	"time"

	id "ali/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing downstream.
type EventCategory string

const (
	// CategorySecurity covers events relevant to security monitoring.
	// Examples: auth failures, role changes, deactivations, limit hits.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. Examples: registrations, session lifecycle, cleanup runs.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    id.UserID
	Subject   string // entity the action targeted (session id, document id, email)
	Action    string
	Reason    string
	// ActorID tracks who performed the action when different from UserID,
	// e.g. an admin acting on another user's account.
	ActorID string
}

type AuditEvent string

const (
	// User events
	EventUserRegistered   AuditEvent = "user_registered"
	EventUserVerified     AuditEvent = "user_verified"
	EventUserRoleChanged  AuditEvent = "user_role_changed"
	EventUserDeactivated  AuditEvent = "user_deactivated"
	EventUserReactivated  AuditEvent = "user_reactivated"
	EventPasswordChanged  AuditEvent = "password_changed"
	EventAuthFailed       AuditEvent = "auth_failed"
	EventProfileUpdated   AuditEvent = "profile_updated"
	EventUsersDeactivated AuditEvent = "users_bulk_deactivated"
	EventUserLogin        AuditEvent = "user_login"
	EventUserLogout       AuditEvent = "user_logout"

	// Session events
	EventSessionCreated     AuditEvent = "session_created"
	EventSessionTerminated  AuditEvent = "session_terminated"
	EventSessionsTerminated AuditEvent = "sessions_bulk_terminated"
	EventSessionTransferred AuditEvent = "session_transferred"

	// Message events
	EventRateLimitExceeded AuditEvent = "rate_limit_exceeded"
	EventQuotaExceeded     AuditEvent = "quota_exceeded"
	EventMessageFlagged    AuditEvent = "message_flagged"

	// Document events
	EventDocumentPublished   AuditEvent = "document_published"
	EventDocumentUnpublished AuditEvent = "document_unpublished"
	EventDocumentDeleted     AuditEvent = "document_deleted"
	EventDocumentsArchived   AuditEvent = "documents_archived"

	// Maintenance events
	EventCleanupCompleted AuditEvent = "cleanup_completed"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventUserRoleChanged:    CategorySecurity,
	EventUserDeactivated:    CategorySecurity,
	EventUsersDeactivated:   CategorySecurity,
	EventPasswordChanged:    CategorySecurity,
	EventAuthFailed:         CategorySecurity,
	EventRateLimitExceeded:  CategorySecurity,
	EventQuotaExceeded:      CategorySecurity,
	EventMessageFlagged:     CategorySecurity,
	EventSessionTransferred: CategorySecurity,

	EventUserLogin:  CategorySecurity,
	EventUserLogout: CategorySecurity,

	EventUserRegistered:      CategoryOperations,
	EventUserVerified:        CategoryOperations,
	EventUserReactivated:     CategoryOperations,
	EventProfileUpdated:      CategoryOperations,
	EventSessionCreated:      CategoryOperations,
	EventSessionTerminated:   CategoryOperations,
	EventSessionsTerminated:  CategoryOperations,
	EventDocumentPublished:   CategoryOperations,
	EventDocumentUnpublished: CategoryOperations,
	EventDocumentDeleted:     CategoryOperations,
	EventDocumentsArchived:   CategoryOperations,
	EventCleanupCompleted:    CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
