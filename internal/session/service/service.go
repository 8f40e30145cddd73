// Package service implements the session domain rules: creation caps,
// ownership and access, lifecycle, and analytics.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"ali/internal/session/models"
	"ali/internal/session/ports"
	usermodels "ali/internal/user/models"
	id "ali/pkg/domain"
	dErrors "ali/pkg/domain-errors"
	"ali/pkg/platform/audit"
	"ali/pkg/platform/sentinel"
)

// Type aliases for shared interfaces.
type (
	Store          = ports.Store
	UserReader     = ports.UserReader
	AuditPublisher = ports.AuditPublisher
)

// maxActiveSessions caps concurrently active sessions per role.
var maxActiveSessions = map[usermodels.Role]int{
	usermodels.RoleAdmin:  1000,
	usermodels.RoleEditor: 100,
	usermodels.RoleViewer: 20,
	usermodels.RoleGuest:  5,
}

const defaultSessionCap = 5

type Service struct {
	store          Store
	users          UserReader
	auditPublisher AuditPublisher
	logger         *slog.Logger
	clock          func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func New(store Store, users UserReader, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user reader is required")
	}

	svc := &Service{
		store:  store,
		users:  users,
		logger: slog.Default(),
		clock:  time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Create opens a new session for an active user, enforcing the per-role cap
// on active sessions. The cap check reads the current count and the create
// writes separately; two concurrent creates can both pass the check.
func (s *Service) Create(ctx context.Context, userID id.UserID, name string, sessionType models.Type) (*models.Session, error) {
	if sessionType == "" {
		sessionType = models.TypeChat
	}

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, dErrors.New(dErrors.CodeBusinessRuleViolation, "inactive users cannot create sessions")
	}

	if err := s.checkSessionCap(ctx, userID, user.Role); err != nil {
		return nil, err
	}

	session, err := models.NewSession(userID, name, sessionType, s.clock().UTC())
	if err != nil {
		return nil, err
	}

	created, err := s.store.Create(ctx, session)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeSessionAlreadyExists, "session %s already exists", session.ID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "create session")
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:  string(audit.EventSessionCreated),
		UserID:  userID,
		Subject: created.ID.String(),
	}, "type", string(created.Type))

	return created, nil
}

// Get returns a session after verifying the caller may access it. When
// requireActive is set, non-active sessions are rejected.
func (s *Service) Get(ctx context.Context, sessionID id.SessionID, userID id.UserID, requireActive bool) (*models.Session, error) {
	session, err := s.getAccessibleSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if requireActive && !session.IsActive() {
		return nil, dErrors.Newf(dErrors.CodeSessionNotActive, "session %s is not active", sessionID)
	}
	return session, nil
}

// List returns the caller's sessions matching the filter.
func (s *Service) List(ctx context.Context, filter ports.Filter) ([]*models.Session, error) {
	sessions, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "list sessions")
	}
	return sessions, nil
}

// Search matches sessions by name, scoped to one user unless userID is nil.
func (s *Service) Search(ctx context.Context, query string, userID *id.UserID, limit, offset int) ([]*models.Session, error) {
	sessions, err := s.store.Search(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "search sessions")
	}
	return sessions, nil
}

// RecordActivity folds message activity into the session counters.
func (s *Service) RecordActivity(ctx context.Context, sessionID id.SessionID, userID id.UserID, tokensUsed int, responseTime float64) (*models.Session, error) {
	session, err := s.Get(ctx, sessionID, userID, true)
	if err != nil {
		return nil, err
	}

	session.RecordMessage(tokensUsed, responseTime, s.clock().UTC())

	updated, err := s.store.Update(ctx, session)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "record session activity")
	}
	return updated, nil
}

// Rename changes the session name.
func (s *Service) Rename(ctx context.Context, sessionID id.SessionID, userID id.UserID, name string) (*models.Session, error) {
	session, err := s.getAccessibleSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	if err := session.Rename(name, s.clock().UTC()); err != nil {
		return nil, err
	}

	updated, err := s.store.Update(ctx, session)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "rename session")
	}
	return updated, nil
}

// UpdateMetadata applies field-wise metadata changes with bounds re-checked.
func (s *Service) UpdateMetadata(ctx context.Context, sessionID id.SessionID, userID id.UserID, update models.MetadataUpdate) (*models.Session, error) {
	session, err := s.getAccessibleSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	if err := session.ApplyMetadataUpdate(update, s.clock().UTC()); err != nil {
		return nil, err
	}

	updated, err := s.store.Update(ctx, session)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "update session metadata")
	}
	return updated, nil
}

// Archive moves a session to the archived state.
func (s *Service) Archive(ctx context.Context, sessionID id.SessionID, userID id.UserID) (*models.Session, error) {
	session, err := s.getAccessibleSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	session.Archive(s.clock().UTC())

	updated, err := s.store.Update(ctx, session)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "archive session")
	}
	return updated, nil
}

// Delete soft deletes a session. Owners and admins may delete; forced
// deletes skip the ownership check and are reserved for trusted callers.
func (s *Service) Delete(ctx context.Context, sessionID id.SessionID, userID id.UserID, force bool) error {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}

	if !force && !session.IsOwnedBy(userID) && user.Role != usermodels.RoleAdmin {
		return dErrors.Newf(dErrors.CodeInsufficientPermissions, "user %d cannot delete session %s", userID, sessionID)
	}

	session.MarkDeleted(s.clock().UTC())
	if _, err := s.store.Update(ctx, session); err != nil {
		return dErrors.Wrap(err, dErrors.CodeRepository, "delete session")
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:  string(audit.EventSessionTerminated),
		UserID:  userID,
		Subject: sessionID.String(),
	})

	return nil
}

// TransferOwnership moves a session to a new owner. The current owner or an
// admin may transfer.
func (s *Service) TransferOwnership(ctx context.Context, sessionID id.SessionID, newOwnerID, transferredBy id.UserID) (*models.Session, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.getUser(ctx, session.UserID); err != nil {
		return nil, err
	}
	if _, err := s.getUser(ctx, newOwnerID); err != nil {
		return nil, err
	}
	transferrer, err := s.getUser(ctx, transferredBy)
	if err != nil {
		return nil, err
	}

	if !session.IsOwnedBy(transferredBy) && transferrer.Role != usermodels.RoleAdmin {
		return nil, dErrors.Newf(dErrors.CodeInsufficientPermissions, "user %d cannot transfer session %s", transferredBy, sessionID)
	}

	previousOwner := session.UserID
	session.UserID = newOwnerID
	session.UpdatedAt = s.clock().UTC()

	updated, err := s.store.Update(ctx, session)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "transfer session")
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:  string(audit.EventSessionTransferred),
		UserID:  newOwnerID,
		Subject: sessionID.String(),
		ActorID: transferredBy.String(),
	}, "previous_owner", previousOwner.String())

	return updated, nil
}

// BulkOperation names an operation Bulk can apply.
type BulkOperation string

const (
	BulkArchive  BulkOperation = "archive"
	BulkDelete   BulkOperation = "delete"
	BulkActivate BulkOperation = "activate"
)

// BulkResult reports per-id outcomes of a bulk operation.
type BulkResult struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

// Bulk applies an operation to many sessions, best effort. Each failure is
// recorded and the remaining sessions are still processed.
func (s *Service) Bulk(ctx context.Context, sessionIDs []id.SessionID, operation BulkOperation, userID id.UserID) (*BulkResult, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{}
	now := s.clock().UTC()

	for _, sessionID := range sessionIDs {
		session, err := s.store.FindByID(ctx, sessionID)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("session %s not found", sessionID))
			continue
		}
		if !session.CanBeAccessedBy(userID, string(user.Role)) {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("no access to session %s", sessionID))
			continue
		}

		switch operation {
		case BulkArchive:
			session.Archive(now)
		case BulkDelete:
			session.MarkDeleted(now)
		case BulkActivate:
			session.Activate(now)
		default:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("unknown operation: %s", operation))
			continue
		}

		if _, err := s.store.Update(ctx, session); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("session %s: %v", sessionID, err))
			continue
		}
		result.Success++
	}

	if operation == BulkDelete && result.Success > 0 {
		audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
			Action: string(audit.EventSessionsTerminated),
			UserID: userID,
		}, "count", result.Success)
	}

	return result, nil
}

// CleanupInactiveSessions archives active sessions idle longer than the given
// number of hours. The read and the bulk write are separate store calls.
func (s *Service) CleanupInactiveSessions(ctx context.Context, inactiveHours int, excludeUserIDs []id.UserID) (int, error) {
	cutoff := s.clock().UTC().Add(-time.Duration(inactiveHours) * time.Hour)

	stale, err := s.store.FindInactive(ctx, cutoff, 1000)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeRepository, "find inactive sessions")
	}

	excluded := make(map[id.UserID]struct{}, len(excludeUserIDs))
	for _, userID := range excludeUserIDs {
		excluded[userID] = struct{}{}
	}

	sessionIDs := make([]id.SessionID, 0, len(stale))
	for _, session := range stale {
		if _, skip := excluded[session.UserID]; skip {
			continue
		}
		sessionIDs = append(sessionIDs, session.ID)
	}

	count, err := s.store.BulkUpdateStatus(ctx, sessionIDs, models.StatusArchived)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeRepository, "archive inactive sessions")
	}
	return count, nil
}

// Health bands for the active-session ratio.
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// TypeUsage reports how often a session type occurs.
type TypeUsage struct {
	Type       models.Type `json:"type"`
	Count      int         `json:"count"`
	Percentage float64     `json:"percentage"`
}

// Analytics combines raw statistics with derived health signals.
type Analytics struct {
	ports.Statistics
	SessionHealth string      `json:"session_health"`
	PopularTypes  []TypeUsage `json:"popular_types"`
}

// GetAnalytics aggregates statistics and classifies overall session health:
// active ratio above 0.7 is healthy, above 0.4 warning, otherwise critical.
func (s *Service) GetAnalytics(ctx context.Context, userID *id.UserID, from, to *time.Time) (*Analytics, error) {
	stats, err := s.store.Statistics(ctx, userID, from, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "session statistics")
	}

	return &Analytics{
		Statistics:    *stats,
		SessionHealth: classifyHealth(stats),
		PopularTypes:  popularTypes(stats),
	}, nil
}

func classifyHealth(stats *ports.Statistics) string {
	if stats.TotalSessions == 0 {
		return HealthHealthy
	}
	ratio := float64(stats.ActiveSessions) / float64(stats.TotalSessions)
	switch {
	case ratio > 0.7:
		return HealthHealthy
	case ratio > 0.4:
		return HealthWarning
	default:
		return HealthCritical
	}
}

func popularTypes(stats *ports.Statistics) []TypeUsage {
	usage := make([]TypeUsage, 0, len(stats.ByType))
	for sessionType, count := range stats.ByType {
		entry := TypeUsage{Type: sessionType, Count: count}
		if stats.TotalSessions > 0 {
			entry.Percentage = float64(count) / float64(stats.TotalSessions) * 100
		}
		usage = append(usage, entry)
	}
	sort.Slice(usage, func(i, j int) bool {
		if usage[i].Count == usage[j].Count {
			return usage[i].Type < usage[j].Type
		}
		return usage[i].Count > usage[j].Count
	})
	return usage
}

func (s *Service) checkSessionCap(ctx context.Context, userID id.UserID, role usermodels.Role) error {
	limit, ok := maxActiveSessions[role]
	if !ok {
		limit = defaultSessionCap
	}

	status := models.StatusActive
	active, err := s.store.Count(ctx, ports.Filter{UserID: &userID, Status: &status})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeRepository, "count active sessions")
	}
	if active >= limit {
		return dErrors.Newf(dErrors.CodeBusinessRuleViolation, "user has reached maximum active sessions limit: %d", limit)
	}
	return nil
}

func (s *Service) getSession(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	session, err := s.store.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeSessionNotFound, "session %s not found", sessionID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "find session")
	}
	return session, nil
}

func (s *Service) getAccessibleSession(ctx context.Context, sessionID id.SessionID, userID id.UserID) (*models.Session, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !session.CanBeAccessedBy(userID, string(user.Role)) {
		return nil, dErrors.Newf(dErrors.CodeSessionAccessDenied, "user %d cannot access session %s", userID, sessionID)
	}
	return session, nil
}

func (s *Service) getUser(ctx context.Context, userID id.UserID) (*usermodels.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeUserNotFound, "user %d not found", userID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "find user")
	}
	return user, nil
}
