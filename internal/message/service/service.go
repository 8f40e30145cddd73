// Package service implements the message domain rules: creation limits,
// the processing state machine, and conversation analytics.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ali/internal/message/metrics"
	"ali/internal/message/models"
	"ali/internal/message/ports"
	sessionmodels "ali/internal/session/models"
	usermodels "ali/internal/user/models"
	id "ali/pkg/domain"
	dErrors "ali/pkg/domain-errors"
	"ali/pkg/platform/audit"
	"ali/pkg/platform/sentinel"
)

// Type aliases for shared interfaces.
type (
	Store          = ports.Store
	SessionStore   = ports.SessionStore
	UserReader     = ports.UserReader
	AuditPublisher = ports.AuditPublisher
)

// hourlyMessageLimit is the rolling per-user rate limit.
const hourlyMessageLimit = 100

// dailyMessageQuotas caps messages per role, counted from UTC midnight.
var dailyMessageQuotas = map[usermodels.Role]int{
	usermodels.RoleAdmin:  10000,
	usermodels.RoleEditor: 1000,
	usermodels.RoleViewer: 100,
	usermodels.RoleGuest:  20,
}

const defaultDailyQuota = 20

// responseTimeTarget is the average response time goal in seconds.
const responseTimeTarget = 3.0

const defaultContextSize = 10

type Service struct {
	store          Store
	sessions       SessionStore
	users          UserReader
	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func New(store Store, sessions SessionStore, users UserReader, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("message store is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user reader is required")
	}

	svc := &Service{
		store:    store,
		sessions: sessions,
		users:    users,
		logger:   slog.Default(),
		clock:    time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// CreateUserMessage records a user message in a session the user may access.
// The rate limit and the daily quota are both read-then-write checks; two
// concurrent sends can both pass them.
func (s *Service) CreateUserMessage(ctx context.Context, sessionID id.SessionID, userID id.UserID, content string) (*models.Message, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.getAccessibleSession(ctx, sessionID, user); err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	if err := s.checkRateLimit(ctx, userID, now); err != nil {
		return nil, err
	}
	if err := s.checkDailyQuota(ctx, user, now); err != nil {
		return nil, err
	}

	message, err := models.NewMessage(sessionID, userID, models.RoleUser, content, now)
	if err != nil {
		return nil, err
	}
	// User messages need no generation pipeline.
	message.Status = models.StatusCompleted

	created, err := s.store.Create(ctx, message)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "create user message")
	}
	s.metrics.IncrementCreated(string(models.RoleUser))

	if err := s.sessions.RecordMessage(ctx, sessionID, 0, 0); err != nil {
		s.logger.WarnContext(ctx, "failed to record session activity",
			"session_id", sessionID, "error", err)
	}

	return created, nil
}

// CreateAssistantMessage records a completed assistant response along with
// its generation metadata and folds usage into the session counters.
func (s *Service) CreateAssistantMessage(ctx context.Context, sessionID id.SessionID, userID id.UserID, content string, metadata models.Metadata) (*models.Message, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.getAccessibleSession(ctx, sessionID, user); err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	message, err := models.NewMessage(sessionID, userID, models.RoleAssistant, content, now)
	if err != nil {
		return nil, err
	}
	if err := message.Complete(metadata, now); err != nil {
		return nil, err
	}

	created, err := s.store.Create(ctx, message)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "create assistant message")
	}
	s.metrics.IncrementCreated(string(models.RoleAssistant))
	s.metrics.ObserveCompletion(metadata.TokensUsed, metadata.ProcessingTime)

	if err := s.sessions.RecordMessage(ctx, sessionID, metadata.TokensUsed, metadata.ProcessingTime); err != nil {
		s.logger.WarnContext(ctx, "failed to record session activity",
			"session_id", sessionID, "error", err)
	}

	return created, nil
}

// CreateSystemMessage records a system message. No rate limits apply.
func (s *Service) CreateSystemMessage(ctx context.Context, sessionID id.SessionID, userID id.UserID, content string) (*models.Message, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.getAccessibleSession(ctx, sessionID, user); err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	message, err := models.NewMessage(sessionID, userID, models.RoleSystem, content, now)
	if err != nil {
		return nil, err
	}
	message.Status = models.StatusCompleted

	created, err := s.store.Create(ctx, message)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "create system message")
	}
	s.metrics.IncrementCreated(string(models.RoleSystem))
	return created, nil
}

// Get returns a message the caller may see: the author, an admin, or anyone
// with access to the containing session.
func (s *Service) Get(ctx context.Context, messageID id.MessageID, userID id.UserID) (*models.Message, error) {
	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if message.UserID != userID && user.Role != usermodels.RoleAdmin {
		if _, err := s.getAccessibleSession(ctx, message.SessionID, user); err != nil {
			return nil, err
		}
	}
	return message, nil
}

// ListSession returns a session's messages after an access check.
func (s *Service) ListSession(ctx context.Context, sessionID id.SessionID, userID id.UserID, filter ports.Filter) ([]*models.Message, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.getAccessibleSession(ctx, sessionID, user); err != nil {
		return nil, err
	}

	messages, err := s.store.ListBySession(ctx, sessionID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "list session messages")
	}
	return messages, nil
}

// Edit replaces the content of one of the caller's pending messages.
func (s *Service) Edit(ctx context.Context, messageID id.MessageID, userID id.UserID, content string) (*models.Message, error) {
	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if err := message.Edit(content, userID, s.clock().UTC()); err != nil {
		return nil, err
	}

	updated, err := s.store.Update(ctx, message)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "edit message")
	}
	return updated, nil
}

// Delete soft deletes a message. The author and admins may delete; forced
// deletes skip the ownership check and are reserved for trusted callers.
func (s *Service) Delete(ctx context.Context, messageID id.MessageID, userID id.UserID, force bool) error {
	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return err
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if !force && message.UserID != userID && user.Role != usermodels.RoleAdmin {
		return dErrors.Newf(dErrors.CodeInsufficientPermissions, "user %d cannot delete message %s", userID, messageID)
	}

	message.MarkDeleted(s.clock().UTC())
	if _, err := s.store.Update(ctx, message); err != nil {
		return dErrors.Wrap(err, dErrors.CodeRepository, "delete message")
	}
	return nil
}

// Retry re-queues one of the caller's errored messages.
func (s *Service) Retry(ctx context.Context, messageID id.MessageID, userID id.UserID) (*models.Message, error) {
	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if message.UserID != userID && user.Role != usermodels.RoleAdmin {
		return nil, dErrors.Newf(dErrors.CodeInsufficientPermissions, "user %d cannot retry message %s", userID, messageID)
	}

	if err := message.Retry(s.clock().UTC()); err != nil {
		return nil, err
	}

	updated, err := s.store.Update(ctx, message)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "retry message")
	}
	return updated, nil
}

// MarkFailed transitions a message to the error state with details. Used by
// the generation pipeline when a completion attempt fails.
func (s *Service) MarkFailed(ctx context.Context, messageID id.MessageID, details string) (*models.Message, error) {
	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	message.Fail(details, s.clock().UTC())

	updated, err := s.store.Update(ctx, message)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "mark message failed")
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:  string(audit.EventMessageFlagged),
		UserID:  message.UserID,
		Subject: messageID.String(),
		Reason:  details,
	})

	return updated, nil
}

// ConversationContext returns the completed messages preceding a point in the
// conversation, oldest first, for prompt assembly.
func (s *Service) ConversationContext(ctx context.Context, sessionID id.SessionID, userID id.UserID, beforeMessageID *id.MessageID, size int) ([]*models.Message, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.getAccessibleSession(ctx, sessionID, user); err != nil {
		return nil, err
	}
	if size <= 0 {
		size = defaultContextSize
	}

	messages, err := s.store.ConversationContext(ctx, sessionID, beforeMessageID, size)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeMessageNotFound, "message %s not found", beforeMessageID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "conversation context")
	}
	return messages, nil
}

// Search matches message content. Non-admins are scoped to their own messages.
func (s *Service) Search(ctx context.Context, query string, userID id.UserID, sessionID *id.SessionID, limit, offset int) ([]*models.Message, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var scope *id.UserID
	if user.Role != usermodels.RoleAdmin {
		scope = &userID
	}

	messages, err := s.store.Search(ctx, query, sessionID, scope, limit, offset)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "search messages")
	}
	return messages, nil
}

// ExportEntry is one message in a session export.
type ExportEntry struct {
	Role       models.Role `json:"role"`
	Content    string      `json:"content"`
	TokensUsed int         `json:"tokens_used,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ExportSession returns a session's completed messages in conversation order,
// stripped down to the fields a transcript needs.
func (s *Service) ExportSession(ctx context.Context, sessionID id.SessionID, userID id.UserID) ([]ExportEntry, error) {
	status := models.StatusCompleted
	messages, err := s.ListSession(ctx, sessionID, userID, ports.Filter{Status: &status})
	if err != nil {
		return nil, err
	}

	entries := make([]ExportEntry, 0, len(messages))
	for _, message := range messages {
		entries = append(entries, ExportEntry{
			Role:       message.Role,
			Content:    message.Content,
			TokensUsed: message.Metadata.TokensUsed,
			CreatedAt:  message.CreatedAt,
		})
	}
	return entries, nil
}

// Health bands for the message error rate.
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// ResponseTimes summarizes response time performance against the target.
type ResponseTimes struct {
	Average     float64 `json:"average"`
	Rating      string  `json:"rating"`
	Target      float64 `json:"target"`
	MeetsTarget bool    `json:"meets_target"`
}

// Analytics combines raw statistics with derived health signals.
type Analytics struct {
	ports.Statistics
	ContentHealth string             `json:"content_health"`
	ResponseTimes ResponseTimes      `json:"response_times"`
	TokenUsage    []ports.TokenUsage `json:"token_usage,omitempty"`
}

// GetAnalytics aggregates statistics and classifies content health: an error
// rate under 1% is healthy, under 5% warning, otherwise critical.
func (s *Service) GetAnalytics(ctx context.Context, userID *id.UserID, sessionID *id.SessionID, from, to *time.Time) (*Analytics, error) {
	stats, err := s.store.Statistics(ctx, userID, sessionID, from, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "message statistics")
	}

	analytics := &Analytics{
		Statistics:    *stats,
		ContentHealth: classifyContentHealth(stats),
		ResponseTimes: ResponseTimes{
			Average:     stats.AvgResponseTime,
			Rating:      models.ResponseTimeRating(stats.AvgResponseTime),
			Target:      responseTimeTarget,
			MeetsTarget: stats.AvgResponseTime < responseTimeTarget,
		},
	}

	if from != nil && to != nil {
		usage, err := s.store.TokenUsageByDay(ctx, userID, *from, *to)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeRepository, "token usage")
		}
		analytics.TokenUsage = usage
	}

	return analytics, nil
}

// ListErrors returns recent errored messages for operator triage.
func (s *Service) ListErrors(ctx context.Context, limit int) ([]*models.Message, error) {
	messages, err := s.store.FindErrors(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "list error messages")
	}
	return messages, nil
}

// ListHighTokenUsage returns completed messages at or above the threshold.
func (s *Service) ListHighTokenUsage(ctx context.Context, threshold, limit int) ([]*models.Message, error) {
	messages, err := s.store.FindHighTokenUsage(ctx, threshold, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "list high token messages")
	}
	return messages, nil
}

// CleanupOldMessages soft deletes messages older than the retention window,
// skipping the excluded sessions.
func (s *Service) CleanupOldMessages(ctx context.Context, retentionDays int, excludeSessionIDs []id.SessionID) (int, error) {
	cutoff := s.clock().UTC().AddDate(0, 0, -retentionDays)

	count, err := s.store.ArchiveOld(ctx, cutoff, excludeSessionIDs)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeRepository, "archive old messages")
	}

	if count > 0 {
		audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
			Action: string(audit.EventCleanupCompleted),
		}, "subject", "messages", "count", count)
	}
	return count, nil
}

func classifyContentHealth(stats *ports.Statistics) string {
	if stats.TotalMessages == 0 {
		return HealthHealthy
	}
	errorRate := float64(stats.ErrorCount) / float64(stats.TotalMessages)
	switch {
	case errorRate < 0.01:
		return HealthHealthy
	case errorRate < 0.05:
		return HealthWarning
	default:
		return HealthCritical
	}
}

func (s *Service) checkRateLimit(ctx context.Context, userID id.UserID, now time.Time) error {
	since := now.Add(-time.Hour)
	count, err := s.store.CountByUserSince(ctx, userID, since)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeRepository, "count recent messages")
	}
	if count >= hourlyMessageLimit {
		audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
			Action: string(audit.EventRateLimitExceeded),
			UserID: userID,
		}, "limit", hourlyMessageLimit)
		s.metrics.IncrementLimitRejection("rate")
		return dErrors.Newf(dErrors.CodeRateLimitExceeded, "rate limit exceeded: %d messages per hour", hourlyMessageLimit)
	}
	return nil
}

func (s *Service) checkDailyQuota(ctx context.Context, user *usermodels.User, now time.Time) error {
	quota, ok := dailyMessageQuotas[user.Role]
	if !ok {
		quota = defaultDailyQuota
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	count, err := s.store.CountByUserSince(ctx, user.ID, midnight)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeRepository, "count daily messages")
	}
	if count >= quota {
		audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
			Action: string(audit.EventQuotaExceeded),
			UserID: user.ID,
		}, "quota", quota)
		s.metrics.IncrementLimitRejection("quota")
		return dErrors.Newf(dErrors.CodeQuotaExceeded, "daily message quota exceeded: %d", quota)
	}
	return nil
}

func (s *Service) getMessage(ctx context.Context, messageID id.MessageID) (*models.Message, error) {
	message, err := s.store.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeMessageNotFound, "message %s not found", messageID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "find message")
	}
	return message, nil
}

func (s *Service) getAccessibleSession(ctx context.Context, sessionID id.SessionID, user *usermodels.User) (*sessionmodels.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeSessionNotFound, "session %s not found", sessionID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "find session")
	}
	if !session.CanBeAccessedBy(user.ID, string(user.Role)) {
		return nil, dErrors.Newf(dErrors.CodeSessionAccessDenied, "user %d cannot access session %s", user.ID, sessionID)
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
