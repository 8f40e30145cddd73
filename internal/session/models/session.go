package models

import (
	"strings"
	"time"

	id "ali/pkg/domain"
	dErrors "ali/pkg/domain-errors"
)

// Session is the aggregate root for a chat session.
//
// Invariants:
//   - Name is non-empty (a timestamp-based name is generated when omitted)
//   - Metadata.Temperature is within [0.0, 2.0]
//   - Metadata.MaxTokens and Metadata.ContextWindow are positive
//   - Stats.AvgResponseTime is the incremental average over recorded messages
//   - CreatedAt is immutable after construction
type Session struct {
	ID        id.SessionID `json:"id"`
	UserID    id.UserID    `json:"user_id"`
	Name      string       `json:"name"`
	Type      Type         `json:"type"`
	Status    Status       `json:"status"`
	Metadata  Metadata     `json:"metadata"`
	Stats     Stats        `json:"stats"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Metadata holds session configuration.
type Metadata struct {
	ModelUsed     string  `json:"model_used,omitempty"`
	Temperature   float64 `json:"temperature"`
	MaxTokens     int     `json:"max_tokens"`
	SystemPrompt  string  `json:"system_prompt,omitempty"`
	ContextWindow int     `json:"context_window"`
	Language      string  `json:"language"`
}

// Stats accumulates per-session usage counters.
type Stats struct {
	MessageCount    int        `json:"message_count"`
	TotalTokensUsed int        `json:"total_tokens_used"`
	AvgResponseTime float64    `json:"avg_response_time"`
	LastActivity    *time.Time `json:"last_activity,omitempty"`
}

func DefaultMetadata() Metadata {
	return Metadata{
		Temperature:   0.7,
		MaxTokens:     2000,
		ContextWindow: 4000,
		Language:      "pt-BR",
	}
}

// NewSession constructs an active session. An empty name gets a
// timestamp-based default.
func NewSession(userID id.UserID, name string, sessionType Type, now time.Time) (*Session, error) {
	if !sessionType.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid session type: %s", sessionType)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Session " + now.Format("2006-01-02 15:04")
	}
	return &Session{
		ID:        id.NewSessionID(),
		UserID:    userID,
		Name:      name,
		Type:      sessionType,
		Status:    StatusActive,
		Metadata:  DefaultMetadata(),
		Stats:     Stats{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Rename sets a new non-empty name.
func (s *Session) Rename(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return dErrors.New(dErrors.CodeValidation, "session name cannot be empty")
	}
	s.Name = name
	s.UpdatedAt = now
	return nil
}

func (s *Session) Archive(now time.Time) {
	s.Status = StatusArchived
	s.UpdatedAt = now
}

func (s *Session) Activate(now time.Time) {
	s.Status = StatusActive
	s.UpdatedAt = now
}

func (s *Session) Deactivate(now time.Time) {
	s.Status = StatusInactive
	s.UpdatedAt = now
}

func (s *Session) MarkDeleted(now time.Time) {
	s.Status = StatusDeleted
	s.UpdatedAt = now
}

// MetadataUpdate carries field-wise metadata changes. Nil fields are untouched.
type MetadataUpdate struct {
	ModelUsed     *string
	Temperature   *float64
	MaxTokens     *int
	SystemPrompt  *string
	ContextWindow *int
	Language      *string
}

// ApplyMetadataUpdate validates and applies the update. Bounds are re-checked
// on every write.
func (s *Session) ApplyMetadataUpdate(update MetadataUpdate, now time.Time) error {
	if update.Temperature != nil {
		if *update.Temperature < 0.0 || *update.Temperature > 2.0 {
			return dErrors.New(dErrors.CodeValidation, "temperature must be between 0.0 and 2.0")
		}
		s.Metadata.Temperature = *update.Temperature
	}
	if update.MaxTokens != nil {
		if *update.MaxTokens <= 0 {
			return dErrors.New(dErrors.CodeValidation, "max tokens must be positive")
		}
		s.Metadata.MaxTokens = *update.MaxTokens
	}
	if update.ContextWindow != nil {
		if *update.ContextWindow <= 0 {
			return dErrors.New(dErrors.CodeValidation, "context window must be positive")
		}
		s.Metadata.ContextWindow = *update.ContextWindow
	}
	if update.ModelUsed != nil {
		s.Metadata.ModelUsed = *update.ModelUsed
	}
	if update.SystemPrompt != nil {
		s.Metadata.SystemPrompt = *update.SystemPrompt
	}
	if update.Language != nil {
		s.Metadata.Language = *update.Language
	}
	s.UpdatedAt = now
	return nil
}

// RecordMessage folds one message into the session counters. The average
// response time uses the incremental formula avg = (avg*(n-1)+rt)/n; zero
// response times do not move the average.
func (s *Session) RecordMessage(tokensUsed int, responseTime float64, now time.Time) {
	s.Stats.MessageCount++
	s.Stats.TotalTokensUsed += tokensUsed

	if responseTime > 0 {
		count := float64(s.Stats.MessageCount)
		s.Stats.AvgResponseTime = (s.Stats.AvgResponseTime*(count-1) + responseTime) / count
	}

	s.Stats.LastActivity = &now
	s.UpdatedAt = now
}

func (s *Session) IsActive() bool {
	return s.Status == StatusActive
}

func (s *Session) IsOwnedBy(userID id.UserID) bool {
	return s.UserID == userID
}

// CanBeAccessedBy allows the owner and admins, nobody else.
func (s *Session) CanBeAccessedBy(userID id.UserID, role string) bool {
	if s.IsOwnedBy(userID) {
		return true
	}
	return role == "admin"
}

// ActivitySummary describes accumulated session activity.
type ActivitySummary struct {
	MessageCount    int        `json:"message_count"`
	TotalTokens     int        `json:"total_tokens"`
	AvgResponseTime float64    `json:"avg_response_time"`
	LastActivity    *time.Time `json:"last_activity,omitempty"`
	Created         time.Time  `json:"created"`
	DurationHours   float64    `json:"duration_hours"`
	MessagesPerHour float64    `json:"messages_per_hour"`
}

func (s *Session) GetActivitySummary() ActivitySummary {
	duration := s.durationHours()
	perHour := 0.0
	if duration > 0 {
		perHour = float64(s.Stats.MessageCount) / duration
	}
	return ActivitySummary{
		MessageCount:    s.Stats.MessageCount,
		TotalTokens:     s.Stats.TotalTokensUsed,
		AvgResponseTime: s.Stats.AvgResponseTime,
		LastActivity:    s.Stats.LastActivity,
		Created:         s.CreatedAt,
		DurationHours:   duration,
		MessagesPerHour: perHour,
	}
}

func (s *Session) durationHours() float64 {
	end := s.UpdatedAt
	if s.Stats.LastActivity != nil {
		end = *s.Stats.LastActivity
	}
	return end.Sub(s.CreatedAt).Hours()
}

// ResetStats clears the accumulated counters.
func (s *Session) ResetStats(now time.Time) {
	s.Stats = Stats{}
	s.UpdatedAt = now
}
