package models

import (
	"regexp"
	"strings"
	"time"

	id "ali/pkg/domain"
	dErrors "ali/pkg/domain-errors"
)

const (
	// MaxContentLength bounds message content in characters.
	MaxContentLength = 10000

	// MaxRetries bounds how often a failed message may be retried.
	MaxRetries = 3
)

var scriptTagPattern = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)

// Message is the aggregate root for a single chat message.
//
// Invariants:
//   - Content is non-empty after trimming, at most MaxContentLength
//     characters, and free of script tags and NUL bytes
//   - Status transitions follow the processing state machine below
//   - RetryCount never exceeds MaxRetries
//   - CreatedAt is immutable after construction
type Message struct {
	ID           id.MessageID `json:"id"`
	SessionID    id.SessionID `json:"session_id"`
	UserID       id.UserID    `json:"user_id"`
	Role         Role         `json:"role"`
	Content      string       `json:"content"`
	Status       Status       `json:"status"`
	Metadata     Metadata     `json:"metadata"`
	ErrorDetails string       `json:"error_details,omitempty"`
	RetryCount   int          `json:"retry_count"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Metadata carries generation details for assistant messages.
type Metadata struct {
	ModelUsed        string   `json:"model_used,omitempty"`
	TokensUsed       int      `json:"tokens_used"`
	ProcessingTime   float64  `json:"processing_time"`
	Confidence       *float64 `json:"confidence,omitempty"`
	ContextDocuments []string `json:"context_documents,omitempty"`
}

// ValidateContent enforces the content rules shared by construction and edits.
func ValidateContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", dErrors.New(dErrors.CodeInvalidMessageContent, "message content cannot be empty")
	}
	if len([]rune(trimmed)) > MaxContentLength {
		return "", dErrors.Newf(dErrors.CodeInvalidMessageContent, "message content exceeds %d characters", MaxContentLength)
	}
	if scriptTagPattern.MatchString(trimmed) {
		return "", dErrors.New(dErrors.CodeInvalidMessageContent, "message content contains forbidden markup")
	}
	if strings.ContainsRune(trimmed, 0) {
		return "", dErrors.New(dErrors.CodeInvalidMessageContent, "message content contains invalid characters")
	}
	return trimmed, nil
}

// NewMessage constructs a pending message with a freshly minted ID.
func NewMessage(sessionID id.SessionID, userID id.UserID, role Role, content string, now time.Time) (*Message, error) {
	if !role.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid message role: %s", role)
	}
	validated, err := ValidateContent(content)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        id.NewMessageID(),
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		Content:   validated,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Validate rejects out-of-range generation details.
func (m *Metadata) Validate() error {
	if m.TokensUsed < 0 {
		return dErrors.New(dErrors.CodeValidation, "tokens used cannot be negative")
	}
	if m.ProcessingTime < 0 {
		return dErrors.New(dErrors.CodeValidation, "processing time cannot be negative")
	}
	if m.Confidence != nil && (*m.Confidence < 0 || *m.Confidence > 1) {
		return dErrors.New(dErrors.CodeValidation, "confidence must be between 0 and 1")
	}
	return nil
}

// StartProcessing moves a pending message to processing.
func (m *Message) StartProcessing(now time.Time) error {
	if m.Status != StatusPending {
		return dErrors.Newf(dErrors.CodeMessageProcessingError, "cannot start processing from status %s", m.Status)
	}
	m.Status = StatusProcessing
	m.UpdatedAt = now
	return nil
}

// Complete finishes processing and records metadata.
func (m *Message) Complete(metadata Metadata, now time.Time) error {
	if m.Status != StatusPending && m.Status != StatusProcessing {
		return dErrors.Newf(dErrors.CodeMessageProcessingError, "cannot complete from status %s", m.Status)
	}
	if err := metadata.Validate(); err != nil {
		return err
	}
	m.Status = StatusCompleted
	m.Metadata = metadata
	m.UpdatedAt = now
	return nil
}

// Fail marks the message as errored and increments the retry counter.
func (m *Message) Fail(details string, now time.Time) {
	m.Status = StatusError
	m.ErrorDetails = details
	m.RetryCount++
	m.UpdatedAt = now
}

// MarkDeleted soft deletes the message.
func (m *Message) MarkDeleted(now time.Time) {
	m.Status = StatusDeleted
	m.UpdatedAt = now
}

// Edit replaces the content of a pending user message. Only the author may
// edit, and only before processing starts.
func (m *Message) Edit(content string, editorID id.UserID, now time.Time) error {
	if m.Role != RoleUser {
		return dErrors.New(dErrors.CodeMessageEditNotAllowed, "only user messages can be edited")
	}
	if m.Status != StatusPending {
		return dErrors.New(dErrors.CodeMessageEditNotAllowed, "only pending messages can be edited")
	}
	if m.UserID != editorID {
		return dErrors.New(dErrors.CodeMessageEditNotAllowed, "only the author can edit a message")
	}
	validated, err := ValidateContent(content)
	if err != nil {
		return err
	}
	m.Content = validated
	m.UpdatedAt = now
	return nil
}

// Retry re-queues an errored message. Limited to MaxRetries attempts.
func (m *Message) Retry(now time.Time) error {
	if m.Status != StatusError {
		return dErrors.Newf(dErrors.CodeMessageProcessingError, "cannot retry from status %s", m.Status)
	}
	if m.RetryCount >= MaxRetries {
		return dErrors.Newf(dErrors.CodeMessageProcessingError, "message exceeded %d retries", MaxRetries)
	}
	m.Status = StatusPending
	m.ErrorDetails = ""
	m.UpdatedAt = now
	return nil
}

// CanRetry reports whether Retry would succeed.
func (m *Message) CanRetry() bool {
	return m.Status == StatusError && m.RetryCount < MaxRetries
}

func (m *Message) IsDeleted() bool {
	return m.Status == StatusDeleted
}

// ResponseTimeRating classifies a response time in seconds.
func ResponseTimeRating(seconds float64) string {
	switch {
	case seconds < 2:
		return "excellent"
	case seconds < 5:
		return "good"
	case seconds < 10:
		return "acceptable"
	default:
		return "poor"
	}
}
