package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	id "ali/pkg/domain"
	dErrors "ali/pkg/domain-errors"
	platformstrings "ali/pkg/platform/strings"
)

const (
	// MaxTitleLength bounds the document title in characters.
	MaxTitleLength = 200

	// MaxDescriptionLength bounds the description in characters.
	MaxDescriptionLength = 1000

	// MaxTagLength bounds a single tag in characters.
	MaxTagLength = 50

	// MaxTags bounds the tag list size after normalization.
	MaxTags = 20
)

// Document is the aggregate root for a stored document.
//
// Invariants:
//   - Title is non-empty after trimming, at most MaxTitleLength characters
//   - ContentHash is the hex SHA-256 of RawText, recomputed on every
//     content change together with WordCount and CharacterCount
//   - Tags are trimmed, lowercased, and deduplicated
//   - IsPublic implies the publish rules held when it was set
//   - CreatedAt is immutable after construction
type Document struct {
	ID             id.DocumentID `json:"id"`
	UserID         id.UserID     `json:"user_id"`
	Title          string        `json:"title"`
	Description    string        `json:"description,omitempty"`
	RawText        string        `json:"raw_text,omitempty"`
	Type           Type          `json:"type"`
	Category       Category      `json:"category"`
	Status         Status        `json:"status"`
	Tags           []string      `json:"tags"`
	IsPublic       bool          `json:"is_public"`
	SourceURL      string        `json:"source_url,omitempty"`
	FileName       string        `json:"file_name,omitempty"`
	ContentHash    string        `json:"content_hash,omitempty"`
	WordCount      int           `json:"word_count"`
	CharacterCount int           `json:"character_count"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// HashContent returns the hex SHA-256 of the text.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", dErrors.New(dErrors.CodeValidation, "document title cannot be empty")
	}
	if len([]rune(title)) > MaxTitleLength {
		return "", dErrors.Newf(dErrors.CodeValidation, "document title exceeds %d characters", MaxTitleLength)
	}
	return title, nil
}

func validateDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if len([]rune(description)) > MaxDescriptionLength {
		return "", dErrors.Newf(dErrors.CodeValidation, "document description exceeds %d characters", MaxDescriptionLength)
	}
	return description, nil
}

func normalizeTags(tags []string) ([]string, error) {
	normalized := platformstrings.DedupeAndTrimLower(tags)
	if len(normalized) > MaxTags {
		return nil, dErrors.Newf(dErrors.CodeValidation, "document cannot carry more than %d tags", MaxTags)
	}
	for _, tag := range normalized {
		if len([]rune(tag)) > MaxTagLength {
			return nil, dErrors.Newf(dErrors.CodeValidation, "tag exceeds %d characters: %s", MaxTagLength, tag)
		}
	}
	return normalized, nil
}

// NewDocument constructs a draft document with a freshly minted ID. Content
// counters and the hash are derived from the raw text.
func NewDocument(userID id.UserID, title, rawText string, docType Type, category Category, now time.Time) (*Document, error) {
	validTitle, err := validateTitle(title)
	if err != nil {
		return nil, err
	}
	if !docType.Valid() {
		return nil, dErrors.Newf(dErrors.CodeUnsupportedDocumentType, "invalid document type: %s", docType)
	}
	if category == "" {
		category = CategoryOther
	}
	if !category.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid document category: %s", category)
	}

	doc := &Document{
		ID:        id.NewDocumentID(),
		UserID:    userID,
		Title:     validTitle,
		Type:      docType,
		Category:  category,
		Status:    StatusDraft,
		Tags:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	doc.setContent(rawText, now)
	return doc, nil
}

func (d *Document) setContent(rawText string, now time.Time) {
	d.RawText = rawText
	d.ContentHash = HashContent(rawText)
	d.CharacterCount = len([]rune(rawText))
	d.WordCount = len(strings.Fields(rawText))
	d.UpdatedAt = now
}

// UpdateContent replaces the raw text and recomputes the hash and counters.
func (d *Document) UpdateContent(rawText string, now time.Time) {
	d.setContent(rawText, now)
}

// Rename sets a new validated title.
func (d *Document) Rename(title string, now time.Time) error {
	validTitle, err := validateTitle(title)
	if err != nil {
		return err
	}
	d.Title = validTitle
	d.UpdatedAt = now
	return nil
}

// SetDescription sets a validated description.
func (d *Document) SetDescription(description string, now time.Time) error {
	validDescription, err := validateDescription(description)
	if err != nil {
		return err
	}
	d.Description = validDescription
	d.UpdatedAt = now
	return nil
}

// SetTags normalizes and replaces the tag list.
func (d *Document) SetTags(tags []string, now time.Time) error {
	normalized, err := normalizeTags(tags)
	if err != nil {
		return err
	}
	d.Tags = normalized
	d.UpdatedAt = now
	return nil
}

// AddTags normalizes and merges tags into the existing list.
func (d *Document) AddTags(tags []string, now time.Time) error {
	merged, err := normalizeTags(append(append([]string{}, d.Tags...), tags...))
	if err != nil {
		return err
	}
	d.Tags = merged
	d.UpdatedAt = now
	return nil
}

// Publish makes the document active and public. Requires content, a title,
// and a non-errored status.
func (d *Document) Publish(now time.Time) error {
	if strings.TrimSpace(d.RawText) == "" {
		return dErrors.New(dErrors.CodeBusinessRuleViolation, "cannot publish a document without content")
	}
	if strings.TrimSpace(d.Title) == "" {
		return dErrors.New(dErrors.CodeBusinessRuleViolation, "cannot publish a document without a title")
	}
	if d.Status == StatusError {
		return dErrors.New(dErrors.CodeBusinessRuleViolation, "cannot publish a document in error state")
	}
	d.Status = StatusActive
	d.IsPublic = true
	d.UpdatedAt = now
	return nil
}

// Unpublish withdraws the document from public access.
func (d *Document) Unpublish(now time.Time) {
	d.IsPublic = false
	d.UpdatedAt = now
}

// Archive moves the document to the archived state and withdraws it.
func (d *Document) Archive(now time.Time) {
	d.Status = StatusArchived
	d.IsPublic = false
	d.UpdatedAt = now
}

// MarkDeleted soft deletes the document and withdraws it.
func (d *Document) MarkDeleted(now time.Time) {
	d.Status = StatusDeleted
	d.IsPublic = false
	d.UpdatedAt = now
}

// MarkProcessing flags the document as being processed.
func (d *Document) MarkProcessing(now time.Time) {
	d.Status = StatusProcessing
	d.UpdatedAt = now
}

// MarkError flags a failed processing attempt.
func (d *Document) MarkError(now time.Time) {
	d.Status = StatusError
	d.UpdatedAt = now
}

// CanBeAccessedBy allows the owner, admins, and anyone for public active
// documents.
func (d *Document) CanBeAccessedBy(userID id.UserID, role string) bool {
	if d.UserID == userID {
		return true
	}
	if role == "admin" {
		return true
	}
	return d.IsPublic && d.Status == StatusActive
}

// CanBeEditedBy allows admins always, and the owner unless deleted.
func (d *Document) CanBeEditedBy(userID id.UserID, role string) bool {
	if role == "admin" {
		return true
	}
	return d.UserID == userID && d.Status != StatusDeleted
}

// IsSearchable reports whether the document participates in search.
func (d *Document) IsSearchable() bool {
	if d.Status != StatusActive && d.Status != StatusArchived {
		return false
	}
	return strings.TrimSpace(d.RawText) != ""
}

// SizeBytes returns the UTF-8 byte size of the raw text.
func (d *Document) SizeBytes() int {
	return len(d.RawText)
}
