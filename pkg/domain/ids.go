// Package domain provides typed identifiers shared across features.
// Distinct types prevent cross-entity ID mixups at compile time.
package domain

import (
	"strconv"

	"github.com/google/uuid"

	dErrors "ali/pkg/domain-errors"
)

// UserID identifies a user. Values are assigned by the store on creation;
// zero means "not yet persisted".
type UserID int64

// ParseUserID parses a decimal user ID. Zero and negative values are rejected.
func ParseUserID(s string) (UserID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, dErrors.Newf(dErrors.CodeValidation, "invalid user id %q", s)
	}
	return UserID(n), nil
}

func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

// SessionID identifies a chat session.
type SessionID uuid.UUID

// MessageID identifies a message within a session.
type MessageID uuid.UUID

// DocumentID identifies a document.
type DocumentID uuid.UUID

func NewSessionID() SessionID   { return SessionID(uuid.New()) }
func NewMessageID() MessageID   { return MessageID(uuid.New()) }
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s)
	return SessionID(u), err
}

func ParseMessageID(s string) (MessageID, error) {
	u, err := parseUUID(s)
	return MessageID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s)
	return DocumentID(u), err
}

func (id SessionID) String() string  { return uuid.UUID(id).String() }
func (id MessageID) String() string  { return uuid.UUID(id).String() }
func (id DocumentID) String() string { return uuid.UUID(id).String() }

// The UUID-backed IDs marshal as canonical UUID strings in JSON and text.

func (id SessionID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id MessageID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id DocumentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *SessionID) UnmarshalText(b []byte) error {
	parsed, err := ParseSessionID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *MessageID) UnmarshalText(b []byte) error {
	parsed, err := ParseMessageID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *DocumentID) UnmarshalText(b []byte) error {
	parsed, err := ParseDocumentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id SessionID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id MessageID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// parseUUID enforces the shared invariant: IDs must be valid, non-empty,
// non-nil UUIDs. Rejecting uuid.Nil here keeps "missing ID" from silently
// becoming a lookupable key.
func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "empty id")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "invalid id %q", s)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "nil id")
	}
	return u, nil
}
