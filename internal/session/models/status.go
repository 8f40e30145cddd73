package models

// Status tracks the session lifecycle.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusArchived, StatusDeleted:
		return true
	}
	return false
}

// Type classifies what a session is used for.
type Type string

const (
	TypeChat             Type = "chat"
	TypeDocumentAnalysis Type = "document_analysis"
	TypeRAGQuery         Type = "rag_query"
	TypeGeneral          Type = "general"
)

func (t Type) Valid() bool {
	switch t {
	case TypeChat, TypeDocumentAnalysis, TypeRAGQuery, TypeGeneral:
		return true
	}
	return false
}
