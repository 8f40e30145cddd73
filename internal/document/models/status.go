package models

// Status tracks the document lifecycle, including ingestion states.
type Status string

const (
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusDraft      Status = "draft"
	StatusArchived   Status = "archived"
	StatusDeleted    Status = "deleted"
	StatusProcessing Status = "processing"
	StatusError      Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusDraft, StatusArchived, StatusDeleted, StatusProcessing, StatusError:
		return true
	}
	return false
}

// Type describes how a document entered the system and its source format.
type Type string

const (
	TypePDF     Type = "pdf"
	TypeDOCX    Type = "docx"
	TypeTXT     Type = "txt"
	TypeHTML    Type = "html"
	TypeUpload  Type = "upload"
	TypeScraped Type = "scraped"
	TypeManual  Type = "manual"
)

func (t Type) Valid() bool {
	switch t {
	case TypePDF, TypeDOCX, TypeTXT, TypeHTML, TypeUpload, TypeScraped, TypeManual:
		return true
	}
	return false
}

// Category classifies Brazilian administrative document kinds.
type Category string

const (
	CategoryLei                Category = "lei"
	CategoryDecreto            Category = "decreto"
	CategoryPortaria           Category = "portaria"
	CategoryResolucao          Category = "resolucao"
	CategoryInstrucaoNormativa Category = "instrucao_normativa"
	CategoryCircular           Category = "circular"
	CategoryOficio             Category = "oficio"
	CategoryMemorando          Category = "memorando"
	CategoryParecer            Category = "parecer"
	CategoryRelatorio          Category = "relatorio"
	CategoryAta                Category = "ata"
	CategoryEdital             Category = "edital"
	CategoryContrato           Category = "contrato"
	CategoryConvenio           Category = "convenio"
	CategoryOther              Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryLei, CategoryDecreto, CategoryPortaria, CategoryResolucao,
		CategoryInstrucaoNormativa, CategoryCircular, CategoryOficio,
		CategoryMemorando, CategoryParecer, CategoryRelatorio, CategoryAta,
		CategoryEdital, CategoryContrato, CategoryConvenio, CategoryOther:
		return true
	}
	return false
}

// categoryTags maps categories to their automatic tags.
var categoryTags = map[Category][]string{
	CategoryLei:       {"legislação", "norma", "jurídico"},
	CategoryDecreto:   {"decreto", "regulamento", "executivo"},
	CategoryContrato:  {"contrato", "acordo", "negócio"},
	CategoryRelatorio: {"relatório", "análise", "dados"},
	CategoryAta:       {"ata", "reunião", "registro"},
}

// AutoTags returns the tags implied by a category.
func (c Category) AutoTags() []string {
	if tags, ok := categoryTags[c]; ok {
		return tags
	}
	return []string{"documento"}
}
