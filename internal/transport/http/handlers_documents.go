package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	documentmodels "ali/internal/document/models"
	documentports "ali/internal/document/ports"
	documentservice "ali/internal/document/service"
	id "ali/pkg/domain"
	"ali/pkg/platform/httputil"
	mwauth "ali/pkg/platform/middleware/auth"
)

type documentHandler struct {
	documents *documentservice.Service
	logger    *slog.Logger
}

func newDocumentHandler(documents *documentservice.Service, logger *slog.Logger) *documentHandler {
	return &documentHandler{documents: documents, logger: logger}
}

func documentIDParam(r *http.Request) (id.DocumentID, error) {
	return id.ParseDocumentID(chi.URLParam(r, "documentID"))
}

type createDocumentRequest struct {
	Title       string   `json:"title"`
	RawText     string   `json:"raw_text"`
	Type        string   `json:"type"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	SourceURL   string   `json:"source_url,omitempty"`
	FileName    string   `json:"file_name,omitempty"`
}

func (h *documentHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[createDocumentRequest](w, r, h.logger)
	if !ok {
		return
	}

	document, err := h.documents.Create(r.Context(), documentservice.CreateParams{
		UserID:      mwauth.GetUserID(r.Context()),
		Title:       req.Title,
		RawText:     req.RawText,
		Type:        documentmodels.Type(req.Type),
		Category:    documentmodels.Category(req.Category),
		Description: req.Description,
		Tags:        req.Tags,
		SourceURL:   req.SourceURL,
		FileName:    req.FileName,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, document)
}

func (h *documentHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	documentID, err := documentIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	document, err := h.documents.Get(r.Context(), documentID, mwauth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, document)
}

// handleList returns the caller's own documents, optionally filtered.
func (h *documentHandler) handleList(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)
	userID := mwauth.GetUserID(r.Context())
	filter := documentports.Filter{UserID: &userID, Limit: params.Limit, Offset: params.Offset}
	if v := r.URL.Query().Get("status"); v != "" {
		status := documentmodels.Status(v)
		filter.Status = &status
	}
	if v := r.URL.Query().Get("type"); v != "" {
		documentType := documentmodels.Type(v)
		filter.Type = &documentType
	}
	if v := r.URL.Query().Get("category"); v != "" {
		category := documentmodels.Category(v)
		filter.Category = &category
	}

	documents, err := h.documents.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": documents})
}

func (h *documentHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)
	documents, err := h.documents.Search(r.Context(), r.URL.Query().Get("q"), mwauth.GetUserID(r.Context()), params.Limit, params.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": documents})
}

type updateDocumentRequest struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func (h *documentHandler) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	documentID, err := documentIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	req, ok := httputil.Decode[updateDocumentRequest](w, r, h.logger)
	if !ok {
		return
	}

	document, err := h.documents.UpdateMetadata(r.Context(), documentID, mwauth.GetUserID(r.Context()), documentservice.MetadataUpdate{
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, document)
}

type updateContentRequest struct {
	RawText string `json:"raw_text"`
}

func (h *documentHandler) handleUpdateContent(w http.ResponseWriter, r *http.Request) {
	documentID, err := documentIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	req, ok := httputil.Decode[updateContentRequest](w, r, h.logger)
	if !ok {
		return
	}

	document, err := h.documents.UpdateContent(r.Context(), documentID, mwauth.GetUserID(r.Context()), req.RawText)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, document)
}

func (h *documentHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	documentID, err := documentIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.documents.Delete(r.Context(), documentID, mwauth.GetUserID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *documentHandler) handlePublish(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.documents.Publish)
}

func (h *documentHandler) handleUnpublish(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.documents.Unpublish)
}

func (h *documentHandler) handleArchive(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.documents.Archive)
}

func (h *documentHandler) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, documentID id.DocumentID, userID id.UserID) (*documentmodels.Document, error)) {
	documentID, err := documentIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	document, err := op(r.Context(), documentID, mwauth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, document)
}

type categorizeRequest struct {
	Category string `json:"category"`
}

func (h *documentHandler) handleCategorize(w http.ResponseWriter, r *http.Request) {
	documentID, err := documentIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	req, ok := httputil.Decode[categorizeRequest](w, r, h.logger)
	if !ok {
		return
	}

	document, err := h.documents.Categorize(r.Context(), documentID, mwauth.GetUserID(r.Context()), documentmodels.Category(req.Category))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, document)
}

func (h *documentHandler) handleTags(w http.ResponseWriter, r *http.Request) {
	minUsage := 1
	if v := r.URL.Query().Get("min_usage"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			minUsage = n
		}
	}

	tags, err := h.documents.Tags(r.Context(), minUsage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (h *documentHandler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var scope *id.UserID
	if mwauth.GetRole(ctx) != "admin" {
		userID := mwauth.GetUserID(ctx)
		scope = &userID
	}

	analytics, err := h.documents.GetAnalytics(ctx, scope)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (h *documentHandler) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	groups, err := h.documents.DetectDuplicates(r.Context(), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"duplicates": groups})
}

type bulkStatusRequest struct {
	DocumentIDs []id.DocumentID `json:"document_ids"`
	Status      string          `json:"status"`
}

func (h *documentHandler) handleBulkStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[bulkStatusRequest](w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.documents.BulkUpdateStatus(r.Context(), req.DocumentIDs, documentmodels.Status(req.Status), mwauth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type bulkCategoryRequest struct {
	DocumentIDs []id.DocumentID `json:"document_ids"`
	Category    string          `json:"category"`
}

func (h *documentHandler) handleBulkCategory(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[bulkCategoryRequest](w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.documents.BulkUpdateCategory(r.Context(), req.DocumentIDs, documentmodels.Category(req.Category), mwauth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
