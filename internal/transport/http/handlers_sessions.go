package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	sessionmodels "ali/internal/session/models"
	sessionports "ali/internal/session/ports"
	sessionservice "ali/internal/session/service"
	id "ali/pkg/domain"
	"ali/pkg/platform/httputil"
	mwauth "ali/pkg/platform/middleware/auth"
)

type sessionHandler struct {
	sessions *sessionservice.Service
	logger   *slog.Logger
}

func newSessionHandler(sessions *sessionservice.Service, logger *slog.Logger) *sessionHandler {
	return &sessionHandler{sessions: sessions, logger: logger}
}

func sessionIDParam(r *http.Request) (id.SessionID, error) {
	return id.ParseSessionID(chi.URLParam(r, "sessionID"))
}

type createSessionRequest struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

func (h *sessionHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[createSessionRequest](w, r, h.logger)
	if !ok {
		return
	}

	session, err := h.sessions.Create(r.Context(), mwauth.GetUserID(r.Context()), req.Name, sessionmodels.Type(req.Type))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *sessionHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	session, err := h.sessions.Get(r.Context(), sessionID, mwauth.GetUserID(r.Context()), false)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleList returns the caller's own sessions, optionally filtered.
func (h *sessionHandler) handleList(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)
	userID := mwauth.GetUserID(r.Context())
	filter := sessionports.Filter{UserID: &userID, Limit: params.Limit, Offset: params.Offset}
	if v := r.URL.Query().Get("status"); v != "" {
		status := sessionmodels.Status(v)
		filter.Status = &status
	}
	if v := r.URL.Query().Get("type"); v != "" {
		sessionType := sessionmodels.Type(v)
		filter.Type = &sessionType
	}

	sessions, err := h.sessions.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *sessionHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)
	ctx := r.Context()

	// Non-admins only search their own sessions.
	var scope *id.UserID
	if mwauth.GetRole(ctx) != "admin" {
		userID := mwauth.GetUserID(ctx)
		scope = &userID
	}

	sessions, err := h.sessions.Search(ctx, r.URL.Query().Get("q"), scope, params.Limit, params.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

type updateSessionRequest struct {
	Name          *string  `json:"name,omitempty"`
	ModelUsed     *string  `json:"model_used,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxTokens     *int     `json:"max_tokens,omitempty"`
	SystemPrompt  *string  `json:"system_prompt,omitempty"`
	ContextWindow *int     `json:"context_window,omitempty"`
	Language      *string  `json:"language,omitempty"`
}

func (h *sessionHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	req, ok := httputil.Decode[updateSessionRequest](w, r, h.logger)
	if !ok {
		return
	}

	ctx := r.Context()
	userID := mwauth.GetUserID(ctx)

	session := (*sessionmodels.Session)(nil)
	if req.Name != nil {
		session, err = h.sessions.Rename(ctx, sessionID, userID, *req.Name)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	update := sessionmodels.MetadataUpdate{
		ModelUsed:     req.ModelUsed,
		Temperature:   req.Temperature,
		MaxTokens:     req.MaxTokens,
		SystemPrompt:  req.SystemPrompt,
		ContextWindow: req.ContextWindow,
		Language:      req.Language,
	}
	if update != (sessionmodels.MetadataUpdate{}) {
		session, err = h.sessions.UpdateMetadata(ctx, sessionID, userID, update)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	if session == nil {
		session, err = h.sessions.Get(ctx, sessionID, userID, false)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *sessionHandler) handleArchive(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	session, err := h.sessions.Archive(r.Context(), sessionID, mwauth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *sessionHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.sessions.Delete(r.Context(), sessionID, mwauth.GetUserID(r.Context()), false); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transferRequest struct {
	NewOwnerID int64 `json:"new_owner_id"`
}

func (h *sessionHandler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	req, ok := httputil.Decode[transferRequest](w, r, h.logger)
	if !ok {
		return
	}

	session, err := h.sessions.TransferOwnership(r.Context(), sessionID, id.UserID(req.NewOwnerID), mwauth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type bulkSessionRequest struct {
	SessionIDs []id.SessionID `json:"session_ids"`
	Operation  string         `json:"operation"`
}

func (h *sessionHandler) handleBulk(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[bulkSessionRequest](w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.sessions.Bulk(r.Context(), req.SessionIDs, sessionservice.BulkOperation(req.Operation), mwauth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *sessionHandler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	from, to := parseTimeRange(r)

	// Admins see system-wide analytics; everyone else their own.
	var scope *id.UserID
	if mwauth.GetRole(ctx) != "admin" {
		userID := mwauth.GetUserID(ctx)
		scope = &userID
	}

	analytics, err := h.sessions.GetAnalytics(ctx, scope, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}
