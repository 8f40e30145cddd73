package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	chatservice "ali/internal/chat/service"
	messageports "ali/internal/message/ports"
	messageservice "ali/internal/message/service"
	id "ali/pkg/domain"
	"ali/pkg/platform/httputil"
	mwauth "ali/pkg/platform/middleware/auth"
	"ali/pkg/platform/middleware/device"
)

type messageHandler struct {
	messages *messageservice.Service
	chat     *chatservice.Service
	logger   *slog.Logger
}

func newMessageHandler(messages *messageservice.Service, chat *chatservice.Service, logger *slog.Logger) *messageHandler {
	return &messageHandler{messages: messages, chat: chat, logger: logger}
}

func messageIDParam(r *http.Request) (id.MessageID, error) {
	return id.ParseMessageID(chi.URLParam(r, "messageID"))
}

type chatRequest struct {
	Content string `json:"content"`
}

func (h *messageHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	req, ok := httputil.Decode[chatRequest](w, r, h.logger)
	if !ok {
		return
	}

	ctx := r.Context()
	if info, ok := device.GetInfo(ctx); ok {
		h.logger.DebugContext(ctx, "chat request", "session_id", sessionID, "device", info.Label())
	}

	turn, err := h.chat.Send(ctx, sessionID, mwauth.GetUserID(ctx), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user_message":      turn.UserMessage,
		"assistant_message": turn.AssistantMessage,
	})
}

func (h *messageHandler) handleListSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	params := parseListParams(r)
	filter := messageports.Filter{Limit: params.Limit, Offset: params.Offset}
	if r.URL.Query().Get("order") == "desc" {
		filter.NewestFirst = true
	}

	messages, err := h.messages.ListSession(r.Context(), sessionID, mwauth.GetUserID(r.Context()), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *messageHandler) handleContext(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	size := 10
	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			size = n
		}
	}

	var before *id.MessageID
	if v := r.URL.Query().Get("before"); v != "" {
		messageID, err := id.ParseMessageID(v)
		if err != nil {
			writeError(w, err)
			return
		}
		before = &messageID
	}

	messages, err := h.messages.ConversationContext(r.Context(), sessionID, mwauth.GetUserID(r.Context()), before, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *messageHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := h.messages.ExportSession(r.Context(), sessionID, mwauth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": entries})
}

type editMessageRequest struct {
	Content string `json:"content"`
}

func (h *messageHandler) handleEdit(w http.ResponseWriter, r *http.Request) {
	messageID, err := messageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	req, ok := httputil.Decode[editMessageRequest](w, r, h.logger)
	if !ok {
		return
	}

	message, err := h.messages.Edit(r.Context(), messageID, mwauth.GetUserID(r.Context()), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, message)
}

func (h *messageHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	messageID, err := messageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.messages.Delete(r.Context(), messageID, mwauth.GetUserID(r.Context()), false); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *messageHandler) handleRetry(w http.ResponseWriter, r *http.Request) {
	messageID, err := messageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	message, err := h.messages.Retry(r.Context(), messageID, mwauth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, message)
}

func (h *messageHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	var sessionID *id.SessionID
	if v := r.URL.Query().Get("session_id"); v != "" {
		parsed, err := id.ParseSessionID(v)
		if err != nil {
			writeError(w, err)
			return
		}
		sessionID = &parsed
	}

	messages, err := h.messages.Search(r.Context(), r.URL.Query().Get("q"), mwauth.GetUserID(r.Context()), sessionID, params.Limit, params.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *messageHandler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	from, to := parseTimeRange(r)

	var userScope *id.UserID
	if mwauth.GetRole(ctx) != "admin" {
		userID := mwauth.GetUserID(ctx)
		userScope = &userID
	}

	var sessionScope *id.SessionID
	if v := r.URL.Query().Get("session_id"); v != "" {
		parsed, err := id.ParseSessionID(v)
		if err != nil {
			writeError(w, err)
			return
		}
		sessionScope = &parsed
	}

	analytics, err := h.messages.GetAnalytics(ctx, userScope, sessionScope, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}
