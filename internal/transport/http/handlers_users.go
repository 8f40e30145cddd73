package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	usermodels "ali/internal/user/models"
	userports "ali/internal/user/ports"
	userservice "ali/internal/user/service"
	id "ali/pkg/domain"
	"ali/pkg/platform/httputil"
	mwauth "ali/pkg/platform/middleware/auth"
)

type userHandler struct {
	users  *userservice.Service
	logger *slog.Logger
}

func newUserHandler(users *userservice.Service, logger *slog.Logger) *userHandler {
	return &userHandler{users: users, logger: logger}
}

type profileUpdateRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Timezone  *string `json:"timezone,omitempty"`
	Language  *string `json:"language,omitempty"`
}

func (h *userHandler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[profileUpdateRequest](w, r, h.logger)
	if !ok {
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), mwauth.GetUserID(r.Context()), usermodels.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		AvatarURL: req.AvatarURL,
		Bio:       req.Bio,
		Phone:     req.Phone,
		Timezone:  req.Timezone,
		Language:  req.Language,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type preferencesUpdateRequest struct {
	Theme                *string `json:"theme,omitempty"`
	NotificationsEnabled *bool   `json:"notifications_enabled,omitempty"`
	EmailNotifications   *bool   `json:"email_notifications,omitempty"`
	AutoSave             *bool   `json:"auto_save,omitempty"`
	DefaultLanguage      *string `json:"default_language,omitempty"`
}

func (h *userHandler) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[preferencesUpdateRequest](w, r, h.logger)
	if !ok {
		return
	}

	user, err := h.users.UpdatePreferences(r.Context(), mwauth.GetUserID(r.Context()), usermodels.PreferencesUpdate{
		Theme:                req.Theme,
		NotificationsEnabled: req.NotificationsEnabled,
		EmailNotifications:   req.EmailNotifications,
		AutoSave:             req.AutoSave,
		DefaultLanguage:      req.DefaultLanguage,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *userHandler) handleOwnPermissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.users.Permissions(r.Context(), mwauth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"permissions": permissions})
}

func (h *userHandler) handleList(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)
	filter := userports.Filter{Limit: params.Limit, Offset: params.Offset}
	if v := r.URL.Query().Get("status"); v != "" {
		status := usermodels.Status(v)
		filter.Status = &status
	}
	if v := r.URL.Query().Get("role"); v != "" {
		role := usermodels.Role(v)
		filter.Role = &role
	}

	users, err := h.users.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *userHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)
	users, err := h.users.Search(r.Context(), r.URL.Query().Get("q"), params.Limit, params.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *userHandler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.Statistics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *userHandler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}

	permissions, err := h.users.Permissions(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"permissions": permissions})
}

type promoteRequest struct {
	Role string `json:"role"`
}

func (h *userHandler) handlePromote(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	req, ok := httputil.Decode[promoteRequest](w, r, h.logger)
	if !ok {
		return
	}

	user, err := h.users.PromoteRole(r.Context(), userID, usermodels.Role(req.Role), mwauth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type deactivateRequest struct {
	Reason string `json:"reason"`
}

func (h *userHandler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	req, ok := httputil.Decode[deactivateRequest](w, r, h.logger)
	if !ok {
		return
	}

	user, err := h.users.Deactivate(r.Context(), userID, mwauth.GetUserID(r.Context()), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
