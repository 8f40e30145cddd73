package httptransport

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	authservice "ali/internal/auth/service"
	usermodels "ali/internal/user/models"
	userservice "ali/internal/user/service"
	id "ali/pkg/domain"
	dErrors "ali/pkg/domain-errors"
	"ali/pkg/platform/httputil"
	mwauth "ali/pkg/platform/middleware/auth"
	"ali/pkg/platform/middleware/device"
	"ali/pkg/platform/middleware/metadata"
)

type authHandler struct {
	auth   *authservice.Service
	users  *userservice.Service
	logger *slog.Logger
}

func newAuthHandler(auth *authservice.Service, users *userservice.Service, logger *slog.Logger) *authHandler {
	return &authHandler{auth: auth, users: users, logger: logger}
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role,omitempty"`
	InvitedBy *int64 `json:"invited_by,omitempty"`
}

func (h *authHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[registerRequest](w, r, h.logger)
	if !ok {
		return
	}

	params := userservice.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Role:     usermodels.Role(req.Role),
	}
	if req.InvitedBy != nil {
		inviter := id.UserID(*req.InvitedBy)
		params.InvitedBy = &inviter
	}

	user, err := h.users.Register(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	User      *usermodels.User `json:"user"`
}

func (h *authHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[loginRequest](w, r, h.logger)
	if !ok {
		return
	}

	login, err := h.auth.LoginWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	attrs := []any{"user_id", login.User.ID, "client_ip", metadata.GetClientIP(r.Context())}
	if info, ok := device.GetInfo(r.Context()); ok {
		attrs = append(attrs, "device", info.Label())
	}
	h.logger.InfoContext(r.Context(), "login succeeded", attrs...)

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     login.Token,
		ExpiresAt: login.ExpiresAt,
		User:      login.User,
	})
}

func (h *authHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	tokenString, ok := bearerToken(r)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeAuthentication, "missing bearer token"))
		return
	}
	if err := h.auth.Logout(r.Context(), tokenString); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *authHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), mwauth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *authHandler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[changePasswordRequest](w, r, h.logger)
	if !ok {
		return
	}

	userID := mwauth.GetUserID(r.Context())
	if err := h.users.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

// handlePasswordReset always answers 202 so the endpoint cannot be used to
// probe which emails have accounts. The temporary password is delivered out
// of band.
func (h *authHandler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[passwordResetRequest](w, r, h.logger)
	if !ok {
		return
	}

	if _, _, err := h.users.ResetPassword(r.Context(), req.Email); err != nil {
		h.logger.WarnContext(r.Context(), "password reset failed", "error", err)
	}
	w.WriteHeader(http.StatusAccepted)
}

type verifyEmailRequest struct {
	UserID int64 `json:"user_id"`
}

// handleVerifyEmail confirms an account's email. The verification link carries
// the user ID; pending accounts become active on confirmation.
func (h *authHandler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[verifyEmailRequest](w, r, h.logger)
	if !ok {
		return
	}

	user, err := h.users.VerifyEmail(r.Context(), id.UserID(req.UserID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func bearerToken(r *http.Request) (string, bool) {
	return strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
}
