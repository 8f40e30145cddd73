// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// domain services, and encode; business rules stay in the services.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authservice "ali/internal/auth/service"
	chatservice "ali/internal/chat/service"
	documentservice "ali/internal/document/service"
	messageservice "ali/internal/message/service"
	sessionservice "ali/internal/session/service"
	userservice "ali/internal/user/service"
	mwauth "ali/pkg/platform/middleware/auth"
	"ali/pkg/platform/middleware/device"
	"ali/pkg/platform/middleware/metadata"
	"ali/pkg/platform/middleware/request"
)

const requestTimeout = 30 * time.Second

// Services groups the domain services the router exposes.
type Services struct {
	Auth      *authservice.Service
	Users     *userservice.Service
	Sessions  *sessionservice.Service
	Messages  *messageservice.Service
	Chat      *chatservice.Service
	Documents *documentservice.Service
}

// tokenValidator adapts the auth service to the middleware contract.
type tokenValidator struct {
	auth *authservice.Service
}

func (v tokenValidator) ValidateToken(ctx context.Context, tokenString string) (*mwauth.Claims, error) {
	claims, err := v.auth.Validate(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	userID, err := claims.Subject()
	if err != nil {
		return nil, err
	}
	return &mwauth.Claims{
		UserID: userID,
		Role:   claims.Role,
		JTI:    claims.ID,
	}, nil
}

// NewRouter wires all endpoints under /v1 with the shared middleware chain.
func NewRouter(services Services, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(request.ID)
	r.Use(request.Recovery(logger))
	r.Use(request.Logger(logger))
	r.Use(metadata.ClientMetadata)
	r.Use(device.Extract)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	requireAuth := mwauth.RequireAuth(tokenValidator{auth: services.Auth}, logger)
	requireAdmin := mwauth.RequireRole("admin", logger)

	authHandler := newAuthHandler(services.Auth, services.Users, logger)
	userHandler := newUserHandler(services.Users, logger)
	sessionHandler := newSessionHandler(services.Sessions, logger)
	messageHandler := newMessageHandler(services.Messages, services.Chat, logger)
	documentHandler := newDocumentHandler(services.Documents, logger)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(withTimeout(requestTimeout))

		v1.Group(func(public chi.Router) {
			public.Post("/auth/register", authHandler.handleRegister)
			public.Post("/auth/login", authHandler.handleLogin)
			public.Post("/auth/password-reset", authHandler.handlePasswordReset)
			public.Post("/auth/verify", authHandler.handleVerifyEmail)
		})

		v1.Group(func(private chi.Router) {
			private.Use(requireAuth)

			private.Post("/auth/logout", authHandler.handleLogout)
			private.Get("/auth/me", authHandler.handleMe)
			private.Post("/auth/password", authHandler.handleChangePassword)

			private.Patch("/me/profile", userHandler.handleUpdateProfile)
			private.Patch("/me/preferences", userHandler.handleUpdatePreferences)
			private.Get("/me/permissions", userHandler.handleOwnPermissions)

			private.Post("/sessions", sessionHandler.handleCreate)
			private.Get("/sessions", sessionHandler.handleList)
			private.Get("/sessions/search", sessionHandler.handleSearch)
			private.Get("/sessions/analytics", sessionHandler.handleAnalytics)
			private.Post("/sessions/bulk", sessionHandler.handleBulk)
			private.Get("/sessions/{sessionID}", sessionHandler.handleGet)
			private.Patch("/sessions/{sessionID}", sessionHandler.handleUpdate)
			private.Delete("/sessions/{sessionID}", sessionHandler.handleDelete)
			private.Post("/sessions/{sessionID}/archive", sessionHandler.handleArchive)
			private.Post("/sessions/{sessionID}/transfer", sessionHandler.handleTransfer)

			private.Post("/sessions/{sessionID}/chat", messageHandler.handleChat)
			private.Get("/sessions/{sessionID}/messages", messageHandler.handleListSession)
			private.Get("/sessions/{sessionID}/context", messageHandler.handleContext)
			private.Get("/sessions/{sessionID}/export", messageHandler.handleExport)
			private.Get("/messages/search", messageHandler.handleSearch)
			private.Get("/messages/analytics", messageHandler.handleAnalytics)
			private.Patch("/messages/{messageID}", messageHandler.handleEdit)
			private.Delete("/messages/{messageID}", messageHandler.handleDelete)
			private.Post("/messages/{messageID}/retry", messageHandler.handleRetry)

			private.Post("/documents", documentHandler.handleCreate)
			private.Get("/documents", documentHandler.handleList)
			private.Get("/documents/search", documentHandler.handleSearch)
			private.Get("/documents/tags", documentHandler.handleTags)
			private.Get("/documents/analytics", documentHandler.handleAnalytics)
			private.Get("/documents/{documentID}", documentHandler.handleGet)
			private.Patch("/documents/{documentID}", documentHandler.handleUpdateMetadata)
			private.Put("/documents/{documentID}/content", documentHandler.handleUpdateContent)
			private.Delete("/documents/{documentID}", documentHandler.handleDelete)
			private.Post("/documents/{documentID}/publish", documentHandler.handlePublish)
			private.Post("/documents/{documentID}/unpublish", documentHandler.handleUnpublish)
			private.Post("/documents/{documentID}/archive", documentHandler.handleArchive)
			private.Post("/documents/{documentID}/categorize", documentHandler.handleCategorize)
			private.Post("/documents/bulk/status", documentHandler.handleBulkStatus)
			private.Post("/documents/bulk/category", documentHandler.handleBulkCategory)

			private.Group(func(admin chi.Router) {
				admin.Use(requireAdmin)

				admin.Get("/users", userHandler.handleList)
				admin.Get("/users/search", userHandler.handleSearch)
				admin.Get("/users/stats", userHandler.handleStatistics)
				admin.Get("/users/{userID}/permissions", userHandler.handlePermissions)
				admin.Post("/users/{userID}/promote", userHandler.handlePromote)
				admin.Post("/users/{userID}/deactivate", userHandler.handleDeactivate)

				admin.Get("/documents/duplicates", documentHandler.handleDuplicates)
			})
		})
	})

	return r
}

func withTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
