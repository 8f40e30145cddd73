// Package auth provides the bearer-token middleware guarding authenticated
// routes, plus the context helpers handlers use to read the caller's identity.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "ali/pkg/domain"
	request "ali/pkg/platform/middleware/request"
)

// Claims is the caller identity the middleware places in the request context.
type Claims struct {
	UserID id.UserID
	Role   string
	JTI    string
}

// TokenValidator verifies a bearer token, including its revocation status.
type TokenValidator interface {
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

type contextKeyClaims struct{}

// GetClaims retrieves the authenticated caller from the context.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKeyClaims{}).(*Claims)
	return claims, ok
}

// GetUserID retrieves the authenticated user ID, or zero when unauthenticated.
func GetUserID(ctx context.Context) id.UserID {
	if claims, ok := GetClaims(ctx); ok {
		return claims.UserID
	}
	return 0
}

// GetRole retrieves the authenticated user's role, or "" when unauthenticated.
func GetRole(ctx context.Context) string {
	if claims, ok := GetClaims(ctx); ok {
		return claims.Role
	}
	return ""
}

// WithClaims injects caller identity into a context.
// Useful for handler tests that don't run the full middleware chain.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKeyClaims{}, claims)
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth rejects requests without a valid bearer token and places the
// caller's claims in the context for downstream handlers.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			after, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				ctx := r.Context()
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			ctx := r.Context()
			claims, err := validator.ValidateToken(ctx, after)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
		})
	}
}

// RequireRole rejects authenticated callers who don't carry the given role.
// Must run after RequireAuth.
func RequireRole(role string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if GetRole(ctx) != role {
				logger.WarnContext(ctx, "forbidden - role mismatch",
					"required_role", role,
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "Insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
