package testutil

import (
	"net/http"

	id "ali/pkg/domain"
	authmw "ali/pkg/platform/middleware/auth"
)

// WithClaims attaches auth claims to the request context, simulating what the
// auth middleware does for authenticated requests. Useful for testing handlers
// directly without going through a login round-trip.
func WithClaims(req *http.Request, userID id.UserID, role string) *http.Request {
	ctx := authmw.WithClaims(req.Context(), &authmw.Claims{UserID: userID, Role: role})
	return req.WithContext(ctx)
}
