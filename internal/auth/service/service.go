// Package service ties credential checks, token issuance, and revocation
// into the login/logout flow the API exposes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ali/internal/auth/revocation"
	"ali/internal/auth/token"
	usermodels "ali/internal/user/models"
	id "ali/pkg/domain"
	dErrors "ali/pkg/domain-errors"
	"ali/pkg/platform/audit"
)

// Authenticator verifies credentials. Satisfied by the user service.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*usermodels.User, error)
	Get(ctx context.Context, userID id.UserID) (*usermodels.User, error)
}

type AuditPublisher = audit.Publisher

// Login is the result of a successful authentication.
type Login struct {
	Token     string
	ExpiresAt time.Time
	User      *usermodels.User
}

type Service struct {
	users          Authenticator
	tokens         *token.Service
	revocations    revocation.List
	auditPublisher AuditPublisher
	logger         *slog.Logger
	clock          func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func New(users Authenticator, tokens *token.Service, revocations revocation.List, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, fmt.Errorf("user authenticator is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}
	if revocations == nil {
		return nil, fmt.Errorf("revocation list is required")
	}

	svc := &Service{
		users:       users,
		tokens:      tokens,
		revocations: revocations,
		logger:      slog.Default(),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// LoginWithPassword authenticates a user and issues an access token.
func (s *Service) LoginWithPassword(ctx context.Context, email, password string) (*Login, error) {
	user, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	signed, claims, err := s.tokens.Generate(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Category:  audit.EventUserLogin.Category(),
		Timestamp: s.clock(),
		UserID:    user.ID,
		Subject:   user.Email,
		Action:    string(audit.EventUserLogin),
	},
		"user_id", user.ID,
		"jti", claims.ID,
	)

	return &Login{
		Token:     signed,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
	}, nil
}

// Logout revokes the presented token for the remainder of its lifetime.
// A token that fails validation is rejected rather than silently ignored.
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.tokens.Validate(tokenString)
	if err != nil {
		return err
	}

	ttl := claims.ExpiresAt.Time.Sub(s.clock())
	if err := s.revocations.Revoke(ctx, claims.ID, ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeRepository, "revoke token")
	}

	userID, _ := claims.Subject()
	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Category:  audit.EventUserLogout.Category(),
		Timestamp: s.clock(),
		UserID:    userID,
		Subject:   claims.ID,
		Action:    string(audit.EventUserLogout),
	},
		"user_id", userID,
		"jti", claims.ID,
	)
	return nil
}

// Validate verifies a token's signature, expiry, and revocation status.
func (s *Service) Validate(ctx context.Context, tokenString string) (*token.Claims, error) {
	claims, err := s.tokens.Validate(tokenString)
	if err != nil {
		return nil, err
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "check token revocation")
	}
	if revoked {
		return nil, dErrors.New(dErrors.CodeAuthentication, "token has been revoked")
	}
	return claims, nil
}

// CurrentUser loads the user behind validated claims, rejecting accounts
// that were deactivated after the token was issued.
func (s *Service) CurrentUser(ctx context.Context, claims *token.Claims) (*usermodels.User, error) {
	userID, err := claims.Subject()
	if err != nil {
		return nil, dErrors.New(dErrors.CodeAuthentication, "invalid token subject")
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive || user.Status != usermodels.StatusActive {
		return nil, dErrors.New(dErrors.CodeUserNotActive, "account is not active")
	}
	return user, nil
}
