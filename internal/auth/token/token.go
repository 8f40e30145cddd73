// Package token issues and validates the signed access tokens the API uses.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "ali/pkg/domain"
	dErrors "ali/pkg/domain-errors"
)

const defaultTokenTTL = time.Hour

// Claims are the JWT claims carried by an access token.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Service signs and validates HS256 access tokens.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
	ttl        time.Duration
	clock      func() time.Time
}

type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ttl = ttl
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func New(signingKey, issuer, audience string, opts ...Option) *Service {
	svc := &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		ttl:        defaultTokenTTL,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// TTL returns the configured token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Generate signs a token for a user. Each token carries a unique jti so it
// can be revoked individually.
func (s *Service) Generate(userID id.UserID, role string) (string, *Claims, error) {
	now := s.clock()
	claims := Claims{
		UserID: userID.String(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeAuthentication, "sign token")
	}
	return signed, &claims, nil
}

// Validate parses and verifies a token string.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithTimeFunc(s.clock))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeAuthentication, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeAuthentication, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeAuthentication, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeAuthentication, "invalid token claims")
	}
	return claims, nil
}

// Subject extracts the user ID from validated claims.
func (c *Claims) Subject() (id.UserID, error) {
	return id.ParseUserID(c.UserID)
}
