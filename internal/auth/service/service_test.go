package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ali/internal/auth/revocation"
	authservice "ali/internal/auth/service"
	"ali/internal/auth/token"
	usermodels "ali/internal/user/models"
	userservice "ali/internal/user/service"
	userstore "ali/internal/user/store"
	dErrors "ali/pkg/domain-errors"
)

type AuthServiceSuite struct {
	suite.Suite

	ctx   context.Context
	now   time.Time
	store *userstore.Memory
	users *userservice.Service
	svc   *authservice.Service
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceSuite))
}

func (s *AuthServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	clock := func() time.Time { return s.now }
	s.store = userstore.NewMemory()

	var err error
	s.users, err = userservice.New(s.store, userservice.WithClock(clock))
	s.Require().NoError(err)

	tokens := token.New("test-signing-key", "ali", "ali-api",
		token.WithTTL(time.Hour),
		token.WithClock(clock),
	)
	revocations := revocation.NewMemory(revocation.WithClock(clock))

	s.svc, err = authservice.New(s.users, tokens, revocations,
		authservice.WithClock(clock),
	)
	s.Require().NoError(err)
}

func (s *AuthServiceSuite) registerActiveUser(email string) *usermodels.User {
	user, err := s.users.Register(s.ctx, userservice.RegisterParams{
		Email:      email,
		Password:   "str0ngPass!",
		Role:       usermodels.RoleEditor,
		AutoVerify: true,
	})
	s.Require().NoError(err)
	return user
}

func (s *AuthServiceSuite) TestLoginIssuesUsableToken() {
	user := s.registerActiveUser("ana@example.com")

	login, err := s.svc.LoginWithPassword(s.ctx, "ana@example.com", "str0ngPass!")
	s.Require().NoError(err)
	s.Equal(user.ID, login.User.ID)
	s.Equal(s.now.Add(time.Hour), login.ExpiresAt)

	claims, err := s.svc.Validate(s.ctx, login.Token)
	s.Require().NoError(err)
	s.Equal("editor", claims.Role)

	subject, err := claims.Subject()
	s.Require().NoError(err)
	s.Equal(user.ID, subject)
}

func (s *AuthServiceSuite) TestLoginRejectsBadCredentials() {
	s.registerActiveUser("ana@example.com")

	_, err := s.svc.LoginWithPassword(s.ctx, "ana@example.com", "wrong")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))

	_, err = s.svc.LoginWithPassword(s.ctx, "nobody@example.com", "whatever")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
}

func (s *AuthServiceSuite) TestLogoutRevokesToken() {
	s.registerActiveUser("ana@example.com")
	login, err := s.svc.LoginWithPassword(s.ctx, "ana@example.com", "str0ngPass!")
	s.Require().NoError(err)

	s.Require().NoError(s.svc.Logout(s.ctx, login.Token))

	_, err = s.svc.Validate(s.ctx, login.Token)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAuthentication))
	s.Contains(err.Error(), "revoked")
}

func (s *AuthServiceSuite) TestLogoutOnlyRevokesThatToken() {
	s.registerActiveUser("ana@example.com")

	first, err := s.svc.LoginWithPassword(s.ctx, "ana@example.com", "str0ngPass!")
	s.Require().NoError(err)
	second, err := s.svc.LoginWithPassword(s.ctx, "ana@example.com", "str0ngPass!")
	s.Require().NoError(err)

	s.Require().NoError(s.svc.Logout(s.ctx, first.Token))

	_, err = s.svc.Validate(s.ctx, second.Token)
	s.Require().NoError(err)
}

func (s *AuthServiceSuite) TestValidateRejectsExpiredToken() {
	s.registerActiveUser("ana@example.com")
	login, err := s.svc.LoginWithPassword(s.ctx, "ana@example.com", "str0ngPass!")
	s.Require().NoError(err)

	s.now = s.now.Add(2 * time.Hour)

	_, err = s.svc.Validate(s.ctx, login.Token)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAuthentication))
}

func (s *AuthServiceSuite) TestCurrentUserRejectsDeactivatedAccount() {
	user := s.registerActiveUser("ana@example.com")

	admin, err := usermodels.NewUser("root@example.com", "str0ngPass!", usermodels.RoleAdmin, s.now)
	s.Require().NoError(err)
	admin.Status = usermodels.StatusActive
	admin.IsVerified = true
	admin, err = s.store.Create(s.ctx, admin)
	s.Require().NoError(err)

	login, err := s.svc.LoginWithPassword(s.ctx, "ana@example.com", "str0ngPass!")
	s.Require().NoError(err)

	claims, err := s.svc.Validate(s.ctx, login.Token)
	s.Require().NoError(err)

	_, err = s.users.Deactivate(s.ctx, user.ID, admin.ID, "offboarding")
	s.Require().NoError(err)

	_, err = s.svc.CurrentUser(s.ctx, claims)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUserNotActive))
}
