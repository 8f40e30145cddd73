package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ali/internal/user/models"
	"ali/internal/user/service"
	"ali/internal/user/store"
	id "ali/pkg/domain"
	dErrors "ali/pkg/domain-errors"
)

type UserServiceSuite struct {
	suite.Suite

	ctx   context.Context
	store *store.Memory
	svc   *service.Service
	now   time.Time
}

func TestUserServiceSuite(t *testing.T) {
	suite.Run(t, new(UserServiceSuite))
}

func (s *UserServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemory()
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	svc, err := service.New(s.store, service.WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)
	s.svc = svc
}

func (s *UserServiceSuite) register(email string, role models.Role) *models.User {
	user, err := s.svc.Register(s.ctx, service.RegisterParams{
		Email:      email,
		Password:   "password123",
		Role:       role,
		AutoVerify: true,
	})
	s.Require().NoError(err)
	return user
}

func (s *UserServiceSuite) registerAdmin(email string) *models.User {
	admin, err := models.NewUser(email, "password123", models.RoleAdmin, s.now)
	s.Require().NoError(err)
	admin.Status = models.StatusActive
	admin.IsVerified = true

	created, err := s.store.Create(s.ctx, admin)
	s.Require().NoError(err)
	return created
}

func (s *UserServiceSuite) TestRegister_Defaults() {
	user, err := s.svc.Register(s.ctx, service.RegisterParams{
		Email:    "  New.User@Example.COM ",
		Password: "password123",
	})
	s.Require().NoError(err)

	s.Equal("new.user@example.com", user.Email)
	s.Equal(models.RoleViewer, user.Role)
	s.Equal(models.StatusPending, user.Status)
	s.False(user.IsVerified)
	s.True(user.IsActive)
	s.NotZero(user.ID)
	s.Equal("New", user.Profile.FirstName)
	s.Equal("User", user.Profile.LastName)
}

func (s *UserServiceSuite) TestRegister_Validation() {
	_, err := s.svc.Register(s.ctx, service.RegisterParams{Email: "not-an-email", Password: "password123"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.svc.Register(s.ctx, service.RegisterParams{Email: "ok@example.com", Password: "short"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *UserServiceSuite) TestRegister_DuplicateEmail() {
	s.register("taken@example.com", models.RoleViewer)

	_, err := s.svc.Register(s.ctx, service.RegisterParams{
		Email:    "TAKEN@example.com",
		Password: "password123",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUserAlreadyExists))
}

func (s *UserServiceSuite) TestRegister_AdminRequiresAdminInvitation() {
	_, err := s.svc.Register(s.ctx, service.RegisterParams{
		Email:    "boss@example.com",
		Password: "password123",
		Role:     models.RoleAdmin,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBusinessRuleViolation))

	editor := s.register("editor@example.com", models.RoleEditor)
	_, err = s.svc.Register(s.ctx, service.RegisterParams{
		Email:     "boss2@example.com",
		Password:  "password123",
		Role:      models.RoleAdmin,
		InvitedBy: &editor.ID,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBusinessRuleViolation))

	admin := s.registerAdmin("root@example.com")
	promoted, err := s.svc.Register(s.ctx, service.RegisterParams{
		Email:     "boss3@example.com",
		Password:  "password123",
		Role:      models.RoleAdmin,
		InvitedBy: &admin.ID,
	})
	s.Require().NoError(err)
	s.Equal(models.RoleAdmin, promoted.Role)
}

func (s *UserServiceSuite) TestAuthenticate() {
	user := s.register("login@example.com", models.RoleViewer)

	authed, err := s.svc.Authenticate(s.ctx, "login@example.com", "password123")
	s.Require().NoError(err)
	s.Equal(user.ID, authed.ID)
	s.Equal(1, authed.LoginCount)
	s.Require().NotNil(authed.LastLogin)
	s.Equal(s.now, *authed.LastLogin)
}

func (s *UserServiceSuite) TestAuthenticate_IndistinguishableFailures() {
	s.register("exists@example.com", models.RoleViewer)

	_, badPassword := s.svc.Authenticate(s.ctx, "exists@example.com", "wrong-password")
	s.Require().Error(badPassword)
	s.True(dErrors.HasCode(badPassword, dErrors.CodeInvalidCredentials))

	_, noUser := s.svc.Authenticate(s.ctx, "ghost@example.com", "password123")
	s.Require().Error(noUser)
	s.True(dErrors.HasCode(noUser, dErrors.CodeInvalidCredentials))

	s.Equal(badPassword.Error(), noUser.Error())
}

func (s *UserServiceSuite) TestAuthenticate_PendingUserRejected() {
	_, err := s.svc.Register(s.ctx, service.RegisterParams{
		Email:    "pending@example.com",
		Password: "password123",
	})
	s.Require().NoError(err)

	_, err = s.svc.Authenticate(s.ctx, "pending@example.com", "password123")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUserNotActive))
}

func (s *UserServiceSuite) TestVerifyEmail_ActivatesPendingAccount() {
	user, err := s.svc.Register(s.ctx, service.RegisterParams{
		Email:    "verify@example.com",
		Password: "password123",
	})
	s.Require().NoError(err)

	verified, err := s.svc.VerifyEmail(s.ctx, user.ID)
	s.Require().NoError(err)
	s.True(verified.IsVerified)
	s.Equal(models.StatusActive, verified.Status)

	_, err = s.svc.Authenticate(s.ctx, "verify@example.com", "password123")
	s.NoError(err)
}

func (s *UserServiceSuite) TestChangePassword() {
	user := s.register("changer@example.com", models.RoleViewer)

	err := s.svc.ChangePassword(s.ctx, user.ID, "wrong", "newpassword1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))

	s.Require().NoError(s.svc.ChangePassword(s.ctx, user.ID, "password123", "newpassword1"))

	_, err = s.svc.Authenticate(s.ctx, "changer@example.com", "newpassword1")
	s.NoError(err)
}

func (s *UserServiceSuite) TestResetPassword() {
	s.register("forgot@example.com", models.RoleViewer)

	_, tempPassword, err := s.svc.ResetPassword(s.ctx, "forgot@example.com")
	s.Require().NoError(err)
	s.Len(tempPassword, 12)

	_, err = s.svc.Authenticate(s.ctx, "forgot@example.com", tempPassword)
	s.NoError(err)

	_, err = s.svc.Authenticate(s.ctx, "forgot@example.com", "password123")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
}

func (s *UserServiceSuite) TestPromoteRole() {
	admin := s.registerAdmin("root2@example.com")
	viewer := s.register("climber@example.com", models.RoleViewer)
	editor := s.register("peer@example.com", models.RoleEditor)

	_, err := s.svc.PromoteRole(s.ctx, viewer.ID, models.RoleEditor, editor.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientPermissions))

	_, err = s.svc.PromoteRole(s.ctx, editor.ID, models.RoleViewer, admin.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBusinessRuleViolation))

	promoted, err := s.svc.PromoteRole(s.ctx, viewer.ID, models.RoleEditor, admin.ID)
	s.Require().NoError(err)
	s.Equal(models.RoleEditor, promoted.Role)
}

func (s *UserServiceSuite) TestDeactivate_Rules() {
	admin := s.registerAdmin("root3@example.com")
	otherAdmin := s.registerAdmin("root4@example.com")
	viewer := s.register("victim@example.com", models.RoleViewer)
	bystander := s.register("bystander@example.com", models.RoleViewer)

	_, err := s.svc.Deactivate(s.ctx, viewer.ID, bystander.ID, "spite")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientPermissions))

	_, err = s.svc.Deactivate(s.ctx, otherAdmin.ID, admin.ID, "coup")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBusinessRuleViolation))

	deactivated, err := s.svc.Deactivate(s.ctx, viewer.ID, admin.ID, "policy")
	s.Require().NoError(err)
	s.False(deactivated.IsActive)
	s.Equal(models.StatusInactive, deactivated.Status)

	self, err := s.svc.Deactivate(s.ctx, bystander.ID, bystander.ID, "leaving")
	s.Require().NoError(err)
	s.False(self.IsActive)
}

func (s *UserServiceSuite) TestPermissions_RolePlusExplicit() {
	editor := s.register("perms@example.com", models.RoleEditor)
	editor.AddPermission("manage_sessions", s.now)
	_, err := s.store.Update(s.ctx, editor)
	s.Require().NoError(err)

	permissions, err := s.svc.Permissions(s.ctx, editor.ID)
	s.Require().NoError(err)

	s.Contains(permissions, "chat")
	s.Contains(permissions, "export")
	s.Contains(permissions, "manage_sessions")
	s.NotContains(permissions, "manage_users")
}

func (s *UserServiceSuite) TestValidateAction() {
	admin := s.registerAdmin("root5@example.com")
	guest := s.register("guest@example.com", models.RoleGuest)

	can, err := s.svc.ValidateAction(s.ctx, admin.ID, "anything_at_all")
	s.Require().NoError(err)
	s.True(can)

	can, err = s.svc.ValidateAction(s.ctx, guest.ID, "read")
	s.Require().NoError(err)
	s.True(can)

	can, err = s.svc.ValidateAction(s.ctx, guest.ID, "upload")
	s.Require().NoError(err)
	s.False(can)
}

func (s *UserServiceSuite) TestCleanupInactiveUsers() {
	stale, err := s.svc.Register(s.ctx, service.RegisterParams{
		Email:    "stale@example.com",
		Password: "password123",
	})
	s.Require().NoError(err)

	s.now = s.now.AddDate(0, 0, 91)
	fresh, err := s.svc.Register(s.ctx, service.RegisterParams{
		Email:    "fresh@example.com",
		Password: "password123",
	})
	s.Require().NoError(err)

	count, err := s.svc.CleanupInactiveUsers(s.ctx, 90)
	s.Require().NoError(err)
	s.Equal(1, count)

	deactivated, err := s.store.FindByID(s.ctx, stale.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusInactive, deactivated.Status)

	untouched, err := s.store.FindByID(s.ctx, fresh.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, untouched.Status)
}

func (s *UserServiceSuite) TestStatistics() {
	s.registerAdmin("root6@example.com")
	s.register("v1@example.com", models.RoleViewer)
	s.register("v2@example.com", models.RoleViewer)

	stats, err := s.svc.Statistics(s.ctx)
	s.Require().NoError(err)

	s.Equal(3, stats.TotalUsers)
	s.Equal(2, stats.ByRole[models.RoleViewer])
	s.Equal(1, stats.ByRole[models.RoleAdmin])
	s.Equal(3, stats.VerifiedUsers)
}

func (s *UserServiceSuite) TestUpdateProfileAndPreferences() {
	user := s.register("profile@example.com", models.RoleViewer)

	first := "Maria"
	timezone := "America/Sao_Paulo"
	updated, err := s.svc.UpdateProfile(s.ctx, user.ID, models.ProfileUpdate{
		FirstName: &first,
		Timezone:  &timezone,
	})
	s.Require().NoError(err)
	s.Equal("Maria", updated.Profile.FirstName)
	s.Equal("America/Sao_Paulo", updated.Profile.Timezone)
	s.Equal("pt-BR", updated.Profile.Language)

	theme := "dark"
	updated, err = s.svc.UpdatePreferences(s.ctx, user.ID, models.PreferencesUpdate{Theme: &theme})
	s.Require().NoError(err)
	s.Equal("dark", updated.Preferences.Theme)
	s.True(updated.Preferences.AutoSave)
}

func (s *UserServiceSuite) TestGet_NotFound() {
	_, err := s.svc.Get(s.ctx, id.UserID(404))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUserNotFound))
}
