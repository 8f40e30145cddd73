// Package service implements the user domain rules: registration,
// authentication, role management, and account lifecycle.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"ali/internal/user/models"
	"ali/internal/user/ports"
	id "ali/pkg/domain"
	dErrors "ali/pkg/domain-errors"
	emailutil "ali/pkg/email"
	"ali/pkg/platform/audit"
	"ali/pkg/platform/sentinel"
)

// Type aliases for shared interfaces.
type (
	Store          = ports.Store
	AuditPublisher = ports.AuditPublisher
)

// rolePermissions are the effective permission sets per role, combined with
// any explicitly granted permissions when computing a user's permission list.
var rolePermissions = map[models.Role][]string{
	models.RoleAdmin: {
		"read", "write", "edit", "delete", "create_document",
		"manage_users", "manage_sessions", "manage_system",
		"chat", "upload", "export", "admin_dashboard",
	},
	models.RoleEditor: {
		"read", "write", "edit", "create_document",
		"delete_own", "chat", "upload", "export",
	},
	models.RoleViewer: {"read", "chat"},
	models.RoleGuest:  {"read"},
}

const tempPasswordLength = 12

type Service struct {
	store          Store
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

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("user store is required")
	}

	svc := &Service{
		store:  store,
		logger: slog.Default(),
		clock:  time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// RegisterParams carries inputs for Register.
type RegisterParams struct {
	Email      string
	Password   string
	Role       models.Role
	AutoVerify bool
	InvitedBy  *id.UserID
}

// Register creates a new account. Admin accounts require an invitation from
// an existing admin. Auto-verified accounts start active instead of pending.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*models.User, error) {
	if params.Role == "" {
		params.Role = models.RoleViewer
	}

	email, err := models.NormalizeEmail(params.Email)
	if err != nil {
		return nil, err
	}

	exists, err := s.store.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "check email existence")
	}
	if exists {
		return nil, dErrors.Newf(dErrors.CodeUserAlreadyExists, "user with email %s already exists", email)
	}

	if err := s.validateRegistrationRules(ctx, params.Role, params.InvitedBy); err != nil {
		return nil, err
	}

	user, err := models.NewUser(email, params.Password, params.Role, s.clock().UTC())
	if err != nil {
		return nil, err
	}
	user.Profile.FirstName, user.Profile.LastName = emailutil.DeriveNameFromEmail(email)
	if params.AutoVerify {
		user.IsVerified = true
		user.Status = models.StatusActive
	}

	created, err := s.store.Create(ctx, user)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeUserAlreadyExists, "user with email %s already exists", email)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "create user")
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:  string(audit.EventUserRegistered),
		UserID:  created.ID,
		Subject: created.Email,
	}, "role", string(created.Role))

	return created, nil
}

// Authenticate verifies credentials and records the login. Lookup failures
// and bad passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidCredentials, "invalid email or password")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "find user by email")
	}

	if !user.VerifyPassword(password) {
		audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
			Action:  string(audit.EventAuthFailed),
			UserID:  user.ID,
			Subject: user.Email,
			Reason:  "invalid_password",
		})
		return nil, dErrors.New(dErrors.CodeInvalidCredentials, "invalid email or password")
	}

	if !user.IsActive || user.Status != models.StatusActive {
		return nil, dErrors.Newf(dErrors.CodeUserNotActive, "user %d is not active", user.ID)
	}

	user.RecordLogin(s.clock().UTC())
	updated, err := s.store.Update(ctx, user)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "record login")
	}

	return updated, nil
}

// ChangePassword sets a new password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, userID id.UserID, currentPassword, newPassword string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}

	if !user.VerifyPassword(currentPassword) {
		return dErrors.New(dErrors.CodeInvalidCredentials, "current password is incorrect")
	}

	hash, err := models.HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.SetPassword(hash, s.clock().UTC())

	if _, err := s.store.Update(ctx, user); err != nil {
		return dErrors.Wrap(err, dErrors.CodeRepository, "update password")
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action: string(audit.EventPasswordChanged),
		UserID: userID,
	})

	return nil
}

// ResetPassword replaces the password with a generated temporary one and
// returns it to the caller for delivery.
func (s *Service) ResetPassword(ctx context.Context, email string) (*models.User, string, error) {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, "", dErrors.Newf(dErrors.CodeUserNotFound, "user with email %s not found", email)
		}
		return nil, "", dErrors.Wrap(err, dErrors.CodeRepository, "find user by email")
	}

	tempPassword, err := generateTemporaryPassword(tempPasswordLength)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeRepository, "generate temporary password")
	}

	hash, err := models.HashPassword(tempPassword)
	if err != nil {
		return nil, "", err
	}
	user.SetPassword(hash, s.clock().UTC())

	updated, err := s.store.Update(ctx, user)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeRepository, "update password")
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action: string(audit.EventPasswordChanged),
		UserID: user.ID,
		Reason: "reset",
	})

	return updated, tempPassword, nil
}

// PromoteRole raises a user's role. Only admins may promote, and only to a
// strictly higher role than the user currently holds.
func (s *Service) PromoteRole(ctx context.Context, userID id.UserID, newRole models.Role, promotedBy id.UserID) (*models.User, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	promoter, err := s.getUser(ctx, promotedBy)
	if err != nil {
		return nil, err
	}

	if promoter.Role != models.RoleAdmin {
		return nil, dErrors.Newf(dErrors.CodeInsufficientPermissions, "user %d cannot promote users", promotedBy)
	}
	if !newRole.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid role: %s", newRole)
	}
	if newRole.Rank() <= user.Role.Rank() {
		return nil, dErrors.Newf(dErrors.CodeBusinessRuleViolation, "cannot promote from %s to %s", user.Role, newRole)
	}

	previous := user.Role
	user.ChangeRole(newRole, s.clock().UTC())

	updated, err := s.store.Update(ctx, user)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "update role")
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:  string(audit.EventUserRoleChanged),
		UserID:  userID,
		ActorID: promotedBy.String(),
	}, "from", string(previous), "to", string(newRole))

	return updated, nil
}

// Deactivate disables an account. Non-admins may only deactivate themselves,
// and admins cannot deactivate other admins.
func (s *Service) Deactivate(ctx context.Context, userID, deactivatedBy id.UserID, reason string) (*models.User, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	actor, err := s.getUser(ctx, deactivatedBy)
	if err != nil {
		return nil, err
	}

	if actor.Role != models.RoleAdmin && user.ID != actor.ID {
		return nil, dErrors.Newf(dErrors.CodeInsufficientPermissions, "user %d cannot deactivate other users", deactivatedBy)
	}
	if user.Role == models.RoleAdmin && user.ID != actor.ID {
		return nil, dErrors.New(dErrors.CodeBusinessRuleViolation, "admins cannot deactivate other admins")
	}

	user.Deactivate(s.clock().UTC())

	updated, err := s.store.Update(ctx, user)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "deactivate user")
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:  string(audit.EventUserDeactivated),
		UserID:  userID,
		ActorID: deactivatedBy.String(),
		Reason:  reason,
	})

	return updated, nil
}

// VerifyEmail marks an account's email as verified, activating pending accounts.
func (s *Service) VerifyEmail(ctx context.Context, userID id.UserID) (*models.User, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.VerifyEmail(s.clock().UTC())

	updated, err := s.store.Update(ctx, user)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "verify email")
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action: string(audit.EventUserVerified),
		UserID: userID,
	})

	return updated, nil
}

// UpdateProfile applies field-wise profile changes.
func (s *Service) UpdateProfile(ctx context.Context, userID id.UserID, update models.ProfileUpdate) (*models.User, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.ApplyProfileUpdate(update, s.clock().UTC())

	updated, err := s.store.Update(ctx, user)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "update profile")
	}
	return updated, nil
}

// UpdatePreferences applies field-wise preference changes.
func (s *Service) UpdatePreferences(ctx context.Context, userID id.UserID, update models.PreferencesUpdate) (*models.User, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.ApplyPreferencesUpdate(update, s.clock().UTC())

	updated, err := s.store.Update(ctx, user)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "update preferences")
	}
	return updated, nil
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.getUser(ctx, userID)
}

// List returns users matching the filter.
func (s *Service) List(ctx context.Context, filter ports.Filter) ([]*models.User, error) {
	users, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "list users")
	}
	return users, nil
}

// Search matches users by email or name.
func (s *Service) Search(ctx context.Context, query string, limit, offset int) ([]*models.User, error) {
	users, err := s.store.Search(ctx, query, limit, offset)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "search users")
	}
	return users, nil
}

// Permissions returns the effective permission set for a user: role-based
// permissions plus explicit grants, deduplicated.
func (s *Service) Permissions(ctx context.Context, userID id.UserID) ([]string, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var permissions []string
	for _, p := range rolePermissions[user.Role] {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			permissions = append(permissions, p)
		}
	}
	for _, p := range user.Permissions {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			permissions = append(permissions, p)
		}
	}
	return permissions, nil
}

// ValidateAction reports whether a user may perform an action.
func (s *Service) ValidateAction(ctx context.Context, userID id.UserID, action string) (bool, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.CanPerformAction(action), nil
}

// Statistics returns population-level counts.
func (s *Service) Statistics(ctx context.Context) (*ports.Statistics, error) {
	stats, err := s.store.Statistics(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "user statistics")
	}
	return stats, nil
}

// CleanupInactiveUsers deactivates unverified accounts older than the given
// number of days. The read and the bulk write are separate store calls.
func (s *Service) CleanupInactiveUsers(ctx context.Context, inactiveDays int) (int, error) {
	cutoff := s.clock().UTC().AddDate(0, 0, -inactiveDays)

	stale, err := s.store.FindUnverified(ctx, cutoff, 1000)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeRepository, "find unverified users")
	}

	userIDs := make([]id.UserID, 0, len(stale))
	for _, user := range stale {
		if user.ID != 0 {
			userIDs = append(userIDs, user.ID)
		}
	}

	count, err := s.store.BulkUpdateStatus(ctx, userIDs, models.StatusInactive)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeRepository, "bulk deactivate users")
	}

	if count > 0 {
		audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
			Action: string(audit.EventUsersDeactivated),
			Reason: "unverified_cleanup",
		}, "count", count)
	}

	return count, nil
}

func (s *Service) getUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeUserNotFound, "user %d not found", userID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "find user")
	}
	return user, nil
}

func (s *Service) validateRegistrationRules(ctx context.Context, role models.Role, invitedBy *id.UserID) error {
	if role == models.RoleAdmin && invitedBy == nil {
		return dErrors.New(dErrors.CodeBusinessRuleViolation, "admin role requires invitation from existing admin")
	}
	if invitedBy != nil {
		inviter, err := s.store.FindByID(ctx, *invitedBy)
		if err != nil || inviter.Role != models.RoleAdmin {
			return dErrors.New(dErrors.CodeBusinessRuleViolation, "only admins can invite new users")
		}
	}
	return nil
}

const tempPasswordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*"

func generateTemporaryPassword(length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(tempPasswordAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = tempPasswordAlphabet[n.Int64()]
	}
	return string(out), nil
}
