package models

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	id "ali/pkg/domain"
	dErrors "ali/pkg/domain-errors"
)

// User is the aggregate root for an account.
//
// Invariants:
//   - Email is lowercase, trimmed, and matches the address pattern
//   - HashedPassword is a bcrypt hash of a password of at least 8 characters
//   - Role is one of admin, editor, viewer, guest
//   - Status transitions are driven only by the mutators below
//   - CreatedAt is immutable after construction
type User struct {
	ID             id.UserID   `json:"id"`
	Email          string      `json:"email"`
	HashedPassword string      `json:"-"`
	Role           Role        `json:"role"`
	Status         Status      `json:"status"`
	Permissions    []string    `json:"permissions"`
	Preferences    Preferences `json:"preferences"`
	Profile        Profile     `json:"profile"`
	IsVerified     bool        `json:"is_verified"`
	IsActive       bool        `json:"is_active"`
	LastLogin      *time.Time  `json:"last_login,omitempty"`
	LoginCount     int         `json:"login_count"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Profile holds optional descriptive fields.
type Profile struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Bio       string `json:"bio,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	Language  string `json:"language"`
}

// Preferences holds per-user configuration.
type Preferences struct {
	Theme                string `json:"theme"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
	EmailNotifications   bool   `json:"email_notifications"`
	AutoSave             bool   `json:"auto_save"`
	DefaultLanguage      string `json:"default_language"`
}

func DefaultProfile() Profile {
	return Profile{Language: "pt-BR"}
}

func DefaultPreferences() Preferences {
	return Preferences{
		Theme:                "light",
		NotificationsEnabled: true,
		EmailNotifications:   true,
		AutoSave:             true,
		DefaultLanguage:      "pt-BR",
	}
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail lowercases, trims, and validates an email address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return "", dErrors.Newf(dErrors.CodeValidation, "invalid email format: %s", email)
	}
	return email, nil
}

// HashPassword hashes a password with bcrypt. Passwords shorter than
// 8 characters are rejected.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters long")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, "hash password")
	}
	return string(hash), nil
}

// NewUser constructs a user in the pending state. The ID is assigned by the
// store on creation.
func NewUser(email, password string, role Role, now time.Time) (*User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid role: %s", role)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return &User{
		Email:          normalized,
		HashedPassword: hash,
		Role:           role,
		Status:         StatusPending,
		Permissions:    []string{},
		Preferences:    DefaultPreferences(),
		Profile:        DefaultProfile(),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// VerifyPassword checks a candidate password against the stored hash.
func (u *User) VerifyPassword(password string) bool {
	if password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password)) == nil
}

// entityRolePermissions are the baseline actions each role may perform.
// Admin bypasses the table entirely.
var entityRolePermissions = map[Role][]string{
	RoleEditor: {"read", "write", "edit", "create_document", "delete_own", "chat", "upload"},
	RoleViewer: {"read", "chat"},
	RoleGuest:  {"read"},
}

// CanPerformAction reports whether the user may perform an action, combining
// role-based and explicitly granted permissions. Inactive users may do nothing.
func (u *User) CanPerformAction(action string) bool {
	if !u.IsActive || u.Status != StatusActive {
		return false
	}
	if u.Role == RoleAdmin {
		return true
	}
	for _, p := range u.Permissions {
		if p == action {
			return true
		}
	}
	for _, p := range entityRolePermissions[u.Role] {
		if p == action {
			return true
		}
	}
	return false
}

// RecordLogin updates last login info after successful authentication.
func (u *User) RecordLogin(now time.Time) {
	u.LastLogin = &now
	u.LoginCount++
	u.UpdatedAt = now
}

func (u *User) Activate(now time.Time) {
	u.IsActive = true
	u.Status = StatusActive
	u.UpdatedAt = now
}

func (u *User) Deactivate(now time.Time) {
	u.IsActive = false
	u.Status = StatusInactive
	u.UpdatedAt = now
}

func (u *User) Suspend(now time.Time) {
	u.IsActive = false
	u.Status = StatusSuspended
	u.UpdatedAt = now
}

// VerifyEmail marks the email as verified. Pending accounts become active.
func (u *User) VerifyEmail(now time.Time) {
	u.IsVerified = true
	if u.Status == StatusPending {
		u.Status = StatusActive
	}
	u.UpdatedAt = now
}

func (u *User) ChangeRole(role Role, now time.Time) {
	u.Role = role
	u.UpdatedAt = now
}

func (u *User) SetPassword(hashed string, now time.Time) {
	u.HashedPassword = hashed
	u.UpdatedAt = now
}

func (u *User) AddPermission(permission string, now time.Time) {
	for _, p := range u.Permissions {
		if p == permission {
			return
		}
	}
	u.Permissions = append(u.Permissions, permission)
	u.UpdatedAt = now
}

func (u *User) RemovePermission(permission string, now time.Time) {
	for i, p := range u.Permissions {
		if p == permission {
			u.Permissions = append(u.Permissions[:i], u.Permissions[i+1:]...)
			u.UpdatedAt = now
			return
		}
	}
}

// ProfileUpdate carries field-wise profile changes. Nil fields are untouched.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	AvatarURL *string
	Bio       *string
	Phone     *string
	Timezone  *string
	Language  *string
}

func (u *User) ApplyProfileUpdate(update ProfileUpdate, now time.Time) {
	if update.FirstName != nil {
		u.Profile.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		u.Profile.LastName = *update.LastName
	}
	if update.AvatarURL != nil {
		u.Profile.AvatarURL = *update.AvatarURL
	}
	if update.Bio != nil {
		u.Profile.Bio = *update.Bio
	}
	if update.Phone != nil {
		u.Profile.Phone = *update.Phone
	}
	if update.Timezone != nil {
		u.Profile.Timezone = *update.Timezone
	}
	if update.Language != nil {
		u.Profile.Language = *update.Language
	}
	u.UpdatedAt = now
}

// PreferencesUpdate carries field-wise preference changes. Nil fields are untouched.
type PreferencesUpdate struct {
	Theme                *string
	NotificationsEnabled *bool
	EmailNotifications   *bool
	AutoSave             *bool
	DefaultLanguage      *string
}

func (u *User) ApplyPreferencesUpdate(update PreferencesUpdate, now time.Time) {
	if update.Theme != nil {
		u.Preferences.Theme = *update.Theme
	}
	if update.NotificationsEnabled != nil {
		u.Preferences.NotificationsEnabled = *update.NotificationsEnabled
	}
	if update.EmailNotifications != nil {
		u.Preferences.EmailNotifications = *update.EmailNotifications
	}
	if update.AutoSave != nil {
		u.Preferences.AutoSave = *update.AutoSave
	}
	if update.DefaultLanguage != nil {
		u.Preferences.DefaultLanguage = *update.DefaultLanguage
	}
	u.UpdatedAt = now
}
