package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ali/internal/session/models"
	"ali/internal/session/ports"
	"ali/internal/session/service"
	"ali/internal/session/store"
	usermodels "ali/internal/user/models"
	userstore "ali/internal/user/store"
	id "ali/pkg/domain"
	dErrors "ali/pkg/domain-errors"
)

type SessionServiceSuite struct {
	suite.Suite

	ctx      context.Context
	sessions *store.Memory
	users    *userstore.Memory
	svc      *service.Service
	now      time.Time
}

func TestSessionServiceSuite(t *testing.T) {
	suite.Run(t, new(SessionServiceSuite))
}

func (s *SessionServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.sessions = store.NewMemory()
	s.users = userstore.NewMemory()
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	svc, err := service.New(s.sessions, s.users, service.WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)
	s.svc = svc
}

func (s *SessionServiceSuite) createUser(email string, role usermodels.Role) *usermodels.User {
	user, err := usermodels.NewUser(email, "password123", role, s.now)
	s.Require().NoError(err)
	user.Status = usermodels.StatusActive
	user.IsVerified = true

	created, err := s.users.Create(s.ctx, user)
	s.Require().NoError(err)
	return created
}

func (s *SessionServiceSuite) TestCreate_Defaults() {
	user := s.createUser("owner@example.com", usermodels.RoleEditor)

	session, err := s.svc.Create(s.ctx, user.ID, "", "")
	s.Require().NoError(err)

	s.Equal(models.TypeChat, session.Type)
	s.Equal(models.StatusActive, session.Status)
	s.Equal("Session 2026-03-10 12:00", session.Name)
	s.Equal(0.7, session.Metadata.Temperature)
	s.Equal(2000, session.Metadata.MaxTokens)
	s.Equal("pt-BR", session.Metadata.Language)
}

func (s *SessionServiceSuite) TestCreate_InactiveUserRejected() {
	user := s.createUser("inactive@example.com", usermodels.RoleViewer)
	user.Deactivate(s.now)
	_, err := s.users.Update(s.ctx, user)
	s.Require().NoError(err)

	_, err = s.svc.Create(s.ctx, user.ID, "test", models.TypeChat)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBusinessRuleViolation))
}

func (s *SessionServiceSuite) TestCreate_UnknownUser() {
	_, err := s.svc.Create(s.ctx, id.UserID(999), "test", models.TypeChat)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUserNotFound))
}

func (s *SessionServiceSuite) TestCreate_GuestCapEnforced() {
	guest := s.createUser("guest@example.com", usermodels.RoleGuest)

	for i := 0; i < 5; i++ {
		_, err := s.svc.Create(s.ctx, guest.ID, "session", models.TypeChat)
		s.Require().NoError(err)
	}

	_, err := s.svc.Create(s.ctx, guest.ID, "one too many", models.TypeChat)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBusinessRuleViolation))
}

func (s *SessionServiceSuite) TestCreate_ArchivedSessionsDoNotCountTowardCap() {
	guest := s.createUser("guest2@example.com", usermodels.RoleGuest)

	for i := 0; i < 5; i++ {
		session, err := s.svc.Create(s.ctx, guest.ID, "session", models.TypeChat)
		s.Require().NoError(err)
		_, err = s.svc.Archive(s.ctx, session.ID, guest.ID)
		s.Require().NoError(err)
	}

	_, err := s.svc.Create(s.ctx, guest.ID, "still allowed", models.TypeChat)
	s.Require().NoError(err)
}

func (s *SessionServiceSuite) TestGet_AccessControl() {
	owner := s.createUser("owner2@example.com", usermodels.RoleEditor)
	other := s.createUser("other@example.com", usermodels.RoleViewer)
	admin := s.createUser("admin@example.com", usermodels.RoleAdmin)

	session, err := s.svc.Create(s.ctx, owner.ID, "private", models.TypeChat)
	s.Require().NoError(err)

	_, err = s.svc.Get(s.ctx, session.ID, owner.ID, false)
	s.NoError(err)

	_, err = s.svc.Get(s.ctx, session.ID, admin.ID, false)
	s.NoError(err)

	_, err = s.svc.Get(s.ctx, session.ID, other.ID, false)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeSessionAccessDenied))
}

func (s *SessionServiceSuite) TestGet_RequireActive() {
	owner := s.createUser("owner3@example.com", usermodels.RoleEditor)
	session, err := s.svc.Create(s.ctx, owner.ID, "to archive", models.TypeChat)
	s.Require().NoError(err)

	_, err = s.svc.Archive(s.ctx, session.ID, owner.ID)
	s.Require().NoError(err)

	_, err = s.svc.Get(s.ctx, session.ID, owner.ID, true)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeSessionNotActive))

	_, err = s.svc.Get(s.ctx, session.ID, owner.ID, false)
	s.NoError(err)
}

func (s *SessionServiceSuite) TestGet_NotFound() {
	owner := s.createUser("owner4@example.com", usermodels.RoleEditor)

	_, err := s.svc.Get(s.ctx, id.NewSessionID(), owner.ID, false)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeSessionNotFound))
}

func (s *SessionServiceSuite) TestRecordActivity_AccumulatesStats() {
	owner := s.createUser("chatter@example.com", usermodels.RoleEditor)
	session, err := s.svc.Create(s.ctx, owner.ID, "chat", models.TypeChat)
	s.Require().NoError(err)

	session, err = s.svc.RecordActivity(s.ctx, session.ID, owner.ID, 100, 2.0)
	s.Require().NoError(err)
	session, err = s.svc.RecordActivity(s.ctx, session.ID, owner.ID, 50, 4.0)
	s.Require().NoError(err)

	s.Equal(2, session.Stats.MessageCount)
	s.Equal(150, session.Stats.TotalTokensUsed)
	s.InDelta(3.0, session.Stats.AvgResponseTime, 0.0001)
	s.NotNil(session.Stats.LastActivity)
}

func (s *SessionServiceSuite) TestRecordActivity_ZeroResponseTimeKeepsAverage() {
	owner := s.createUser("chatter2@example.com", usermodels.RoleEditor)
	session, err := s.svc.Create(s.ctx, owner.ID, "chat", models.TypeChat)
	s.Require().NoError(err)

	_, err = s.svc.RecordActivity(s.ctx, session.ID, owner.ID, 10, 2.0)
	s.Require().NoError(err)
	session, err = s.svc.RecordActivity(s.ctx, session.ID, owner.ID, 10, 0)
	s.Require().NoError(err)

	s.Equal(2, session.Stats.MessageCount)
	s.InDelta(2.0, session.Stats.AvgResponseTime, 0.0001)
}

func (s *SessionServiceSuite) TestUpdateMetadata_Bounds() {
	owner := s.createUser("tuner@example.com", usermodels.RoleEditor)
	session, err := s.svc.Create(s.ctx, owner.ID, "tuning", models.TypeChat)
	s.Require().NoError(err)

	bad := 2.5
	_, err = s.svc.UpdateMetadata(s.ctx, session.ID, owner.ID, models.MetadataUpdate{Temperature: &bad})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	good := 1.2
	tokens := 4000
	updated, err := s.svc.UpdateMetadata(s.ctx, session.ID, owner.ID, models.MetadataUpdate{Temperature: &good, MaxTokens: &tokens})
	s.Require().NoError(err)
	s.Equal(1.2, updated.Metadata.Temperature)
	s.Equal(4000, updated.Metadata.MaxTokens)
}

func (s *SessionServiceSuite) TestDelete_Permissions() {
	owner := s.createUser("owner5@example.com", usermodels.RoleEditor)
	other := s.createUser("other2@example.com", usermodels.RoleEditor)
	admin := s.createUser("admin2@example.com", usermodels.RoleAdmin)

	session, err := s.svc.Create(s.ctx, owner.ID, "mine", models.TypeChat)
	s.Require().NoError(err)

	err = s.svc.Delete(s.ctx, session.ID, other.ID, false)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientPermissions))

	s.NoError(s.svc.Delete(s.ctx, session.ID, owner.ID, false))

	adminTarget, err := s.svc.Create(s.ctx, owner.ID, "admin deletes", models.TypeChat)
	s.Require().NoError(err)
	s.NoError(s.svc.Delete(s.ctx, adminTarget.ID, admin.ID, false))
}

func (s *SessionServiceSuite) TestDelete_ForcedBypassesOwnership() {
	owner := s.createUser("forceowner@example.com", usermodels.RoleEditor)
	other := s.createUser("forceother@example.com", usermodels.RoleEditor)

	session, err := s.svc.Create(s.ctx, owner.ID, "to be forced out", models.TypeChat)
	s.Require().NoError(err)

	err = s.svc.Delete(s.ctx, session.ID, other.ID, false)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientPermissions))

	s.Require().NoError(s.svc.Delete(s.ctx, session.ID, other.ID, true))

	deleted, err := s.sessions.FindByID(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDeleted, deleted.Status)
}

func (s *SessionServiceSuite) TestTransferOwnership() {
	owner := s.createUser("from@example.com", usermodels.RoleEditor)
	recipient := s.createUser("to@example.com", usermodels.RoleEditor)
	stranger := s.createUser("stranger@example.com", usermodels.RoleEditor)

	session, err := s.svc.Create(s.ctx, owner.ID, "handover", models.TypeChat)
	s.Require().NoError(err)

	_, err = s.svc.TransferOwnership(s.ctx, session.ID, recipient.ID, stranger.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientPermissions))

	transferred, err := s.svc.TransferOwnership(s.ctx, session.ID, recipient.ID, owner.ID)
	s.Require().NoError(err)
	s.Equal(recipient.ID, transferred.UserID)
}

func (s *SessionServiceSuite) TestBulk_BestEffort() {
	owner := s.createUser("bulk@example.com", usermodels.RoleEditor)

	first, err := s.svc.Create(s.ctx, owner.ID, "first", models.TypeChat)
	s.Require().NoError(err)
	second, err := s.svc.Create(s.ctx, owner.ID, "second", models.TypeChat)
	s.Require().NoError(err)
	missing := id.NewSessionID()

	result, err := s.svc.Bulk(s.ctx, []id.SessionID{first.ID, missing, second.ID}, service.BulkArchive, owner.ID)
	s.Require().NoError(err)

	s.Equal(2, result.Success)
	s.Equal(1, result.Failed)
	s.Len(result.Errors, 1)

	archived, err := s.svc.Get(s.ctx, first.ID, owner.ID, false)
	s.Require().NoError(err)
	s.Equal(models.StatusArchived, archived.Status)
}

func (s *SessionServiceSuite) TestBulk_UnknownOperation() {
	owner := s.createUser("bulk2@example.com", usermodels.RoleEditor)
	session, err := s.svc.Create(s.ctx, owner.ID, "target", models.TypeChat)
	s.Require().NoError(err)

	result, err := s.svc.Bulk(s.ctx, []id.SessionID{session.ID}, "explode", owner.ID)
	s.Require().NoError(err)
	s.Equal(0, result.Success)
	s.Equal(1, result.Failed)
}

func (s *SessionServiceSuite) TestCleanupInactiveSessions() {
	owner := s.createUser("idle@example.com", usermodels.RoleEditor)
	excluded := s.createUser("vip@example.com", usermodels.RoleEditor)

	stale, err := s.svc.Create(s.ctx, owner.ID, "stale", models.TypeChat)
	s.Require().NoError(err)
	protected, err := s.svc.Create(s.ctx, excluded.ID, "protected", models.TypeChat)
	s.Require().NoError(err)

	s.now = s.now.Add(48 * time.Hour)
	fresh, err := s.svc.Create(s.ctx, owner.ID, "fresh", models.TypeChat)
	s.Require().NoError(err)

	count, err := s.svc.CleanupInactiveSessions(s.ctx, 24, []id.UserID{excluded.ID})
	s.Require().NoError(err)
	s.Equal(1, count)

	archived, err := s.sessions.FindByID(s.ctx, stale.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusArchived, archived.Status)

	untouched, err := s.sessions.FindByID(s.ctx, protected.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, untouched.Status)

	stillFresh, err := s.sessions.FindByID(s.ctx, fresh.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, stillFresh.Status)
}

func (s *SessionServiceSuite) TestGetAnalytics_HealthBands() {
	owner := s.createUser("stats@example.com", usermodels.RoleAdmin)

	analytics, err := s.svc.GetAnalytics(s.ctx, nil, nil, nil)
	s.Require().NoError(err)
	s.Equal(service.HealthHealthy, analytics.SessionHealth)

	var created []*models.Session
	for i := 0; i < 4; i++ {
		session, err := s.svc.Create(s.ctx, owner.ID, "s", models.TypeChat)
		s.Require().NoError(err)
		created = append(created, session)
	}
	for _, session := range created[:2] {
		_, err := s.svc.Archive(s.ctx, session.ID, owner.ID)
		s.Require().NoError(err)
	}

	analytics, err = s.svc.GetAnalytics(s.ctx, nil, nil, nil)
	s.Require().NoError(err)
	s.Equal(service.HealthWarning, analytics.SessionHealth)
	s.Equal(4, analytics.TotalSessions)
	s.Equal(2, analytics.ActiveSessions)
	s.Equal(2, analytics.ArchivedSessions)
	s.Require().NotEmpty(analytics.PopularTypes)
	s.Equal(models.TypeChat, analytics.PopularTypes[0].Type)
	s.InDelta(100.0, analytics.PopularTypes[0].Percentage, 0.0001)
}

func (s *SessionServiceSuite) TestRename() {
	owner := s.createUser("rename@example.com", usermodels.RoleEditor)
	session, err := s.svc.Create(s.ctx, owner.ID, "old name", models.TypeChat)
	s.Require().NoError(err)

	_, err = s.svc.Rename(s.ctx, session.ID, owner.ID, "   ")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	renamed, err := s.svc.Rename(s.ctx, session.ID, owner.ID, "new name")
	s.Require().NoError(err)
	s.Equal("new name", renamed.Name)
}

func (s *SessionServiceSuite) TestList_FilterByStatus() {
	owner := s.createUser("lister@example.com", usermodels.RoleEditor)

	active, err := s.svc.Create(s.ctx, owner.ID, "active", models.TypeChat)
	s.Require().NoError(err)
	archived, err := s.svc.Create(s.ctx, owner.ID, "archived", models.TypeChat)
	s.Require().NoError(err)
	_, err = s.svc.Archive(s.ctx, archived.ID, owner.ID)
	s.Require().NoError(err)

	status := models.StatusActive
	sessions, err := s.svc.List(s.ctx, ports.Filter{UserID: &owner.ID, Status: &status})
	s.Require().NoError(err)
	s.Require().Len(sessions, 1)
	s.Equal(active.ID, sessions[0].ID)
}
