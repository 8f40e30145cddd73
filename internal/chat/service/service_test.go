package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"ali/internal/chat"
	"ali/internal/chat/mocks"
	chatservice "ali/internal/chat/service"
	messagemodels "ali/internal/message/models"
	messageservice "ali/internal/message/service"
	messagestore "ali/internal/message/store"
	sessionmodels "ali/internal/session/models"
	sessionstore "ali/internal/session/store"
	usermodels "ali/internal/user/models"
	userstore "ali/internal/user/store"
	dErrors "ali/pkg/domain-errors"
)

type ChatServiceSuite struct {
	suite.Suite

	ctx       context.Context
	ctrl      *gomock.Controller
	completer *mocks.MockCompleter
	sessions  *sessionstore.Memory
	svc       *chatservice.Service
	now       time.Time

	user    *usermodels.User
	session *sessionmodels.Session
}

func TestChatServiceSuite(t *testing.T) {
	suite.Run(t, new(ChatServiceSuite))
}

func (s *ChatServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.ctrl = gomock.NewController(s.T())
	s.completer = mocks.NewMockCompleter(s.ctrl)

	messages := messagestore.NewMemory()
	s.sessions = sessionstore.NewMemory()
	users := userstore.NewMemory()

	user, err := usermodels.NewUser("chat@example.com", "password123", usermodels.RoleEditor, s.now)
	s.Require().NoError(err)
	user.Status = usermodels.StatusActive
	user.IsVerified = true
	s.user, err = users.Create(s.ctx, user)
	s.Require().NoError(err)

	session, err := sessionmodels.NewSession(s.user.ID, "chat session", sessionmodels.TypeChat, s.now)
	s.Require().NoError(err)
	s.session, err = s.sessions.Create(s.ctx, session)
	s.Require().NoError(err)

	messageSvc, err := messageservice.New(messages, s.sessions, users,
		messageservice.WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)

	s.svc, err = chatservice.New(messageSvc, s.completer)
	s.Require().NoError(err)
}

func (s *ChatServiceSuite) TestSend_PersistsBothSides() {
	s.completer.EXPECT().
		Respond(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req chat.Request) (*chat.Completion, error) {
			s.Equal(s.session.ID, req.SessionID)
			s.Require().NotEmpty(req.Messages)
			s.Equal("qual o prazo?", req.Messages[len(req.Messages)-1].Content)
			return &chat.Completion{
				Content:        "O prazo é de 30 dias.",
				ModelUsed:      "ali-v1",
				TokensUsed:     150,
				ProcessingTime: 2.5,
			}, nil
		})

	turn, err := s.svc.Send(s.ctx, s.session.ID, s.user.ID, "qual o prazo?")
	s.Require().NoError(err)

	s.Equal(messagemodels.RoleUser, turn.UserMessage.Role)
	s.Equal(messagemodels.StatusCompleted, turn.UserMessage.Status)
	s.Equal(messagemodels.RoleAssistant, turn.AssistantMessage.Role)
	s.Equal("O prazo é de 30 dias.", turn.AssistantMessage.Content)
	s.Equal(150, turn.AssistantMessage.Metadata.TokensUsed)

	updated, err := s.sessions.FindByID(s.ctx, s.session.ID)
	s.Require().NoError(err)
	s.Equal(2, updated.Stats.MessageCount)
	s.Equal(150, updated.Stats.TotalTokensUsed)
}

func (s *ChatServiceSuite) TestSend_ContextGrowsAcrossTurns() {
	reply := func(content string) {
		s.completer.EXPECT().
			Respond(gomock.Any(), gomock.Any()).
			Return(&chat.Completion{Content: content, TokensUsed: 10, ProcessingTime: 1}, nil)
	}

	reply("primeira resposta")
	_, err := s.svc.Send(s.ctx, s.session.ID, s.user.ID, "primeira pergunta")
	s.Require().NoError(err)

	s.now = s.now.Add(time.Minute)

	s.completer.EXPECT().
		Respond(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req chat.Request) (*chat.Completion, error) {
			// First turn's two messages plus the new user message. The first
			// turn's messages share a timestamp, so only membership is stable.
			s.Require().Len(req.Messages, 3)
			earlier := []string{req.Messages[0].Content, req.Messages[1].Content}
			s.ElementsMatch([]string{"primeira pergunta", "primeira resposta"}, earlier)
			s.Equal("segunda pergunta", req.Messages[2].Content)
			return &chat.Completion{Content: "segunda resposta", TokensUsed: 10, ProcessingTime: 1}, nil
		})

	_, err = s.svc.Send(s.ctx, s.session.ID, s.user.ID, "segunda pergunta")
	s.Require().NoError(err)
}

func (s *ChatServiceSuite) TestSend_BackendFailureKeepsUserMessage() {
	s.completer.EXPECT().
		Respond(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("backend down"))

	_, err := s.svc.Send(s.ctx, s.session.ID, s.user.ID, "pergunta perdida?")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeMessageProcessingError))

	updated, err := s.sessions.FindByID(s.ctx, s.session.ID)
	s.Require().NoError(err)
	s.Equal(1, updated.Stats.MessageCount)
}

func (s *ChatServiceSuite) TestSend_InvalidContentNeverReachesBackend() {
	s.completer.EXPECT().Respond(gomock.Any(), gomock.Any()).Times(0)

	_, err := s.svc.Send(s.ctx, s.session.ID, s.user.ID, "<script>alert(1)</script>")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidMessageContent))
}
