package httptransport_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ali/internal/auth/revocation"
	authservice "ali/internal/auth/service"
	"ali/internal/auth/token"
	"ali/internal/chat"
	chatservice "ali/internal/chat/service"
	documentmodels "ali/internal/document/models"
	documentservice "ali/internal/document/service"
	documentstore "ali/internal/document/store"
	messagemodels "ali/internal/message/models"
	messageservice "ali/internal/message/service"
	messagestore "ali/internal/message/store"
	sessionmodels "ali/internal/session/models"
	sessionservice "ali/internal/session/service"
	sessionstore "ali/internal/session/store"
	httptransport "ali/internal/transport/http"
	usermodels "ali/internal/user/models"
	userservice "ali/internal/user/service"
	userstore "ali/internal/user/store"
	"ali/pkg/testutil"
)

// scriptedCompleter stands in for the completion backend so chat turns
// resolve without network access.
type scriptedCompleter struct {
	reply string
}

func (c scriptedCompleter) Respond(_ context.Context, _ chat.Request) (*chat.Completion, error) {
	return &chat.Completion{
		Content:        c.reply,
		ModelUsed:      "stub-model",
		TokensUsed:     48,
		ProcessingTime: 0.02,
	}, nil
}

// APISuite drives the router end to end: real services on memory stores,
// real JWT auth, only the completion backend stubbed.
type APISuite struct {
	suite.Suite

	router    http.Handler
	userStore *userstore.Memory
	now       time.Time
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.now = time.Now().UTC()

	s.userStore = userstore.NewMemory()
	sessions := sessionstore.NewMemory()
	messages := messagestore.NewMemory()
	documents := documentstore.NewMemory()

	users, err := userservice.New(s.userStore)
	s.Require().NoError(err)
	sessionSvc, err := sessionservice.New(sessions, s.userStore)
	s.Require().NoError(err)
	messageSvc, err := messageservice.New(messages, sessions, s.userStore)
	s.Require().NoError(err)
	documentSvc, err := documentservice.New(documents, s.userStore)
	s.Require().NoError(err)

	tokens := token.New("router-test-signing-key", "ali-test", "ali-api")
	auth, err := authservice.New(users, tokens, revocation.NewMemory())
	s.Require().NoError(err)

	chatSvc, err := chatservice.New(messageSvc, scriptedCompleter{reply: "the deadline is Friday"})
	s.Require().NoError(err)

	s.router = httptransport.NewRouter(httptransport.Services{
		Auth:      auth,
		Users:     users,
		Sessions:  sessionSvc,
		Messages:  messageSvc,
		Chat:      chatSvc,
		Documents: documentSvc,
	}, logger)
}

// signup registers an account through the API, verifies it, and logs in.
func (s *APISuite) signup(email, password string) string {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/auth/register",
		map[string]string{"email": email, "password": password}))
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	created := testutil.UnmarshalResponse[usermodels.User](s.T(), rr)

	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/auth/verify",
		map[string]int64{"user_id": int64(created.ID)}))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())

	return s.login(email, password)
}

func (s *APISuite) login(email, password string) string {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/auth/login",
		map[string]string{"email": email, "password": password}))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())

	login := testutil.UnmarshalResponse[struct {
		Token string `json:"token"`
	}](s.T(), rr)
	s.Require().NotEmpty(login.Token)
	return login.Token
}

// seedAdmin creates an active admin directly in the store. Admin accounts
// cannot be self-registered over the API.
func (s *APISuite) seedAdmin(email, password string) string {
	admin, err := usermodels.NewUser(email, password, usermodels.RoleAdmin, s.now)
	s.Require().NoError(err)
	admin.Status = usermodels.StatusActive
	admin.IsVerified = true
	_, err = s.userStore.Create(context.Background(), admin)
	s.Require().NoError(err)
	return s.login(email, password)
}

func (s *APISuite) do(method, path, bearer string, body any) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = testutil.NewJSONRequest(s.T(), method, path, body)
	} else {
		req = testutil.NewRequest(s.T(), method, path)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return testutil.DoRequest(s.router, req)
}

func (s *APISuite) TestRegisterVerifyLoginFlow() {
	rr := s.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email":    "ana@example.com",
		"password": "strong-password-1",
	})
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	created := testutil.UnmarshalResponse[usermodels.User](s.T(), rr)
	s.Equal("ana@example.com", created.Email)
	s.Equal(usermodels.StatusPending, created.Status)
	s.False(created.IsVerified)

	// Pending accounts cannot log in yet.
	rr = s.do(http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "ana@example.com",
		"password": "strong-password-1",
	})
	s.Equal(http.StatusForbidden, rr.Code)
	s.Equal("USER_NOT_ACTIVE", testutil.UnmarshalErrorResponse(s.T(), rr)["error"])

	rr = s.do(http.MethodPost, "/v1/auth/verify", "", map[string]int64{"user_id": int64(created.ID)})
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())

	bearer := s.login("ana@example.com", "strong-password-1")

	rr = s.do(http.MethodGet, "/v1/auth/me", bearer, nil)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	me := testutil.UnmarshalResponse[usermodels.User](s.T(), rr)
	s.Equal(created.ID, me.ID)
	s.Equal(usermodels.StatusActive, me.Status)
}

func (s *APISuite) TestMissingTokenRejected() {
	rr := s.do(http.MethodGet, "/v1/sessions", "", nil)
	s.Equal(http.StatusUnauthorized, rr.Code)
	s.Equal("unauthorized", testutil.UnmarshalErrorResponse(s.T(), rr)["error"])
}

func (s *APISuite) TestLogoutRevokesToken() {
	bearer := s.signup("leo@example.com", "strong-password-1")

	rr := s.do(http.MethodPost, "/v1/auth/logout", bearer, nil)
	s.Require().Equal(http.StatusNoContent, rr.Code, rr.Body.String())

	rr = s.do(http.MethodGet, "/v1/auth/me", bearer, nil)
	s.Equal(http.StatusUnauthorized, rr.Code)
}

func (s *APISuite) TestChatTurnPersistsConversation() {
	bearer := s.signup("maria@example.com", "strong-password-1")

	rr := s.do(http.MethodPost, "/v1/sessions", bearer, map[string]string{
		"name": "support chat",
		"type": string(sessionmodels.TypeChat),
	})
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	session := testutil.UnmarshalResponse[sessionmodels.Session](s.T(), rr)

	rr = s.do(http.MethodPost, fmt.Sprintf("/v1/sessions/%s/chat", session.ID), bearer,
		map[string]string{"content": "when is the deadline?"})
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())

	turn := testutil.UnmarshalResponse[struct {
		UserMessage      messagemodels.Message `json:"user_message"`
		AssistantMessage messagemodels.Message `json:"assistant_message"`
	}](s.T(), rr)
	s.Equal("when is the deadline?", turn.UserMessage.Content)
	s.Equal("the deadline is Friday", turn.AssistantMessage.Content)
	s.Equal(messagemodels.RoleAssistant, turn.AssistantMessage.Role)
	s.Equal("stub-model", turn.AssistantMessage.Metadata.ModelUsed)

	rr = s.do(http.MethodGet, fmt.Sprintf("/v1/sessions/%s/messages", session.ID), bearer, nil)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	listed := testutil.UnmarshalResponse[struct {
		Messages []messagemodels.Message `json:"messages"`
	}](s.T(), rr)
	s.Len(listed.Messages, 2)
}

func (s *APISuite) TestDocumentLifecycle() {
	bearer := s.signup("docs@example.com", "strong-password-1")

	rr := s.do(http.MethodPost, "/v1/documents", bearer, map[string]any{
		"title":    "Onboarding Guide",
		"raw_text": "Welcome to the team. Read this first.",
		"type":     string(documentmodels.TypeManual),
		"tags":     []string{"onboarding"},
	})
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	document := testutil.UnmarshalResponse[documentmodels.Document](s.T(), rr)
	s.Equal(documentmodels.StatusDraft, document.Status)

	rr = s.do(http.MethodPost, fmt.Sprintf("/v1/documents/%s/publish", document.ID), bearer, nil)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	published := testutil.UnmarshalResponse[documentmodels.Document](s.T(), rr)
	s.Equal(documentmodels.StatusActive, published.Status)

	rr = s.do(http.MethodGet, "/v1/documents/search?q=onboarding", bearer, nil)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	found := testutil.UnmarshalResponse[struct {
		Documents []documentmodels.Document `json:"documents"`
	}](s.T(), rr)
	s.Require().Len(found.Documents, 1)
	s.Equal(document.ID, found.Documents[0].ID)
}

func (s *APISuite) TestOwnerBulkArchivesOwnDocuments() {
	bearer := s.signup("bulkdocs@example.com", "strong-password-1")

	var ids []string
	for _, doc := range []struct{ title, text string }{
		{"Ata da reunião", "primeiro corpo"},
		{"Relatório mensal", "segundo corpo"},
	} {
		rr := s.do(http.MethodPost, "/v1/documents", bearer, map[string]any{
			"title":    doc.title,
			"raw_text": doc.text,
			"type":     string(documentmodels.TypeManual),
		})
		s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
		created := testutil.UnmarshalResponse[documentmodels.Document](s.T(), rr)
		ids = append(ids, created.ID.String())
	}

	rr := s.do(http.MethodPost, "/v1/documents/bulk/status", bearer, map[string]any{
		"document_ids": ids,
		"status":       string(documentmodels.StatusArchived),
	})
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())

	result := testutil.UnmarshalResponse[struct {
		Success int      `json:"success"`
		Failed  int      `json:"failed"`
		Errors  []string `json:"errors"`
	}](s.T(), rr)
	s.Equal(2, result.Success)
	s.Equal(0, result.Failed)
}

func (s *APISuite) TestAdminRoutesRequireAdminRole() {
	viewer := s.signup("viewer@example.com", "strong-password-1")

	rr := s.do(http.MethodGet, "/v1/users", viewer, nil)
	s.Equal(http.StatusForbidden, rr.Code)
	s.Equal("forbidden", testutil.UnmarshalErrorResponse(s.T(), rr)["error"])

	admin := s.seedAdmin("root@example.com", "strong-password-1")
	rr = s.do(http.MethodGet, "/v1/users", admin, nil)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	listed := testutil.UnmarshalResponse[struct {
		Users []usermodels.User `json:"users"`
	}](s.T(), rr)
	s.NotEmpty(listed.Users)
}

func (s *APISuite) TestUnknownSessionMapsToNotFound() {
	bearer := s.signup("nf@example.com", "strong-password-1")

	rr := s.do(http.MethodGet, "/v1/sessions/4f9f1f1e-6a51-4f6e-9a5a-0a3d1a2b3c4d", bearer, nil)
	s.Equal(http.StatusNotFound, rr.Code)
	s.Equal("SESSION_NOT_FOUND", testutil.UnmarshalErrorResponse(s.T(), rr)["error"])
}
