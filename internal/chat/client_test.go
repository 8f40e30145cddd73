package chat_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ali/internal/chat"
	id "ali/pkg/domain"
	dErrors "ali/pkg/domain-errors"
	"ali/pkg/platform/circuit"
)

func TestHTTPClient_Respond(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		var req chat.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)

		json.NewEncoder(w).Encode(chat.Completion{
			Content:        "resposta",
			ModelUsed:      "ali-v1",
			TokensUsed:     42,
			ProcessingTime: 1.5,
		})
	}))
	defer server.Close()

	client := chat.NewHTTPClient(server.URL, "secret-key")
	completion, err := client.Respond(context.Background(), chat.Request{
		SessionID: id.NewSessionID(),
		UserID:    id.UserID(1),
		Messages:  []chat.Turn{{Role: "user", Content: "pergunta"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "resposta", completion.Content)
	assert.Equal(t, 42, completion.TokensUsed)
	assert.Equal(t, "Bearer secret-key", gotAuth)
}

func TestHTTPClient_BackendErrorsOpenBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	breaker := circuit.New("chat-backend", circuit.WithFailureThreshold(2))
	client := chat.NewHTTPClient(server.URL, "", chat.WithBreaker(breaker))

	req := chat.Request{SessionID: id.NewSessionID(), UserID: id.UserID(1)}

	_, err := client.Respond(context.Background(), req)
	require.Error(t, err)
	assert.False(t, breaker.IsOpen())

	_, err = client.Respond(context.Background(), req)
	require.Error(t, err)
	assert.True(t, breaker.IsOpen())

	// Short-circuits without touching the backend.
	_, err = client.Respond(context.Background(), req)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMessageProcessingError))
	assert.Contains(t, err.Error(), "unavailable")
}

func TestHTTPClient_ClientErrorsDoNotOpenBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	breaker := circuit.New("chat-backend", circuit.WithFailureThreshold(1))
	client := chat.NewHTTPClient(server.URL, "", chat.WithBreaker(breaker))

	_, err := client.Respond(context.Background(), chat.Request{SessionID: id.NewSessionID()})
	require.Error(t, err)
	assert.False(t, breaker.IsOpen())
}
