// Package chat defines the outbound completion port: the contract against
// the model backend that produces assistant replies.
package chat

import (
	"context"

	id "ali/pkg/domain"
)

//go:generate mockgen -source=chat.go -destination=mocks/completer-mocks.go -package=mocks Completer

// Turn is one prior message passed to the backend as conversation context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries the user's message plus conversation context.
type Request struct {
	SessionID id.SessionID `json:"session_id"`
	UserID    id.UserID    `json:"user_id"`
	Messages  []Turn       `json:"messages"`
}

// Completion is the backend's reply with its usage accounting.
type Completion struct {
	Content        string   `json:"content"`
	ModelUsed      string   `json:"model_used"`
	TokensUsed     int      `json:"tokens_used"`
	ProcessingTime float64  `json:"processing_time"`
	Confidence     *float64 `json:"confidence,omitempty"`
}

// Completer produces an assistant reply for a conversation.
type Completer interface {
	Respond(ctx context.Context, req Request) (*Completion, error)
}
