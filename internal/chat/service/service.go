// Package service orchestrates a chat turn: persist the user's message,
// assemble conversation context, call the completion backend, and persist
// the assistant's reply.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"ali/internal/chat"
	messagemodels "ali/internal/message/models"
	messageservice "ali/internal/message/service"
	id "ali/pkg/domain"
	dErrors "ali/pkg/domain-errors"
)

const contextWindow = 10

// Turn is the outcome of one exchange.
type Turn struct {
	UserMessage      *messagemodels.Message
	AssistantMessage *messagemodels.Message
}

type Service struct {
	messages  *messageservice.Service
	completer chat.Completer
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(messages *messageservice.Service, completer chat.Completer, opts ...Option) (*Service, error) {
	if messages == nil {
		return nil, fmt.Errorf("message service is required")
	}
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}

	svc := &Service{
		messages:  messages,
		completer: completer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Send runs one chat turn. The user's message is persisted before the
// backend is called, so a backend failure still leaves the user's side of
// the conversation intact.
func (s *Service) Send(ctx context.Context, sessionID id.SessionID, userID id.UserID, content string) (*Turn, error) {
	userMessage, err := s.messages.CreateUserMessage(ctx, sessionID, userID, content)
	if err != nil {
		return nil, err
	}

	history, err := s.messages.ConversationContext(ctx, sessionID, userID, nil, contextWindow)
	if err != nil {
		return nil, err
	}

	turns := make([]chat.Turn, 0, len(history)+1)
	for _, m := range history {
		// The message persisted above is already part of the context window;
		// it goes last, not twice.
		if m.ID == userMessage.ID {
			continue
		}
		turns = append(turns, chat.Turn{Role: string(m.Role), Content: m.Content})
	}
	turns = append(turns, chat.Turn{Role: string(messagemodels.RoleUser), Content: userMessage.Content})

	completion, err := s.completer.Respond(ctx, chat.Request{
		SessionID: sessionID,
		UserID:    userID,
		Messages:  turns,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "completion failed",
			"session_id", sessionID,
			"user_id", userID,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeMessageProcessingError, "generate assistant reply")
	}

	assistantMessage, err := s.messages.CreateAssistantMessage(ctx, sessionID, userID, completion.Content, messagemodels.Metadata{
		ModelUsed:      completion.ModelUsed,
		TokensUsed:     completion.TokensUsed,
		ProcessingTime: completion.ProcessingTime,
		Confidence:     completion.Confidence,
	})
	if err != nil {
		return nil, err
	}

	return &Turn{
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
	}, nil
}
