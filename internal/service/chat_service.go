package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-grader/internal/dto"
	"github.com/noah-isme/gema-exam-grader/pkg/ai"
)

// ErrChatUnavailable indicates the chat model has no credential configured.
var ErrChatUnavailable = errors.New("chat model unavailable")

// ChatClient forwards a free-form prompt to the chat model.
type ChatClient interface {
	Passthrough(ctx context.Context, prompt string) (ai.ChatPassthrough, error)
}

// ChatService relays ungraded prompts to the chat model.
type ChatService interface {
	Ask(ctx context.Context, payload dto.ChatRequest) (ai.ChatPassthrough, error)
}

type chatService struct {
	client    ChatClient
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewChatService constructs the passthrough chat service.
func NewChatService(client ChatClient, validate *validator.Validate, logger zerolog.Logger) ChatService {
	return &chatService{
		client:    client,
		validator: validate,
		logger:    logger.With().Str("component", "chat_service").Logger(),
	}
}

func (s *chatService) Ask(ctx context.Context, payload dto.ChatRequest) (ai.ChatPassthrough, error) {
	if err := s.validator.Struct(payload); err != nil {
		return ai.ChatPassthrough{}, err
	}
	if s.client == nil {
		return ai.ChatPassthrough{}, ErrChatUnavailable
	}

	result, err := s.client.Passthrough(ctx, payload.Prompt)
	if err != nil {
		if errors.Is(err, ai.ErrMissingCredential) {
			return ai.ChatPassthrough{}, ErrChatUnavailable
		}
		return ai.ChatPassthrough{}, err
	}

	return result, nil
}
