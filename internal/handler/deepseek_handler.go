package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-grader/internal/dto"
	"github.com/noah-isme/gema-exam-grader/internal/service"
	"github.com/noah-isme/gema-exam-grader/internal/utils"
	"github.com/noah-isme/gema-exam-grader/pkg/ai"
)

// DeepSeekHandler relays free-form prompts to the chat model.
type DeepSeekHandler struct {
	service service.ChatService
	logger  zerolog.Logger
}

// NewDeepSeekHandler constructs the passthrough handler.
func NewDeepSeekHandler(service service.ChatService, logger zerolog.Logger) *DeepSeekHandler {
	return &DeepSeekHandler{
		service: service,
		logger:  logger.With().Str("component", "deepseek_handler").Logger(),
	}
}

// Register wires the passthrough route.
func (h *DeepSeekHandler) Register(router fiber.Router) {
	router.Post("/deepseek", h.ask)
}

func (h *DeepSeekHandler) ask(c *fiber.Ctx) error {
	var payload dto.ChatRequest
	if ok, err := parseBody(c, &payload); !ok {
		return err
	}

	result, err := h.service.Ask(c.UserContext(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(result.StatusCode).Send(result.Body)
}

func (h *DeepSeekHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case isValidationError(err):
		return sendValidationError(c, err)
	case errors.Is(err, service.ErrChatUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "chat model is not configured")
	case ai.IsUpstreamFailure(err):
		requestLogger(h.logger, c).Warn().Err(err).Msg("chat passthrough failed upstream")
		return utils.SendError(c, fiber.StatusBadGateway, "chat model request failed")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("chat passthrough failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
