package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-grader/internal/middleware"
	"github.com/noah-isme/gema-exam-grader/internal/utils"
)

const invalidPayloadMessage = "invalid payload"

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// parseBody decodes the JSON body into target. Malformed bodies are reported
// as validation failures and ok is false.
func parseBody(c *fiber.Ctx, target interface{}) (bool, error) {
	if err := c.BodyParser(target); err != nil {
		return false, utils.Fail(c, fiber.StatusUnprocessableEntity, utils.ErrorCodeValidation, invalidPayloadMessage, []utils.FieldError{{Field: "body", Rule: "json"}})
	}
	return true, nil
}

func sendValidationError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return utils.SendError(c, fiber.StatusUnprocessableEntity, invalidPayloadMessage)
	}
	return utils.Fail(c, fiber.StatusUnprocessableEntity, utils.ErrorCodeValidation, "validation failed", utils.ValidationDetails(validationErrors))
}
