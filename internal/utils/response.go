package utils

import "github.com/gofiber/fiber/v2"

// APIResponse describes the common structure for API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// Error codes carried in the error field of failed responses.
const (
	ErrorCodeValidation   = "validation_failed"
	ErrorCodeInternal     = "internal_error"
	ErrorCodeUnavailable  = "service_unavailable"
	ErrorCodeUpstream     = "upstream_error"
	ErrorCodeBadRequest   = "bad_request"
	ErrorCodeUnauthorized = "unauthorized"
	ErrorCodeRateLimited  = "rate_limited"
)

// SendSuccess sends a successful JSON response with a message.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus sends a success payload using the provided HTTP status code.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	if message == "" {
		message = "success"
	}
	if status == 0 {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// SendError sends an error JSON response with the given status code.
func SendError(c *fiber.Ctx, status int, message string) error {
	return Fail(c, status, errorCodeForStatus(status), message, nil)
}

// Fail sends an error response carrying a machine readable code and optional details.
func Fail(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	if message == "" {
		message = "error"
	}
	if code == "" {
		code = errorCodeForStatus(status)
	}

	return c.Status(status).JSON(APIResponse{
		Success: false,
		Message: message,
		Error:   code,
		Details: details,
	})
}

func errorCodeForStatus(status int) string {
	switch {
	case status == fiber.StatusUnprocessableEntity:
		return ErrorCodeValidation
	case status == fiber.StatusUnauthorized:
		return ErrorCodeUnauthorized
	case status == fiber.StatusTooManyRequests:
		return ErrorCodeRateLimited
	case status == fiber.StatusServiceUnavailable:
		return ErrorCodeUnavailable
	case status == fiber.StatusBadGateway:
		return ErrorCodeUpstream
	case status >= fiber.StatusInternalServerError:
		return ErrorCodeInternal
	default:
		return ErrorCodeBadRequest
	}
}
