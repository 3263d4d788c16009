package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-exam-grader/internal/config"
	"github.com/noah-isme/gema-exam-grader/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Grader      string    `json:"grader"`
}

// HealthCheck returns a handler that reports application health information.
// Grader is "configured" only when a DeepSeek key is present.
func HealthCheck(cfg config.Config) fiber.Handler {
	grader := "unconfigured"
	if cfg.DeepSeekAPIKey != "" {
		grader = "configured"
	}

	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Grader:      grader,
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
