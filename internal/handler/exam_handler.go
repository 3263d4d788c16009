package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-grader/internal/dto"
	"github.com/noah-isme/gema-exam-grader/internal/service"
	"github.com/noah-isme/gema-exam-grader/internal/utils"
)

// ExamHandler exposes exam grading endpoints.
type ExamHandler struct {
	service   service.ExamGradingService
	logger    zerolog.Logger
	rateLimit fiber.Handler
}

// NewExamHandler constructs an exam handler. rateLimit may be nil.
func NewExamHandler(service service.ExamGradingService, rateLimit fiber.Handler, logger zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		service:   service,
		logger:    logger.With().Str("component", "exam_handler").Logger(),
		rateLimit: rateLimit,
	}
}

// Register wires exam routes.
func (h *ExamHandler) Register(router fiber.Router) {
	grading := []fiber.Handler{}
	if h.rateLimit != nil {
		grading = append(grading, h.rateLimit)
	}

	router.Post("/upload-exams", append(grading, h.upload)...)
	router.Post("/review-exams", append(grading, h.review)...)
	router.Get("/exams", h.list)
}

func (h *ExamHandler) upload(c *fiber.Ctx) error {
	var payload dto.UploadExamsRequest
	if ok, err := parseBody(c, &payload); !ok {
		return err
	}

	results, err := h.service.UploadAndCorrect(c.UserContext(), payload)
	if err != nil {
		return h.handleError(c, err, "failed to grade exams")
	}

	return utils.SendSuccess(c, "exams graded", results)
}

func (h *ExamHandler) review(c *fiber.Ctx) error {
	var payload dto.ReviewExamsRequest
	if ok, err := parseBody(c, &payload); !ok {
		return err
	}

	results, err := h.service.ReviewExams(c.UserContext(), payload)
	if err != nil {
		return h.handleError(c, err, "failed to review exams")
	}

	return utils.SendSuccess(c, "exams reviewed", results)
}

func (h *ExamHandler) list(c *fiber.Ctx) error {
	exams, err := h.service.GetAllExams(c.UserContext())
	if err != nil {
		return h.handleError(c, err, "failed to list exams")
	}

	return utils.SendSuccess(c, "exams retrieved", exams)
}

func (h *ExamHandler) handleError(c *fiber.Ctx, err error, logMessage string) error {
	switch {
	case isValidationError(err):
		return sendValidationError(c, err)
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg(logMessage)
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
