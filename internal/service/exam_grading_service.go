package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-grader/internal/dto"
	"github.com/noah-isme/gema-exam-grader/internal/models"
	"github.com/noah-isme/gema-exam-grader/internal/observability"
	"github.com/noah-isme/gema-exam-grader/internal/repository"
	"github.com/noah-isme/gema-exam-grader/pkg/ai"
)

// ErrExamNotFound indicates the requested exam does not exist.
var ErrExamNotFound = errors.New("exam not found")

const (
	operationUpload = "upload"
	operationReview = "review"
)

// ExamGradingService grades exam batches and exposes the stored results.
type ExamGradingService interface {
	UploadAndCorrect(ctx context.Context, payload dto.UploadExamsRequest) ([]dto.GradedExamResponse, error)
	ReviewExams(ctx context.Context, payload dto.ReviewExamsRequest) ([]dto.GradedExamResponse, error)
	GetAllExams(ctx context.Context) ([]dto.ExamResponse, error)
}

// ExamGradingConfig tunes batch processing.
type ExamGradingConfig struct {
	// Concurrency is the number of exams of one batch graded at the same
	// time. Values below 2 grade sequentially.
	Concurrency int
}

type examGradingService struct {
	repo        repository.ExamRepository
	grader      ai.Grader
	interpreter *ai.ResponseInterpreter
	cache       ExamListCache
	events      GradingEventPublisher
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	config      ExamGradingConfig
	now         func() time.Time
}

// NewExamGradingService constructs the grading service. cache and events may be nil.
func NewExamGradingService(repo repository.ExamRepository, grader ai.Grader, cache ExamListCache, events GradingEventPublisher, validate *validator.Validate, logger zerolog.Logger, cfg ExamGradingConfig) ExamGradingService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	return &examGradingService{
		repo:        repo,
		grader:      grader,
		interpreter: ai.NewResponseInterpreter(),
		cache:       cache,
		events:      events,
		validator:   validate,
		logger:      logger.With().Str("component", "exam_grading_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-exam-grader/internal/service/exam_grading"),
		config:      cfg,
		now:         time.Now,
	}
}

func (s *examGradingService) UploadAndCorrect(ctx context.Context, payload dto.UploadExamsRequest) ([]dto.GradedExamResponse, error) {
	ctx, span := s.tracer.Start(ctx, "exams.upload", trace.WithAttributes(
		attribute.Int("exams.batch_size", len(payload.Exams)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return nil, err
	}
	defer s.invalidateCache(ctx)

	results := make([]dto.GradedExamResponse, len(payload.Exams))
	err := s.forEach(ctx, len(payload.Exams), func(ctx context.Context, i int) error {
		input := payload.Exams[i]

		outcome := s.grade(ctx, operationUpload, input.Questions)
		feedback := outcome.Feedback()

		questions, err := dto.EncodeQuestions(input.Questions)
		if err != nil {
			return err
		}
		encodedFeedback, err := dto.EncodeFeedback(feedback)
		if err != nil {
			return err
		}

		exam := models.Exam{
			StudentName: strings.TrimSpace(input.StudentName),
			Questions:   questions,
		}
		result := models.ExamResult{
			Feedback: encodedFeedback,
			Score:    outcome.Score,
		}
		if err := s.repo.CreateWithResult(ctx, &exam, &result); err != nil {
			return fmt.Errorf("persist exam for %q: %w", exam.StudentName, err)
		}

		s.publish(ctx, operationUpload, exam, outcome)

		results[i] = dto.GradedExamResponse{
			ExamID:      exam.ID,
			StudentName: exam.StudentName,
			Feedback:    feedback,
			Score:       outcome.Score,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload_failed")
		return nil, err
	}

	return results, nil
}

func (s *examGradingService) ReviewExams(ctx context.Context, payload dto.ReviewExamsRequest) ([]dto.GradedExamResponse, error) {
	ctx, span := s.tracer.Start(ctx, "exams.review", trace.WithAttributes(
		attribute.Int("exams.batch_size", len(payload.ExamIDs)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return nil, err
	}
	defer s.invalidateCache(ctx)

	results := make([]dto.GradedExamResponse, len(payload.ExamIDs))
	err := s.forEach(ctx, len(payload.ExamIDs), func(ctx context.Context, i int) error {
		examID := payload.ExamIDs[i]

		exam, err := s.repo.GetByID(ctx, examID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.logger.Warn().Uint("exam_id", examID).Msg("review requested for unknown exam")
				results[i] = dto.GradedExamResponse{
					ExamID:   examID,
					Feedback: ai.Feedback{Error: ErrExamNotFound.Error()},
					Score:    0,
					Error:    ErrExamNotFound.Error(),
				}
				return nil
			}
			return fmt.Errorf("load exam %d: %w", examID, err)
		}

		questions, err := dto.DecodeQuestions(exam.Questions)
		if err != nil {
			return fmt.Errorf("exam %d: %w", examID, err)
		}

		outcome := s.grade(ctx, operationReview, questions)
		feedback := outcome.Feedback()

		encodedFeedback, err := dto.EncodeFeedback(feedback)
		if err != nil {
			return err
		}
		result := models.ExamResult{
			ExamID:   exam.ID,
			Feedback: encodedFeedback,
			Score:    outcome.Score,
		}
		if err := s.repo.UpsertResult(ctx, &result); err != nil {
			return fmt.Errorf("persist result for exam %d: %w", examID, err)
		}

		s.publish(ctx, operationReview, exam, outcome)

		results[i] = dto.GradedExamResponse{
			ExamID:      exam.ID,
			StudentName: exam.StudentName,
			Feedback:    feedback,
			Score:       outcome.Score,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "review_failed")
		return nil, err
	}

	return results, nil
}

func (s *examGradingService) GetAllExams(ctx context.Context) ([]dto.ExamResponse, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx); ok {
			return cached, nil
		}
	}

	exams, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	responses, err := dto.NewExamResponseSlice(exams)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, responses)
	}

	return responses, nil
}

// grade runs prompt, remote call and interpretation for one exam. Upstream
// failures become degraded outcomes; this never fails.
func (s *examGradingService) grade(ctx context.Context, operation string, questions []dto.QuestionInput) ai.Outcome {
	ctx, span := s.tracer.Start(ctx, "exams.grade", trace.WithAttributes(
		attribute.Int("exams.question_count", len(questions)),
	))
	defer span.End()

	start := s.now()
	defer func() {
		observability.ExamGradingDuration().WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	pairs := gradablePairs(questions)

	var outcome ai.Outcome
	switch {
	case len(pairs) == 0:
		s.logger.Warn().Int("question_count", len(questions)).Msg("exam has no gradable questions, skipping remote call")
		outcome = s.interpreter.Degrade(ai.ErrNoGradableQuestions)
	case s.grader == nil:
		outcome = s.interpreter.Degrade(ai.ErrMissingCredential)
	default:
		prompt := ai.BuildGradingPrompt(pairs)
		raw, err := s.grader.Complete(ctx, prompt)
		if err != nil {
			s.logger.Warn().Err(err).Bool("upstream", ai.IsUpstreamFailure(err)).Msg("grading request failed, storing degraded result")
			outcome = s.interpreter.Degrade(err)
		} else {
			outcome = s.interpreter.Interpret(raw)
			if outcome.Degraded {
				s.logger.Warn().Str("reason", outcome.Error).Msg("grading response not parseable, storing raw text")
			}
		}
	}

	label := "graded"
	if outcome.Degraded {
		label = "degraded"
		span.SetAttributes(attribute.String("exams.degraded_reason", outcome.Error))
	}
	span.SetAttributes(attribute.Float64("exams.score", outcome.Score))
	observability.ExamsGraded().WithLabelValues(operation, label).Inc()

	return outcome
}

func gradablePairs(questions []dto.QuestionInput) []ai.QuestionAnswer {
	pairs := dto.ToQuestionAnswers(questions)
	valid := pairs[:0]
	for _, pair := range pairs {
		if pair.Valid() {
			valid = append(valid, pair)
		}
	}
	return valid
}

// forEach runs fn for every index, at most Concurrency at a time. The first
// error cancels the remaining work.
func (s *examGradingService) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if s.config.Concurrency <= 1 {
		for i := 0; i < n; i++ {
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.config.Concurrency)
	for i := 0; i < n; i++ {
		i := i
		group.Go(func() error {
			return fn(groupCtx, i)
		})
	}
	return group.Wait()
}

func (s *examGradingService) publish(ctx context.Context, operation string, exam models.Exam, outcome ai.Outcome) {
	if s.events == nil {
		return
	}
	event := GradingEvent{
		ExamID:      exam.ID,
		StudentName: exam.StudentName,
		Score:       outcome.Score,
		Degraded:    outcome.Degraded,
		Operation:   operation,
		GradedAt:    s.now().UTC(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Uint("exam_id", exam.ID).Msg("failed to publish grading event")
	}
}

func (s *examGradingService) invalidateCache(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(context.WithoutCancel(ctx))
	}
}
