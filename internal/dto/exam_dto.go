package dto

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-exam-grader/internal/models"
	"github.com/noah-isme/gema-exam-grader/pkg/ai"
)

// QuestionInput is a single question and the student's answer as submitted.
type QuestionInput struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ExamInput is one exam inside an upload batch.
type ExamInput struct {
	StudentName string          `json:"student_name" validate:"required,notblank,max=255"`
	Questions   []QuestionInput `json:"questions" validate:"required,min=1"`
}

// UploadExamsRequest is the payload for grading a batch of new exams.
type UploadExamsRequest struct {
	Exams []ExamInput `json:"exams" validate:"required,min=1,dive"`
}

// ReviewExamsRequest lists stored exams to grade again.
type ReviewExamsRequest struct {
	ExamIDs []uint `json:"exam_ids" validate:"required,min=1,dive,gt=0"`
}

// GradedExamResponse is the per-exam entry of an upload or review response.
type GradedExamResponse struct {
	ExamID      uint        `json:"exam_id,omitempty"`
	StudentName string      `json:"student_name"`
	Feedback    ai.Feedback `json:"feedback"`
	Score       float64     `json:"score"`
	Error       string      `json:"error,omitempty"`
}

// ExamResultResponse is a stored result with its feedback decoded.
type ExamResultResponse struct {
	ID        uint        `json:"id"`
	ExamID    uint        `json:"exam_id"`
	Feedback  ai.Feedback `json:"feedback"`
	Score     float64     `json:"score"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ExamResponse is a stored exam with its questions and result decoded.
type ExamResponse struct {
	ID          uint                `json:"id"`
	StudentName string              `json:"student_name"`
	Questions   []QuestionInput     `json:"questions"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Result      *ExamResultResponse `json:"result"`
}

// ChatRequest is the payload for the ungraded chat passthrough.
type ChatRequest struct {
	Prompt string `json:"prompt" validate:"required,notblank"`
}

// EncodeQuestions serializes questions for storage, preserving order.
func EncodeQuestions(questions []QuestionInput) (datatypes.JSON, error) {
	if questions == nil {
		questions = []QuestionInput{}
	}
	payload, err := json.Marshal(questions)
	if err != nil {
		return nil, fmt.Errorf("encode questions: %w", err)
	}
	return datatypes.JSON(payload), nil
}

// DecodeQuestions restores questions from their stored form.
func DecodeQuestions(raw datatypes.JSON) ([]QuestionInput, error) {
	questions := []QuestionInput{}
	if len(raw) == 0 {
		return questions, nil
	}
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	return questions, nil
}

// EncodeFeedback serializes grading feedback for storage.
func EncodeFeedback(feedback ai.Feedback) (datatypes.JSON, error) {
	payload, err := json.Marshal(feedback)
	if err != nil {
		return nil, fmt.Errorf("encode feedback: %w", err)
	}
	return datatypes.JSON(payload), nil
}

// DecodeFeedback restores stored feedback. Unreadable rows come back as a
// degraded payload holding the stored text.
func DecodeFeedback(raw datatypes.JSON) ai.Feedback {
	var feedback ai.Feedback
	if err := json.Unmarshal(raw, &feedback); err != nil {
		text := string(raw)
		return ai.Feedback{Error: "stored feedback could not be decoded", RawText: &text}
	}
	return feedback
}

// ToQuestionAnswers converts submitted questions into grading prompt input.
func ToQuestionAnswers(questions []QuestionInput) []ai.QuestionAnswer {
	pairs := make([]ai.QuestionAnswer, 0, len(questions))
	for _, q := range questions {
		pairs = append(pairs, ai.QuestionAnswer{Question: q.Question, Answer: q.Answer})
	}
	return pairs
}

// NewExamResponse decodes a stored exam and its result.
func NewExamResponse(exam models.Exam) (ExamResponse, error) {
	questions, err := DecodeQuestions(exam.Questions)
	if err != nil {
		return ExamResponse{}, err
	}

	response := ExamResponse{
		ID:          exam.ID,
		StudentName: exam.StudentName,
		Questions:   questions,
		CreatedAt:   exam.CreatedAt,
		UpdatedAt:   exam.UpdatedAt,
	}

	if exam.Result != nil {
		response.Result = &ExamResultResponse{
			ID:        exam.Result.ID,
			ExamID:    exam.Result.ExamID,
			Feedback:  DecodeFeedback(exam.Result.Feedback),
			Score:     exam.Result.Score,
			CreatedAt: exam.Result.CreatedAt,
			UpdatedAt: exam.Result.UpdatedAt,
		}
	}

	return response, nil
}

// NewExamResponseSlice decodes a list of stored exams.
func NewExamResponseSlice(exams []models.Exam) ([]ExamResponse, error) {
	responses := make([]ExamResponse, 0, len(exams))
	for _, exam := range exams {
		response, err := NewExamResponse(exam)
		if err != nil {
			return nil, fmt.Errorf("exam %d: %w", exam.ID, err)
		}
		responses = append(responses, response)
	}
	return responses, nil
}
