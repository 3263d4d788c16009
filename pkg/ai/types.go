package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// QuestionAnswer is one exam question together with the student's answer.
type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Valid reports whether both the question and the answer carry text.
func (q QuestionAnswer) Valid() bool {
	return strings.TrimSpace(q.Question) != "" && strings.TrimSpace(q.Answer) != ""
}

// Correctness is the tri-state verdict for a single question.
type Correctness string

const (
	Correct   Correctness = "correct"
	Partial   Correctness = "partial"
	Incorrect Correctness = "incorrect"
)

// UnmarshalJSON accepts booleans as well as the three verdict strings.
func (c *Correctness) UnmarshalJSON(data []byte) error {
	var flag bool
	if err := json.Unmarshal(data, &flag); err == nil {
		if flag {
			*c = Correct
		} else {
			*c = Incorrect
		}
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("is_correct must be a boolean or string: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(text)) {
	case "correct", "true":
		*c = Correct
	case "partial", "partially_correct", "partially correct":
		*c = Partial
	case "incorrect", "false":
		*c = Incorrect
	default:
		return fmt.Errorf("unknown correctness %q", text)
	}
	return nil
}

// MarshalJSON writes correct/incorrect as booleans and partial as the string "partial".
func (c Correctness) MarshalJSON() ([]byte, error) {
	switch c {
	case Correct:
		return []byte("true"), nil
	case Partial:
		return []byte(`"partial"`), nil
	default:
		return []byte("false"), nil
	}
}

// Evaluation is the model's verdict for one question.
type Evaluation struct {
	Question      string      `json:"question"`
	StudentAnswer string      `json:"student_answer"`
	IsCorrect     Correctness `json:"is_correct"`
	Feedback      string      `json:"feedback"`
	Points        float64     `json:"points"`
}

// Feedback is the structured payload stored with an exam result. Graded
// feedback carries evaluations; degraded feedback carries an error and,
// when the model answered at all, its raw text.
type Feedback struct {
	Evaluations []Evaluation `json:"evaluations,omitempty"`
	TotalScore  *float64     `json:"total_score,omitempty"`
	Error       string       `json:"error,omitempty"`
	RawText     *string      `json:"raw_text,omitempty"`
}

// IsDegraded reports whether the feedback describes a failed grading attempt.
func (f Feedback) IsDegraded() bool {
	return f.Error != ""
}

// Outcome is the result of interpreting one grading attempt: either a graded
// set of evaluations or a degraded result with a zero score.
type Outcome struct {
	Degraded    bool
	Evaluations []Evaluation
	// TotalScore is the total the model reported, if it reported one.
	TotalScore *float64
	Score      float64
	Error      string
	RawText    string
	// HasRawText distinguishes an empty completion from no completion at all.
	HasRawText bool
}

// Feedback converts the outcome into its persisted representation.
func (o Outcome) Feedback() Feedback {
	if o.Degraded {
		feedback := Feedback{Error: o.Error}
		if o.HasRawText {
			raw := o.RawText
			feedback.RawText = &raw
		}
		return feedback
	}

	evaluations := o.Evaluations
	if evaluations == nil {
		evaluations = []Evaluation{}
	}
	total := o.Score
	return Feedback{Evaluations: evaluations, TotalScore: &total}
}

// GradingPrompt is the pair of chat messages sent to the grading model.
type GradingPrompt struct {
	System string
	User   string
}

// Grader sends a grading prompt to a remote model and returns its raw completion.
type Grader interface {
	Complete(ctx context.Context, prompt GradingPrompt) (string, error)
}
