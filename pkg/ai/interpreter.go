package ai

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html"
	"math"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/grading_response.schema.json
var gradingResponseSchemaSource string

var gradingResponseSchema = jsonschema.MustCompileString("grading_response.schema.json", gradingResponseSchemaSource)

const (
	maxQuestionPoints = 10.0
	maxTotalScore     = 100.0
)

// ResponseInterpreter turns raw model completions into grading outcomes.
type ResponseInterpreter struct {
	sanitizer *bluemonday.Policy
}

// NewResponseInterpreter constructs an interpreter with a strict text sanitizer.
func NewResponseInterpreter() *ResponseInterpreter {
	return &ResponseInterpreter{sanitizer: bluemonday.StrictPolicy()}
}

type gradingPayload struct {
	Evaluations []Evaluation `json:"evaluations"`
	TotalScore  *float64     `json:"total_score"`
}

// Interpret parses the completion text. Text that is not a JSON object of the
// expected shape yields a degraded outcome carrying the text verbatim; it is
// never reported as an error.
func (i *ResponseInterpreter) Interpret(raw string) Outcome {
	payload, err := decodeGradingPayload(raw)
	if err != nil {
		return Outcome{
			Degraded:   true,
			Error:      fmt.Sprintf("unable to parse grading response: %v", err),
			RawText:    raw,
			HasRawText: true,
		}
	}

	evaluations := make([]Evaluation, 0, len(payload.Evaluations))
	for _, evaluation := range payload.Evaluations {
		evaluation.Points = clamp(evaluation.Points, 0, maxQuestionPoints)
		evaluation.Feedback = i.sanitize(evaluation.Feedback)
		if evaluation.IsCorrect == "" {
			evaluation.IsCorrect = Incorrect
		}
		evaluations = append(evaluations, evaluation)
	}

	var score float64
	switch {
	case len(evaluations) == 0:
		score = 0
	case payload.TotalScore != nil:
		score = clamp(*payload.TotalScore, 0, maxTotalScore)
	default:
		score = ScoreFromPoints(evaluations)
	}

	return Outcome{
		Evaluations: evaluations,
		TotalScore:  payload.TotalScore,
		Score:       round2(score),
	}
}

// Degrade converts an upstream failure into a zero-score outcome.
func (i *ResponseInterpreter) Degrade(err error) Outcome {
	message := "grading failed"
	if err != nil {
		message = err.Error()
	}
	return Outcome{Degraded: true, Error: message}
}

// ScoreFromPoints scales the summed per-question points to 0-100.
func ScoreFromPoints(evaluations []Evaluation) float64 {
	if len(evaluations) == 0 {
		return 0
	}
	var sum float64
	for _, evaluation := range evaluations {
		sum += clamp(evaluation.Points, 0, maxQuestionPoints)
	}
	return clamp(sum/(float64(len(evaluations))*maxQuestionPoints)*maxTotalScore, 0, maxTotalScore)
}

func (i *ResponseInterpreter) sanitize(text string) string {
	if i.sanitizer == nil {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(html.UnescapeString(i.sanitizer.Sanitize(text)))
}

func decodeGradingPayload(raw string) (gradingPayload, error) {
	candidate := extractJSONObject(raw)
	if candidate == "" {
		return gradingPayload{}, fmt.Errorf("no JSON object found")
	}

	var document interface{}
	if err := json.Unmarshal([]byte(candidate), &document); err != nil {
		return gradingPayload{}, err
	}
	if err := gradingResponseSchema.Validate(document); err != nil {
		return gradingPayload{}, fmt.Errorf("response does not match grading schema: %w", err)
	}

	var payload gradingPayload
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return gradingPayload{}, err
	}
	return payload, nil
}

// extractJSONObject strips an optional markdown code fence and any prose
// around the outermost JSON object.
func extractJSONObject(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if newline := strings.IndexByte(text, '\n'); newline >= 0 {
			text = text[newline+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func clamp(value, low, high float64) float64 {
	if math.IsNaN(value) {
		return low
	}
	return math.Max(low, math.Min(high, value))
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
