package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-grader/internal/database"
	"github.com/noah-isme/gema-exam-grader/internal/dto"
	"github.com/noah-isme/gema-exam-grader/internal/handler"
	"github.com/noah-isme/gema-exam-grader/internal/models"
	"github.com/noah-isme/gema-exam-grader/internal/repository"
	"github.com/noah-isme/gema-exam-grader/internal/service"
	"github.com/noah-isme/gema-exam-grader/internal/utils"
	"github.com/noah-isme/gema-exam-grader/pkg/ai"
)

const gradedExamSchema = `{
  "type": "object",
  "required": ["success", "message", "data"],
  "properties": {
    "success": {"const": true},
    "data": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["student_name", "feedback", "score"],
        "properties": {
          "exam_id": {"type": "integer", "minimum": 1},
          "student_name": {"type": "string"},
          "score": {"type": "number", "minimum": 0, "maximum": 100},
          "feedback": {
            "type": "object",
            "anyOf": [
              {"required": ["evaluations", "total_score"]},
              {"required": ["error"]}
            ]
          }
        }
      }
    }
  }
}`

type envelope[T any] struct {
	Success bool               `json:"success"`
	Data    T                  `json:"data"`
	Message string             `json:"message"`
	Error   string             `json:"error"`
	Details []utils.FieldError `json:"details"`
}

// fakeDeepSeek answers chat completions with content picked by the first
// matching marker in the user message.
func fakeDeepSeek(t *testing.T, replies map[string]string, fallback string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		content := fallback
		for marker, reply := range replies {
			if strings.Contains(string(body), marker) {
				content = reply
				break
			}
		}
		if content == "" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}

		payload, err := json.Marshal(map[string]interface{}{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1,
			"model":   "deepseek-chat",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	}))
	t.Cleanup(server.Close)
	return server
}

func setupExamApp(t *testing.T, grader ai.Grader) (*fiber.App, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	db, err := database.ConnectSQLite(dsn)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Exam{}, &models.ExamResult{}))

	logger := zerolog.New(io.Discard)
	svc := service.NewExamGradingService(repository.NewExamRepository(db), grader, nil, nil, utils.NewValidator(), logger, service.ExamGradingConfig{Concurrency: 1})

	app := fiber.New()
	handler.NewExamHandler(svc, nil, logger).Register(app.Group("/api"))
	return app, db
}

func postJSON(t *testing.T, app *fiber.App, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func TestExamHandler_UploadGradesAndPersists(t *testing.T) {
	server := fakeDeepSeek(t, nil, `{"evaluations":[{"question":"2+2?","student_answer":"4","is_correct":true,"feedback":"Correct","points":10}],"total_score":100}`)
	client := ai.NewDeepSeekClient(ai.DeepSeekConfig{APIKey: "test-key", BaseURL: server.URL + "/v1", Logger: zerolog.Nop()})
	app, db := setupExamApp(t, client)

	resp := postJSON(t, app, "/api/upload-exams", `{"exams":[{"student_name":"Ana","questions":[{"question":"2+2?","answer":"4"}]}]}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	schema := jsonschema.MustCompileString("graded_exam_response.json", gradedExamSchema)
	var document interface{}
	require.NoError(t, json.Unmarshal(raw, &document))
	require.NoError(t, schema.Validate(document))

	var body envelope[[]dto.GradedExamResponse]
	require.NoError(t, json.Unmarshal(raw, &body))
	require.True(t, body.Success)
	require.Len(t, body.Data, 1)
	require.Equal(t, "Ana", body.Data[0].StudentName)
	require.Equal(t, 100.0, body.Data[0].Score)
	require.NotNil(t, body.Data[0].Feedback.TotalScore)
	require.Equal(t, 100.0, *body.Data[0].Feedback.TotalScore)

	var exams int64
	require.NoError(t, db.Model(&models.Exam{}).Count(&exams).Error)
	require.Equal(t, int64(1), exams)

	var result models.ExamResult
	require.NoError(t, db.First(&result, "exam_id = ?", body.Data[0].ExamID).Error)
	require.Equal(t, 100.0, result.Score)
}

func TestExamHandler_UploadDegradesOnUpstreamFailure(t *testing.T) {
	server := fakeDeepSeek(t, map[string]string{
		"2+2?":  `{"evaluations":[{"is_correct":true,"points":10}],"total_score":100}`,
		"essay": "The answer looks fine to me.",
	}, "")
	client := ai.NewDeepSeekClient(ai.DeepSeekConfig{APIKey: "test-key", BaseURL: server.URL + "/v1", Logger: zerolog.Nop()})
	app, _ := setupExamApp(t, client)

	resp := postJSON(t, app, "/api/upload-exams", `{"exams":[
		{"student_name":"Ana","questions":[{"question":"2+2?","answer":"4"}]},
		{"student_name":"Bruno","questions":[{"question":"capital of Chile?","answer":"Santiago"}]},
		{"student_name":"Carla","questions":[{"question":"essay","answer":"..."}]}
	]}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body envelope[[]dto.GradedExamResponse]
	decodeResponse(t, resp, &body)
	require.Len(t, body.Data, 3)

	require.Equal(t, 100.0, body.Data[0].Score)

	require.Equal(t, "Bruno", body.Data[1].StudentName)
	require.Zero(t, body.Data[1].Score)
	require.Contains(t, body.Data[1].Feedback.Error, "500")

	require.Equal(t, "Carla", body.Data[2].StudentName)
	require.Zero(t, body.Data[2].Score)
	require.NotNil(t, body.Data[2].Feedback.RawText)
	require.Equal(t, "The answer looks fine to me.", *body.Data[2].Feedback.RawText)
}

func TestExamHandler_UploadWithoutCredentialStoresDegradedResult(t *testing.T) {
	client := ai.NewDeepSeekClient(ai.DeepSeekConfig{BaseURL: "http://127.0.0.1:1/v1", Logger: zerolog.Nop()})
	app, db := setupExamApp(t, client)

	resp := postJSON(t, app, "/api/upload-exams", `{"exams":[{"student_name":"Ana","questions":[{"question":"2+2?","answer":"4"}]}]}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body envelope[[]dto.GradedExamResponse]
	decodeResponse(t, resp, &body)
	require.Equal(t, ai.ErrMissingCredential.Error(), body.Data[0].Feedback.Error)

	var count int64
	require.NoError(t, db.Model(&models.ExamResult{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestExamHandler_UploadValidation(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{name: "missing student name", body: `{"exams":[{"questions":[{"question":"q","answer":"a"}]}]}`, field: "exams[0].student_name"},
		{name: "blank student name", body: `{"exams":[{"student_name":"  ","questions":[{"question":"q","answer":"a"}]}]}`, field: "exams[0].student_name"},
		{name: "no questions", body: `{"exams":[{"student_name":"Ana","questions":[]}]}`, field: "exams[0].questions"},
		{name: "empty batch", body: `{"exams":[]}`, field: "exams"},
		{name: "malformed json", body: `{"exams":`, field: "body"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app, db := setupExamApp(t, nil)

			resp := postJSON(t, app, "/api/upload-exams", tc.body)
			require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

			var body envelope[json.RawMessage]
			decodeResponse(t, resp, &body)
			require.False(t, body.Success)
			require.Equal(t, utils.ErrorCodeValidation, body.Error)
			require.NotEmpty(t, body.Details)
			require.Equal(t, tc.field, body.Details[0].Field)

			var count int64
			require.NoError(t, db.Model(&models.Exam{}).Count(&count).Error)
			require.Zero(t, count)
		})
	}
}

func TestExamHandler_ReviewAndList(t *testing.T) {
	server := fakeDeepSeek(t, nil, `{"evaluations":[{"question":"2+2?","student_answer":"5","is_correct":false,"feedback":"<b>Wrong</b>","points":0}],"total_score":0}`)
	client := ai.NewDeepSeekClient(ai.DeepSeekConfig{APIKey: "test-key", BaseURL: server.URL + "/v1", Logger: zerolog.Nop()})
	app, db := setupExamApp(t, client)

	resp := postJSON(t, app, "/api/upload-exams", `{"exams":[{"student_name":"Ana","questions":[{"question":"2+2?","answer":"5"}]}]}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var uploaded envelope[[]dto.GradedExamResponse]
	decodeResponse(t, resp, &uploaded)
	examID := uploaded.Data[0].ExamID

	resp = postJSON(t, app, "/api/review-exams", fmt.Sprintf(`{"exam_ids":[%d, 404]}`, examID))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var reviewed envelope[[]dto.GradedExamResponse]
	decodeResponse(t, resp, &reviewed)
	require.Len(t, reviewed.Data, 2)
	require.Equal(t, "Ana", reviewed.Data[0].StudentName)
	require.Equal(t, "Wrong", reviewed.Data[0].Feedback.Evaluations[0].Feedback)
	require.Equal(t, uint(404), reviewed.Data[1].ExamID)
	require.Equal(t, "exam not found", reviewed.Data[1].Error)

	var results int64
	require.NoError(t, db.Model(&models.ExamResult{}).Count(&results).Error)
	require.Equal(t, int64(1), results)

	req := httptest.NewRequest(http.MethodGet, "/api/exams", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var listed envelope[[]dto.ExamResponse]
	decodeResponse(t, resp, &listed)
	require.Len(t, listed.Data, 1)
	require.Equal(t, []dto.QuestionInput{{Question: "2+2?", Answer: "5"}}, listed.Data[0].Questions)
	require.NotNil(t, listed.Data[0].Result)
	require.Equal(t, ai.Incorrect, listed.Data[0].Result.Feedback.Evaluations[0].IsCorrect)
}

func TestExamHandler_ReviewValidation(t *testing.T) {
	app, _ := setupExamApp(t, nil)

	resp := postJSON(t, app, "/api/review-exams", `{"exam_ids":[]}`)
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp = postJSON(t, app, "/api/review-exams", `{"exam_ids":[0]}`)
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestExamHandler_ListEmpty(t *testing.T) {
	app, _ := setupExamApp(t, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/exams", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var listed envelope[[]dto.ExamResponse]
	decodeResponse(t, resp, &listed)
	require.True(t, listed.Success)
	require.NotNil(t, listed.Data)
	require.Empty(t, listed.Data)
}

type failingExamService struct{}

func (failingExamService) UploadAndCorrect(_ context.Context, _ dto.UploadExamsRequest) ([]dto.GradedExamResponse, error) {
	return nil, errors.New("disk full")
}

func (failingExamService) ReviewExams(_ context.Context, _ dto.ReviewExamsRequest) ([]dto.GradedExamResponse, error) {
	return nil, errors.New("disk full")
}

func (failingExamService) GetAllExams(_ context.Context) ([]dto.ExamResponse, error) {
	return nil, errors.New("disk full")
}

func TestExamHandler_InternalErrorsAreHidden(t *testing.T) {
	app := fiber.New()
	handler.NewExamHandler(failingExamService{}, nil, zerolog.New(io.Discard)).Register(app.Group("/api"))

	resp := postJSON(t, app, "/api/upload-exams", `{"exams":[{"student_name":"Ana","questions":[{"question":"q","answer":"a"}]}]}`)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	var body envelope[json.RawMessage]
	decodeResponse(t, resp, &body)
	require.Equal(t, "internal server error", body.Message)
	require.Equal(t, utils.ErrorCodeInternal, body.Error)
	require.NotContains(t, body.Message, "disk full")
}
