package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultDeepSeekBaseURL is the OpenAI-compatible DeepSeek API root.
	DefaultDeepSeekBaseURL = "https://api.deepseek.com/v1"
	// DefaultDeepSeekModel is the chat model used for grading.
	DefaultDeepSeekModel = "deepseek-chat"
	// DefaultRequestTimeout bounds a single remote call.
	DefaultRequestTimeout = 2 * time.Minute
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "exams",
		Subsystem: "ai",
		Name:      "request_duration_seconds",
		Help:      "Duration of chat completion requests sent to the grading model",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
	}, []string{"model", "operation"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exams",
		Subsystem: "ai",
		Name:      "request_failures_total",
		Help:      "Number of failed chat completion requests",
	}, []string{"model", "operation", "reason"})
)

// DeepSeekConfig defines configuration options for the DeepSeek client.
type DeepSeekConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float32
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// ChatPassthrough is the upstream answer to an ungraded prompt, untouched.
type ChatPassthrough struct {
	StatusCode int
	Body       []byte
}

// DeepSeekClient talks to the DeepSeek chat completion API. Each call is a
// single attempt bounded by the configured timeout.
type DeepSeekClient struct {
	client     *openai.Client
	httpClient *http.Client
	cfg        DeepSeekConfig
	tracer     trace.Tracer
	logger     zerolog.Logger
}

var _ Grader = (*DeepSeekClient)(nil)

// NewDeepSeekClient builds a client. A missing API key is not an error here;
// calls report ErrMissingCredential instead so callers can degrade.
func NewDeepSeekClient(cfg DeepSeekConfig) *DeepSeekClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultDeepSeekBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultDeepSeekModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = cfg.BaseURL
	config.HTTPClient = httpClient

	return &DeepSeekClient{
		client:     openai.NewClientWithConfig(config),
		httpClient: httpClient,
		cfg:        cfg,
		tracer:     otel.Tracer("github.com/noah-isme/gema-exam-grader/pkg/ai/deepseek"),
		logger:     logger.With().Str("component", "deepseek_client").Logger(),
	}
}

// Model returns the configured model name.
func (c *DeepSeekClient) Model() string {
	return c.cfg.Model
}

// Complete sends the grading prompt in JSON output mode and returns the raw
// completion text.
func (c *DeepSeekClient) Complete(parent context.Context, prompt GradingPrompt) (string, error) {
	ctx, span := c.tracer.Start(parent, "deepseek.complete", trace.WithAttributes(
		attribute.String("model", c.cfg.Model),
	))
	defer span.End()

	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", c.fail(span, "complete", ErrMissingCredential)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	request := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt.User},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues(c.cfg.Model, "complete").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", c.fail(span, "complete", classifyOpenAIError(err))
	}

	if len(resp.Choices) == 0 {
		return "", c.fail(span, "complete", ErrEmptyCompletion)
	}

	span.SetAttributes(attribute.Int("usage.total_tokens", resp.Usage.TotalTokens))
	return resp.Choices[0].Message.Content, nil
}

// Passthrough forwards a free-form prompt as a single user message and hands
// back the upstream status code and body verbatim.
func (c *DeepSeekClient) Passthrough(parent context.Context, prompt string) (ChatPassthrough, error) {
	ctx, span := c.tracer.Start(parent, "deepseek.passthrough", trace.WithAttributes(
		attribute.String("model", c.cfg.Model),
	))
	defer span.End()

	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return ChatPassthrough{}, c.fail(span, "passthrough", ErrMissingCredential)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return ChatPassthrough{}, fmt.Errorf("encode passthrough request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return ChatPassthrough{}, fmt.Errorf("build passthrough request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	aiDuration.WithLabelValues(c.cfg.Model, "passthrough").Observe(time.Since(start).Seconds())
	if err != nil {
		return ChatPassthrough{}, c.fail(span, "passthrough", newTransportError(err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatPassthrough{}, c.fail(span, "passthrough", newTransportError(err))
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		aiFailures.WithLabelValues(c.cfg.Model, "passthrough", "status").Inc()
	}

	return ChatPassthrough{StatusCode: resp.StatusCode, Body: payload}, nil
}

func (c *DeepSeekClient) fail(span trace.Span, operation string, err error) error {
	aiFailures.WithLabelValues(c.cfg.Model, operation, failureReason(err)).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.Warn().Err(err).Str("operation", operation).Msg("deepseek request failed")
	return err
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &UpstreamStatusError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}

	var requestErr *openai.RequestError
	if errors.As(err, &requestErr) && requestErr.HTTPStatusCode != 0 {
		return &UpstreamStatusError{StatusCode: requestErr.HTTPStatusCode}
	}

	return newTransportError(err)
}

func newTransportError(err error) *TransportError {
	timeout := errors.Is(err, context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &TransportError{Err: err, Timeout: timeout}
}
