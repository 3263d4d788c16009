package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model          string `json:"model"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newCompletionServer(t *testing.T, status int, body string, captured *capturedRequest, auth *string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func completionBody(content string) string {
	payload, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"model":   "deepseek-chat",
		"choices": []map[string]interface{}{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}}},
	})
	return string(payload)
}

func TestDeepSeekClientCompleteReturnsContent(t *testing.T) {
	var captured capturedRequest
	var auth string
	server := newCompletionServer(t, http.StatusOK, completionBody(`{"evaluations":[],"total_score":0}`), &captured, &auth)

	client := NewDeepSeekClient(DeepSeekConfig{APIKey: "secret", BaseURL: server.URL + "/v1"})
	content, err := client.Complete(context.Background(), GradingPrompt{System: "sys", User: "usr"})
	require.NoError(t, err)
	require.Equal(t, `{"evaluations":[],"total_score":0}`, content)

	require.Equal(t, "Bearer secret", auth)
	require.Equal(t, DefaultDeepSeekModel, captured.Model)
	require.NotNil(t, captured.ResponseFormat)
	require.Equal(t, "json_object", captured.ResponseFormat.Type)
	require.Len(t, captured.Messages, 2)
	require.Equal(t, "system", captured.Messages[0].Role)
	require.Equal(t, "sys", captured.Messages[0].Content)
	require.Equal(t, "user", captured.Messages[1].Role)
	require.Equal(t, "usr", captured.Messages[1].Content)
}

func TestDeepSeekClientMissingCredential(t *testing.T) {
	client := NewDeepSeekClient(DeepSeekConfig{BaseURL: "http://127.0.0.1:0/v1"})

	_, err := client.Complete(context.Background(), GradingPrompt{User: "hi"})
	require.ErrorIs(t, err, ErrMissingCredential)
	require.True(t, IsUpstreamFailure(err))

	_, err = client.Passthrough(context.Background(), "hi")
	require.ErrorIs(t, err, ErrMissingCredential)
}

func TestDeepSeekClientNonSuccessStatus(t *testing.T) {
	server := newCompletionServer(t, http.StatusServiceUnavailable, `{"error":{"message":"overloaded","type":"server_error"}}`, nil, nil)

	client := NewDeepSeekClient(DeepSeekConfig{APIKey: "secret", BaseURL: server.URL + "/v1"})
	_, err := client.Complete(context.Background(), GradingPrompt{User: "hi"})

	var statusErr *UpstreamStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	require.True(t, IsUpstreamFailure(err))
}

func TestDeepSeekClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(server.Close)

	client := NewDeepSeekClient(DeepSeekConfig{APIKey: "secret", BaseURL: server.URL + "/v1", Timeout: 50 * time.Millisecond})
	_, err := client.Complete(context.Background(), GradingPrompt{User: "hi"})

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	require.True(t, transportErr.Timeout)
}

func TestDeepSeekClientNoChoices(t *testing.T) {
	server := newCompletionServer(t, http.StatusOK, `{"id":"x","choices":[]}`, nil, nil)

	client := NewDeepSeekClient(DeepSeekConfig{APIKey: "secret", BaseURL: server.URL + "/v1"})
	_, err := client.Complete(context.Background(), GradingPrompt{User: "hi"})
	require.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestDeepSeekClientPassthroughKeepsStatusAndBody(t *testing.T) {
	var captured capturedRequest
	body := `{"error":{"message":"bad key"}}`
	server := newCompletionServer(t, http.StatusUnauthorized, body, &captured, nil)

	client := NewDeepSeekClient(DeepSeekConfig{APIKey: "secret", BaseURL: server.URL + "/v1/"})
	result, err := client.Passthrough(context.Background(), "tell me a joke")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, result.StatusCode)
	require.Equal(t, body, string(result.Body))

	require.Nil(t, captured.ResponseFormat)
	require.Len(t, captured.Messages, 1)
	require.Equal(t, "user", captured.Messages[0].Role)
	require.Equal(t, "tell me a joke", captured.Messages[0].Content)
}
