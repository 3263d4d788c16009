package ai

import (
	"errors"
	"fmt"
)

// ErrMissingCredential indicates the DeepSeek API key has not been configured.
var ErrMissingCredential = errors.New("grading service credential is not configured")

// ErrEmptyCompletion indicates the model answered without any choices.
var ErrEmptyCompletion = errors.New("grading service returned no completion")

// ErrNoGradableQuestions indicates an exam had no question/answer pair worth sending.
var ErrNoGradableQuestions = errors.New("no gradable questions")

// UpstreamStatusError is returned when the remote API answers with a non-success status.
type UpstreamStatusError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamStatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("grading service returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("grading service returned status %d", e.StatusCode)
}

// TransportError wraps network failures and timeouts talking to the remote API.
type TransportError struct {
	Err     error
	Timeout bool
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("grading request timed out: %v", e.Err)
	}
	return fmt.Sprintf("grading request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsUpstreamFailure reports whether err came from talking to the remote model
// rather than from local code.
func IsUpstreamFailure(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *UpstreamStatusError
	var transportErr *TransportError
	return errors.Is(err, ErrMissingCredential) ||
		errors.Is(err, ErrEmptyCompletion) ||
		errors.As(err, &statusErr) ||
		errors.As(err, &transportErr)
}

func failureReason(err error) string {
	var statusErr *UpstreamStatusError
	var transportErr *TransportError
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, ErrEmptyCompletion):
		return "empty_completion"
	case errors.As(err, &statusErr):
		return "status"
	case errors.As(err, &transportErr) && transportErr.Timeout:
		return "timeout"
	default:
		return "transport"
	}
}
