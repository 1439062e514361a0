package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error is the unified error interface returned by provider adapters.
type Error interface {
	error
	Provider() string
	StatusCode() int
	Retryable() bool
	RetryAfter() *time.Duration
}

type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + strings.TrimSpace(e.Message)
}
func (e *ConfigurationError) Provider() string           { return "" }
func (e *ConfigurationError) StatusCode() int            { return 0 }
func (e *ConfigurationError) Retryable() bool            { return false }
func (e *ConfigurationError) RetryAfter() *time.Duration { return nil }

// NetworkError is a transport failure before any HTTP status was received.
type NetworkError struct {
	provider string
	cause    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s network error: %v", e.provider, e.cause)
}
func (e *NetworkError) Unwrap() error              { return e.cause }
func (e *NetworkError) Provider() string           { return e.provider }
func (e *NetworkError) StatusCode() int            { return 0 }
func (e *NetworkError) Retryable() bool            { return true }
func (e *NetworkError) RetryAfter() *time.Duration { return nil }

type httpErrorBase struct {
	provider   string
	statusCode int
	message    string
	retryable  bool
	retryAfter *time.Duration
	raw        any
}

func (e *httpErrorBase) Error() string {
	msg := strings.TrimSpace(e.message)
	if msg == "" {
		msg = "request failed"
	}
	if e.statusCode == 0 {
		return fmt.Sprintf("%s error: %s", e.provider, msg)
	}
	return fmt.Sprintf("%s error (status=%d): %s", e.provider, e.statusCode, msg)
}
func (e *httpErrorBase) Provider() string           { return e.provider }
func (e *httpErrorBase) StatusCode() int            { return e.statusCode }
func (e *httpErrorBase) Retryable() bool            { return e.retryable }
func (e *httpErrorBase) RetryAfter() *time.Duration { return e.retryAfter }

// Raw is the decoded error body, when the provider sent one.
func (e *httpErrorBase) Raw() any { return e.raw }

type InvalidRequestError struct{ httpErrorBase }
type AuthenticationError struct{ httpErrorBase }
type AccessDeniedError struct{ httpErrorBase }
type NotFoundError struct{ httpErrorBase }
type RequestTimeoutError struct{ httpErrorBase }
type ContextLengthError struct{ httpErrorBase }
type ContentFilterError struct{ httpErrorBase }
type QuotaExceededError struct{ httpErrorBase }
type RateLimitError struct{ httpErrorBase }
type ServerError struct{ httpErrorBase }
type UnknownHTTPError struct{ httpErrorBase }

func ErrorFromHTTPStatus(provider string, statusCode int, message string, raw any, retryAfter *time.Duration) error {
	base := httpErrorBase{
		provider:   strings.TrimSpace(provider),
		statusCode: statusCode,
		message:    message,
		retryAfter: retryAfter,
		raw:        raw,
	}
	switch statusCode {
	case 400, 422:
		// Gemini tunnels several failure classes through 400; the message decides.
		if err := classifyByMessage(base); err != nil {
			return err
		}
		return &InvalidRequestError{base}
	case 401:
		return &AuthenticationError{base}
	case 403:
		if err := classifyByMessage(base); err != nil {
			return err
		}
		return &AccessDeniedError{base}
	case 404:
		return &NotFoundError{base}
	case 408:
		base.retryable = true
		return &RequestTimeoutError{base}
	case 413:
		return &ContextLengthError{base}
	case 429:
		base.retryable = true
		if strings.Contains(strings.ToLower(message), "quota") {
			return &QuotaExceededError{base}
		}
		return &RateLimitError{base}
	case 500, 502, 503, 504:
		base.retryable = true
		return &ServerError{base}
	default:
		base.retryable = true
		return &UnknownHTTPError{base}
	}
}

func classifyByMessage(base httpErrorBase) error {
	lower := strings.ToLower(base.message)
	switch {
	case strings.Contains(lower, "api key not valid") || strings.Contains(lower, "api_key_invalid") ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid key"):
		return &AuthenticationError{base}
	case strings.Contains(lower, "quota") || strings.Contains(lower, "billing"):
		return &QuotaExceededError{base}
	case strings.Contains(lower, "safety") || strings.Contains(lower, "content filter"):
		return &ContentFilterError{base}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens") ||
		strings.Contains(lower, "exceeds the maximum number of tokens"):
		return &ContextLengthError{base}
	}
	return nil
}

// NewRequestTimeoutError constructs a non-HTTP timeout (context deadline).
func NewRequestTimeoutError(provider string, message string) error {
	return &RequestTimeoutError{httpErrorBase{
		provider: strings.TrimSpace(provider),
		message:  message,
	}}
}

// NewContentFilterError reports a response withheld by the provider's safety filters.
func NewContentFilterError(provider string, message string, raw any) error {
	return &ContentFilterError{httpErrorBase{
		provider: strings.TrimSpace(provider),
		message:  message,
		raw:      raw,
	}}
}

// WrapContextError maps a transport error into the unified hierarchy.
// Cancellation by the caller is returned unchanged.
func WrapContextError(provider string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return NewRequestTimeoutError(provider, err.Error())
	default:
		return &NetworkError{provider: strings.TrimSpace(provider), cause: err}
	}
}

// ParseRetryAfter parses the Retry-After header value.
// Supported forms:
// - integer seconds
// - HTTP-date (RFC 7231)
func ParseRetryAfter(v string, now time.Time) *time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		return &d
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}

func IsAuthenticationError(err error) bool {
	var e *AuthenticationError
	return errors.As(err, &e)
}

func IsInvalidRequestError(err error) bool {
	var e *InvalidRequestError
	return errors.As(err, &e)
}

func IsRetryable(err error) bool {
	var e Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}
