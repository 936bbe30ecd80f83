package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/dshills/tribunal/internal/review"
)

// RateLimitError is returned when a provider answers 429.
type RateLimitError struct {
	Provider   string
	RetryAfter string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter != "" {
		return fmt.Sprintf("%s: rate limited (retry after %s)", e.Provider, e.RetryAfter)
	}
	return e.Provider + ": rate limited"
}

// AuthError is returned when credentials are missing or rejected.
type AuthError struct {
	Provider string
	Message  string
}

func (e *AuthError) Error() string {
	return e.Provider + ": authentication error: " + e.Message
}

// StatusError is any other non-200 answer.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// ErrEmptyResponse is returned when a provider answered 200 without text.
var ErrEmptyResponse = errors.New("empty text content in API response")

// IsAuthError checks if an error is an authentication error.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsRateLimited checks if an error is a rate-limit rejection.
func IsRateLimited(err error) bool {
	var re *RateLimitError
	return errors.As(err, &re)
}

// Classify maps a backend error onto the judge failure taxonomy.
func Classify(err error) review.Failure {
	if err == nil {
		return review.FailureNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return review.FailureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return review.FailureTimeout
	}
	if IsRateLimited(err) {
		return review.FailureRateLimited
	}
	return review.FailureTransport
}

const maxErrorBody = 512

// statusError turns a non-200 answer into a typed error.
func statusError(provider string, code int, header http.Header, body []byte) error {
	msg := string(body)
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "…"
	}
	switch {
	case code == http.StatusTooManyRequests:
		e := &RateLimitError{Provider: provider}
		if header != nil {
			e.RetryAfter = header.Get("Retry-After")
		}
		return e
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &AuthError{Provider: provider, Message: msg}
	default:
		return &StatusError{Provider: provider, StatusCode: code, Body: msg}
	}
}
