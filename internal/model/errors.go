package model

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfigurationMissing means no generation credentials are configured.
	// It selects the fallback rendering and is not a failure.
	ErrConfigurationMissing = errors.New("generation service not configured")

	// ErrMalformedResponse means the generation service answered with an unexpected shape.
	ErrMalformedResponse = errors.New("malformed upstream response")

	// ErrNoTemplate means the user asked for a generation before saving a template.
	ErrNoTemplate = errors.New("no template on file")
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Kind classifies err for logging.
func Kind(err error) string {
	var httpErr *HTTPError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfigurationMissing):
		return "configuration_missing"
	case errors.Is(err, ErrNoTemplate):
		return "no_template"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.As(err, &httpErr),
		errors.Is(err, context.DeadlineExceeded):
		return "transport"
	default:
		return "internal"
	}
}
