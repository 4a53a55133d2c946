package model

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"config", fmt.Errorf("complete: %w", ErrConfigurationMissing), "configuration_missing"},
		{"no template", ErrNoTemplate, "no_template"},
		{"malformed", fmt.Errorf("parse: %w", ErrMalformedResponse), "malformed_response"},
		{"http", &HTTPError{StatusCode: 503}, "transport"},
		{"wrapped http", fmt.Errorf("llm: %w", &HTTPError{StatusCode: 401}), "transport"},
		{"timeout", fmt.Errorf("llm request: %w", context.DeadlineExceeded), "transport"},
		{"other", errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("%s: Kind() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestHTTPError_Unwrap(t *testing.T) {
	inner := errors.New("too many requests")
	err := fmt.Errorf("send: %w", &HTTPError{StatusCode: 429, Err: inner})

	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to find the wrapped error")
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 429 {
		t.Errorf("errors.As = %v, want status 429", httpErr)
	}
	if got := httpErr.Error(); got != "HTTP 429: too many requests" {
		t.Errorf("Error() = %q", got)
	}
}
