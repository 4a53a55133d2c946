package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWait_SameHost_EnforcesRate(t *testing.T) {
	limiter := NewHostRateLimiter(10, 1) // one request per 100ms
	ctx := context.Background()

	// First call should return immediately.
	if err := limiter.Wait(ctx, "hh.ru"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(ctx, "hh.ru"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	elapsed := time.Since(start)

	// Should have waited ~100ms (allow 80ms for timer jitter).
	if elapsed < 80*time.Millisecond {
		t.Errorf("expected >= 80ms wait, got %v", elapsed)
	}
}

func TestWait_DifferentHosts_NoCrossBlocking(t *testing.T) {
	limiter := NewHostRateLimiter(5, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "hh.ru"); err != nil {
		t.Fatalf("hh.ru wait: %v", err)
	}

	// Immediately call for another host; should NOT block.
	start := time.Now()
	if err := limiter.Wait(ctx, "career.habr.com"); err != nil {
		t.Fatalf("habr wait: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed > 50*time.Millisecond {
		t.Errorf("expected second host wait to be near-instant, got %v", elapsed)
	}
}

func TestWait_ContextCancellation(t *testing.T) {
	limiter := NewHostRateLimiter(0.2, 1) // one request per 5s

	if err := limiter.Wait(context.Background(), "hh.ru"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	if err := limiter.Wait(ctx, "hh.ru"); err == nil {
		t.Fatal("expected error from cancelled context, got nil")
	}
}

// --- Mock for RateLimitedFetcher test ---

type recordingFetcher struct {
	urls []string
}

func (f *recordingFetcher) FetchPage(_ context.Context, url string) ([]byte, error) {
	f.urls = append(f.urls, url)
	return []byte("<html></html>"), nil
}

func TestRateLimitedFetcher_Delegates(t *testing.T) {
	inner := &recordingFetcher{}
	f := NewRateLimitedFetcher(inner, NewHostRateLimiter(100, 1))

	body, err := f.FetchPage(context.Background(), "https://hh.ru/vacancy/1")
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if string(body) != "<html></html>" {
		t.Errorf("body = %q", body)
	}
	if len(inner.urls) != 1 || inner.urls[0] != "https://hh.ru/vacancy/1" {
		t.Errorf("inner called with %v", inner.urls)
	}
}

func TestHostKey(t *testing.T) {
	tests := map[string]string{
		"https://HH.ru/vacancy/1":    "hh.ru",
		"http://example.com:8080/x": "example.com",
		"not a url":                 "not a url",
	}
	for in, want := range tests {
		if got := hostKey(in); got != want {
			t.Errorf("hostKey(%q) = %q, want %q", in, got, want)
		}
	}
}
