package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/amishk599/vacancybot/internal/model"
	"github.com/amishk599/vacancybot/internal/prompt"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockProvider is a stub LLMProvider for testing.
type mockProvider struct {
	response string
	err      error
	calls    int
	got      model.Prompt
}

func (m *mockProvider) Complete(_ context.Context, p model.Prompt) (string, error) {
	m.calls++
	m.got = p
	return m.response, m.err
}

// stubCompiler renders fixed strings so tests can tell the paths apart.
type stubCompiler struct {
	err error
}

func (s stubCompiler) Compile(req model.GenerationRequest) (model.Prompt, error) {
	if s.err != nil {
		return model.Prompt{}, s.err
	}
	return model.Prompt{System: "sys", User: "user: " + req.Content}, nil
}

func (s stubCompiler) Fallback(req model.GenerationRequest, _ error) string {
	return "FALLBACK " + req.Content
}

var testReq = model.GenerationRequest{Template: "<b>T</b>", Content: "Go developer"}

func TestGenerate_Success(t *testing.T) {
	provider := &mockProvider{response: "  <b>Go developer</b>\n"}
	g := NewGenerator(provider, stubCompiler{}, time.Second, discardLogger())

	res := g.Generate(context.Background(), testReq)

	if res.Fallback || res.Cause != nil {
		t.Fatalf("unexpected fallback: %+v", res)
	}
	if res.Text != "<b>Go developer</b>" {
		t.Errorf("Text = %q, want trimmed completion", res.Text)
	}
	if provider.got.User != "user: Go developer" {
		t.Errorf("provider got prompt %+v", provider.got)
	}
}

func TestGenerate_NotConfigured(t *testing.T) {
	g := NewGenerator(NopProvider{}, stubCompiler{}, time.Second, discardLogger())

	res := g.Generate(context.Background(), testReq)

	if !res.Fallback {
		t.Fatal("expected fallback when not configured")
	}
	if !errors.Is(res.Cause, model.ErrConfigurationMissing) {
		t.Errorf("Cause = %v, want ErrConfigurationMissing", res.Cause)
	}
	if res.Text != "FALLBACK Go developer" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestGenerate_ProviderError(t *testing.T) {
	provider := &mockProvider{err: &model.HTTPError{StatusCode: 503}}
	g := NewGenerator(provider, stubCompiler{}, time.Second, discardLogger())

	res := g.Generate(context.Background(), testReq)

	if !res.Fallback {
		t.Fatal("expected fallback on provider error")
	}
	var httpErr *model.HTTPError
	if !errors.As(res.Cause, &httpErr) || httpErr.StatusCode != 503 {
		t.Errorf("Cause = %v, want HTTP 503", res.Cause)
	}
}

func TestGenerate_EmptyCompletionIsMalformed(t *testing.T) {
	g := NewGenerator(&mockProvider{response: " \n "}, stubCompiler{}, time.Second, discardLogger())

	res := g.Generate(context.Background(), testReq)

	if !res.Fallback || !errors.Is(res.Cause, model.ErrMalformedResponse) {
		t.Errorf("got %+v, want malformed fallback", res)
	}
}

func TestGenerate_CompileErrorSkipsProvider(t *testing.T) {
	provider := &mockProvider{response: "never"}
	g := NewGenerator(provider, stubCompiler{err: errors.New("bad contract")}, time.Second, discardLogger())

	res := g.Generate(context.Background(), testReq)

	if !res.Fallback {
		t.Fatal("expected fallback on compile error")
	}
	if provider.calls != 0 {
		t.Errorf("provider called %d times, want 0", provider.calls)
	}
}

// slowProvider blocks until its context is done.
type slowProvider struct{}

func (slowProvider) Complete(ctx context.Context, _ model.Prompt) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestGenerate_Timeout(t *testing.T) {
	g := NewGenerator(slowProvider{}, stubCompiler{}, 20*time.Millisecond, discardLogger())

	res := g.Generate(context.Background(), testReq)

	if !res.Fallback || !errors.Is(res.Cause, context.DeadlineExceeded) {
		t.Errorf("got %+v, want deadline fallback", res)
	}
}

func TestGenerate_FallbackWithEmbeddedContract(t *testing.T) {
	compiler, err := prompt.NewCompiler(prompt.Options{Locale: "ru"}, discardLogger())
	if err != nil {
		t.Fatalf("NewCompiler: %v", err)
	}
	g := NewGenerator(NopProvider{}, compiler, time.Second, discardLogger())

	res := g.Generate(context.Background(), model.GenerationRequest{
		Template: "💚 <b>Acme ищут</b> 💚",
		Content:  "Globex ищет Go-разработчика",
	})

	if !res.Fallback {
		t.Fatal("expected fallback")
	}
	for _, want := range []string{"💚 <b>Acme ищут</b> 💚", "Globex ищет Go-разработчика"} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("fallback missing %q:\n%s", want, res.Text)
		}
	}
}

func TestSampling_Normalize(t *testing.T) {
	tests := []struct {
		in   Sampling
		want Sampling
	}{
		{Sampling{0.3, 2000}, Sampling{0.3, 2000}},
		{Sampling{0, 100}, Sampling{0.2, 800}},
		{Sampling{0.9, 800}, Sampling{0.6, 800}},
	}
	for _, tt := range tests {
		if got := tt.in.normalize(); got != tt.want {
			t.Errorf("normalize(%+v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
