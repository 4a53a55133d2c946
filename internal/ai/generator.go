package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amishk599/vacancybot/internal/model"
)

// PromptCompiler renders generation requests into prompts and fallback text.
type PromptCompiler interface {
	Compile(req model.GenerationRequest) (model.Prompt, error)
	Fallback(req model.GenerationRequest, cause error) string
}

// Result is the outcome of one generation. When Fallback is true, Text is the
// deterministic fallback rendering and Cause explains why.
type Result struct {
	Text     string
	Fallback bool
	Cause    error
}

// Generator produces announcement text with an LLM and degrades to the
// fallback rendering on any failure.
type Generator struct {
	provider LLMProvider
	compiler PromptCompiler
	timeout  time.Duration
	logger   *slog.Logger
}

// NewGenerator creates a Generator. timeout bounds each provider call; zero
// means no extra bound beyond ctx.
func NewGenerator(provider LLMProvider, compiler PromptCompiler, timeout time.Duration, logger *slog.Logger) *Generator {
	return &Generator{
		provider: provider,
		compiler: compiler,
		timeout:  timeout,
		logger:   logger,
	}
}

// Generate never returns an error: failures yield the fallback text.
func (g *Generator) Generate(ctx context.Context, req model.GenerationRequest) Result {
	prompt, err := g.compiler.Compile(req)
	if err != nil {
		g.logger.Error("compile prompt failed, using fallback", "error", err)
		return g.fallback(req, fmt.Errorf("compile prompt: %w", err))
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := g.provider.Complete(ctx, prompt)
	if errors.Is(err, model.ErrConfigurationMissing) {
		g.logger.Info("generation service not configured, using fallback")
		return g.fallback(req, err)
	}
	if err != nil {
		g.logger.Warn("generation failed, using fallback",
			"kind", model.Kind(err),
			"duration", time.Since(start),
			"error", err,
		)
		return g.fallback(req, fmt.Errorf("llm complete: %w", err))
	}

	text := strings.TrimSpace(raw)
	if text == "" {
		g.logger.Warn("generation returned empty text, using fallback")
		return g.fallback(req, fmt.Errorf("empty completion: %w", model.ErrMalformedResponse))
	}

	g.logger.Debug("generation complete", "duration", time.Since(start), "chars", len(text))
	return Result{Text: text}
}

func (g *Generator) fallback(req model.GenerationRequest, cause error) Result {
	return Result{Text: g.compiler.Fallback(req, cause), Fallback: true, Cause: cause}
}
