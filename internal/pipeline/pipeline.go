package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/vacancybot/internal/ai"
	"github.com/amishk599/vacancybot/internal/extract"
	"github.com/amishk599/vacancybot/internal/model"
	"github.com/amishk599/vacancybot/internal/prompt"
)

// Stage is a progress point reported while a request is processed.
type Stage int

const (
	StageFetching Stage = iota + 1
	StageGenerating
)

func (s Stage) String() string {
	switch s {
	case StageFetching:
		return "fetching"
	case StageGenerating:
		return "generating"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Extractor turns raw user input into vacancy content.
type Extractor interface {
	Extract(ctx context.Context, input string) model.ExtractionResult
}

// Generator produces announcement text, falling back on failure.
type Generator interface {
	Generate(ctx context.Context, req model.GenerationRequest) ai.Result
}

// Sanitizer rewrites generated text into the allowed markup subset.
type Sanitizer interface {
	Sanitize(raw string) string
}

// Pipeline owns one request end to end:
// template lookup → extract → generate → sanitize → notify.
type Pipeline struct {
	store     model.TemplateStore
	extractor Extractor
	generator Generator
	sanitizer Sanitizer
	notifier  model.Notifier
	logger    *slog.Logger
}

// New creates a pipeline wired with all its dependencies. notifier may be nil.
func New(
	store model.TemplateStore,
	extractor Extractor,
	generator Generator,
	sanitizer Sanitizer,
	notifier model.Notifier,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		store:     store,
		extractor: extractor,
		generator: generator,
		sanitizer: sanitizer,
		notifier:  notifier,
		logger:    logger,
	}
}

// Run turns input into an announcement for userID. progress, if non-nil, is
// called as each stage starts. The only errors are model.ErrNoTemplate and
// store failures; generation problems yield a fallback announcement instead.
func (p *Pipeline) Run(ctx context.Context, userID, input string, progress func(Stage)) (model.Announcement, error) {
	start := time.Now()

	tmpl, ok, err := p.store.GetTemplate(userID)
	if err != nil {
		return model.Announcement{}, fmt.Errorf("load template for %s: %w", userID, err)
	}
	if !ok {
		return model.Announcement{}, model.ErrNoTemplate
	}

	content, instructions := prompt.SplitInstructions(input)

	if _, hasURL := extract.FindURL(content); hasURL {
		report(progress, StageFetching)
	}
	extracted := p.extractor.Extract(ctx, content)

	report(progress, StageGenerating)
	res := p.generator.Generate(ctx, model.GenerationRequest{
		Template:     tmpl.Text,
		Description:  tmpl.Description,
		Content:      extracted.Text,
		Instructions: instructions,
	})

	text := res.Text
	if !res.Fallback {
		text = p.sanitizer.Sanitize(text)
	}

	a := model.Announcement{
		RequestID: uuid.NewString(),
		UserID:    userID,
		Text:      text,
		SourceURL: extracted.SourceURL,
		Fallback:  res.Fallback,
		CreatedAt: time.Now(),
	}

	p.logger.Info("generated announcement",
		"request_id", a.RequestID,
		"user", userID,
		"source_url", a.SourceURL,
		"fallback", a.Fallback,
		"kind", model.Kind(res.Cause),
		"duration", time.Since(start),
	)

	if p.notifier != nil {
		if err := p.notifier.Notify(a); err != nil {
			p.logger.Warn("notify failed", "request_id", a.RequestID, "error", err)
		}
	}

	return a, nil
}

func report(progress func(Stage), s Stage) {
	if progress != nil {
		progress(s)
	}
}
