package ai

import (
	"context"

	"github.com/amishk599/vacancybot/internal/model"
)

// LLMProvider sends a compiled prompt to a generation service and returns the
// raw text of its first completion.
type LLMProvider interface {
	Complete(ctx context.Context, prompt model.Prompt) (string, error)
}

// Sampling holds the completion options shared by every provider.
type Sampling struct {
	Temperature float64
	MaxTokens   int
}

// normalize clamps Temperature to [0.2, 0.6] and floors MaxTokens at 800.
func (s Sampling) normalize() Sampling {
	switch {
	case s.Temperature < 0.2:
		s.Temperature = 0.2
	case s.Temperature > 0.6:
		s.Temperature = 0.6
	}
	if s.MaxTokens < 800 {
		s.MaxTokens = 800
	}
	return s
}

var _ LLMProvider = (*NopProvider)(nil)

// NopProvider is used when no credentials are configured.
// It never performs I/O.
type NopProvider struct{}

// Complete always returns model.ErrConfigurationMissing.
func (NopProvider) Complete(context.Context, model.Prompt) (string, error) {
	return "", model.ErrConfigurationMissing
}
