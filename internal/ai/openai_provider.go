package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/amishk599/vacancybot/internal/model"
	"github.com/amishk599/vacancybot/internal/retry"
)

var _ LLMProvider = (*OpenAIProvider)(nil)

// OpenAIProvider calls any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client   openai.Client
	model    string
	sampling Sampling
}

// NewOpenAIProvider creates a provider. SDK retries are disabled so each
// Complete is a single attempt.
func NewOpenAIProvider(baseURL, apiKey, modelName string, sampling Sampling, httpClient *http.Client) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(httpClient),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		client:   openai.NewClient(opts...),
		model:    modelName,
		sampling: sampling.normalize(),
	}
}

// Complete sends the prompt and returns the first choice's content.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt model.Prompt) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(prompt.User),
		},
		Temperature: openai.Float(p.sampling.Temperature),
		MaxTokens:   openai.Int(int64(p.sampling.MaxTokens)),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			httpErr := &model.HTTPError{StatusCode: apiErr.StatusCode, Err: err}
			if apiErr.Response != nil {
				httpErr.RetryAfter = retry.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return "", httpErr
		}
		return "", fmt.Errorf("llm request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices: %w", model.ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}
