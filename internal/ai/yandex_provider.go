package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/amishk599/vacancybot/internal/model"
	"github.com/amishk599/vacancybot/internal/retry"
)

var _ LLMProvider = (*YandexProvider)(nil)

// YandexProvider calls the YandexGPT foundation models completion endpoint.
type YandexProvider struct {
	url        string
	apiKey     string
	folderID   string
	modelURI   string
	sampling   Sampling
	httpClient *http.Client
}

// NewYandexProvider creates a provider. modelURI defaults to
// gpt://<folderID>/yandexgpt-32k/latest when empty.
func NewYandexProvider(url, apiKey, folderID, modelURI string, sampling Sampling, httpClient *http.Client) *YandexProvider {
	if modelURI == "" {
		modelURI = fmt.Sprintf("gpt://%s/yandexgpt-32k/latest", folderID)
	}
	return &YandexProvider{
		url:        url,
		apiKey:     apiKey,
		folderID:   folderID,
		modelURI:   modelURI,
		sampling:   sampling.normalize(),
		httpClient: httpClient,
	}
}

// completionRequest mirrors the foundationModels/v1/completion request body.
type completionRequest struct {
	ModelURI          string            `json:"modelUri"`
	CompletionOptions completionOptions `json:"completionOptions"`
	Messages          []yandexMessage   `json:"messages"`
}

type completionOptions struct {
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

type yandexMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// completionResponse mirrors the relevant fields of the response.
type completionResponse struct {
	Result *struct {
		Alternatives []struct {
			Message yandexMessage `json:"message"`
			Status  string        `json:"status"`
		} `json:"alternatives"`
	} `json:"result"`
}

// Complete sends the prompt and returns the first alternative's text.
func (p *YandexProvider) Complete(ctx context.Context, prompt model.Prompt) (string, error) {
	reqBody := completionRequest{
		ModelURI: p.modelURI,
		CompletionOptions: completionOptions{
			Stream:      false,
			Temperature: p.sampling.Temperature,
			MaxTokens:   p.sampling.MaxTokens,
		},
		Messages: []yandexMessage{
			{Role: "system", Text: prompt.System},
			{Role: "user", Text: prompt.User},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Api-Key "+p.apiKey)
	req.Header.Set("x-folder-id", p.folderID)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read llm response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("llm returned: %s", truncate(string(respBytes), 200)),
		}
	}

	var out completionResponse
	if err := json.Unmarshal(respBytes, &out); err != nil {
		return "", fmt.Errorf("parse llm response: %w: %v", model.ErrMalformedResponse, err)
	}
	if out.Result == nil || len(out.Result.Alternatives) == 0 {
		return "", fmt.Errorf("llm returned no alternatives: %w", model.ErrMalformedResponse)
	}

	return out.Result.Alternatives[0].Message.Text, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
