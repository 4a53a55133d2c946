package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/amishk599/vacancybot/internal/model"
	"github.com/amishk599/vacancybot/internal/retry"
)

var _ model.PageFetcher = (*HTTPFetcher)(nil)

// HTTPFetcher downloads pages with a browser User-Agent.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// NewHTTPFetcher creates a fetcher. The client's Timeout bounds each fetch;
// bodies larger than maxBytes are truncated.
func NewHTTPFetcher(client *http.Client, userAgent string, maxBytes int64) *HTTPFetcher {
	return &HTTPFetcher{client: client, userAgent: userAgent, maxBytes: maxBytes}
}

// FetchPage GETs url and returns its body. Non-2xx responses are returned
// as *model.HTTPError.
func (f *HTTPFetcher) FetchPage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create page request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("fetch page %s", url),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read page body: %w", err)
	}
	return body, nil
}
