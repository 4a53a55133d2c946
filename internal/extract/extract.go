package extract

import (
	"bytes"
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/amishk599/vacancybot/internal/model"
)

var urlRegex = regexp.MustCompile(`https?://\S+`)

// noise is removed from a page before its text is collected.
const noise = "script, style, nav, footer, header, noscript, iframe, svg"

// FindURL returns the first http(s) URL in input with trailing punctuation trimmed.
func FindURL(input string) (string, bool) {
	m := urlRegex.FindString(input)
	if m == "" {
		return "", false
	}
	m = strings.TrimRight(m, ".,;:!?)]}>\"'»")
	if m == "" {
		return "", false
	}
	return m, true
}

// Extractor turns a raw user message into vacancy content, fetching the first
// linked page when there is one.
type Extractor struct {
	fetcher model.PageFetcher
	logger  *slog.Logger
}

// NewExtractor creates an Extractor that downloads pages through fetcher.
func NewExtractor(fetcher model.PageFetcher, logger *slog.Logger) *Extractor {
	return &Extractor{fetcher: fetcher, logger: logger}
}

// Extract never fails. When the input has no URL, or the page cannot be
// fetched or yields no text, the input itself is returned as the content.
func (e *Extractor) Extract(ctx context.Context, input string) model.ExtractionResult {
	url, ok := FindURL(input)
	if !ok {
		return model.ExtractionResult{Text: input}
	}

	body, err := e.fetcher.FetchPage(ctx, url)
	if err != nil {
		e.logger.Warn("page fetch failed, using raw input", "url", url, "error", err)
		return model.ExtractionResult{Text: input, SourceURL: url}
	}

	text, err := PageText(body)
	if err != nil {
		e.logger.Warn("page parse failed, using raw input", "url", url, "error", err)
		return model.ExtractionResult{Text: input, SourceURL: url}
	}
	if text == "" {
		e.logger.Warn("page had no visible text, using raw input", "url", url)
		return model.ExtractionResult{Text: input, SourceURL: url}
	}

	e.logger.Debug("extracted page", "url", url, "chars", len(text))
	return model.ExtractionResult{Text: text, SourceURL: url}
}

// PageText strips non-content elements from an HTML document and returns its
// visible text, one non-empty trimmed line per text fragment, in document order.
func PageText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	doc.Find(noise).Remove()

	var raw strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			raw.WriteString(n.Data)
			raw.WriteByte('\n')
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}

	var lines []string
	for _, line := range strings.Split(raw.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
