package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/amishk599/vacancybot/internal/model"
	"github.com/amishk599/vacancybot/internal/retry"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// slackTextLimit is the Block Kit limit for a section's text.
const slackTextLimit = 3000

// SlackNotifier mirrors announcements to a Slack channel via Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	retrier    *retry.Retrier
	logger     *slog.Logger
}

// NewSlackNotifier returns a notifier that posts each announcement to Slack.
// Rate-limited and 5xx posts are retried once, honoring Retry-After.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		retrier:    retry.New(1, time.Second, logger),
		logger:     logger,
	}
}

// Notify posts the announcement as one Block Kit message.
func (s *SlackNotifier) Notify(a model.Announcement) error {
	body, err := json.Marshal(buildPayload(a))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = s.retrier.Do(ctx, "slack post", func(ctx context.Context) error {
		return s.post(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	s.logger.Info("slack message sent", "request_id", a.RequestID, "user", a.UserID)
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return nil
}

// Block Kit payload types.

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string         `json:"type"`
	Text     *slackText     `json:"text,omitempty"`
	Fields   []slackText    `json:"fields,omitempty"`
	Elements []slackElement `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type  string     `json:"type"`
	Text  *slackText `json:"text,omitempty"`
	URL   string     `json:"url,omitempty"`
	Style string     `json:"style,omitempty"`
}

// SendTestMessage sends a sample announcement to verify the integration works.
func SendTestMessage(n model.Notifier) error {
	return n.Notify(model.Announcement{
		RequestID: "test-001",
		UserID:    "test",
		Text: "💚 <b>Vacancybot ищут</b> 💚\n\n<b>Формат:</b> удалёнка\n\n" +
			"<blockquote>Тестовое сообщение: интеграция работает.</blockquote>\n\n" +
			`Стать частью команды: <a href="https://example.com/apply">откликнуться</a>`,
		SourceURL: "https://example.com/vacancy/1",
		CreatedAt: time.Now(),
	})
}

func buildPayload(a model.Announcement) slackPayload {
	header := "📣 New announcement"
	if a.Fallback {
		header = "⚠️ Fallback announcement"
	}

	fields := []slackText{
		{Type: "mrkdwn", Text: "*User:*\n" + a.UserID},
		{Type: "mrkdwn", Text: "*Request:*\n" + a.RequestID},
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: header},
		},
		{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: truncateRunes(toMrkdwn(a.Text), slackTextLimit)},
		},
		{
			Type:   "section",
			Fields: fields,
		},
	}

	if a.SourceURL != "" {
		blocks = append(blocks, slackBlock{
			Type: "actions",
			Elements: []slackElement{
				{
					Type:  "button",
					Text:  &slackText{Type: "plain_text", Text: "Open source"},
					URL:   a.SourceURL,
					Style: "primary",
				},
			},
		})
	}
	blocks = append(blocks, slackBlock{Type: "divider"})

	return slackPayload{Text: header, Blocks: blocks}
}

var (
	boldRe   = regexp.MustCompile(`(?s)<b>(.*?)</b>`)
	italicRe = regexp.MustCompile(`(?s)<i>(.*?)</i>`)
	strikeRe = regexp.MustCompile(`(?s)<s>(.*?)</s>`)
	anchorRe = regexp.MustCompile(`(?s)<a href="([^"]*)">(.*?)</a>`)
	quoteRe  = regexp.MustCompile(`(?s)<blockquote>(.*?)</blockquote>`)
)

// toMrkdwn converts the Telegram HTML subset to Slack mrkdwn.
func toMrkdwn(s string) string {
	s = quoteRe.ReplaceAllStringFunc(s, func(q string) string {
		inner := quoteRe.FindStringSubmatch(q)[1]
		lines := strings.Split(strings.Trim(inner, "\n"), "\n")
		for i, l := range lines {
			lines[i] = "> " + l
		}
		return strings.Join(lines, "\n")
	})
	s = anchorRe.ReplaceAllString(s, "<$1|$2>")
	s = boldRe.ReplaceAllString(s, "*$1*")
	s = italicRe.ReplaceAllString(s, "_${1}_")
	s = strikeRe.ReplaceAllString(s, "~$1~")
	return strings.NewReplacer("<u>", "", "</u>", "").Replace(s)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
