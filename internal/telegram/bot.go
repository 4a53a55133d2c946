// Package telegram runs the chat engine over the Telegram Bot API using
// long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/amishk599/vacancybot/internal/chat"
	"github.com/amishk599/vacancybot/internal/dispatch"
	"github.com/amishk599/vacancybot/internal/model"
	"github.com/amishk599/vacancybot/internal/retry"
)

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

var _ API = (*tgbotapi.BotAPI)(nil)

// Handler processes one chat input.
type Handler interface {
	Handle(ctx context.Context, in chat.Input, r chat.Responder) error
}

// Connect authorizes token against the Bot API and routes the library's
// own logging into logger at debug level.
func Connect(token string, httpClient *http.Client, logger *slog.Logger) (*tgbotapi.BotAPI, error) {
	if err := tgbotapi.SetLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug)); err != nil {
		return nil, fmt.Errorf("set telegram logger: %w", err)
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	logger.Info("authorized on telegram", "bot", api.Self.UserName)
	return api, nil
}

// Bot turns Telegram updates into chat inputs. Updates from one user are
// handled in order; different users are served concurrently.
type Bot struct {
	api         API
	handler     Handler
	dispatcher  *dispatch.Dispatcher
	retrier     *retry.Retrier
	pollTimeout time.Duration
	logger      *slog.Logger
}

// New creates a Bot running at most workers handlers at once.
func New(api API, handler Handler, workers int, pollTimeout time.Duration, logger *slog.Logger) *Bot {
	return &Bot{
		api:         api,
		handler:     handler,
		dispatcher:  dispatch.New(workers, logger),
		retrier:     retry.New(3, time.Second, logger),
		pollTimeout: pollTimeout,
		logger:      logger,
	}
}

// Run polls for updates until ctx is cancelled, then waits for in-flight
// handlers to finish.
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(b.pollTimeout.Seconds())
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	updates := b.api.GetUpdatesChan(cfg)

	b.logger.Info("polling telegram", "timeout", b.pollTimeout)

	jobs := make(chan dispatch.Job)
	go func() {
		defer close(jobs)
		defer b.api.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-updates:
				if !ok {
					return
				}
				job, ok := b.jobFor(u)
				if !ok {
					continue
				}
				select {
				case jobs <- job:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return b.dispatcher.Run(ctx, jobs)
}

// jobFor maps an update to a job keyed by the sender. Updates without a
// sender or chat are skipped.
func (b *Bot) jobFor(u tgbotapi.Update) (dispatch.Job, bool) {
	switch {
	case u.Message != nil && u.Message.From != nil && u.Message.Chat != nil:
		key := strconv.FormatInt(u.Message.From.ID, 10)
		return dispatch.Job{Key: key, Run: func(ctx context.Context) { b.HandleUpdate(ctx, u) }}, true
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil:
		key := strconv.FormatInt(u.CallbackQuery.From.ID, 10)
		return dispatch.Job{Key: key, Run: func(ctx context.Context) { b.HandleUpdate(ctx, u) }}, true
	default:
		return dispatch.Job{}, false
	}
}

// HandleUpdate processes a single update synchronously.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	var (
		in     chat.Input
		chatID int64
	)

	switch {
	case u.Message != nil:
		chatID = u.Message.Chat.ID
		in = inputFromMessage(u.Message)

	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			b.logger.Warn("answer callback failed", "user", cq.From.ID, "error", err)
		}
		if cq.Message == nil || cq.Message.Chat == nil {
			return
		}
		chatID = cq.Message.Chat.ID
		in = chat.Input{
			UserID:    strconv.FormatInt(cq.From.ID, 10),
			FirstName: cq.From.FirstName,
			Action:    cq.Data,
		}

	default:
		return
	}

	b.logger.Debug("update received",
		"update_id", u.UpdateID,
		"user", in.UserID,
		"command", in.Command,
		"action", in.Action,
	)

	r := &responder{bot: b, chatID: chatID}
	if err := b.handler.Handle(ctx, in, r); err != nil {
		b.logger.Error("reply failed", "user", in.UserID, "error", err)
	}
}

func inputFromMessage(m *tgbotapi.Message) chat.Input {
	in := chat.Input{}
	if m.From != nil {
		in.UserID = strconv.FormatInt(m.From.ID, 10)
		in.FirstName = m.From.FirstName
	}

	if m.IsCommand() {
		in.Command = m.Command()
		in.Text = m.CommandArguments()
		return in
	}

	text, entities := m.Text, m.Entities
	if text == "" {
		text, entities = m.Caption, m.CaptionEntities
	}
	in.Text = text
	in.Formatted = EntitiesToHTML(text, entities)
	return in
}

// send delivers c, retrying rate limits and transient failures.
func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	var msg tgbotapi.Message
	err := b.retrier.Do(ctx, "telegram send", func(ctx context.Context) error {
		var err error
		msg, err = b.api.Send(c)
		return asHTTPError(err)
	})
	return msg, err
}

// request is send for methods that do not return a message.
func (b *Bot) request(ctx context.Context, c tgbotapi.Chattable) error {
	return b.retrier.Do(ctx, "telegram request", func(ctx context.Context) error {
		_, err := b.api.Request(c)
		return asHTTPError(err)
	})
}

// asHTTPError exposes Bot API error codes and retry_after to the retrier.
func asHTTPError(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	return &model.HTTPError{
		StatusCode: apiErr.Code,
		RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second,
		Err:        err,
	}
}

func isParseError(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) &&
		apiErr.Code == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Message), "can't parse entities")
}
