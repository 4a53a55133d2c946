package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/vacancybot/internal/chat"
	"github.com/amishk599/vacancybot/internal/retry"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErrs []error
	nextID   int
	updates  chan tgbotapi.Update
	stopped  bool
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) sentMessages() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.sent...)
}

// scriptHandler replays a fixed sequence of responder calls.
type scriptHandler struct {
	mu     sync.Mutex
	inputs []chat.Input
	script func(ctx context.Context, r chat.Responder) error
}

func (h *scriptHandler) Handle(ctx context.Context, in chat.Input, r chat.Responder) error {
	h.mu.Lock()
	h.inputs = append(h.inputs, in)
	h.mu.Unlock()
	if h.script == nil {
		return nil
	}
	return h.script(ctx, r)
}

func (h *scriptHandler) received() []chat.Input {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]chat.Input(nil), h.inputs...)
}

func newTestBot(api API, h Handler) *Bot {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := New(api, h, 2, time.Second, logger)
	b.retrier = retry.New(3, time.Millisecond, logger)
	return b
}

func textUpdate(userID int64, text string, entities ...tgbotapi.MessageEntity) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: 1,
		Message: &tgbotapi.Message{
			MessageID: 10,
			From:      &tgbotapi.User{ID: userID, FirstName: "Ann"},
			Chat:      &tgbotapi.Chat{ID: userID},
			Text:      text,
			Entities:  entities,
		},
	}
}

func TestHandleUpdate_TextMessage(t *testing.T) {
	h := &scriptHandler{}
	b := newTestBot(&fakeAPI{}, h)

	b.HandleUpdate(context.Background(), textUpdate(7, "Go dev", tgbotapi.MessageEntity{Type: "bold", Offset: 0, Length: 6}))

	require.Len(t, h.received(), 1)
	in := h.received()[0]
	assert.Equal(t, "7", in.UserID)
	assert.Equal(t, "Ann", in.FirstName)
	assert.Equal(t, "Go dev", in.Text)
	assert.Equal(t, "<b>Go dev</b>", in.Formatted)
	assert.Empty(t, in.Command)
}

func TestHandleUpdate_Command(t *testing.T) {
	h := &scriptHandler{}
	b := newTestBot(&fakeAPI{}, h)

	b.HandleUpdate(context.Background(), textUpdate(7, "/start", tgbotapi.MessageEntity{Type: "bot_command", Offset: 0, Length: 6}))

	require.Len(t, h.received(), 1)
	assert.Equal(t, "start", h.received()[0].Command)
}

func TestHandleUpdate_CallbackIsAcknowledged(t *testing.T) {
	api := &fakeAPI{}
	h := &scriptHandler{}
	b := newTestBot(api, h)

	b.HandleUpdate(context.Background(), tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb-1",
			From:    &tgbotapi.User{ID: 7, FirstName: "Ann"},
			Message: &tgbotapi.Message{MessageID: 3, Chat: &tgbotapi.Chat{ID: 7}},
			Data:    chat.ActionHelp,
		},
	})

	require.Len(t, api.requests, 1)
	cb, ok := api.requests[0].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.Equal(t, "cb-1", cb.CallbackQueryID)

	require.Len(t, h.received(), 1)
	assert.Equal(t, chat.ActionHelp, h.received()[0].Action)
}

func TestResponder_SendsHTMLWithKeyboard(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(api, nil)
	r := &responder{bot: b, chatID: 7}

	err := r.Send(context.Background(), chat.Reply{
		Text:    "<b>hi</b>",
		HTML:    true,
		Buttons: [][]chat.Button{{{Label: "Help", Action: chat.ActionHelp}}},
	})
	require.NoError(t, err)

	require.Len(t, api.sent, 1)
	msg := api.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	assert.True(t, msg.DisableWebPagePreview)
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.NotNil(t, kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, chat.ActionHelp, *kb.InlineKeyboard[0][0].CallbackData)
}

func TestResponder_ResendsPlainTextOnParseError(t *testing.T) {
	api := &fakeAPI{sendErrs: []error{
		&tgbotapi.Error{Code: 400, Message: "Bad Request: can't parse entities: unclosed tag"},
	}}
	b := newTestBot(api, nil)
	r := &responder{bot: b, chatID: 7}

	require.NoError(t, r.Send(context.Background(), chat.Reply{Text: "<b>Acme &amp; Co", HTML: true}))

	sent := api.sentMessages()
	require.Len(t, sent, 2)
	plain := sent[1].(tgbotapi.MessageConfig)
	assert.Empty(t, plain.ParseMode)
	assert.Equal(t, "Acme & Co", plain.Text)
}

func TestResponder_RetriesRateLimit(t *testing.T) {
	rateLimited := &tgbotapi.Error{Code: 429, Message: "Too Many Requests"}
	api := &fakeAPI{sendErrs: []error{rateLimited, nil}}
	b := newTestBot(api, nil)
	r := &responder{bot: b, chatID: 7}

	require.NoError(t, r.Send(context.Background(), chat.Reply{Text: "hello"}))
	assert.Len(t, api.sentMessages(), 2)
}

func TestResponder_OtherErrorsAreReturned(t *testing.T) {
	api := &fakeAPI{sendErrs: []error{&tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}}}
	b := newTestBot(api, nil)
	r := &responder{bot: b, chatID: 7}

	err := r.Send(context.Background(), chat.Reply{Text: "hello", HTML: true})
	require.Error(t, err)

	var apiErr *tgbotapi.Error
	assert.True(t, errors.As(err, &apiErr))
	assert.Len(t, api.sentMessages(), 1)
}

func TestResponder_StatusLifecycle(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(api, nil)
	r := &responder{bot: b, chatID: 7}
	ctx := context.Background()

	require.NoError(t, r.Status(ctx, "processing"))
	require.NoError(t, r.Status(ctx, "generating"))
	require.NoError(t, r.ClearStatus(ctx))
	require.NoError(t, r.ClearStatus(ctx))

	sent := api.sentMessages()
	require.Len(t, sent, 2)
	_, isNew := sent[0].(tgbotapi.MessageConfig)
	assert.True(t, isNew)
	edit, ok := sent[1].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, 1, edit.MessageID)
	assert.Equal(t, "generating", edit.Text)

	require.Len(t, api.requests, 1)
	del, ok := api.requests[0].(tgbotapi.DeleteMessageConfig)
	require.True(t, ok)
	assert.Equal(t, 1, del.MessageID)
}

func TestRun_DispatchesUntilCancelled(t *testing.T) {
	api := &fakeAPI{updates: make(chan tgbotapi.Update)}
	h := &scriptHandler{script: func(ctx context.Context, r chat.Responder) error {
		return r.Send(ctx, chat.Reply{Text: "ok"})
	}}
	b := newTestBot(api, h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	api.updates <- textUpdate(1, "first")
	api.updates <- textUpdate(2, "second")
	api.updates <- tgbotapi.Update{UpdateID: 9}

	require.Eventually(t, func() bool { return len(api.sentMessages()) == 2 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Len(t, h.received(), 2)
	assert.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return api.stopped
	}, time.Second, 10*time.Millisecond)
}
