package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/amishk599/vacancybot/internal/chat"
)

var _ chat.Responder = (*responder)(nil)

// responder answers in one chat. It lives for a single update, so the
// status message never outlives the handler that created it.
type responder struct {
	bot      *Bot
	chatID   int64
	statusID int
}

func (r *responder) Send(ctx context.Context, reply chat.Reply) error {
	msg := tgbotapi.NewMessage(r.chatID, reply.Text)
	msg.DisableWebPagePreview = true
	if reply.HTML {
		msg.ParseMode = tgbotapi.ModeHTML
	}
	if len(reply.Buttons) > 0 {
		msg.ReplyMarkup = keyboard(reply.Buttons)
	}

	_, err := r.bot.send(ctx, msg)
	if err != nil && reply.HTML && isParseError(err) {
		r.bot.logger.Warn("telegram rejected HTML, resending as plain text", "chat", r.chatID, "error", err)
		msg.ParseMode = ""
		msg.Text = PlainText(reply.Text)
		_, err = r.bot.send(ctx, msg)
	}
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (r *responder) Status(ctx context.Context, text string) error {
	if r.statusID == 0 {
		m, err := r.bot.send(ctx, tgbotapi.NewMessage(r.chatID, text))
		if err != nil {
			return fmt.Errorf("send status: %w", err)
		}
		r.statusID = m.MessageID
		return nil
	}
	if _, err := r.bot.send(ctx, tgbotapi.NewEditMessageText(r.chatID, r.statusID, text)); err != nil {
		return fmt.Errorf("edit status: %w", err)
	}
	return nil
}

func (r *responder) ClearStatus(ctx context.Context) error {
	if r.statusID == 0 {
		return nil
	}
	id := r.statusID
	r.statusID = 0
	if err := r.bot.request(ctx, tgbotapi.NewDeleteMessage(r.chatID, id)); err != nil {
		return fmt.Errorf("delete status: %w", err)
	}
	return nil
}

func keyboard(rows [][]chat.Button) tgbotapi.InlineKeyboardMarkup {
	kb := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Action))
		}
		kb = append(kb, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...)
}
