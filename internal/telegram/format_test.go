package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
)

func TestEntitiesToHTML(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		entities []tgbotapi.MessageEntity
		want     string
	}{
		{
			name: "no entities escapes markup",
			text: "a < b & c",
			want: "a &lt; b &amp; c",
		},
		{
			name:     "bold",
			text:     "Go dev wanted",
			entities: []tgbotapi.MessageEntity{{Type: "bold", Offset: 0, Length: 6}},
			want:     "<b>Go dev</b> wanted",
		},
		{
			// 💚 is two UTF-16 code units.
			name:     "offsets after emoji",
			text:     "💚 Acme ищут 💚",
			entities: []tgbotapi.MessageEntity{{Type: "bold", Offset: 3, Length: 9}},
			want:     "💚 <b>Acme ищут</b> 💚",
		},
		{
			name: "nested",
			text: "Senior Go",
			entities: []tgbotapi.MessageEntity{
				{Type: "italic", Offset: 7, Length: 2},
				{Type: "bold", Offset: 0, Length: 9},
			},
			want: "<b>Senior <i>Go</i></b>",
		},
		{
			name:     "text link",
			text:     "apply here",
			entities: []tgbotapi.MessageEntity{{Type: "text_link", Offset: 0, Length: 5, URL: "https://acme.io/jobs?a=1&b=2"}},
			want:     `<a href="https://acme.io/jobs?a=1&amp;b=2">apply</a> here`,
		},
		{
			name:     "bare url",
			text:     "see https://acme.io",
			entities: []tgbotapi.MessageEntity{{Type: "url", Offset: 4, Length: 15}},
			want:     `see <a href="https://acme.io">https://acme.io</a>`,
		},
		{
			name: "blockquote spanning lines",
			text: "Title\nline one\nline two",
			entities: []tgbotapi.MessageEntity{
				{Type: "blockquote", Offset: 6, Length: 17},
			},
			want: "Title\n<blockquote>line one\nline two</blockquote>",
		},
		{
			name: "unsupported types dropped",
			text: "#go @acme",
			entities: []tgbotapi.MessageEntity{
				{Type: "hashtag", Offset: 0, Length: 3},
				{Type: "mention", Offset: 4, Length: 5},
			},
			want: "#go @acme",
		},
		{
			name:     "length past end is clamped",
			text:     "short",
			entities: []tgbotapi.MessageEntity{{Type: "underline", Offset: 0, Length: 50}},
			want:     "<u>short</u>",
		},
		{
			name: "overlapping entities stay balanced",
			text: "abcdef",
			entities: []tgbotapi.MessageEntity{
				{Type: "bold", Offset: 0, Length: 4},
				{Type: "italic", Offset: 2, Length: 4},
			},
			want: "<b>ab<i>cdef</i></b>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EntitiesToHTML(tt.text, tt.entities))
		})
	}
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "Acme & Co\napply", PlainText("<b>Acme &amp; Co</b>\n<a href=\"https://x.io\">apply</a>"))
	assert.Equal(t, "Пишите <hr@acme.io>", PlainText("Пишите &lt;hr@acme.io&gt;"))
}
