package telegram

import (
	"html"
	"regexp"
	"sort"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EntitiesToHTML renders text with its Telegram entities as the HTML subset
// Telegram accepts back with ParseMode HTML. Entity offsets and lengths are
// in UTF-16 code units. Unsupported entity types are dropped.
func EntitiesToHTML(text string, entities []tgbotapi.MessageEntity) string {
	units := utf16.Encode([]rune(text))

	type span struct {
		start, end int
		open       string
		close      string
	}
	var spans []span
	for _, e := range entities {
		start, end := e.Offset, e.Offset+e.Length
		if e.Length <= 0 || start < 0 || start >= len(units) {
			continue
		}
		if end > len(units) {
			end = len(units)
		}
		open, closeTag, ok := entityTags(e, string(utf16.Decode(units[start:end])))
		if !ok {
			continue
		}
		spans = append(spans, span{start: start, end: end, open: open, close: closeTag})
	}
	if len(spans) == 0 {
		return escaper.Replace(text)
	}

	// Outer entities first so nested ones close before their parents.
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	var b strings.Builder
	var stack []span
	next := 0
	flush := func(from, to int) {
		if from < to {
			b.WriteString(escaper.Replace(string(utf16.Decode(units[from:to]))))
		}
	}

	pos := 0
	for pos <= len(units) {
		for len(stack) > 0 && stack[len(stack)-1].end <= pos {
			b.WriteString(stack[len(stack)-1].close)
			stack = stack[:len(stack)-1]
		}
		for next < len(spans) && spans[next].start == pos {
			b.WriteString(spans[next].open)
			stack = append(stack, spans[next])
			next++
		}
		if pos == len(units) {
			break
		}
		stop := len(units)
		if next < len(spans) && spans[next].start < stop {
			stop = spans[next].start
		}
		if len(stack) > 0 && stack[len(stack)-1].end < stop {
			stop = stack[len(stack)-1].end
		}
		flush(pos, stop)
		pos = stop
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteString(stack[i].close)
	}
	return b.String()
}

func entityTags(e tgbotapi.MessageEntity, covered string) (open, closeTag string, ok bool) {
	switch e.Type {
	case "bold":
		return "<b>", "</b>", true
	case "italic":
		return "<i>", "</i>", true
	case "underline":
		return "<u>", "</u>", true
	case "strikethrough":
		return "<s>", "</s>", true
	case "blockquote", "expandable_blockquote":
		return "<blockquote>", "</blockquote>", true
	case "code":
		return "<code>", "</code>", true
	case "pre":
		return "<pre>", "</pre>", true
	case "text_link":
		return `<a href="` + html.EscapeString(e.URL) + `">`, "</a>", true
	case "url":
		return `<a href="` + html.EscapeString(covered) + `">`, "</a>", true
	default:
		return "", "", false
	}
}

var tagRe = regexp.MustCompile(`<[^>]+>`)

// PlainText strips HTML tags and entities, for resending a message that
// Telegram refused to parse.
func PlainText(s string) string {
	return html.UnescapeString(tagRe.ReplaceAllString(s, ""))
}
