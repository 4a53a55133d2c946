package console

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	xhtml "golang.org/x/net/html"
)

var (
	quoteBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	linkURLStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// renderHTML renders the Telegram HTML subset for a terminal. Unknown tags
// are dropped and their text kept.
func renderHTML(s string) string {
	var b strings.Builder
	var bold, italic, underline, strike, quote, code int
	var href string
	lineStart := true

	write := func(text string) {
		st := lipgloss.NewStyle().
			Bold(bold > 0).
			Italic(italic > 0).
			Underline(underline > 0 || href != "").
			Strikethrough(strike > 0)
		if code > 0 {
			st = st.Foreground(lipgloss.Color("214"))
		}
		for i, line := range strings.Split(text, "\n") {
			if i > 0 {
				b.WriteByte('\n')
				lineStart = true
			}
			if line == "" {
				continue
			}
			if lineStart && quote > 0 {
				b.WriteString(quoteBarStyle.Render("│ "))
			}
			b.WriteString(st.Render(line))
			lineStart = false
		}
	}

	z := xhtml.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		switch tt {
		case xhtml.ErrorToken:
			return b.String()

		case xhtml.TextToken:
			write(string(z.Text()))

		case xhtml.StartTagToken, xhtml.EndTagToken:
			name, hasAttr := z.TagName()
			delta := 1
			if tt == xhtml.EndTagToken {
				delta = -1
			}
			switch string(name) {
			case "b", "strong":
				bold += delta
			case "i", "em":
				italic += delta
			case "u", "ins":
				underline += delta
			case "s", "strike", "del":
				strike += delta
			case "code", "pre":
				code += delta
			case "blockquote":
				quote += delta
			case "a":
				if tt == xhtml.EndTagToken {
					if href != "" {
						b.WriteString(linkURLStyle.Render(" (" + href + ")"))
					}
					href = ""
					continue
				}
				for hasAttr {
					var key, val []byte
					key, val, hasAttr = z.TagAttr()
					if string(key) == "href" {
						href = string(val)
					}
				}
			}
		}
	}
}
