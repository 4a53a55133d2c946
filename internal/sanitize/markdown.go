package sanitize

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
)

var md = goldmark.New(goldmark.WithRendererOptions(html.WithUnsafe()))

var (
	markerRe = regexp.MustCompile(`\*\*[^*\n]+\*\*|__[^_\n]+__|\[[^\]\n]+\]\(https?://`)
	quoteRe  = regexp.MustCompile(`^>[ \t]?(.*)$`)
	urlRe    = regexp.MustCompile(`https?://[^\s<>"']+`)

	// Leading indentation, list bullets and heading hashes would turn a line
	// into a block element, so they are kept outside the rendered part.
	blockPrefixRe = regexp.MustCompile(`^\s*(?:(?:[-*+]|\d+[.)])\s+|#{1,6}\s+)?`)
)

// repairMarkdown renders lines that carry Markdown emphasis or links through
// goldmark and wraps runs of "> " lines in <blockquote>. Other lines are
// returned unchanged.
func repairMarkdown(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))

	for i := 0; i < len(lines); i++ {
		if !quoteRe.MatchString(lines[i]) {
			out = append(out, repairLine(lines[i]))
			continue
		}

		var quoted []string
		for ; i < len(lines) && quoteRe.MatchString(lines[i]); i++ {
			quoted = append(quoted, repairLine(quoteRe.FindStringSubmatch(lines[i])[1]))
		}
		i--
		out = append(out, "<blockquote>"+strings.Join(quoted, "\n")+"</blockquote>")
	}
	return strings.Join(out, "\n")
}

func repairLine(line string) string {
	masked, urls := maskURLs(line)
	if !markerRe.MatchString(masked) {
		return line
	}
	prefix := blockPrefixRe.FindString(masked)
	rest := masked[len(prefix):]

	var buf bytes.Buffer
	if err := md.Convert([]byte(rest), &buf); err != nil {
		return line
	}
	rendered := strings.TrimSpace(buf.String())
	rendered = strings.TrimPrefix(rendered, "<p>")
	rendered = strings.TrimSuffix(rendered, "</p>")
	return unmaskURLs(prefix+rendered, urls)
}

// maskURLs swaps every URL that is not a Markdown link target for a
// placeholder, so emphasis markers inside URLs are never rendered.
func maskURLs(line string) (string, []string) {
	var urls []string
	var b strings.Builder
	last := 0
	for _, loc := range urlRe.FindAllStringIndex(line, -1) {
		if strings.HasSuffix(line[:loc[0]], "](") {
			continue
		}
		b.WriteString(line[last:loc[0]])
		b.WriteString(urlPlaceholder(len(urls)))
		urls = append(urls, line[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(line[last:])
	return b.String(), urls
}

func unmaskURLs(s string, urls []string) string {
	for i, u := range urls {
		s = strings.Replace(s, urlPlaceholder(i), u, 1)
	}
	return s
}

// urlPlaceholder uses private-use runes that goldmark passes through as text.
func urlPlaceholder(i int) string {
	return "\ue000" + strconv.Itoa(i) + "\ue001"
}
