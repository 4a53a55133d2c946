package sanitize

import (
	"regexp"
	"strings"
)

// Options configures a Sanitizer.
type Options struct {
	DenyDomains []string // domains whose links and mentions are removed
	CTAPhrases  []string // phrases re-anchored onto the URL that follows them
	LinkLabel   string   // anchor text for bare URLs
	Markdown    bool     // repair Markdown emphasis, links and quotes
}

// Sanitizer post-processes generated text into the markup subset a Telegram
// channel accepts: <b>, <i>, <u>, <s>, <blockquote> and <a href>.
// Sanitize is deterministic and idempotent.
type Sanitizer struct {
	markdown bool
	label    string
	deny     []denyRule
	ctas     []*regexp.Regexp
}

type denyRule struct {
	domain  string // lower-cased
	url     *regexp.Regexp
	mention *regexp.Regexp
}

var (
	fenceStartRe = regexp.MustCompile("^\\s*```[\\w+-]*[ \\t]*\\n?")
	fenceEndRe   = regexp.MustCompile("\\n?[ \\t]*```\\s*$")

	breakRe   = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockRe   = regexp.MustCompile(`(?i)</?(?:p|div)(?:\s[^>]*)?>`)
	spanRe    = regexp.MustCompile(`(?i)</?span(?:\s[^>]*)?>`)
	strongRe  = regexp.MustCompile(`(?i)<(/?)strong(?:\s[^>]*)?>`)
	emRe      = regexp.MustCompile(`(?i)<(/?)em(?:\s[^>]*)?>`)
	insRe     = regexp.MustCompile(`(?i)<(/?)ins(?:\s[^>]*)?>`)
	strikeRe  = regexp.MustCompile(`(?i)<(/?)(?:del|strike)(?:\s[^>]*)?>`)
	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	tagRe     = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9]*)(\s[^>]*)?/?>`)
	hrefRe    = regexp.MustCompile(`(?i)\bhref\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s>]+))`)
	anchorRe  = regexp.MustCompile(`(?is)<a href="([^"]*)">(.*?)</a>`)

	trailingSpaceRe = regexp.MustCompile(`(?m)[ \t]+$`)
	blankRunRe      = regexp.MustCompile(`\n{3,}`)
	serviceTokenRe  = regexp.MustCompile(`(?i)^\s*(?:html|body)(?:[:>]|[ \t]*(?:\n|$))`)

	bareURLRe = regexp.MustCompile(`https?://[^\s<>"']+`)

	canonicalTagRe = regexp.MustCompile(`</?(?:b|i|u|s|blockquote|a)>|<a href="[^"]*">`)
	entityRe       = regexp.MustCompile(`^&(?:[a-zA-Z][a-zA-Z0-9]*|#[0-9]+|#[xX][0-9a-fA-F]+);`)
)

var allowed = map[string]bool{
	"b": true, "i": true, "u": true, "s": true, "blockquote": true, "a": true,
}

// New builds a Sanitizer from opts. An empty LinkLabel defaults to "ссылка".
func New(opts Options) *Sanitizer {
	s := &Sanitizer{markdown: opts.Markdown, label: opts.LinkLabel}
	if s.label == "" {
		s.label = "ссылка"
	}
	for _, d := range opts.DenyDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		q := regexp.QuoteMeta(d)
		s.deny = append(s.deny, denyRule{
			domain:  d,
			url:     regexp.MustCompile(`(?i)https?://[^\s<>"']*` + q + `[^\s<>"']*`),
			mention: regexp.MustCompile(`(?i)(?:www\.)?\b` + q + `\b(?:/[^\s<>"']*)?`),
		})
	}
	for _, p := range opts.CTAPhrases {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		s.ctas = append(s.ctas, regexp.MustCompile(`(?i)(`+regexp.QuoteMeta(p)+`)[ \t]*:?[ \t]*(https?://[^\s<>"']+)`))
	}
	return s
}

// Sanitize applies the rules in order and returns the trimmed result.
func (s *Sanitizer) Sanitize(raw string) string {
	out := strings.ReplaceAll(raw, "\r\n", "\n")
	if s.markdown {
		out = repairMarkdown(out)
	}
	out = stripFences(out)
	out = normalizeTags(out)
	out = dropDisallowedTags(out)
	out = s.applyDenyList(out)
	out = collapseBlankLines(out)
	out = stripServiceTokens(out)
	out = escapeText(out)
	out = s.anchorLinks(out)
	return strings.TrimSpace(out)
}

func stripFences(s string) string {
	s = fenceStartRe.ReplaceAllString(s, "")
	return fenceEndRe.ReplaceAllString(s, "")
}

func normalizeTags(s string) string {
	s = breakRe.ReplaceAllString(s, "\n")
	s = blockRe.ReplaceAllString(s, "\n")
	s = spanRe.ReplaceAllString(s, "")
	s = strongRe.ReplaceAllString(s, "<${1}b>")
	s = emRe.ReplaceAllString(s, "<${1}i>")
	s = insRe.ReplaceAllString(s, "<${1}u>")
	return strikeRe.ReplaceAllString(s, "<${1}s>")
}

// dropDisallowedTags removes every tag outside the allowed set, keeping its
// text, and reduces allowed tags to their canonical form.
func dropDisallowedTags(s string) string {
	s = commentRe.ReplaceAllString(s, "")
	return tagRe.ReplaceAllStringFunc(s, func(tag string) string {
		m := tagRe.FindStringSubmatch(tag)
		name := strings.ToLower(m[1])
		if !allowed[name] {
			return ""
		}
		if strings.HasPrefix(tag, "</") {
			return "</" + name + ">"
		}
		if name != "a" {
			return "<" + name + ">"
		}
		h := hrefRe.FindStringSubmatch(m[2])
		if h == nil {
			return "<a>"
		}
		href := h[1] + h[2] + h[3]
		return `<a href="` + strings.ReplaceAll(href, `"`, "%22") + `">`
	})
}

func (s *Sanitizer) applyDenyList(text string) string {
	for _, rule := range s.deny {
		text = anchorRe.ReplaceAllStringFunc(text, func(a string) string {
			m := anchorRe.FindStringSubmatch(a)
			if strings.Contains(strings.ToLower(m[1]), rule.domain) {
				return m[2]
			}
			return a
		})
		text = rule.url.ReplaceAllString(text, "")
		text = rule.mention.ReplaceAllString(text, "")
	}
	return text
}

func collapseBlankLines(s string) string {
	s = trailingSpaceRe.ReplaceAllString(s, "")
	return blankRunRe.ReplaceAllString(s, "\n\n")
}

func stripServiceTokens(s string) string {
	for {
		loc := serviceTokenRe.FindStringIndex(s)
		if loc == nil {
			return s
		}
		s = strings.TrimLeft(s[loc[1]:], " \t")
	}
}

// escapeText escapes <, > and & everywhere outside the canonical tags.
// Existing entities are left alone.
func escapeText(s string) string {
	var b strings.Builder
	last := 0
	for _, loc := range canonicalTagRe.FindAllStringIndex(s, -1) {
		escapeSegment(&b, s[last:loc[0]])
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	escapeSegment(&b, s[last:])
	return b.String()
}

func escapeSegment(b *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			if entityRe.MatchString(s[i:]) {
				b.WriteByte(c)
			} else {
				b.WriteString("&amp;")
			}
		default:
			b.WriteByte(c)
		}
	}
}

func (s *Sanitizer) anchorLinks(text string) string {
	for _, re := range s.ctas {
		var b strings.Builder
		last := 0
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if insideAnchor(text[:m[0]]) {
				continue
			}
			url := trimURL(text[m[4]:m[5]])
			b.WriteString(text[last:m[0]])
			b.WriteString(`<a href="` + url + `">` + text[m[2]:m[3]] + `</a>`)
			last = m[4] + len(url)
		}
		b.WriteString(text[last:])
		text = b.String()
	}

	var b strings.Builder
	last := 0
	for _, loc := range bareURLRe.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if insideAnchor(text[:start]) {
			continue
		}
		url := trimURL(text[start:end])
		if strings.HasSuffix(url, "://") {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString(`<a href="` + url + `">` + s.label + `</a>`)
		last = start + len(url)
	}
	b.WriteString(text[last:])
	return b.String()
}

// insideAnchor reports whether a URL following prefix sits in an attribute
// value or between <a ...> and </a>.
func insideAnchor(prefix string) bool {
	if strings.HasSuffix(prefix, `="`) || strings.HasSuffix(prefix, `='`) {
		return true
	}
	lower := strings.ToLower(prefix)
	open := strings.LastIndex(lower, "<a ")
	if o := strings.LastIndex(lower, "<a>"); o > open {
		open = o
	}
	return open >= 0 && open > strings.LastIndex(lower, "</a>")
}

// trimURL drops trailing punctuation and anything from an escaped angle
// bracket on.
func trimURL(url string) string {
	for _, esc := range []string{"&gt;", "&lt;"} {
		if i := strings.Index(url, esc); i >= 0 {
			url = url[:i]
		}
	}
	return strings.TrimRight(url, ".,;:!?)]}")
}
