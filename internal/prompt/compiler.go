package prompt

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"text/template"

	"github.com/amishk599/vacancybot/internal/model"
)

//go:embed contracts/*.tmpl
var contracts embed.FS

// AllowedTags lists the markup the contract permits, as shown to the model.
const AllowedTags = "<b>, <i>, <u>, <s>, <blockquote>, <a href>"

// slots every contract must define.
var slots = []string{"system", "user", "fallback"}

var defaultCTA = map[string]string{
	"ru": "Стать частью команды",
	"en": "Join the team",
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

var funcs = template.FuncMap{
	"join":   strings.Join,
	"escape": htmlEscaper.Replace,
}

// Options configures a Compiler.
type Options struct {
	Locale       string   // "ru" or "en", selects the embedded contract
	ContractPath string   // optional file replacing the embedded contract
	Aggregators  []string // sites that are never the hiring company
	CTA          string   // call-to-action phrase, defaults per locale
}

// Compiler renders generation requests into system/user prompt pairs using a
// contract: a text/template set defining the "system", "user" and "fallback" slots.
type Compiler struct {
	mu   sync.RWMutex
	tmpl *template.Template

	path        string
	aggregators []string
	cta         string
	logger      *slog.Logger
}

// contractData is the value every contract slot is executed with.
type contractData struct {
	Template     string
	Description  string
	Content      string
	Instructions string
	AllowedTags  string
	Aggregators  []string
	CTA          string
	Unconfigured bool // fallback only: no generation credentials
}

// NewCompiler loads the embedded contract for opts.Locale, or the file at
// opts.ContractPath when set.
func NewCompiler(opts Options, logger *slog.Logger) (*Compiler, error) {
	locale := opts.Locale
	if locale == "" {
		locale = "ru"
	}
	cta := opts.CTA
	if cta == "" {
		cta = defaultCTA[locale]
	}

	c := &Compiler{
		path:        opts.ContractPath,
		aggregators: opts.Aggregators,
		cta:         cta,
		logger:      logger,
	}

	if c.path != "" {
		if err := c.Reload(); err != nil {
			return nil, err
		}
		return c, nil
	}

	raw, err := contracts.ReadFile("contracts/" + locale + ".tmpl")
	if err != nil {
		return nil, fmt.Errorf("no built-in contract for locale %q", locale)
	}
	tmpl, err := ParseContract(locale, string(raw))
	if err != nil {
		return nil, err
	}
	c.tmpl = tmpl
	return c, nil
}

// ParseContract parses contract text and checks that every slot is defined.
func ParseContract(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse contract %s: %w", name, err)
	}
	for _, slot := range slots {
		if tmpl.Lookup(slot) == nil {
			return nil, fmt.Errorf("contract %s does not define %q", name, slot)
		}
	}
	return tmpl, nil
}

// Reload re-reads the contract file. A contract that fails to parse is
// rejected and the active one is kept.
func (c *Compiler) Reload() error {
	if c.path == "" {
		return nil
	}
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read contract: %w", err)
	}
	tmpl, err := ParseContract(c.path, string(raw))
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.tmpl = tmpl
	c.mu.Unlock()
	return nil
}

// Compile renders the system and user prompts for req.
func (c *Compiler) Compile(req model.GenerationRequest) (model.Prompt, error) {
	data := c.data(req)

	system, err := c.render("system", data)
	if err != nil {
		return model.Prompt{}, err
	}
	user, err := c.render("user", data)
	if err != nil {
		return model.Prompt{}, err
	}
	return model.Prompt{System: strings.TrimSpace(system), User: strings.TrimSpace(user)}, nil
}

// Fallback renders the deterministic message shown when generation is
// unavailable. cause picks the closing hint.
func (c *Compiler) Fallback(req model.GenerationRequest, cause error) string {
	data := c.data(req)
	data.Unconfigured = errors.Is(cause, model.ErrConfigurationMissing)
	out, err := c.render("fallback", data)
	if err != nil {
		// A contract without a working fallback still yields the raw inputs.
		c.logger.Error("render fallback failed", "error", err)
		return req.Template + "\n\n" + req.Content
	}
	return strings.TrimSpace(out)
}

func (c *Compiler) data(req model.GenerationRequest) contractData {
	return contractData{
		Template:     req.Template,
		Description:  req.Description,
		Content:      req.Content,
		Instructions: strings.TrimSpace(req.Instructions),
		AllowedTags:  AllowedTags,
		Aggregators:  c.aggregators,
		CTA:          c.cta,
	}
}

func (c *Compiler) render(slot string, data contractData) (string, error) {
	c.mu.RLock()
	tmpl := c.tmpl
	c.mu.RUnlock()

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, slot, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", slot, err)
	}
	return buf.String(), nil
}

// SplitInstructions separates vacancy content from per-call instructions.
// A line consisting only of "---" divides the two; without one the whole
// input is content.
func SplitInstructions(input string) (content, instructions string) {
	lines := strings.Split(input, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "---" {
			content = strings.TrimSpace(strings.Join(lines[:i], "\n"))
			instructions = strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
			return content, instructions
		}
	}
	return strings.TrimSpace(input), ""
}
