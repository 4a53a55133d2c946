package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for vacancybot.
type Config struct {
	Telegram     TelegramConfig
	HTTP         HTTPConfig
	AI           AIConfig
	Extract      ExtractConfig
	Store        StoreConfig
	Prompt       PromptConfig
	Sanitize     SanitizeConfig
	Notification NotificationConfig
}

// TelegramConfig controls the Telegram transport.
type TelegramConfig struct {
	Token       string        // expanded from TELEGRAM_BOT_TOKEN when empty
	PollTimeout time.Duration // long-poll timeout for getUpdates
	Workers     int           // max concurrent update handlers
}

// HTTPConfig controls the optional JSON API. Empty Addr disables it.
type HTTPConfig struct {
	Addr           string
	RequestTimeout time.Duration
}

// AIConfig selects and configures the generation service.
type AIConfig struct {
	Provider    string  // "yandex" or "openai"
	APIKey      string  // expanded from YANDEX_API_KEY / OPENAI_API_KEY when empty
	FolderID    string  // yandex tenant folder
	ModelURI    string  // yandex model URI, derived from FolderID when empty
	BaseURL     string  // endpoint override
	Model       string  // openai model name
	Temperature float64 // clamped to [0.2, 0.6]
	MaxTokens   int     // floored at 800
	Timeout     time.Duration
}

// Configured reports whether enough credentials are present to call the service.
func (a AIConfig) Configured() bool {
	switch a.Provider {
	case ProviderOpenAI:
		return a.APIKey != "" && a.Model != ""
	default:
		return a.APIKey != "" && a.FolderID != ""
	}
}

// ExtractConfig controls page fetching.
type ExtractConfig struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	HostRate     float64 // requests per second per host, 0 disables limiting
	HostBurst    int
}

// StoreConfig selects the template store backend.
type StoreConfig struct {
	Type string // "json", "sqlite" or "memory"
	Path string
}

// PromptConfig controls the instruction contract.
type PromptConfig struct {
	Locale       string // "ru" or "en"
	ContractPath string // optional custom contract file
	Watch        bool   // reload ContractPath on change
	Aggregators  []string
	CTA          string // call-to-action phrase; empty means the locale default
}

// SanitizeConfig controls output post-processing.
type SanitizeConfig struct {
	DenyDomains []string
	CTAPhrases  []string
	LinkLabel   string
	Markdown    bool
}

// NotificationConfig controls where finished announcements are mirrored.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log", "slack" or "none"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

const (
	ProviderYandex = "yandex"
	ProviderOpenAI = "openai"

	StoreJSON   = "json"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	defaultYandexBaseURL = "https://llm.api.cloud.yandex.net/foundationModels/v1/completion"
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
)

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	Telegram     rawTelegramConfig  `yaml:"telegram"`
	HTTP         rawHTTPConfig      `yaml:"http"`
	AI           rawAIConfig        `yaml:"ai"`
	Extract      rawExtractConfig   `yaml:"extract"`
	Store        rawStoreConfig     `yaml:"store"`
	Prompt       rawPromptConfig    `yaml:"prompt"`
	Sanitize     rawSanitizeConfig  `yaml:"sanitize"`
	Notification NotificationConfig `yaml:"notification"`
}

type rawTelegramConfig struct {
	Token       string `yaml:"token"`
	PollTimeout string `yaml:"poll_timeout"`
	Workers     int    `yaml:"workers"`
}

type rawHTTPConfig struct {
	Addr           string `yaml:"addr"`
	RequestTimeout string `yaml:"request_timeout"`
}

type rawAIConfig struct {
	Provider    string   `yaml:"provider"`
	APIKey      string   `yaml:"api_key"`
	FolderID    string   `yaml:"folder_id"`
	ModelURI    string   `yaml:"model_uri"`
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	Timeout     string   `yaml:"timeout"`
}

type rawExtractConfig struct {
	Timeout      string   `yaml:"timeout"`
	UserAgent    string   `yaml:"user_agent"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
	HostRate     *float64 `yaml:"host_rate"`
	HostBurst    int      `yaml:"host_burst"`
}

type rawStoreConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

type rawPromptConfig struct {
	Locale       string   `yaml:"locale"`
	ContractPath string   `yaml:"contract_path"`
	Watch        bool     `yaml:"watch"`
	Aggregators  []string `yaml:"aggregators"`
	CTA          string   `yaml:"cta"`
}

type rawSanitizeConfig struct {
	DenyDomains []string `yaml:"deny_domains"`
	CTAPhrases  []string `yaml:"cta_phrases"`
	LinkLabel   string   `yaml:"link_label"`
	Markdown    *bool    `yaml:"markdown"`
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// LoadOptional behaves like Load but treats a missing file as an empty one,
// so a deployment configured purely through the environment still starts.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Parse(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes. Environment variables referenced as
// ${VAR} are expanded, and well-known variables fill empty secrets.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&raw)

	pollTimeout, err := parseDuration("telegram.poll_timeout", raw.Telegram.PollTimeout, 60*time.Second)
	if err != nil {
		return nil, err
	}
	httpTimeout, err := parseDuration("http.request_timeout", raw.HTTP.RequestTimeout, 90*time.Second)
	if err != nil {
		return nil, err
	}
	aiTimeout, err := parseDuration("ai.timeout", raw.AI.Timeout, 60*time.Second)
	if err != nil {
		return nil, err
	}
	extractTimeout, err := parseDuration("extract.timeout", raw.Extract.Timeout, 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Telegram: TelegramConfig{
			Token:       raw.Telegram.Token,
			PollTimeout: pollTimeout,
			Workers:     orInt(raw.Telegram.Workers, 8),
		},
		HTTP: HTTPConfig{
			Addr:           raw.HTTP.Addr,
			RequestTimeout: httpTimeout,
		},
		AI: AIConfig{
			Provider:    orString(strings.ToLower(raw.AI.Provider), ProviderYandex),
			APIKey:      raw.AI.APIKey,
			FolderID:    raw.AI.FolderID,
			ModelURI:    raw.AI.ModelURI,
			BaseURL:     raw.AI.BaseURL,
			Model:       raw.AI.Model,
			Temperature: 0.3,
			MaxTokens:   orInt(raw.AI.MaxTokens, 2000),
			Timeout:     aiTimeout,
		},
		Extract: ExtractConfig{
			Timeout:      extractTimeout,
			UserAgent:    orString(raw.Extract.UserAgent, DefaultUserAgent),
			MaxBodyBytes: raw.Extract.MaxBodyBytes,
			HostRate:     1,
			HostBurst:    orInt(raw.Extract.HostBurst, 2),
		},
		Store: StoreConfig{
			Type: orString(strings.ToLower(raw.Store.Type), StoreJSON),
			Path: raw.Store.Path,
		},
		Prompt: PromptConfig{
			Locale:       orString(strings.ToLower(raw.Prompt.Locale), "ru"),
			ContractPath: raw.Prompt.ContractPath,
			Watch:        raw.Prompt.Watch,
			Aggregators:  raw.Prompt.Aggregators,
			CTA:          strings.TrimSpace(raw.Prompt.CTA),
		},
		Sanitize: SanitizeConfig{
			DenyDomains: raw.Sanitize.DenyDomains,
			CTAPhrases:  raw.Sanitize.CTAPhrases,
			LinkLabel:   orString(raw.Sanitize.LinkLabel, "ссылка"),
			Markdown:    true,
		},
		Notification: raw.Notification,
	}

	if raw.AI.Temperature != nil {
		cfg.AI.Temperature = *raw.AI.Temperature
	}
	if raw.Extract.HostRate != nil {
		cfg.Extract.HostRate = *raw.Extract.HostRate
	}
	if raw.Sanitize.Markdown != nil {
		cfg.Sanitize.Markdown = *raw.Sanitize.Markdown
	}
	if cfg.Extract.MaxBodyBytes <= 0 {
		cfg.Extract.MaxBodyBytes = 5 << 20
	}
	if cfg.Prompt.Aggregators == nil {
		cfg.Prompt.Aggregators = []string{"vseti.app", "hh.ru", "career.habr.com"}
	}
	if cfg.Sanitize.DenyDomains == nil {
		cfg.Sanitize.DenyDomains = []string{"vseti.app"}
	}
	if cfg.Sanitize.CTAPhrases == nil {
		cfg.Sanitize.CTAPhrases = []string{"Стать частью команды", "Join the team"}
	}
	// The model is told to end with the CTA, so the sanitizer must link it.
	if cfg.Prompt.CTA != "" && !slices.Contains(cfg.Sanitize.CTAPhrases, cfg.Prompt.CTA) {
		cfg.Sanitize.CTAPhrases = append(cfg.Sanitize.CTAPhrases, cfg.Prompt.CTA)
	}
	if cfg.Notification.Type == "" {
		cfg.Notification.Type = "log"
	}

	switch cfg.AI.Provider {
	case ProviderOpenAI:
		cfg.AI.BaseURL = orString(cfg.AI.BaseURL, defaultOpenAIBaseURL)
		cfg.AI.Model = orString(cfg.AI.Model, "gpt-4o-mini")
	default:
		cfg.AI.BaseURL = orString(cfg.AI.BaseURL, defaultYandexBaseURL)
		if cfg.AI.ModelURI == "" && cfg.AI.FolderID != "" {
			cfg.AI.ModelURI = fmt.Sprintf("gpt://%s/yandexgpt-32k/latest", cfg.AI.FolderID)
		}
	}
	if cfg.Store.Path == "" {
		switch cfg.Store.Type {
		case StoreSQLite:
			cfg.Store.Path = "templates.db"
		default:
			cfg.Store.Path = "templates.json"
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv fills empty secrets from the environment variable names the bot
// has always used.
func applyEnv(raw *rawConfig) {
	fill := func(dst *string, keys ...string) {
		if *dst != "" {
			return
		}
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	fill(&raw.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	fill(&raw.AI.FolderID, "YANDEX_FOLDER_ID")
	fill(&raw.AI.ModelURI, "YANDEX_MODEL_URI")
	fill(&raw.Store.Path, "TEMPLATE_STORE_PATH")
	if strings.EqualFold(raw.AI.Provider, ProviderOpenAI) {
		fill(&raw.AI.APIKey, "OPENAI_API_KEY")
	} else {
		fill(&raw.AI.APIKey, "YANDEX_API_KEY")
	}
}

func validate(cfg *Config) error {
	switch cfg.AI.Provider {
	case ProviderYandex, ProviderOpenAI:
	default:
		return fmt.Errorf("ai.provider must be %q or %q, got %q", ProviderYandex, ProviderOpenAI, cfg.AI.Provider)
	}
	if cfg.AI.Temperature < 0.2 || cfg.AI.Temperature > 0.6 {
		return fmt.Errorf("ai.temperature must be between 0.2 and 0.6, got %v", cfg.AI.Temperature)
	}
	if cfg.AI.MaxTokens < 800 {
		return fmt.Errorf("ai.max_tokens must be at least 800, got %d", cfg.AI.MaxTokens)
	}
	if cfg.AI.Timeout <= 0 || cfg.Extract.Timeout <= 0 {
		return fmt.Errorf("ai.timeout and extract.timeout must be positive")
	}

	switch cfg.Store.Type {
	case StoreJSON, StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("store.type must be json, sqlite or memory, got %q", cfg.Store.Type)
	}

	switch cfg.Prompt.Locale {
	case "ru", "en":
	default:
		return fmt.Errorf("prompt.locale must be \"ru\" or \"en\", got %q", cfg.Prompt.Locale)
	}
	if cfg.Prompt.Watch && cfg.Prompt.ContractPath == "" {
		return fmt.Errorf("prompt.watch requires prompt.contract_path")
	}

	if cfg.Extract.HostRate < 0 {
		return fmt.Errorf("extract.host_rate must not be negative, got %v", cfg.Extract.HostRate)
	}
	if cfg.Telegram.Workers < 1 {
		return fmt.Errorf("telegram.workers must be positive, got %d", cfg.Telegram.Workers)
	}

	switch cfg.Notification.Type {
	case "log", "none":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	default:
		return fmt.Errorf("notification.type must be log, slack or none, got %q", cfg.Notification.Type)
	}

	return nil
}

func parseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, raw, err)
	}
	return d, nil
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
