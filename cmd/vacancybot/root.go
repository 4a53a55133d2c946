package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/amishk599/vacancybot/internal/ai"
	"github.com/amishk599/vacancybot/internal/config"
	"github.com/amishk599/vacancybot/internal/extract"
	"github.com/amishk599/vacancybot/internal/model"
	"github.com/amishk599/vacancybot/internal/notifier"
	"github.com/amishk599/vacancybot/internal/pipeline"
	"github.com/amishk599/vacancybot/internal/prompt"
	"github.com/amishk599/vacancybot/internal/ratelimit"
	"github.com/amishk599/vacancybot/internal/sanitize"
	"github.com/amishk599/vacancybot/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "vacancybot",
	Short: "Vacancy announcements in your own style",
	Long:  "vacancybot turns vacancy texts and links into channel-ready announcements that follow a user's example.",
	// Bare `vacancybot` runs the bot.
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: VACANCYBOT_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig loads .env, resolves the config path and parses it.
// Priority: explicit path > VACANCYBOT_CONFIG > "./config.yaml". Only an
// explicitly named file has to exist.
func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load .env", "error", err)
	}

	if path != "" {
		return config.Load(path)
	}
	if env := os.Getenv("VACANCYBOT_CONFIG"); env != "" {
		return config.Load(env)
	}
	return config.LoadOptional("config.yaml")
}

func setupLogger(dbg bool, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mustLoad is the common prologue of every command.
func mustLoad(logger *slog.Logger) *config.Config {
	cfg, err := loadConfig(cfgPath, logger)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	return cfg
}

func setupStore(cfg *config.Config, logger *slog.Logger) (model.TemplateStore, func() error, error) {
	nop := func() error { return nil }
	switch cfg.Store.Type {
	case config.StoreSQLite:
		s, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s.Close, nil
	case config.StoreMemory:
		return store.NewMemoryStore(), nop, nil
	default:
		return store.NewJSONStore(cfg.Store.Path, logger), nop, nil
	}
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger)
	case "none":
		return notifier.NopNotifier{}
	default:
		return notifier.NewLogNotifier(logger)
	}
}

func setupProvider(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) ai.LLMProvider {
	if !cfg.AI.Configured() {
		logger.Warn("generation service not configured, announcements use the fallback rendering",
			"provider", cfg.AI.Provider)
		return ai.NopProvider{}
	}

	sampling := ai.Sampling{Temperature: cfg.AI.Temperature, MaxTokens: cfg.AI.MaxTokens}
	switch cfg.AI.Provider {
	case config.ProviderOpenAI:
		logger.Info("using openai-compatible provider", "model", cfg.AI.Model, "base_url", cfg.AI.BaseURL)
		return ai.NewOpenAIProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, sampling, httpClient)
	default:
		logger.Info("using yandex provider", "model_uri", cfg.AI.ModelURI)
		return ai.NewYandexProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.FolderID, cfg.AI.ModelURI, sampling, httpClient)
	}
}

func setupFetcher(cfg *config.Config) model.PageFetcher {
	client := &http.Client{Timeout: cfg.Extract.Timeout}
	var f model.PageFetcher = extract.NewHTTPFetcher(client, cfg.Extract.UserAgent, cfg.Extract.MaxBodyBytes)
	if cfg.Extract.HostRate > 0 {
		f = ratelimit.NewRateLimitedFetcher(f, ratelimit.NewHostRateLimiter(cfg.Extract.HostRate, cfg.Extract.HostBurst))
	}
	return f
}

// buildPipeline wires extraction, prompting, generation and sanitizing around
// templateStore. The compiler is returned so callers can watch its contract.
func buildPipeline(cfg *config.Config, templateStore model.TemplateStore, logger *slog.Logger) (*pipeline.Pipeline, *prompt.Compiler, error) {
	compiler, err := prompt.NewCompiler(prompt.Options{
		Locale:       cfg.Prompt.Locale,
		ContractPath: cfg.Prompt.ContractPath,
		Aggregators:  cfg.Prompt.Aggregators,
		CTA:          cfg.Prompt.CTA,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build prompt compiler: %w", err)
	}

	// The generator enforces its own timeout; the client one is a backstop.
	aiClient := &http.Client{Timeout: cfg.AI.Timeout + 5*time.Second}
	generator := ai.NewGenerator(setupProvider(cfg, aiClient, logger), compiler, cfg.AI.Timeout, logger)

	sanitizer := sanitize.New(sanitize.Options{
		DenyDomains: cfg.Sanitize.DenyDomains,
		CTAPhrases:  cfg.Sanitize.CTAPhrases,
		LinkLabel:   cfg.Sanitize.LinkLabel,
		Markdown:    cfg.Sanitize.Markdown,
	})

	n := setupNotifier(cfg, &http.Client{Timeout: 30 * time.Second}, logger)

	p := pipeline.New(
		templateStore,
		extract.NewExtractor(setupFetcher(cfg), logger),
		generator,
		sanitizer,
		n,
		logger,
	)
	return p, compiler, nil
}
