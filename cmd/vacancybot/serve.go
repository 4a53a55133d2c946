package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/amishk599/vacancybot/internal/chat"
	"github.com/amishk599/vacancybot/internal/httpapi"
	"github.com/amishk599/vacancybot/internal/telegram"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot and the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug, os.Stdout)
	cfg := mustLoad(logger)

	if cfg.Telegram.Token == "" && cfg.HTTP.Addr == "" {
		return errors.New("nothing to serve: set telegram.token (or TELEGRAM_BOT_TOKEN) or http.addr")
	}

	templateStore, closeStore, err := setupStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}()

	p, compiler, err := buildPipeline(cfg, templateStore, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Prompt.Watch {
		g.Go(func() error {
			// A broken watcher only stops reloads.
			if err := compiler.Watch(ctx); err != nil {
				logger.Warn("contract watch stopped", "error", err)
			}
			return nil
		})
	}

	if cfg.Telegram.Token != "" {
		// Long polling holds the request open for PollTimeout.
		client := &http.Client{Timeout: cfg.Telegram.PollTimeout + cfg.AI.Timeout}
		api, err := telegram.Connect(cfg.Telegram.Token, client, logger)
		if err != nil {
			logger.Error("failed to connect to telegram", "error", err)
			os.Exit(1)
		}
		bot := telegram.New(api, chat.New(templateStore, p, logger), cfg.Telegram.Workers, cfg.Telegram.PollTimeout, logger)
		g.Go(func() error { return bot.Run(ctx) })
	}

	if cfg.HTTP.Addr != "" {
		srv := httpapi.New(cfg.HTTP.Addr, cfg.HTTP.RequestTimeout, templateStore, p, logger)
		g.Go(func() error { return srv.Run(ctx) })
	}

	logger.Info("vacancybot started",
		"store", cfg.Store.Type,
		"ai_provider", cfg.AI.Provider,
		"ai_configured", cfg.AI.Configured(),
		"telegram", cfg.Telegram.Token != "",
		"http_addr", cfg.HTTP.Addr,
	)

	err = g.Wait()
	logger.Info("vacancybot stopped, goodbye")
	return err
}
