package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/vacancybot/internal/model"
	"github.com/amishk599/vacancybot/internal/pipeline"
	"github.com/amishk599/vacancybot/internal/store"
)

var (
	generateUser         string
	generateTemplateFile string
	generateDescription  string
)

var generateCmd = &cobra.Command{
	Use:   "generate [text|url|-]",
	Short: "Generate one announcement and print it",
	Long: `Generates an announcement from a vacancy text or link and prints it to stdout.
Input is read from stdin when no argument or "-" is given. Per-call notes may
follow a "---" line. With --template-file the example is read from a file
instead of the configured store.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateUser, "user", "local", "user ID whose template is used")
	generateCmd.Flags().StringVar(&generateTemplateFile, "template-file", "", "read the example announcement from this file")
	generateCmd.Flags().StringVar(&generateDescription, "description", "", "structure notes for --template-file")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug, os.Stderr)
	cfg := mustLoad(logger)

	input, err := readInput(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	var templateStore model.TemplateStore
	if generateTemplateFile != "" {
		data, err := os.ReadFile(generateTemplateFile)
		if err != nil {
			return fmt.Errorf("read template file: %w", err)
		}
		mem := store.NewMemoryStore()
		if err := mem.SetTemplate(generateUser, string(data), generateDescription); err != nil {
			return err
		}
		templateStore = mem
	} else {
		s, closeStore, err := setupStore(cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()
		templateStore = s
	}

	p, _, err := buildPipeline(cfg, templateStore, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := p.Run(ctx, generateUser, input, func(s pipeline.Stage) {
		logger.Debug("stage", "name", s)
	})
	if errors.Is(err, model.ErrNoTemplate) {
		return fmt.Errorf("no template saved for user %q: run `vacancybot template set` or pass --template-file", generateUser)
	}
	if err != nil {
		return err
	}
	if a.Fallback {
		logger.Warn("generation failed, printing fallback rendering")
	}

	fmt.Fprintln(cmd.OutOrStdout(), a.Text)
	return nil
}

// readInput returns the single argument, or stdin when it is absent or "-".
func readInput(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return nonEmpty(args[0])
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return nonEmpty(string(data))
}

func nonEmpty(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("input is empty")
	}
	return s, nil
}
