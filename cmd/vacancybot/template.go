package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amishk599/vacancybot/internal/config"
	"github.com/amishk599/vacancybot/internal/model"
	"github.com/amishk599/vacancybot/internal/store"
)

var (
	templateUser        string
	templateFile        string
	templateDescription string
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage saved example announcements",
}

var templateSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Save an example announcement for a user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if templateFile == "" {
			return errors.New("--file is required")
		}
		data, err := os.ReadFile(templateFile)
		if err != nil {
			return fmt.Errorf("read template file: %w", err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return errors.New("template file is empty")
		}
		return withStore(func(s model.TemplateStore) error {
			if err := s.SetTemplate(templateUser, text, strings.TrimSpace(templateDescription)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "template saved for %s\n", templateUser)
			return nil
		})
	},
}

var templateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a user's saved example",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s model.TemplateStore) error {
			tmpl, ok, err := s.GetTemplate(templateUser)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no template saved for user %q", templateUser)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, tmpl.Text)
			if tmpl.Description != "" {
				fmt.Fprintf(out, "\n# description\n%s\n", tmpl.Description)
			}
			return nil
		})
	},
}

var templateDescribeCmd = &cobra.Command{
	Use:   "describe <description>",
	Short: "Replace the structure notes of a saved example",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s model.TemplateStore) error {
			// UpdateDescription is a no-op for unknown users on some stores.
			if _, ok, err := s.GetTemplate(templateUser); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("no template saved for user %q", templateUser)
			}
			if err := s.UpdateDescription(templateUser, strings.TrimSpace(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "description updated for %s\n", templateUser)
			return nil
		})
	},
}

var templateImportCmd = &cobra.Command{
	Use:   "import <templates.json>",
	Short: "Copy a JSON template file into the SQLite store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger(debug, os.Stderr)
		cfg := mustLoad(logger)
		if cfg.Store.Type != config.StoreSQLite {
			return fmt.Errorf("import needs store.type %q, configured %q", config.StoreSQLite, cfg.Store.Type)
		}

		s, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		defer s.Close()

		n, err := s.ImportJSON(args[0])
		if err != nil {
			return err
		}
		logger.Info("imported templates", "count", n, "from", args[0], "into", cfg.Store.Path)
		return nil
	},
}

func init() {
	templateCmd.PersistentFlags().StringVar(&templateUser, "user", "local", "user ID the template belongs to")
	templateSetCmd.Flags().StringVar(&templateFile, "file", "", "file holding the example announcement")
	templateSetCmd.Flags().StringVar(&templateDescription, "description", "", "free-text notes on the example's structure")

	templateCmd.AddCommand(templateSetCmd, templateShowCmd, templateDescribeCmd, templateImportCmd)
	rootCmd.AddCommand(templateCmd)
}

// withStore opens the configured store, runs fn and closes it.
func withStore(fn func(model.TemplateStore) error) error {
	logger := setupLogger(debug, os.Stderr)
	cfg := mustLoad(logger)

	s, closeStore, err := setupStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}()
	return fn(s)
}
