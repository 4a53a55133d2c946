package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/vacancybot/internal/chat"
	"github.com/amishk599/vacancybot/internal/console"
)

var (
	consoleUser string
	consoleName string
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Chat with the bot in the terminal",
	Long:  "Runs the same conversation the Telegram bot offers in an interactive terminal UI, using the configured store.",
	Run: func(cmd *cobra.Command, args []string) {
		// The UI owns the terminal.
		logger := discardLogger()
		cfg := mustLoad(setupLogger(debug, os.Stderr))

		templateStore, closeStore, err := setupStore(cfg, logger)
		if err != nil {
			cmd.PrintErrln("error:", err)
			os.Exit(1)
		}
		defer closeStore()

		p, _, err := buildPipeline(cfg, templateStore, logger)
		if err != nil {
			cmd.PrintErrln("error:", err)
			os.Exit(1)
		}

		if err := console.Run(chat.New(templateStore, p, logger), consoleUser, consoleName); err != nil {
			cmd.PrintErrln("error:", err)
			os.Exit(1)
		}
	},
}

func init() {
	consoleCmd.Flags().StringVar(&consoleUser, "user", "local", "user ID the template is stored under")
	consoleCmd.Flags().StringVar(&consoleName, "name", "", "first name used in the greeting")
	rootCmd.AddCommand(consoleCmd)
}
