package cmd

import (
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/curaious/projecthub/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "projecthub",
	Short: "Project workspace with sharing and invitations",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := godotenv.Overload()
		if err != nil {
			log.Println("Error loading .env file, skipping")
		}

		setupLogger(config.ReadConfig())
	},
}

func setupLogger(conf *config.Config) {
	opts := &slog.HandlerOptions{Level: conf.SlogLevel()}

	var handler slog.Handler
	if strings.EqualFold(conf.LOG_FORMAT, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalln(err.Error())
	}
}
