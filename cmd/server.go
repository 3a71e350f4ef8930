package cmd

import (
	"log"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/curaious/projecthub/internal/api"
	"github.com/curaious/projecthub/internal/api/authenticator"
	"github.com/curaious/projecthub/internal/config"
	"github.com/curaious/projecthub/internal/db"
	"github.com/curaious/projecthub/internal/migrations"
	"github.com/curaious/projecthub/internal/services"
	"github.com/curaious/projecthub/internal/telemetry"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Run: func(cmd *cobra.Command, args []string) {
		conf := config.ReadConfig()

		shutdownTelemetry := telemetry.NewProvider(conf.OTEL_EXPORTER_OTLP_ENDPOINT, conf.SlogLevel() == slog.LevelDebug)
		defer shutdownTelemetry()

		conn := db.NewConn(conf)

		skipMigrations, _ := cmd.Flags().GetBool("skip-migrations")
		if !skipMigrations {
			m, err := migrations.NewMigrator(conn)
			if err != nil {
				log.Fatalln("Unable to create migrator", err)
			}
			if err := m.Up(0); err != nil {
				log.Fatalln("Unable to run migrations", err)
			}
		}

		auth, err := authenticator.New(conf)
		if err != nil {
			log.Fatalln("Unable to create authenticator", err)
		}

		s := api.New(conf, services.NewServices(conf, conn), auth)
		s.Start()
	},
}

// Register the "server" command
func init() {
	serverCmd.Flags().Bool("skip-migrations", false, "Do not run pending migrations on start")
	rootCmd.AddCommand(serverCmd)
}
