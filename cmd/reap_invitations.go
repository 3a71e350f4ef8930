package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/curaious/projecthub/internal/config"
	"github.com/curaious/projecthub/internal/db"
	"github.com/curaious/projecthub/internal/services"
)

var reapInvitationsCmd = &cobra.Command{
	Use:   "reap-invitations",
	Short: "Delete invitations that expired longer ago than the retention period",
	Run: func(cmd *cobra.Command, args []string) {
		conf := config.ReadConfig()

		retention, err := cmd.Flags().GetDuration("retention")
		if err != nil {
			fmt.Println("Unable to read flag `retention`", err)
			os.Exit(1)
		}
		if retention <= 0 {
			retention = conf.INVITATION_RETENTION
		}

		svc := services.NewServices(conf, db.NewConn(conf))
		defer svc.Close()

		n, err := svc.Membership.ReapExpired(context.Background(), retention)
		if err != nil {
			slog.Error("Unable to reap invitations", slog.Any("error", err))
			os.Exit(1)
		}

		slog.Info("Reaped expired invitations", slog.Int64("count", n), slog.Duration("retention", retention))
	},
}

func init() {
	reapInvitationsCmd.Flags().Duration("retention", 0, "Keep invitations that expired within this window (defaults to INVITATION_RETENTION)")
	rootCmd.AddCommand(reapInvitationsCmd)
}
