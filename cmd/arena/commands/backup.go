package commands

import (
	"fmt"

	"github.com/heinthant2k4/sports-arena-booking/internal/database"

	"github.com/spf13/cobra"
)

func newBackupCommand() *cobra.Command {
	var prune bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a one-off snapshot of the reservation database",
		Example: `  # snapshot into backup.storage_path
  arena backup

  # snapshot and drop snapshots older than backup.retention_days
  arena backup --prune`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := loadConfigAndLogger("backup-cli")
			if err != nil {
				return err
			}
			defer closeQuietly(closer)

			svc := database.NewBackupService(cfg.Database.Path, cfg.Backup, logger)
			path, err := svc.PerformBackup(cmd.Context())
			if err != nil {
				return fmt.Errorf("backup: %w", err)
			}
			if prune {
				removed := svc.CleanupOldBackups()
				logger.Info().Int("removed", removed).Msg("old backups pruned")
			}

			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&prune, "prune", false, "remove snapshots past the retention period")
	return cmd
}
