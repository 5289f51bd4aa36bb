package commands

import (
	"fmt"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/export"
	"github.com/heinthant2k4/sports-arena-booking/internal/interval"
	"github.com/heinthant2k4/sports-arena-booking/internal/repository"
	"github.com/heinthant2k4/sports-arena-booking/internal/service"

	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

func newExportCommand() *cobra.Command {
	var fromRaw, toRaw string

	cmd := &cobra.Command{
		Use:     "export",
		Short:   "Export reservations in a date range to an xlsx workbook",
		Example: `  arena export --from 2026-03-01 --to 2026-03-31`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, to, err := parseExportRange(fromRaw, toRaw)
			if err != nil {
				return err
			}

			cfg, logger, closer, err := loadConfigAndLogger("export-cli")
			if err != nil {
				return err
			}
			defer closeQuietly(closer)

			ctx := cmd.Context()
			db, facilities, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			// read-only use: no events are emitted, so no bus or outbox
			reservations := service.NewReservationService(db, facilities, repository.NewMemoryLocker(),
				interval.NewIndex(), nil, nil, cfg.Booking.Policy(), logger)

			path, err := export.NewExporter(reservations, cfg.Exports.Path, logger).Export(ctx, from, to)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&fromRaw, "from", "", "first day, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&toRaw, "to", "", "last day, YYYY-MM-DD (required)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// parseExportRange turns two calendar days into [from 00:00:00, to 23:59:59] in UTC.
func parseExportRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	from, err := time.Parse(dateLayout, fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from %q: expected YYYY-MM-DD", fromRaw)
	}
	to, err := time.Parse(dateLayout, toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --to %q: expected YYYY-MM-DD", toRaw)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", toRaw, fromRaw)
	}
	return from, to.AddDate(0, 0, 1).Add(-time.Second), nil
}
