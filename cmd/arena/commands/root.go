package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/heinthant2k4/sports-arena-booking/internal/config"
	"github.com/heinthant2k4/sports-arena-booking/internal/database"
	"github.com/heinthant2k4/sports-arena-booking/internal/logging"
	"github.com/heinthant2k4/sports-arena-booking/internal/models"
	"github.com/heinthant2k4/sports-arena-booking/internal/service"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yaml"

var configPath string

// Execute runs the arena command tree.
func Execute(ctx context.Context, version string) error {
	return newRootCommand(version).ExecuteContext(ctx)
}

func newRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "arena",
		Short:         "Sports arena reservation engine",
		Long:          "Books futsal and badminton facilities without double booking and tracks each reservation from request to completion.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file path (default $CONFIG_PATH or "+defaultConfigPath+")")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newBackupCommand())
	rootCmd.AddCommand(newExportCommand())

	return rootCmd
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return defaultConfigPath
}

// loadConfigAndLogger loads the config and builds a logger tagged with component.
func loadConfigAndLogger(component string) (*config.Config, *zerolog.Logger, io.Closer, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, component), closer, nil
}

// openStore opens the database and syncs the configured facilities into it.
func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*database.DB, *service.FacilityService, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, nil, err
	}

	facilities := service.NewFacilityService(db, models.FacilitiesCacheTTL, logger)
	if err := facilities.Seed(ctx, cfg.Facilities); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("seed facilities: %w", err)
	}
	return db, facilities, nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
