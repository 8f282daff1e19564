package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"studytracker-backend/internal/config"
	"studytracker-backend/internal/database"
	"studytracker-backend/internal/repository/sqlstore"
)

var (
	version    = "dev"
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "studytracker",
	Short: "Study Tracker backend",
	Long: `Study Tracker records timed study sessions per user, ranks users by
the minutes they have studied, and serves a small HTTP and websocket API.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to serve when no subcommand is provided
		return runServe(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to an optional YAML configuration file")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	log.Logger = logger
	return cfg, logger, nil
}

func setupLogger(levelName, format string) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil || levelName == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// openDB opens the configured database without migrating it.
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	switch cfg.StorageDriver {
	case config.DriverSQLite:
		return database.OpenSQLite(ctx, cfg.SQLitePath)
	default:
		return database.OpenPostgres(ctx, cfg.DatabaseURL)
	}
}

// openStore opens and migrates the configured database.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*sqlstore.Store, error) {
	dialect, err := sqlstore.DialectFor(cfg.StorageDriver)
	if err != nil {
		return nil, err
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.StorageDriver, err)
	}

	if err := database.RunMigrations(db, cfg.StorageDriver, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sqlstore.New(db, dialect), nil
}
