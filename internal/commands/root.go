package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"spotstore/config"
	"spotstore/internal/adapters/logger"
	"spotstore/internal/app"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	envFile  string
	logLevel string
}

// NewRootCmd builds the spotstore command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "spotstore",
		Short: "Equity price-bar store",
		Long: `Operator tooling for the spot bar store.

The store keeps one OHLCV row per symbol and time bucket in spot_<interval>
and one snapshot per symbol in spot_<interval>_latest, on SQLite or PostgreSQL.

Examples:
  spotstore migrate                               # Create tables
  spotstore bars --symbol AAPL --limit 24         # Show bars
  spotstore latest --symbol AAPL                  # Show latest snapshot
  spotstore inactive                              # List inactive symbols
  spotstore reinstate AAPL MSFT                   # Flag symbols active again
  spotstore export --symbol AAPL --format parquet --out aapl.parquet`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "env file to load (default .env if present)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(
		newMigrateCmd(opts),
		newBarsCmd(opts),
		newLatestCmd(opts),
		newInactiveCmd(opts),
		newReinstateCmd(opts),
		newExportCmd(opts),
	)
	return rootCmd
}

// session is an opened store plus the service on top of it.
type session struct {
	svc   *app.BarService
	store *app.Store
}

func (s *session) Close() error {
	return s.store.Close()
}

// openSession loads configuration, builds the logger and opens the store.
func openSession(ctx context.Context, cmd *cobra.Command, opts *globalOptions) (*session, error) {
	var envFiles []string
	if opts.envFile != "" {
		envFiles = append(envFiles, opts.envFile)
	}
	cfg, err := config.LoadConfig(envFiles...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = logger.ParseLevel(opts.logLevel)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	store, err := app.OpenStore(ctx, cfg, log.WithComponent(cfg.StoreDriver))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreDriver, err)
	}

	svc, err := app.NewBarService(cfg, log.WithComponent("service"), store)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &session{svc: svc, store: store}, nil
}

// parseTimeFlag accepts RFC3339 or a bare date (UTC midnight). Empty means unbounded.
func parseTimeFlag(name, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid --%s %q: want RFC3339 or YYYY-MM-DD", name, value)
}
