// Package cmd holds the propctl operator commands.
package cmd

import (
	"context"

	"propdesk/internal/app"
	"propdesk/internal/config"
	"propdesk/internal/logging"

	"github.com/spf13/cobra"
)

// Loader produces the configuration a command runs with.
type Loader func() (config.Config, error)

func NewRootCmd(load Loader) *cobra.Command {
	root := &cobra.Command{
		Use:   "propctl",
		Short: "Operate the propdesk challenge service",
		Long: `propctl runs maintenance tasks against the store configured in the
environment (STORE_DRIVER, DB_DSN, SQLITE_PATH).

Examples:
  propctl migrate
  propctl reset-daily
  propctl seed-demo
  propctl token --user trader-1 --role admin`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newTokenCmd(load),
		newMigrateCmd(load),
		newResetDailyCmd(load),
		newSeedDemoCmd(load),
		newPlansCmd(load),
	)
	return root
}

// Execute runs the root command against the process environment.
func Execute() error {
	return NewRootCmd(config.Load).Execute()
}

func openApp(ctx context.Context, load Loader) (*app.App, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Production())
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg, logger.Named("propctl"))
}

func withApp(load Loader, fn func(cmd *cobra.Command, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd.Context(), load)
		if err != nil {
			return err
		}
		defer a.Close()
		defer func() { _ = a.Log.Sync() }()
		return fn(cmd, a)
	}
}
