// Package commands implements the trademarkctl operator CLI.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"finitefield.org/trademark-web/internal/platform/config"
	"finitefield.org/trademark-web/internal/platform/observability"
)

var (
	envFile string
	dsn     string

	cfg    config.Config
	logger *zap.Logger
)

// Execute runs the root command.
func Execute() error {
	root := &cobra.Command{
		Use:           "trademarkctl",
		Short:         "Operator tools for the trademark site",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(cmd.Context(), config.WithEnvFile(envFile))
			if err != nil {
				return err
			}
			if dsn != "" {
				cfg.Backup.DSN = dsn
			}
			base, err := observability.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			logger = base.Named("trademarkctl")
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to read configuration from")
	root.PersistentFlags().StringVar(&dsn, "dsn", "", "backup database path (overrides TRADEMARK_WEB_BACKUP_DSN)")

	root.AddCommand(backupsCmd(), catalogCmd(), adminCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}
