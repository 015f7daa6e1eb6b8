package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/guarzo/mltrends/internal/config"
	"github.com/guarzo/mltrends/internal/logging"
)

var (
	cfg    config.Config
	logger *slog.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel, logFormat string

	root := &cobra.Command{
		Use:           "mltrends",
		Short:         "Enrich marketplace trending keywords with search data and opportunity scores",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load(".env.local", ".env")

			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("config load: %w", err)
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if logFormat != "" {
				cfg.LogFormat = logFormat
			}
			logger = logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
			slog.SetDefault(logger)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (overrides LOG_FORMAT)")

	root.AddCommand(newServeCmd(), newEnrichCmd(), newWarmCmd(), newVariantsCmd())
	return root
}
