package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/maltedev/pricelist-scraper/internal/config"
	"github.com/maltedev/pricelist-scraper/internal/logger"
)

type rootFlags struct {
	outputDir string
	logLevel  string
	logFormat string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "pricelist-scraper",
		Short:         "pricelist-scraper logs into the dealer portal and exports its price list.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.outputDir, "output-dir", "", "Directory for products.csv, products.json and _downloads (default $OUTPUT_DIR or .)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (default $LOG_LEVEL or info)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "text or json (default $LOG_FORMAT or text)")

	root.AddCommand(newRunCmd(flags))
	root.AddCommand(newParseCmd(flags))
	root.AddCommand(newImagesCmd(flags))
	return root
}

// ExecuteContext runs the CLI and returns the process exit code.
func ExecuteContext(ctx context.Context) int {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// setup loads the configuration, applies flag overrides and installs the
// process logger.
func (f *rootFlags) setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if f.outputDir != "" {
		cfg.Output.Dir = f.outputDir
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Logging.Format = f.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	log := logger.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)
	return cfg, log, nil
}
