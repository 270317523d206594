// Command partwise serves and administers partitioned table directories.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/partwise/partwise/internal/app"
	"github.com/partwise/partwise/internal/config"
	"github.com/partwise/partwise/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

// globalFlags override the loaded configuration.
type globalFlags struct {
	configFile string
	dataDir    string
	logLevel   string
	logFormat  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "partwise",
		Short: "partwise - partition pruning and row routing",
		Long: `partwise keeps a catalog of partitioned tables, prunes the partitions
a query has to scan, and routes rows to the partition that owns them.

Start the API servers:
  partwise serve --data-dir /var/lib/partwise

Plan a query against the local catalog:
  partwise plan "SELECT * FROM events WHERE id BETWEEN 10 AND 20"`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "config file path (YAML or JSON)")
	pf.StringVar(&flags.dataDir, "data-dir", "", "base directory for data files")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: json, console")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "partwise %s (commit: %s)\n", version, commit)
			},
		},
		newServeCmd(flags),
		newPlanCmd(flags),
		newRouteCmd(flags),
		newTableCmd(flags),
		newSnapshotCmd(flags),
	)
	return rootCmd
}

// loadConfig loads the file, then the environment, then the flags.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, err
	}
	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	return cfg, nil
}

// open builds the application resources without starting any server. The
// returned cleanup closes them and flushes the logger.
func (f *globalFlags) open(ctx context.Context, override func(*config.Config)) (*app.App, *zap.Logger, func(), error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	if override != nil {
		override(cfg)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, err
	}
	return a, logger, func() {
		_ = a.Close()
		_ = logger.Sync()
	}, nil
}
