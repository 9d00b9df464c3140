package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PJI-Apps/Intake-Reports/internal/config"
	"github.com/PJI-Apps/Intake-Reports/internal/logging"
)

var (
	configPath string
	dataDir    string
	verbose    bool

	cfg    *config.AppConfig
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "intake-reports",
	Short: "Intake and conversion reporting service",
	Long: `intake-reports ingests call, lead, consultation and new-client exports,
keeps them as tagged batches in a local snapshot store, and reports the
conversion funnel by attorney, practice area and intake specialist.

Run without a subcommand to start the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		loaded, info, err := config.LoadFile(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if dataDir != "" {
			loaded.Data.DataDir = dataDir
		}
		if verbose {
			loaded.Log.Level = "debug"
		}

		logger, err = logging.New(logging.Options{Level: loaded.Log.Level, Development: loaded.Log.Development})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger.Debug("config loaded",
			zap.String("path", info.Path),
			zap.Bool("found", info.FileFound),
			zap.Strings("envOverrides", info.EnvOverrides))
		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (default: next to the executable)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(
		serveCmd,
		uploadCmd,
		batchesCmd,
		deleteBatchCmd,
		repairOrphansCmd,
		wipeCmd,
		resetCmd,
		dedupeLeadsCmd,
		purgeMonthCmd,
		funnelCmd,
		callsCmd,
		exportCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
