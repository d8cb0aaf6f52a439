package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"timevault/internal/platform/config"
	"timevault/internal/platform/logger"
)

const programName = "timevault"

var (
	globalFlags = struct {
		debug bool
	}{}
	configFile string
)

// loadConfig reads the config file and environment, then builds the process
// logger from it.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	level, err := cfg.Server.Level()
	if err != nil {
		return nil, nil, err
	}
	if globalFlags.debug {
		level = slog.LevelDebug
	}
	log := logger.New(os.Stdout, level).With("component", programName)
	slog.SetDefault(log)
	return cfg, log, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Time-locked capsule ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&configFile, "config", "", "path to config file")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(tokenCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
