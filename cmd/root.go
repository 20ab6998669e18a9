// =============================================================================
// ANS Expense Pipeline - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. Every other command
// is attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (ansetl)
//   ├── runCmd         (ansetl run)
//   ├── consolidateCmd (ansetl consolidate)
//   ├── enrichCmd      (ansetl enrich)
//   ├── validateCmd    (ansetl validate)
//   ├── aggregateCmd   (ansetl aggregate)
//   ├── checkidCmd     (ansetl checkid)
//   └── versionCmd     (ansetl version)
//
// CONFIGURATION:
//   Before any pipeline command runs, the root command:
//   1. Loads the configuration (--config, then ANSETL_* overrides)
//   2. Builds the structured logger
//
// =============================================================================

package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/ans-expense-pipeline/internal/config"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/logging"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// mainConfig and logger are set by loadRuntime for pipeline commands.
var (
	mainConfig *config.MainConfig
	logger     *slog.Logger
	closeLog   = func() error { return nil }
)

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "ansetl",
	Short: "ANS expense pipeline - consolidate, enrich, validate and rank operator expenses",
	Long: `ansetl turns quarterly accounting extracts published by the ANS into a
ranked summary of health-insurance operator expenses.

Stages:
  consolidate  Keep expense lines with a non-zero balance, drop duplicates
  enrich       Join operator registry data (tax ID, name, state, modality)
  validate     Split records into accepted and quarantined
  aggregate    Rank operators by total expenses in the latest snapshot

Example Usage:
  ansetl run                          # Run every stage on ./input
  ansetl run --config ./ansetl.yaml   # Use a custom configuration file
  ansetl enrich                       # Re-run one stage on existing artifacts
  ansetl checkid 11222333000181       # Check a tax identifier`,

	SilenceUsage: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main().
func Execute() {
	err := rootCmd.Execute()
	if closeErr := closeLog(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to close log file: %v\n", closeErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}

// loadRuntime loads the configuration and builds the logger. A missing
// config.yaml is only an error when --config was given explicitly; otherwise
// defaults and ANSETL_* variables apply.
func loadRuntime(cmd *cobra.Command, _ []string) error {
	path := cfgFile
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}

	cfg, err := config.LoadMainConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load main config: %w", err)
	}

	log, closeFn, err := logging.New(cfg.Logging, verbose)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	mainConfig = cfg
	logger = log
	closeLog = closeFn

	logger.Debug("configuration loaded",
		slog.String("config_file", path),
		slog.String("input_dir", cfg.Paths.InputDir),
		slog.String("output_dir", cfg.Paths.OutputDir))

	return nil
}
