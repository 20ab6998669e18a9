// =============================================================================
// ANS Expense Pipeline - Run Command
// =============================================================================
//
// This file defines the 'run' command, which executes every stage in order.
//
// COMMAND USAGE:
//   ansetl run [extract...]
//
//   Without arguments, raw extracts are discovered in paths.input_dir using
//   source.file_patterns. The registry file is never treated as an extract.
//
// PROCESSING PIPELINE:
//   1. Load raw extracts (concurrently, bounded by processing.max_concurrency)
//   2. Consolidate
//   3. Enrich
//   4. Validate
//   5. Aggregate
//   6. Archive the summary and write the run summary
//
//   The first fatal error stops the run; the error log names the stage.
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/ans-expense-pipeline/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run [extract...]",
	Short: "Run the full pipeline",
	Long: `The run command loads the raw extracts, then consolidates, enriches,
validates and aggregates them. Each stage writes its artifact to the output
directory before the next stage starts.

On success:
  - The summary (CSV, zip and ranking workbook) is in the output directory
  - The summary zip is copied to the archive directory
  - A run summary is written to the output directory

On error:
  - No later stage runs
  - An error log naming the failed stage is written to the output directory`,

	PreRunE: loadRuntime,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, extracts []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=== ANS Expense Pipeline ===")

	p := pipeline.New(mainConfig, logger)
	fmt.Fprintf(out, "Run ID: %s\n", p.RunID())

	result, err := p.Run(ctx, extracts)
	printRunResult(cmd, result)

	return err
}

// printRunResult writes a short human-readable report of a run.
func printRunResult(cmd *cobra.Command, result *pipeline.Result) {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "\n=== Run Complete ===")
	if len(result.Extracts) > 0 {
		fmt.Fprintf(out, "Extracts:        %d\n", len(result.Extracts))
		fmt.Fprintf(out, "Loaded rows:     %d\n", result.LoadedRows)
	}
	if r := result.Consolidate; r != nil {
		fmt.Fprintf(out, "Consolidated:    %d (zero %d, duplicate %d, negative kept %d)\n",
			r.OutputRows, r.ZeroRows, r.DuplicateRows, r.NegativeRows)
	}
	if r := result.Enrich; r != nil {
		fmt.Fprintf(out, "Enriched:        %d (matched %d, unmatched %d)\n",
			r.OutputRows, r.Matched, r.Unmatched)
	}
	if r := result.Validate; r != nil {
		fmt.Fprintf(out, "Accepted:        %d\n", r.Accepted)
		fmt.Fprintf(out, "Quarantined:     %d\n", r.Quarantined)
	}
	if r := result.Aggregate; r != nil {
		fmt.Fprintf(out, "Operators:       %d\n", r.Groups)
		if top := r.TopSpender; top != nil {
			fmt.Fprintf(out, "Top spender:     %s %s (%s)\n",
				top.OperatorID, top.LegalName, top.TotalExpenses.StringFixed(2))
		}
		fmt.Fprintf(out, "Summary:         %s\n", r.CSVPath)
	}
	fmt.Fprintf(out, "Time elapsed:    %s\n", result.EndTime.Sub(result.StartTime))

	if result.SummaryLogPath != "" {
		fmt.Fprintf(out, "Run summary:     %s\n", result.SummaryLogPath)
	}
	if result.ErrorLogPath != "" {
		fmt.Fprintf(out, "\nErrors have been logged to %s\n", result.ErrorLogPath)
	}
}
