// =============================================================================
// ANS Expense Pipeline - Stage Commands
// =============================================================================
//
// One command per stage. Each reads the artifact left by the previous stage
// in paths.output_dir, so a single stage can be re-run after fixing its input.
//
// COMMAND USAGE:
//   ansetl consolidate [extract...]
//   ansetl enrich
//   ansetl validate
//   ansetl aggregate
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/ans-expense-pipeline/internal/pipeline"
)

var consolidateCmd = &cobra.Command{
	Use:     "consolidate [extract...]",
	Short:   "Load raw extracts and write the consolidated artifact",
	PreRunE: loadRuntime,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, func(ctx context.Context, p *pipeline.Pipeline) error {
			_, err := p.Consolidate(ctx, args)
			return err
		})
	},
}

var enrichCmd = &cobra.Command{
	Use:     "enrich",
	Short:   "Join the consolidated artifact with the operator registry",
	Args:    cobra.NoArgs,
	PreRunE: loadRuntime,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, func(ctx context.Context, p *pipeline.Pipeline) error {
			_, err := p.Enrich(ctx)
			return err
		})
	},
}

var validateCmd = &cobra.Command{
	Use:     "validate",
	Short:   "Split the enriched artifact into accepted and quarantined records",
	Args:    cobra.NoArgs,
	PreRunE: loadRuntime,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, func(ctx context.Context, p *pipeline.Pipeline) error {
			_, err := p.Validate(ctx)
			return err
		})
	},
}

var aggregateCmd = &cobra.Command{
	Use:     "aggregate",
	Short:   "Rank operators from the accepted artifact",
	Args:    cobra.NoArgs,
	PreRunE: loadRuntime,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, func(ctx context.Context, p *pipeline.Pipeline) error {
			_, err := p.Aggregate(ctx)
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(consolidateCmd, enrichCmd, validateCmd, aggregateCmd)
}

// runStage runs one stage as its own run, with its own run ID and summary.
func runStage(cmd *cobra.Command, stage func(context.Context, *pipeline.Pipeline) error) error {
	p := pipeline.New(mainConfig, logger)
	fmt.Fprintf(cmd.OutOrStdout(), "=== ansetl %s (run %s) ===\n", cmd.Name(), p.RunID())

	err := stage(cmd.Context(), p)
	printRunResult(cmd, p.Finish(err))
	return err
}
