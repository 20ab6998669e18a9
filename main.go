// =============================================================================
// ANS Expense Pipeline - Main Entry Point
// =============================================================================
//
// USAGE:
//   ansetl run          - Run every stage on the extracts in the input directory
//   ansetl enrich       - Re-run a single stage on existing artifacts
//   ansetl checkid <id> - Check tax identifiers
//   ansetl version      - Display the application version
//
// LAYOUT:
//   - cmd/      : CLI command definitions (Cobra)
//   - internal/ : stages, readers/writers, configuration, logging, metrics
//   - pkg/      : file management utilities
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/ans-expense-pipeline/cmd"
)

func main() {
	cmd.Execute()
}
