// =============================================================================
// ANS Expense Pipeline - Checkid Command
// =============================================================================
//
// COMMAND USAGE:
//   ansetl checkid <id>...
//
// OUTPUT:
//   11.222.333/0001-81  valid
//   12345678000199      invalid
//
// Exits non-zero when any identifier is invalid.
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/ans-expense-pipeline/internal/taxid"
)

var checkidCmd = &cobra.Command{
	Use:   "checkid <id>...",
	Short: "Check tax identifiers (format and check digits)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkIDs(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(checkidCmd)
}

func checkIDs(cmd *cobra.Command, ids []string) error {
	invalid := 0
	for _, id := range ids {
		status := "valid"
		if !taxid.Valid(id) {
			status = "invalid"
			invalid++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", id, status)
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d identifier(s) invalid", invalid, len(ids))
	}
	return nil
}
