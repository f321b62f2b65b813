package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/trinitydb/trinity/internal/models"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts <merge-id>",
	Short: "List the conflicts of a merge operation",
	Long: `Show a merge operation's status and the conflicts it detected, open
ones first.`,
	Args: cobra.ExactArgs(1),
	Run:  runConflicts,
}

func runConflicts(cmd *cobra.Command, args []string) {
	c := initFullContext()
	defer c.Close()

	op, err := c.Engine.GetMergeStatus(args[0])
	if err != nil {
		exitErr(err)
	}

	fmt.Printf("Merge %s (%s)\n", shortID(op.ID), op.Strategy)
	fmt.Printf("  Status:    %s\n", op.Status)
	fmt.Printf("  Conflicts: %d total, %d auto-resolved, %d manual\n",
		op.ConflictCount, op.AutoResolvedCount, op.ManualCount)
	if op.ResultCommitID != "" {
		fmt.Printf("  Result:    %s\n", shortID(op.ResultCommitID))
	}

	if op.ConflictCount == 0 {
		color.New(color.FgGreen).Println("\nNo conflicts")
		return
	}

	fmt.Println()
	printConflicts(c, op.ID)

	if op.Status == models.MergeConflictsDetected || op.Status == models.MergeResolving {
		fmt.Printf("\nResolve with: trinity resolve %s <conflict-id> --use <source|target|custom>\n", op.ID)
	}
}
