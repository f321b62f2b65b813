package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/trinitydb/trinity/internal/engine"
	"github.com/trinitydb/trinity/internal/models"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <source> <target>",
	Short: "Merge one branch into another",
	Long: `Merge the source branch into the target branch using three-way conflict
detection against their merge base.

The default strategy aborts when any conflict is detected. Other
strategies resolve conflicts automatically or leave them open for manual
resolution with 'trinity resolve'.

Strategies: abort-on-conflict, source-wins, target-wins, union, manual-review

Examples:
  trinity merge feature main
  trinity merge feature main --strategy source-wins
  trinity merge feature main --strategy manual-review -m "Land feature"`,
	Args: cobra.ExactArgs(2),
	Run:  runMerge,
}

var (
	mergeStrategy string
	mergeMessage  string
	mergeBaseName string
)

func init() {
	mergeCmd.Flags().StringVarP(&mergeStrategy, "strategy", "s", "", "Conflict strategy (default: abort-on-conflict)")
	mergeCmd.Flags().StringVarP(&mergeMessage, "message", "m", "", "Custom merge commit message")
	mergeCmd.Flags().StringVar(&mergeBaseName, "base", "", "Override merge-base discovery with an explicit base branch")
}

func runMerge(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initFullContext()
	defer c.Close()

	source := resolveBranch(c, args[0])
	target := resolveBranch(c, args[1])

	req := engine.MergeRequest{
		SourceBranchID: source.ID,
		TargetBranchID: target.ID,
		Strategy:       models.MergeStrategy(mergeStrategy),
		Message:        mergeMessage,
		InitiatedBy:    c.Config.Author,
	}
	if mergeBaseName != "" {
		req.BaseBranchID = resolveBranch(c, mergeBaseName).ID
	}

	result, err := c.Engine.Merge(ctx, req)
	if err != nil {
		exitErr(err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed, color.Bold)

	fmt.Printf("Merge %s: %s -> %s\n", shortID(result.MergeID), source.Name, target.Name)

	switch result.Status {
	case models.MergeCompleted:
		green.Println("Merge completed")
		if result.ResultCommitID != "" {
			fmt.Printf("  Merge commit: %s\n", shortID(result.ResultCommitID))
		}
		if result.AutoResolvedCount > 0 {
			yellow.Printf("  Auto-resolved %d conflict(s)\n", result.AutoResolvedCount)
		}
	case models.MergeAborted:
		red.Printf("Merge aborted: %d conflict(s) detected\n", result.ConflictCount)
		printConflicts(c, result.MergeID)
		fmt.Println("\nRe-run with --strategy to resolve conflicts automatically,")
		fmt.Println("or --strategy manual-review to settle them one by one.")
	default:
		yellow.Printf("Merge pending: %d conflict(s) need manual resolution", result.ManualCount)
		if result.AutoResolvedCount > 0 {
			yellow.Printf(" (%d auto-resolved)", result.AutoResolvedCount)
		}
		fmt.Println()
		printConflicts(c, result.MergeID)
		fmt.Printf("\nResolve with: trinity resolve %s <conflict-id> --use <source|target|custom>\n", result.MergeID)
	}
}

// printConflicts lists a merge's conflicts with severity coloring.
func printConflicts(c *cmdContext, mergeID string) {
	conflicts, err := c.Engine.ListConflicts(mergeID)
	if err != nil {
		exitErr(err)
	}

	for _, cf := range conflicts {
		sev := severityColor(cf.Severity)
		fmt.Printf("  #%-4d ", cf.ID)
		sev.Printf("%-8s ", cf.Severity)
		fmt.Printf("%-18s %s", cf.Type, cf.ObjectKey())
		if cf.Status == models.ConflictResolved {
			color.New(color.Faint).Printf("  [resolved: %s]", cf.Resolution)
		} else if cf.AutoResolvable {
			fmt.Print("  (auto-resolvable)")
		}
		if cf.DependentCount > 0 {
			fmt.Printf("  %d dependent(s)", cf.DependentCount)
		}
		fmt.Println()
	}
}

func severityColor(s models.Severity) *color.Color {
	switch s {
	case models.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case models.SeverityHigh:
		return color.New(color.FgRed)
	case models.SeverityWarning:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}
