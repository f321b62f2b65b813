package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/trinitydb/trinity/internal/engine"
	"github.com/trinitydb/trinity/internal/models"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <merge-id> <conflict-id>",
	Short: "Resolve one conflict of a merge operation",
	Long: `Apply a resolution to an open conflict. A conflict resolves exactly
once; resolving the last open conflict completes the merge and writes
the merge commit.

Resolutions:
  source   take the source branch's version (or deletion)
  target   keep the target branch's version
  custom   apply a definition given via --definition or --file

Examples:
  trinity resolve 01J8ZK3T 12 --use source
  trinity resolve 01J8ZK3T 12 --use custom -f resolved.json`,
	Args: cobra.ExactArgs(2),
	Run:  runResolve,
}

var (
	resolveUse        string
	resolveDefinition string
	resolveFile       string
)

func init() {
	resolveCmd.Flags().StringVar(&resolveUse, "use", "", "Resolution: source, target, or custom (required)")
	resolveCmd.Flags().StringVarP(&resolveDefinition, "definition", "d", "", "Custom definition as inline JSON")
	resolveCmd.Flags().StringVarP(&resolveFile, "file", "f", "", "Read the custom definition from a JSON file")
	resolveCmd.MarkFlagRequired("use")
}

func runResolve(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initFullContext()
	defer c.Close()

	conflictID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		exitError("conflict id must be a number, got %q", args[1])
	}

	req := engine.ResolveRequest{
		MergeID:    args[0],
		ConflictID: conflictID,
		Resolution: models.ResolutionKind(strings.ToUpper(resolveUse)),
		ResolvedBy: c.Config.Author,
	}

	switch {
	case resolveFile != "":
		data, err := os.ReadFile(resolveFile)
		if err != nil {
			exitError("failed to read definition file: %v", err)
		}
		req.CustomDefinition = string(data)
	case resolveDefinition != "":
		req.CustomDefinition = resolveDefinition
	}

	result, err := c.Engine.ResolveConflict(ctx, req)
	if err != nil {
		exitErr(err)
	}

	green := color.New(color.FgGreen)
	green.Printf("Resolved conflict #%d (%s)\n", result.ConflictID, result.Resolution)

	if result.MergeStatus == models.MergeCompleted {
		green.Println("All conflicts resolved; merge completed")
		if result.ResultCommitID != "" {
			fmt.Printf("  Merge commit: %s\n", shortID(result.ResultCommitID))
		}
	} else {
		fmt.Printf("Merge status: %s\n", result.MergeStatus)
	}
}
