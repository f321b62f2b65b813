package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var mergeBaseCmd = &cobra.Command{
	Use:   "merge-base <branch-a> <branch-b>",
	Short: "Find the common ancestor of two branches",
	Long: `Walk both branches' lineage and report the nearest branch that is an
ancestor of both, with the distance from each side.`,
	Args: cobra.ExactArgs(2),
	Run:  runMergeBase,
}

func runMergeBase(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initFullContext()
	defer c.Close()

	a := resolveBranch(c, args[0])
	b := resolveBranch(c, args[1])

	base, err := c.Engine.FindMergeBase(ctx, a.ID, b.ID)
	if err != nil {
		exitErr(err)
	}

	fmt.Printf("%s\n", base.BranchName)
	fmt.Printf("  %d step(s) from '%s', %d step(s) from '%s'\n",
		base.DepthFromA, a.Name, base.DepthFromB, b.Name)
}
