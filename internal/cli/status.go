package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the working state of a branch",
	Long: `Compare a branch's tracked objects against its head commit and report
whether there are uncommitted changes.`,
	Run: runStatus,
}

var statusBranch string

func init() {
	statusCmd.Flags().StringVarP(&statusBranch, "branch", "b", "", "Branch to inspect (default: repository default branch)")
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initFullContext()
	defer c.Close()

	b := defaultBranchFor(c, statusBranch)

	st, err := c.Engine.Status(ctx, b.ID)
	if err != nil {
		exitErr(err)
	}

	fmt.Printf("On branch %s\n", b.Name)
	if b.HeadCommitID != "" {
		fmt.Printf("Head commit: %s\n", shortID(b.HeadCommitID))
	} else {
		fmt.Println("No commits yet")
	}
	fmt.Printf("Tracked objects: %d\n", st.ObjectCount)

	if st.Dirty {
		color.New(color.FgYellow).Println("\nUncommitted changes (tree differs from head commit)")
		fmt.Println("Run 'trinity commit -m <message>' to snapshot the current state.")
	} else {
		color.New(color.FgGreen).Println("\nNothing to commit, working tree clean")
	}
}
