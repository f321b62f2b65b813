package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Record a snapshot of a branch's tracked objects",
	Long: `Create a commit from the current tracked objects of a branch. The
commit records the aggregate tree fingerprint and advances the branch
head.

Examples:
  trinity commit -m "Add users table"
  trinity commit -m "Index email" --branch feature`,
	Run: runCommit,
}

var (
	commitMessage string
	commitBranch  string
	commitAuthor  string
)

func init() {
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "Commit message (required)")
	commitCmd.Flags().StringVarP(&commitBranch, "branch", "b", "", "Branch to commit on (default: repository default branch)")
	commitCmd.Flags().StringVar(&commitAuthor, "author", "", "Override the configured author")
	commitCmd.MarkFlagRequired("message")
}

func runCommit(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initFullContext()
	defer c.Close()

	b := defaultBranchFor(c, commitBranch)

	author := commitAuthor
	if author == "" {
		author = c.Config.Author
	}

	commit, err := c.Engine.CommitSnapshot(ctx, b.ID, commitMessage, author)
	if err != nil {
		exitErr(err)
	}

	green := color.New(color.FgGreen)
	green.Printf("[%s %s] ", b.Name, shortID(commit.ID))
	fmt.Println(commit.Message)
	fmt.Printf("  Tree: %s\n", shortID(commit.TreeHash))
}
