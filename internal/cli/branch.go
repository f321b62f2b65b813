package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/trinitydb/trinity/internal/models"
)

var branchCmd = &cobra.Command{
	Use:   "branch [name]",
	Short: "List, create, or archive branches",
	Long: `Manage branches in the Trinity repository.

Without arguments, lists all branches.
With a name argument, creates a new branch forked from --from
(or the default branch). The new branch starts with a copy of the
parent's tracked objects.

Examples:
  trinity branch                      # List all branches
  trinity branch feature              # Fork 'feature' from the default branch
  trinity branch feature --from dev   # Fork 'feature' from 'dev'
  trinity branch --archive feature    # Archive 'feature'`,
	Args: cobra.MaximumNArgs(1),
	Run:  runBranch,
}

var (
	branchFrom    string
	branchArchive bool
)

func init() {
	branchCmd.Flags().StringVar(&branchFrom, "from", "", "Parent branch to fork from (default: repository default branch)")
	branchCmd.Flags().BoolVar(&branchArchive, "archive", false, "Archive a branch instead of creating one")
}

func runBranch(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initFullContext()
	defer c.Close()

	if branchArchive {
		if len(args) == 0 {
			exitError("branch name required for archiving")
		}
		b := resolveBranch(c, args[0])
		if err := c.Store.ArchiveBranch(b.ID); err != nil {
			exitError("%v", err)
		}
		fmt.Printf("Archived branch '%s'\n", b.Name)
		return
	}

	if len(args) > 0 {
		parent := branchFrom
		if parent == "" {
			def, err := c.Store.GetDefaultBranch()
			if err != nil || def == "" {
				exitError("no default branch; use --from to name the parent")
			}
			parent = def
		}
		pb := resolveBranch(c, parent)

		b, err := c.Engine.ForkBranch(ctx, args[0], pb.ID, c.Config.Author)
		if err != nil {
			exitErr(err)
		}

		fmt.Printf("Created branch '%s' from '%s'\n", b.Name, pb.Name)
		if b.HeadCommitID != "" {
			fmt.Printf("  Head: %s\n", shortID(b.HeadCommitID))
		}
		return
	}

	branches, err := c.Store.ListBranches()
	if err != nil {
		exitError("failed to list branches: %v", err)
	}

	def, _ := c.Store.GetDefaultBranch()
	green := color.New(color.FgGreen)
	faint := color.New(color.Faint)

	for _, b := range branches {
		marker := "  "
		if b.Name == def {
			marker = "* "
		}

		line := fmt.Sprintf("%s%-24s", marker, b.Name)
		if b.HeadCommitID != "" {
			line += " " + shortID(b.HeadCommitID)
		}

		switch {
		case b.Status == models.BranchArchived:
			faint.Printf("%s (archived)\n", line)
		case b.Name == def:
			green.Println(line)
		default:
			fmt.Println(line)
		}
	}
}
