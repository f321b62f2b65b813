package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show commit history",
	Long:  `Display the commit history of a branch, newest first.`,
	Run:   runLog,
}

var (
	logBranch  string
	logOneline bool
	logLimit   int
)

func init() {
	logCmd.Flags().StringVarP(&logBranch, "branch", "b", "", "Branch to show (default: repository default branch)")
	logCmd.Flags().BoolVar(&logOneline, "oneline", false, "Show each commit on a single line")
	logCmd.Flags().IntVarP(&logLimit, "n", "n", 0, "Limit the number of commits to show")
}

func runLog(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initFullContext()
	defer c.Close()

	b := defaultBranchFor(c, logBranch)

	commits, err := c.Engine.Log(ctx, b.ID, logLimit)
	if err != nil {
		exitErr(err)
	}

	if len(commits) == 0 {
		fmt.Println("No commits yet")
		return
	}

	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	for _, commit := range commits {
		isHead := commit.ID == b.HeadCommitID

		if logOneline {
			yellow.Printf("%s ", commit.ShortID())
			if isHead {
				cyan.Print("(HEAD) ")
			}
			fmt.Println(commit.Message)
			continue
		}

		yellow.Printf("commit %s", commit.ID)
		if isHead {
			cyan.Print(" (HEAD)")
		}
		fmt.Println()
		if commit.Author != "" {
			fmt.Printf("Author: %s\n", commit.Author)
		}
		fmt.Printf("Date:   %s\n", commit.CommittedAt.Format("Mon Jan 2 15:04:05 2006"))
		fmt.Printf("\n    %s\n\n", commit.Message)
	}
}
