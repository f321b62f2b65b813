package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/trinitydb/trinity/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit log",
	Long:  `Display recorded merge-engine operations, newest first.`,
	Run:   runAudit,
}

var auditLimit int

func init() {
	auditCmd.Flags().IntVarP(&auditLimit, "n", "n", 20, "Limit the number of records to show")
}

func runAudit(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	sink, err := audit.NewBoltSink(c.Config.AuditPath())
	if err != nil {
		exitError("failed to open audit log: %v", err)
	}
	defer sink.Close()

	records, err := sink.List(auditLimit)
	if err != nil {
		exitError("failed to read audit log: %v", err)
	}

	if len(records) == 0 {
		fmt.Println("No audit records")
		return
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	for _, rec := range records {
		fmt.Printf("%s  %-16s ", rec.Timestamp.Format("2006-01-02 15:04:05"), rec.Operation)
		if rec.Success {
			green.Print("ok  ")
		} else {
			red.Print("err ")
		}
		fmt.Printf("%4dms", rec.DurationMS)
		if rec.Caller != "" {
			fmt.Printf("  by %s", rec.Caller)
		}
		if rec.Error != "" {
			red.Printf("  %s", rec.Error)
		}
		fmt.Println()
	}
}
