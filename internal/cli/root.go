// Package cli implements the command-line interface for Trinity.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trinitydb/trinity/internal/audit"
	"github.com/trinitydb/trinity/internal/config"
	"github.com/trinitydb/trinity/internal/engine"
	"github.com/trinitydb/trinity/internal/lock"
	"github.com/trinitydb/trinity/internal/models"
	"github.com/trinitydb/trinity/internal/store"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config *config.Config
	Store  *store.Store
	Locks  *lock.Coordinator
	Audit  audit.Sink
	Engine *engine.Service
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Locks != nil {
		c.Locks.Close()
	}
	if c.Audit != nil {
		c.Audit.Close()
	}
	if c.Store != nil {
		c.Store.Close()
	}
}

// initContext initializes config and store (no merge engine)
func initContext() *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		exitError("failed to open store: %v", err)
	}

	if err := st.Initialize(); err != nil {
		st.Close()
		exitError("failed to initialize store: %v", err)
	}

	return &cmdContext{Config: cfg, Store: st}
}

// initFullContext initializes config, store, lock coordinator, audit sink,
// and the merge engine service.
func initFullContext() *cmdContext {
	c := initContext()

	sink, err := audit.NewBoltSink(c.Config.AuditPath())
	if err != nil {
		c.Close()
		exitError("failed to open audit log: %v", err)
	}
	c.Audit = sink

	c.Locks = lock.NewCoordinator(c.Store, c.Config.LeaseTTL())
	c.Engine = engine.New(engine.Options{
		Store:       c.Store,
		Locks:       c.Locks,
		Audit:       sink,
		LockTimeout: c.Config.LockTimeout(),
	})

	return c
}

// resolveBranch looks up a branch by name and exits on failure.
func resolveBranch(c *cmdContext, name string) *models.Branch {
	b, err := c.Store.GetBranchByName(name)
	if err != nil {
		exitError("failed to look up branch '%s': %v", name, err)
	}
	if b == nil {
		exitError("branch '%s' does not exist", name)
	}
	return b
}

var rootCmd = &cobra.Command{
	Use:   "trinity",
	Short: "Trinity Schema Version Control",
	Long: `Trinity is a git-like CLI tool for version controlling relational
database schemas. Track schema objects on branches, commit snapshots,
and merge branches with three-way conflict detection.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(untrackCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(mergeBaseCmd)
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(serverCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// exitErr prints an engine error, including its hint when present, and exits.
func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	if hint := models.HintOf(err); hint != "" {
		fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
	}
	os.Exit(1)
}

// shortID returns first 8 characters of an ID
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
