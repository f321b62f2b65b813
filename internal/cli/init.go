package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trinitydb/trinity/internal/audit"
	"github.com/trinitydb/trinity/internal/config"
	"github.com/trinitydb/trinity/internal/engine"
	"github.com/trinitydb/trinity/internal/lock"
	"github.com/trinitydb/trinity/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new Trinity repository",
	Long: `Initialize a new Trinity repository in the current directory.
This creates a .trinity directory holding the schema catalog, the audit
log, and the repository configuration, and creates the root branch.`,
	Run: runInit,
}

var (
	initAuthor string
	initBranch string
)

func init() {
	initCmd.Flags().StringVar(&initAuthor, "author", "", "Default author for commits and merges")
	initCmd.Flags().StringVar(&initBranch, "branch", "main", "Name of the root branch")
}

func runInit(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	if _, err := config.FindTrinityRoot(); err == nil {
		exitError("trinity repository already exists")
	}

	cfg, err := config.Initialize(initAuthor)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		exitError("failed to create store: %v", err)
	}
	defer st.Close()

	if err := st.Initialize(); err != nil {
		exitError("failed to initialize store: %v", err)
	}

	sink, err := audit.NewBoltSink(cfg.AuditPath())
	if err != nil {
		exitError("failed to create audit log: %v", err)
	}
	defer sink.Close()

	locks := lock.NewCoordinator(st, cfg.LeaseTTL())
	defer locks.Close()

	svc := engine.New(engine.Options{
		Store:       st,
		Locks:       locks,
		Audit:       sink,
		LockTimeout: cfg.LockTimeout(),
	})

	root, err := svc.CreateRootBranch(ctx, initBranch, initAuthor)
	if err != nil {
		exitErr(err)
	}

	if err := st.SetDefaultBranch(root.Name); err != nil {
		exitError("failed to set default branch: %v", err)
	}

	fmt.Printf("Initialized empty Trinity repository in %s/\n", config.TrinityDir)
	fmt.Printf("Created root branch '%s'\n", root.Name)
}
