package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/trinitydb/trinity/internal/engine"
	"github.com/trinitydb/trinity/internal/models"
)

var trackCmd = &cobra.Command{
	Use:   "track <type> <schema.name>",
	Short: "Track a schema object on a branch",
	Long: `Track a schema object on a branch, or update its definition if it is
already tracked. The definition is read from --definition or --file as a
JSON object. New objects start at version 1.0.0; updates bump the version
per --bump.

Types: table, view, function, column, index, constraint, foreign_key

Examples:
  trinity track table public.users -f users.json
  trinity track index public.users_email_idx -d '{"columns":["email"]}' --parent table:public.users
  trinity track table public.users -f users.json --bump major`,
	Args: cobra.ExactArgs(2),
	Run:  runTrack,
}

var untrackCmd = &cobra.Command{
	Use:   "untrack <type> <schema.name>",
	Short: "Stop tracking a schema object",
	Long: `Remove a schema object from a branch's tracked set. Objects that other
tracked objects depend on cannot be untracked first.`,
	Args: cobra.ExactArgs(2),
	Run:  runUntrack,
}

var (
	trackBranch     string
	trackDefinition string
	trackFile       string
	trackParent     string
	trackBump       string

	untrackBranch string
)

func init() {
	trackCmd.Flags().StringVarP(&trackBranch, "branch", "b", "", "Branch to track on (default: repository default branch)")
	trackCmd.Flags().StringVarP(&trackDefinition, "definition", "d", "", "Object definition as inline JSON")
	trackCmd.Flags().StringVarP(&trackFile, "file", "f", "", "Read the object definition from a JSON file")
	trackCmd.Flags().StringVar(&trackParent, "parent", "", "Object this one depends on, as type:schema.name")
	trackCmd.Flags().StringVar(&trackBump, "bump", "", "Version bump for updates: major, minor, or patch")

	untrackCmd.Flags().StringVarP(&untrackBranch, "branch", "b", "", "Branch to untrack from (default: repository default branch)")
}

// splitQualifiedName splits "schema.name" into its two parts.
func splitQualifiedName(arg string) (string, string) {
	i := strings.Index(arg, ".")
	if i <= 0 || i == len(arg)-1 {
		exitError("object must be named as schema.name, got %q", arg)
	}
	return arg[:i], arg[i+1:]
}

// defaultBranchFor resolves an explicit branch flag or falls back to the
// repository default branch.
func defaultBranchFor(c *cmdContext, flag string) *models.Branch {
	name := flag
	if name == "" {
		def, err := c.Store.GetDefaultBranch()
		if err != nil || def == "" {
			exitError("no default branch; use --branch")
		}
		name = def
	}
	return resolveBranch(c, name)
}

func runTrack(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initFullContext()
	defer c.Close()

	schema, name := splitQualifiedName(args[1])
	b := defaultBranchFor(c, trackBranch)

	var raw []byte
	switch {
	case trackFile != "":
		data, err := os.ReadFile(trackFile)
		if err != nil {
			exitError("failed to read definition file: %v", err)
		}
		raw = data
	case trackDefinition != "":
		raw = []byte(trackDefinition)
	default:
		exitError("a definition is required; use --definition or --file")
	}

	var def map[string]interface{}
	if err := json.Unmarshal(raw, &def); err != nil {
		exitError("definition is not a JSON object: %v", err)
	}

	obj, err := c.Engine.TrackObject(ctx, engine.TrackRequest{
		BranchID:   b.ID,
		Type:       models.ObjectType(args[0]),
		Schema:     schema,
		Name:       name,
		Definition: def,
		ParentKey:  trackParent,
		Bump:       models.BumpKind(trackBump),
	})
	if err != nil {
		exitErr(err)
	}

	green := color.New(color.FgGreen)
	green.Printf("Tracked %s on '%s'\n", obj.Key(), b.Name)
	fmt.Printf("  Version:     %s\n", obj.Version)
	fmt.Printf("  Fingerprint: %s\n", shortID(obj.Fingerprint))
}

func runUntrack(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initFullContext()
	defer c.Close()

	schema, name := splitQualifiedName(args[1])
	b := defaultBranchFor(c, untrackBranch)

	if err := c.Engine.UntrackObject(ctx, b.ID, models.ObjectType(args[0]), schema, name); err != nil {
		exitErr(err)
	}

	fmt.Printf("Untracked %s:%s.%s from '%s'\n", args[0], schema, name, b.Name)
}
