package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/trinitydb/trinity/internal/lock"
	"github.com/trinitydb/trinity/internal/models"
	"github.com/trinitydb/trinity/internal/store"
)

// newTestService builds a full engine over a temp-dir SQLite store.
func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Initialize())
	t.Cleanup(func() { st.Close() })

	locks := lock.NewCoordinator(st, 30*time.Second)
	t.Cleanup(func() { locks.Close() })

	return New(Options{
		Store:       st,
		Locks:       locks,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		LockTimeout: 2 * time.Second,
	})
}

// newBranchTree builds main ← dev ← feature and returns their ids.
func newBranchTree(t *testing.T, s *Service) (main, dev, feature int64) {
	t.Helper()
	ctx := context.Background()

	m, err := s.CreateRootBranch(ctx, "main", "tester")
	require.NoError(t, err)
	d, err := s.ForkBranch(ctx, "dev", m.ID, "tester")
	require.NoError(t, err)
	f, err := s.ForkBranch(ctx, "feature", d.ID, "tester")
	require.NoError(t, err)
	return m.ID, d.ID, f.ID
}

func track(t *testing.T, s *Service, branchID int64, typ models.ObjectType, schema, name string, def map[string]interface{}) *models.SchemaObject {
	t.Helper()
	obj, err := s.TrackObject(context.Background(), TrackRequest{
		BranchID:   branchID,
		Type:       typ,
		Schema:     schema,
		Name:       name,
		Definition: def,
	})
	require.NoError(t, err)
	return obj
}
