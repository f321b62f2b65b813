package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trinitydb/trinity/internal/models"
)

// newTestStore creates a store backed by a temp-dir SQLite file.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Initialize())
	t.Cleanup(func() { st.Close() })
	return st
}

// newTestCommit creates a commit on the branch and returns its ID.
func newTestCommit(t *testing.T, st *Store, gen *models.IDGenerator, branchID int64, parentID, message string) string {
	t.Helper()
	now := time.Now()
	c := &models.Commit{
		ID:          gen.NewID(),
		BranchID:    branchID,
		ParentID:    parentID,
		Message:     message,
		AuthoredAt:  now,
		CommittedAt: now,
	}
	require.NoError(t, st.CreateCommit(c))
	require.NoError(t, st.UpdateBranchHead(branchID, c.ID))
	return c.ID
}

func TestStore_Initialize(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := New(dbPath)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Initialize())

	// Idempotent
	assert.NoError(t, st.Initialize())

	_, err = st.GetDefaultBranch()
	assert.NoError(t, err)
}

func TestStore_GetSetValue(t *testing.T) {
	st := newTestStore(t)

	v, err := st.GetValue("missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, st.SetValue("k", "v1"))
	require.NoError(t, st.SetValue("k", "v2"))

	v, err = st.GetValue("k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
}

func TestStore_Branches(t *testing.T) {
	st := newTestStore(t)

	main, err := st.CreateBranch("main", 0, "")
	require.NoError(t, err)
	assert.True(t, main.IsRoot())
	assert.Equal(t, models.BranchActive, main.Status)

	feature, err := st.CreateBranch("feature", main.ID, "")
	require.NoError(t, err)
	assert.Equal(t, main.ID, feature.ParentID)

	// Unique names
	_, err = st.CreateBranch("main", 0, "")
	assert.Error(t, err)

	byName, err := st.GetBranchByName("feature")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, feature.ID, byName.ID)

	missing, err := st.GetBranch(9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	branches, err := st.ListBranches()
	require.NoError(t, err)
	require.Len(t, branches, 2)
	assert.Equal(t, "feature", branches[0].Name)

	require.NoError(t, st.ArchiveBranch(feature.ID))
	archived, err := st.GetBranch(feature.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BranchArchived, archived.Status)
}

func TestStore_Commits(t *testing.T) {
	st := newTestStore(t)
	gen := models.NewIDGenerator()

	main, err := st.CreateBranch("main", 0, "")
	require.NoError(t, err)

	c1 := newTestCommit(t, st, gen, main.ID, "", "initial")
	c2 := newTestCommit(t, st, gen, main.ID, c1, "second")

	got, err := st.GetCommit(c2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, c1, got.ParentID)
	assert.Equal(t, "second", got.Message)

	// Commit IDs must be Trinity IDs
	err = st.CreateCommit(&models.Commit{ID: "not-a-trinity-id", BranchID: main.ID, Message: "bad"})
	assert.Error(t, err)

	log, err := st.ListCommits(main.ID, 0)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, c2, log[0].ID)
	assert.Equal(t, c1, log[1].ID)
}

func TestStore_Objects(t *testing.T) {
	st := newTestStore(t)

	main, err := st.CreateBranch("main", 0, "")
	require.NoError(t, err)

	obj, err := st.UpsertObject(&models.SchemaObject{
		BranchID:   main.ID,
		Type:       models.ObjectTable,
		Schema:     "public",
		Name:       "users",
		Definition: map[string]interface{}{"columns": []interface{}{"id", "email"}},
	}, models.BumpPatch)
	require.NoError(t, err)
	assert.Equal(t, models.Version{Major: 1}, obj.Version)
	assert.NotEmpty(t, obj.Fingerprint)

	// Update bumps the version and changes the fingerprint
	updated, err := st.UpsertObject(&models.SchemaObject{
		BranchID:   main.ID,
		Type:       models.ObjectTable,
		Schema:     "public",
		Name:       "users",
		Definition: map[string]interface{}{"columns": []interface{}{"id", "email", "name"}},
	}, models.BumpMinor)
	require.NoError(t, err)
	assert.Equal(t, models.Version{Major: 1, Minor: 1}, updated.Version)
	assert.NotEqual(t, obj.Fingerprint, updated.Fingerprint)

	states, err := st.ObjectStates(main.ID)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Contains(t, states, updated.Key())

	require.NoError(t, st.DeleteObject(main.ID, models.ObjectTable, "public", "users"))
	assert.Error(t, st.DeleteObject(main.ID, models.ObjectTable, "public", "users"))
}

func TestStore_DependentCount(t *testing.T) {
	st := newTestStore(t)

	main, err := st.CreateBranch("main", 0, "")
	require.NoError(t, err)

	table, err := st.UpsertObject(&models.SchemaObject{
		BranchID: main.ID, Type: models.ObjectTable, Schema: "public", Name: "orders",
		Definition: map[string]interface{}{"name": "orders"},
	}, models.BumpPatch)
	require.NoError(t, err)

	for _, col := range []string{"id", "total"} {
		_, err := st.UpsertObject(&models.SchemaObject{
			BranchID: main.ID, Type: models.ObjectColumn, Schema: "public", Name: "orders." + col,
			Definition: map[string]interface{}{"type": "bigint"},
			ParentID:   table.ID,
		}, models.BumpPatch)
		require.NoError(t, err)
	}

	n, err := st.DependentCount(main.ID, table.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
