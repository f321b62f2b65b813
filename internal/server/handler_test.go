package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trinitydb/trinity/internal/engine"
	"github.com/trinitydb/trinity/internal/lock"
	"github.com/trinitydb/trinity/internal/models"
	"github.com/trinitydb/trinity/internal/store"
)

func newTestHandler(t *testing.T, cfg *Config) http.Handler {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Initialize())
	t.Cleanup(func() { st.Close() })

	locks := lock.NewCoordinator(st, 30*time.Second)
	t.Cleanup(func() { locks.Close() })

	svc := engine.New(engine.Options{
		Store:       st,
		Locks:       locks,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		LockTimeout: 2 * time.Second,
	})

	h, cleanup, err := Handler(svc, st, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return h
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := doJSON(t, h, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/readyz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

// createBranch is a test helper over the branches endpoint.
func createBranch(t *testing.T, h http.Handler, name string, parentID int64) *models.Branch {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/branches", map[string]interface{}{
		"name": name, "parent_id": parentID,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var b models.Branch
	decode(t, rec, &b)
	return &b
}

func trackObject(t *testing.T, h http.Handler, branchID int64, name string, def map[string]interface{}) {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/v1/branches/%d/objects", branchID), map[string]interface{}{
		"type": "table", "schema": "public", "name": name, "definition": def,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestMergeWorkflowOverHTTP(t *testing.T) {
	h := newTestHandler(t, nil)

	main := createBranch(t, h, "main", 0)
	trackObject(t, h, main.ID, "users", map[string]interface{}{"columns": "id"})
	left := createBranch(t, h, "left", main.ID)
	right := createBranch(t, h, "right", main.ID)

	trackObject(t, h, left.ID, "users", map[string]interface{}{"columns": "id, email"})
	trackObject(t, h, right.ID, "users", map[string]interface{}{"columns": "id, phone"})

	rec := doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/v1/merge-base/%d/%d", left.ID, right.ID), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var base models.MergeBase
	decode(t, rec, &base)
	assert.Equal(t, main.ID, base.BranchID)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/merges", map[string]interface{}{
		"source_branch_id": left.ID,
		"target_branch_id": right.ID,
		"strategy":         "manual-review",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res engine.MergeResult
	decode(t, rec, &res)
	assert.Equal(t, models.MergeResolving, res.Status)
	require.Equal(t, 1, res.ConflictCount)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/merges/"+res.MergeID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var op models.MergeOperation
	decode(t, rec, &op)
	assert.Equal(t, models.MergeResolving, op.Status)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/merges/"+res.MergeID+"/conflicts", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var conflicts []*models.Conflict
	decode(t, rec, &conflicts)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictBothModified, conflicts[0].Type)

	rec = doJSON(t, h, http.MethodPost,
		fmt.Sprintf("/api/v1/merges/%s/conflicts/%d/resolve", res.MergeID, conflicts[0].ID),
		map[string]interface{}{"resolution": "SOURCE"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rres engine.ResolveResult
	decode(t, rec, &rres)
	assert.Equal(t, models.MergeCompleted, rres.MergeStatus)
	assert.NotEmpty(t, rres.ResultCommitID)

	// Completed status is served (and cached) correctly.
	for i := 0; i < 2; i++ {
		rec = doJSON(t, h, http.MethodGet, "/api/v1/merges/"+res.MergeID, nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &op)
		assert.Equal(t, models.MergeCompleted, op.Status)
	}
}

func TestErrorMapping(t *testing.T) {
	h := newTestHandler(t, nil)
	main := createBranch(t, h, "main", 0)

	// Self-merge → 400 with a machine-readable kind.
	rec := doJSON(t, h, http.MethodPost, "/api/v1/merges", map[string]interface{}{
		"source_branch_id": main.ID,
		"target_branch_id": main.ID,
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, string(models.KindInvalidInput), body["error"])
	assert.NotEmpty(t, body["hint"])

	// Unknown merge → 404.
	gen := models.NewIDGenerator()
	rec = doJSON(t, h, http.MethodGet, "/api/v1/merges/"+gen.NewID(), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Unknown branch → 404.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/branches/9999", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Malformed body → 400.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/merges", bytes.NewBufferString("{nope"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Resolving against an aborted merge → 409.
	left := createBranch(t, h, "left", main.ID)
	right := createBranch(t, h, "right", main.ID)
	trackObject(t, h, left.ID, "users", map[string]interface{}{"columns": "a"})
	trackObject(t, h, right.ID, "users", map[string]interface{}{"columns": "b"})
	rec = doJSON(t, h, http.MethodPost, "/api/v1/merges", map[string]interface{}{
		"source_branch_id": left.ID,
		"target_branch_id": right.ID,
		"strategy":         "abort-on-conflict",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res engine.MergeResult
	decode(t, rec, &res)
	require.Equal(t, models.MergeAborted, res.Status)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/merges/"+res.MergeID+"/conflicts", nil, "")
	var conflicts []*models.Conflict
	decode(t, rec, &conflicts)
	require.Len(t, conflicts, 1)

	rec = doJSON(t, h, http.MethodPost,
		fmt.Sprintf("/api/v1/merges/%s/conflicts/%d/resolve", res.MergeID, conflicts[0].ID),
		map[string]interface{}{"resolution": "SOURCE"}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBearerAuth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tokens = map[string]string{"s3cret": "alice"}
	h := newTestHandler(t, cfg)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/branches", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/branches", nil, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/branches", nil, "s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open without a token.
	rec = doJSON(t, h, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// The authenticated identity is recorded on writes.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/branches", map[string]interface{}{"name": "main"}, "s3cret")
	require.Equal(t, http.StatusCreated, rec.Code)
	var b models.Branch
	decode(t, rec, &b)

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/v1/branches/%d/log", b.ID), nil, "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	var commits []*models.Commit
	decode(t, rec, &commits)
	require.NotEmpty(t, commits)
	assert.Equal(t, "alice", commits[0].Author)
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestsPerMinute = 2
	h := newTestHandler(t, cfg)

	for i := 0; i < 2; i++ {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/branches", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := doJSON(t, h, http.MethodGet, "/api/v1/branches", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}
