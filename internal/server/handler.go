package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/trinitydb/trinity/internal/engine"
	"github.com/trinitydb/trinity/internal/models"
	"github.com/trinitydb/trinity/internal/store"
)

// Config holds the server's configurable limits and auth material.
type Config struct {
	MaxRequestBody    int64 // bytes, for JSON endpoints
	RequestsPerMinute int   // per-caller rate limit
	CacheTTL          time.Duration

	// Tokens maps bearer tokens to caller identities. Empty disables auth.
	Tokens map[string]string

	Webhooks *WebhookConfig
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxRequestBody:    4 * 1024 * 1024, // 4MB
		RequestsPerMinute: 300,
		CacheTTL:          30 * time.Second,
	}
}

// Handler creates the HTTP handler with all routes and middleware. The
// returned cleanup function stops background goroutines and should be
// called on server shutdown.
func Handler(svc *engine.Service, st *store.Store, cfg *Config, logger *slog.Logger) (http.Handler, func(), error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	cache, err := newResponseCache(cfg.CacheTTL, svc.Bus())
	if err != nil {
		return nil, nil, fmt.Errorf("init response cache: %w", err)
	}
	NewWebhookNotifier(cfg.Webhooks, svc.Bus(), logger)

	rl := newRateLimiter(cfg.RequestsPerMinute)
	api := &apiHandler{svc: svc, store: st, cfg: cfg, cache: cache, logger: logger}

	mux := http.NewServeMux()

	// Health endpoints (no auth)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := st.ListBranches(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready: store unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	auth := authMiddleware(cfg.Tokens)
	withAuth := func(h http.HandlerFunc) http.Handler {
		return applyMiddleware(h, auth, rl.middleware)
	}

	// Branches
	mux.Handle("GET /api/v1/branches", withAuth(api.handleListBranches))
	mux.Handle("POST /api/v1/branches", withAuth(api.handleCreateBranch))
	mux.Handle("GET /api/v1/branches/{id}", withAuth(api.handleGetBranch))
	mux.Handle("GET /api/v1/branches/{id}/status", withAuth(api.handleBranchStatus))
	mux.Handle("GET /api/v1/branches/{id}/log", withAuth(api.handleBranchLog))
	mux.Handle("POST /api/v1/branches/{id}/commits", withAuth(api.handleCommit))

	// Tracked objects
	mux.Handle("POST /api/v1/branches/{id}/objects", withAuth(api.handleTrackObject))
	mux.Handle("DELETE /api/v1/branches/{id}/objects/{type}/{schema}/{name}", withAuth(api.handleUntrackObject))

	// Merge workflow
	mux.Handle("GET /api/v1/merge-base/{a}/{b}", withAuth(api.handleMergeBase))
	mux.Handle("POST /api/v1/merges", withAuth(api.handleMerge))
	mux.Handle("GET /api/v1/merges/{id}", withAuth(api.handleMergeStatus))
	mux.Handle("GET /api/v1/merges/{id}/conflicts", withAuth(api.handleListConflicts))
	mux.Handle("POST /api/v1/merges/{id}/conflicts/{cid}/resolve", withAuth(api.handleResolve))

	handler := applyMiddleware(mux,
		recoveryMiddleware(logger),
		loggingMiddleware(logger),
		requestIDMiddleware,
	)

	cleanup := func() {
		rl.Stop()
		cache.close()
	}
	return handler, cleanup, nil
}

// applyMiddleware applies middleware in reverse order so the first in the list runs first.
func applyMiddleware(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type apiHandler struct {
	svc    *engine.Service
	store  *store.Store
	cfg    *Config
	cache  *responseCache
	logger *slog.Logger
}

// statusForKind maps engine error kinds onto HTTP statuses.
func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindInvalidInput:
		return http.StatusBadRequest
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindInvalidState, models.KindLockContention:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	kind := models.KindOf(err)
	body := map[string]string{
		"error":   string(kind),
		"message": err.Error(),
	}
	if kind == "" {
		body["error"] = "internal_error"
	}
	if hint := models.HintOf(err); hint != "" {
		body["hint"] = hint
	}
	writeJSON(w, statusForKind(kind), body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, maxSize int64, v interface{}) error {
	limited := io.LimitReader(r.Body, maxSize)
	if err := json.NewDecoder(limited).Decode(v); err != nil {
		return models.InvalidInput("invalid JSON: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, models.InvalidInput("invalid %s %q", name, r.PathValue(name))
	}
	return id, nil
}

// --- Branch Handlers ---

func (h *apiHandler) handleListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.store.ListBranches()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, branches)
}

func (h *apiHandler) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		ParentID int64  `json:"parent_id"`
	}
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, err)
		return
	}

	caller := callerFrom(r.Context())
	var branch *models.Branch
	var err error
	if req.ParentID > 0 {
		branch, err = h.svc.ForkBranch(r.Context(), req.Name, req.ParentID, caller)
	} else {
		branch, err = h.svc.CreateRootBranch(r.Context(), req.Name, caller)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, branch)
}

func (h *apiHandler) handleGetBranch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	branch, err := h.store.GetBranch(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if branch == nil {
		writeError(w, models.NotFound("branch %d not found", id))
		return
	}
	writeJSON(w, http.StatusOK, branch)
}

func (h *apiHandler) handleBranchStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := h.svc.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *apiHandler) handleBranchLog(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeError(w, models.InvalidInput("invalid limit %q", q))
			return
		}
		limit = n
	}
	commits, err := h.svc.Log(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commits)
}

func (h *apiHandler) handleCommit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, err)
		return
	}
	commit, err := h.svc.CommitSnapshot(r.Context(), id, req.Message, callerFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, commit)
}

// --- Object Handlers ---

func (h *apiHandler) handleTrackObject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req engine.TrackRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, err)
		return
	}
	req.BranchID = id
	obj, err := h.svc.TrackObject(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

func (h *apiHandler) handleUntrackObject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	typ := models.ObjectType(r.PathValue("type"))
	if err := h.svc.UntrackObject(r.Context(), id, typ, r.PathValue("schema"), r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Merge Handlers ---

func (h *apiHandler) handleMergeBase(w http.ResponseWriter, r *http.Request) {
	a, err := pathID(r, "a")
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := pathID(r, "b")
	if err != nil {
		writeError(w, err)
		return
	}
	base, err := h.svc.FindMergeBase(r.Context(), a, b)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, base)
}

func (h *apiHandler) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req engine.MergeRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, err)
		return
	}
	req.InitiatedBy = callerFrom(r.Context())

	res, err := h.svc.Merge(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *apiHandler) handleMergeStatus(w http.ResponseWriter, r *http.Request) {
	mergeID := r.PathValue("id")
	if body, ok := h.cache.get("status:" + mergeID); ok {
		writeCached(w, body)
		return
	}

	op, err := h.svc.GetMergeStatus(mergeID)
	if err != nil {
		writeError(w, err)
		return
	}
	// Only terminal operations are immutable enough to cache.
	h.respondCached(w, "status:"+mergeID, op, op.Status.Terminal())
}

func (h *apiHandler) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	mergeID := r.PathValue("id")
	if body, ok := h.cache.get("conflicts:" + mergeID); ok {
		writeCached(w, body)
		return
	}

	op, err := h.svc.GetMergeStatus(mergeID)
	if err != nil {
		writeError(w, err)
		return
	}
	conflicts, err := h.svc.ListConflicts(mergeID)
	if err != nil {
		writeError(w, err)
		return
	}
	if conflicts == nil {
		conflicts = []*models.Conflict{}
	}
	h.respondCached(w, "conflicts:"+mergeID, conflicts, op.Status.Terminal())
}

func (h *apiHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	cid, err := pathID(r, "cid")
	if err != nil {
		writeError(w, err)
		return
	}
	var req engine.ResolveRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, err)
		return
	}
	req.MergeID = r.PathValue("id")
	req.ConflictID = cid
	req.ResolvedBy = callerFrom(r.Context())

	res, err := h.svc.ResolveConflict(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *apiHandler) respondCached(w http.ResponseWriter, key string, v interface{}, cacheable bool) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(w, err)
		return
	}
	if cacheable {
		h.cache.set(key, body)
	}
	writeCached(w, body)
}

func writeCached(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
	w.Write([]byte("\n"))
}
