// Package client is the Go client for the Trinity HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/trinitydb/trinity/internal/engine"
	"github.com/trinitydb/trinity/internal/models"
)

// APIError is a structured error returned by the server.
type APIError struct {
	Status  int    `json:"-"`
	Kind    string `json:"error"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("server error (%s): %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("server error (HTTP %d): %s", e.Status, e.Message)
}

// Client talks to a trinity server. All methods retry transient failures
// per the configured RetryConfig; 4xx responses are never retried.
type Client struct {
	baseURL    string
	token      string
	caller     string
	httpClient *http.Client
	retry      *RetryConfig
}

// Option customizes a Client.
type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithCaller sets the X-Trinity-Caller identity used when the server runs
// without token auth.
func WithCaller(caller string) Option {
	return func(c *Client) { c.caller = caller }
}

// WithHTTPClient substitutes the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry overrides the retry policy.
func WithRetry(cfg *RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		retry:      DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) url(path string) string {
	return c.baseURL + "/api/v1" + path
}

func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	var payload []byte
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = data
	}

	return c.withRetry(ctx, method+" "+path, func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if c.caller != "" {
			req.Header.Set("X-Trinity-Caller", c.caller)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("execute request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return decodeError(resp)
		}
		if respBody != nil && resp.StatusCode != http.StatusNoContent {
			if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	})
}

// decodeError turns an error response into an *APIError.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = string(bytes.TrimSpace(data))
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
	}
	return apiErr
}

// ListBranches returns all branches.
func (c *Client) ListBranches(ctx context.Context) ([]*models.Branch, error) {
	var branches []*models.Branch
	if err := c.doJSON(ctx, "GET", "/branches", nil, &branches); err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return branches, nil
}

// GetBranch returns one branch by ID.
func (c *Client) GetBranch(ctx context.Context, id int64) (*models.Branch, error) {
	var b models.Branch
	if err := c.doJSON(ctx, "GET", "/branches/"+strconv.FormatInt(id, 10), nil, &b); err != nil {
		return nil, fmt.Errorf("get branch %d: %w", id, err)
	}
	return &b, nil
}

// CreateBranch creates a root branch (parentID zero) or forks parentID.
func (c *Client) CreateBranch(ctx context.Context, name string, parentID int64) (*models.Branch, error) {
	req := map[string]interface{}{"name": name, "parent_id": parentID}
	var b models.Branch
	if err := c.doJSON(ctx, "POST", "/branches", req, &b); err != nil {
		return nil, fmt.Errorf("create branch %q: %w", name, err)
	}
	return &b, nil
}

// BranchStatus compares a branch's tracked objects against its head commit.
func (c *Client) BranchStatus(ctx context.Context, id int64) (*engine.BranchStatus, error) {
	var st engine.BranchStatus
	if err := c.doJSON(ctx, "GET", fmt.Sprintf("/branches/%d/status", id), nil, &st); err != nil {
		return nil, fmt.Errorf("branch status %d: %w", id, err)
	}
	return &st, nil
}

// Log returns a branch's commit history, newest first.
func (c *Client) Log(ctx context.Context, id int64, limit int) ([]*models.Commit, error) {
	path := fmt.Sprintf("/branches/%d/log", id)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var commits []*models.Commit
	if err := c.doJSON(ctx, "GET", path, nil, &commits); err != nil {
		return nil, fmt.Errorf("branch log %d: %w", id, err)
	}
	return commits, nil
}

// Commit snapshots a branch's tracked objects.
func (c *Client) Commit(ctx context.Context, id int64, message string) (*models.Commit, error) {
	req := map[string]string{"message": message}
	var commit models.Commit
	if err := c.doJSON(ctx, "POST", fmt.Sprintf("/branches/%d/commits", id), req, &commit); err != nil {
		return nil, fmt.Errorf("commit on branch %d: %w", id, err)
	}
	return &commit, nil
}

// TrackObject registers or updates a schema object on a branch.
func (c *Client) TrackObject(ctx context.Context, req engine.TrackRequest) (*models.SchemaObject, error) {
	var obj models.SchemaObject
	path := fmt.Sprintf("/branches/%d/objects", req.BranchID)
	if err := c.doJSON(ctx, "POST", path, req, &obj); err != nil {
		return nil, fmt.Errorf("track object: %w", err)
	}
	return &obj, nil
}

// UntrackObject removes a schema object from a branch's tracked set.
func (c *Client) UntrackObject(ctx context.Context, branchID int64, typ models.ObjectType, schema, name string) error {
	path := fmt.Sprintf("/branches/%d/objects/%s/%s/%s", branchID, typ, schema, name)
	if err := c.doJSON(ctx, "DELETE", path, nil, nil); err != nil {
		return fmt.Errorf("untrack object: %w", err)
	}
	return nil
}

// FindMergeBase returns the nearest common ancestor of two branches.
func (c *Client) FindMergeBase(ctx context.Context, a, b int64) (*models.MergeBase, error) {
	var base models.MergeBase
	if err := c.doJSON(ctx, "GET", fmt.Sprintf("/merge-base/%d/%d", a, b), nil, &base); err != nil {
		return nil, fmt.Errorf("merge base: %w", err)
	}
	return &base, nil
}

// Merge starts a merge of one branch into another.
func (c *Client) Merge(ctx context.Context, req engine.MergeRequest) (*engine.MergeResult, error) {
	var result engine.MergeResult
	if err := c.doJSON(ctx, "POST", "/merges", req, &result); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	return &result, nil
}

// GetMerge returns a merge operation's current state.
func (c *Client) GetMerge(ctx context.Context, mergeID string) (*models.MergeOperation, error) {
	var op models.MergeOperation
	if err := c.doJSON(ctx, "GET", "/merges/"+mergeID, nil, &op); err != nil {
		return nil, fmt.Errorf("get merge %s: %w", mergeID, err)
	}
	return &op, nil
}

// ListConflicts returns a merge operation's conflicts.
func (c *Client) ListConflicts(ctx context.Context, mergeID string) ([]*models.Conflict, error) {
	var conflicts []*models.Conflict
	if err := c.doJSON(ctx, "GET", "/merges/"+mergeID+"/conflicts", nil, &conflicts); err != nil {
		return nil, fmt.Errorf("list conflicts %s: %w", mergeID, err)
	}
	return conflicts, nil
}

// ResolveConflict settles one open conflict of a merge operation.
func (c *Client) ResolveConflict(ctx context.Context, req engine.ResolveRequest) (*engine.ResolveResult, error) {
	path := fmt.Sprintf("/merges/%s/conflicts/%d/resolve", req.MergeID, req.ConflictID)
	var result engine.ResolveResult
	if err := c.doJSON(ctx, "POST", path, req, &result); err != nil {
		return nil, fmt.Errorf("resolve conflict: %w", err)
	}
	return &result, nil
}
