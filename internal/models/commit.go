package models

import "time"

// Commit is one immutable point of schema history on a branch. The ID is a
// Trinity ID; TreeHash is the aggregate fingerprint over all tracked
// objects at this commit. Commits are never mutated after creation; only
// branch pointers move.
type Commit struct {
	ID          string    `json:"id"`
	BranchID    int64     `json:"branch_id"`
	ParentID    string    `json:"parent_id,omitempty"`
	Message     string    `json:"message"`
	Author      string    `json:"author,omitempty"`
	TreeHash    string    `json:"tree_hash,omitempty"`
	AuthoredAt  time.Time `json:"authored_at"`
	CommittedAt time.Time `json:"committed_at"`
}

// ShortID returns a shortened commit ID (first 8 characters).
func (c *Commit) ShortID() string {
	if len(c.ID) > 8 {
		return c.ID[:8]
	}
	return c.ID
}

// IsRoot reports whether this commit has no parent.
func (c *Commit) IsRoot() bool {
	return c.ParentID == ""
}
