package models

import "time"

// BranchStatus is the lifecycle state of a branch.
type BranchStatus string

const (
	BranchActive   BranchStatus = "ACTIVE"
	BranchArchived BranchStatus = "ARCHIVED"
)

// Branch is a named line of schema history. ParentID forms a forest:
// branches created from another branch point at it, root branches have
// ParentID zero.
type Branch struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	ParentID     int64        `json:"parent_id,omitempty"`
	Status       BranchStatus `json:"status"`
	HeadCommitID string       `json:"head_commit_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// IsRoot reports whether the branch has no parent.
func (b *Branch) IsRoot() bool {
	return b.ParentID == 0
}
