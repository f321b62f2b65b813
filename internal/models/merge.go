package models

import "time"

// MergeStrategy selects how detected conflicts are disposed.
type MergeStrategy string

const (
	StrategyAbortOnConflict MergeStrategy = "abort-on-conflict"
	StrategySourceWins      MergeStrategy = "source-wins"
	StrategyTargetWins      MergeStrategy = "target-wins"
	StrategyUnion           MergeStrategy = "union"
	StrategyManualReview    MergeStrategy = "manual-review"
)

// Valid reports whether s is a known merge strategy.
func (s MergeStrategy) Valid() bool {
	switch s {
	case StrategyAbortOnConflict, StrategySourceWins, StrategyTargetWins, StrategyUnion, StrategyManualReview:
		return true
	}
	return false
}

// MergeStatus is the merge operation state machine:
// pending → conflicts-detected → resolving → completed | aborted.
// completed and aborted are terminal.
type MergeStatus string

const (
	MergePending           MergeStatus = "pending"
	MergeConflictsDetected MergeStatus = "conflicts-detected"
	MergeResolving         MergeStatus = "resolving"
	MergeCompleted         MergeStatus = "completed"
	MergeAborted           MergeStatus = "aborted"
)

// Terminal reports whether the status admits no further transitions.
func (s MergeStatus) Terminal() bool {
	return s == MergeCompleted || s == MergeAborted
}

// MergeOperation is the persisted record of one merge attempt. It is owned
// by the merge workflow: created at merge start, updated only through the
// resolution workflow, and never touched again once terminal.
type MergeOperation struct {
	ID                string        `json:"id"`
	SourceBranchID    int64         `json:"source_branch_id"`
	TargetBranchID    int64         `json:"target_branch_id"`
	BaseBranchID      int64         `json:"base_branch_id"`
	Strategy          MergeStrategy `json:"strategy"`
	Status            MergeStatus   `json:"status"`
	Message           string        `json:"message,omitempty"`
	InitiatedBy       string        `json:"initiated_by,omitempty"`
	ConflictCount     int           `json:"conflict_count"`
	AutoResolvedCount int           `json:"auto_resolved_count"`
	ManualCount       int           `json:"manual_count"`
	ResultCommitID    string        `json:"result_commit_id,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Complete reports whether the merge finished successfully.
func (m *MergeOperation) Complete() bool {
	return m.Status == MergeCompleted
}

// MergeBase is the result of lowest-common-ancestor discovery between two
// branches.
type MergeBase struct {
	BranchID   int64  `json:"base_branch_id"`
	BranchName string `json:"base_branch_name"`
	DepthFromA int    `json:"depth_from_a"`
	DepthFromB int    `json:"depth_from_b"`
}
