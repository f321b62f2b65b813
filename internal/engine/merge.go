package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/trinitydb/trinity/internal/events"
	"github.com/trinitydb/trinity/internal/lock"
	"github.com/trinitydb/trinity/internal/models"
)

// MergeRequest starts a merge of SourceBranchID into TargetBranchID.
// BaseBranchID overrides merge-base discovery when set; Strategy defaults
// to abort-on-conflict.
type MergeRequest struct {
	SourceBranchID int64                `json:"source_branch_id"`
	TargetBranchID int64                `json:"target_branch_id"`
	BaseBranchID   int64                `json:"base_branch_id,omitempty"`
	Strategy       models.MergeStrategy `json:"strategy,omitempty"`
	Message        string               `json:"message,omitempty"`
	InitiatedBy    string               `json:"initiated_by,omitempty"`
}

// MergeResult summarizes a merge attempt.
type MergeResult struct {
	MergeID           string             `json:"merge_id"`
	Status            models.MergeStatus `json:"status"`
	BaseBranchID      int64              `json:"base_branch_id"`
	ConflictCount     int                `json:"conflict_count"`
	AutoResolvedCount int                `json:"auto_resolved_count"`
	ManualCount       int                `json:"manual_count"`
	ResultCommitID    string             `json:"result_commit_id,omitempty"`
}

// Merge runs the full merge workflow: discover the merge base, take the
// merge lock for the branch pair, detect and classify conflicts, apply the
// strategy, and persist the operation with its conflicts in a single
// transaction. A completed merge also writes the result commit and
// advances the target branch head.
func (s *Service) Merge(ctx context.Context, req MergeRequest) (result *MergeResult, err error) {
	start := time.Now()
	defer func() {
		s.record("merge", req.InitiatedBy, start, err, map[string]interface{}{
			"source_branch": req.SourceBranchID,
			"target_branch": req.TargetBranchID,
			"strategy":      string(req.Strategy),
		})
	}()

	if req.Strategy == "" {
		req.Strategy = models.StrategyAbortOnConflict
	}
	if !req.Strategy.Valid() {
		return nil, models.InvalidInput("unknown merge strategy %q", req.Strategy)
	}

	baseID := req.BaseBranchID
	if baseID > 0 {
		// Explicit base still goes through the same self-merge and
		// existence checks as discovery.
		if req.SourceBranchID == req.TargetBranchID {
			return nil, models.InvalidInput("cannot merge branch %d into itself", req.SourceBranchID)
		}
		for _, id := range []int64{req.SourceBranchID, req.TargetBranchID, baseID} {
			if _, berr := s.mustGetBranch(id); berr != nil {
				return nil, berr
			}
		}
	} else {
		base, berr := s.FindMergeBase(ctx, req.SourceBranchID, req.TargetBranchID)
		if berr != nil {
			return nil, berr
		}
		baseID = base.BranchID
	}

	guard, err := s.locks.TryLock(ctx, s.lockTimeout, lock.KeyMerge,
		strconv.FormatInt(req.SourceBranchID, 10), strconv.FormatInt(req.TargetBranchID, 10))
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	op := &models.MergeOperation{
		ID:             s.ids.NewID(),
		SourceBranchID: req.SourceBranchID,
		TargetBranchID: req.TargetBranchID,
		BaseBranchID:   baseID,
		Strategy:       req.Strategy,
		Status:         models.MergePending,
		Message:        req.Message,
		InitiatedBy:    req.InitiatedBy,
		CreatedAt:      start,
		UpdatedAt:      start,
	}

	txErr := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		conflicts, changes, incoming, derr := s.detectTx(tx, req.SourceBranchID, req.TargetBranchID, baseID)
		if derr != nil {
			return derr
		}

		outcome, serr := ExecuteStrategy(req.Strategy, conflicts)
		if serr != nil {
			return serr
		}

		op.Status = outcome.Status
		op.ConflictCount = len(conflicts)
		op.AutoResolvedCount = len(outcome.AutoResolved)
		op.ManualCount = outcome.ManualCount
		if err := s.store.CreateMergeOperationTx(tx, op); err != nil {
			return err
		}

		for _, c := range conflicts {
			c.MergeID = op.ID
			if err := s.store.InsertConflictTx(tx, c); err != nil {
				return err
			}
		}

		if op.Status == models.MergeAborted {
			return nil
		}

		// Non-conflicting source changes flow into the target even when
		// open conflicts remain; resolutions applied later build on them.
		for _, ch := range incoming {
			if err := s.applyIncomingTx(tx, op.TargetBranchID, ch); err != nil {
				return err
			}
		}

		for _, d := range outcome.AutoResolved {
			if err := s.settleAutoTx(tx, op, d, changes); err != nil {
				return err
			}
		}

		if outcome.Complete() {
			return s.finalizeTx(tx, op)
		}
		return nil
	})
	if txErr != nil {
		return nil, wrapTxErr(txErr, "merge %s", op.ID)
	}

	s.logger.Info("merge finished",
		"merge_id", op.ID,
		"status", op.Status,
		"conflicts", op.ConflictCount,
		"auto_resolved", op.AutoResolvedCount)

	if op.Status == models.MergeCompleted {
		s.bus.Publish(events.Event{
			Name:      events.MergeCompleted,
			MergeID:   op.ID,
			BranchIDs: []int64{req.SourceBranchID, req.TargetBranchID},
			Timestamp: time.Now(),
		})
	}

	return &MergeResult{
		MergeID:           op.ID,
		Status:            op.Status,
		BaseBranchID:      baseID,
		ConflictCount:     op.ConflictCount,
		AutoResolvedCount: op.AutoResolvedCount,
		ManualCount:       op.ManualCount,
		ResultCommitID:    op.ResultCommitID,
	}, nil
}

// settleAutoTx records one strategy-decided resolution and applies it to
// the target branch.
func (s *Service) settleAutoTx(tx *sql.Tx, op *models.MergeOperation, d Disposition, changes map[string]Change) error {
	var customDef map[string]interface{}
	customJSON := ""
	if d.Resolution == models.ResolutionCustom {
		ch, ok := changes[d.Conflict.ObjectKey()]
		if !ok {
			return models.InvalidState("no change context for conflict on %s", d.Conflict.ObjectKey())
		}
		customDef = unionDefinition(ch)
		data, err := json.Marshal(customDef)
		if err != nil {
			return fmt.Errorf("marshal merged definition for %s: %w", d.Conflict.ObjectKey(), err)
		}
		customJSON = string(data)
	}

	resolvedBy := "strategy:" + string(op.Strategy)
	ok, err := s.store.MarkConflictResolvedTx(tx, op.ID, d.Conflict.ID, d.Resolution, customJSON, resolvedBy, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return models.InvalidState("conflict %d already resolved", d.Conflict.ID)
	}
	return s.applyResolutionTx(tx, op, d.Conflict, d.Resolution, customDef)
}

// finalizeTx writes the result commit for a completed merge and advances
// the target branch head.
func (s *Service) finalizeTx(tx *sql.Tx, op *models.MergeOperation) error {
	target, err := s.store.GetBranch(op.TargetBranchID)
	if err != nil {
		return err
	}
	if target == nil {
		return models.NotFound("target branch %d not found", op.TargetBranchID)
	}

	states, err := s.store.ObjectStatesTx(tx, op.TargetBranchID)
	if err != nil {
		return err
	}
	objects := make([]*models.SchemaObject, 0, len(states))
	for _, o := range states {
		objects = append(objects, o)
	}

	message := op.Message
	if message == "" {
		message = fmt.Sprintf("merge branch %d into %d", op.SourceBranchID, op.TargetBranchID)
	}

	now := time.Now()
	commit := &models.Commit{
		ID:          s.ids.NewID(),
		BranchID:    op.TargetBranchID,
		ParentID:    target.HeadCommitID,
		Message:     message,
		Author:      op.InitiatedBy,
		TreeHash:    models.TreeFingerprint(objects),
		AuthoredAt:  now,
		CommittedAt: now,
	}
	if err := s.store.CreateCommitTx(tx, commit); err != nil {
		return err
	}
	if err := s.store.UpdateBranchHeadTx(tx, op.TargetBranchID, commit.ID); err != nil {
		return err
	}

	op.Status = models.MergeCompleted
	op.ResultCommitID = commit.ID
	return s.store.UpdateMergeOperationTx(tx, op)
}

// wrapTxErr preserves typed engine errors and wraps everything else as a
// transaction failure.
func wrapTxErr(err error, format string, args ...interface{}) error {
	if models.KindOf(err) != "" {
		return err
	}
	return models.TransactionFailure(err, format, args...)
}
