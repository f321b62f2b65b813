package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"github.com/trinitydb/trinity/internal/events"
	"github.com/trinitydb/trinity/internal/lock"
	"github.com/trinitydb/trinity/internal/models"
)

// ResolveRequest settles one open conflict of a merge operation.
type ResolveRequest struct {
	MergeID          string                `json:"merge_id"`
	ConflictID       int64                 `json:"conflict_id"`
	Resolution       models.ResolutionKind `json:"resolution"`
	CustomDefinition string                `json:"custom_definition,omitempty"`
	ResolvedBy       string                `json:"resolved_by,omitempty"`
}

// ResolveResult reports a settled conflict and whether it was the last one.
type ResolveResult struct {
	ConflictID     int64                 `json:"conflict_id"`
	Resolution     models.ResolutionKind `json:"resolution"`
	ResolvedAt     time.Time             `json:"resolved_at"`
	MergeStatus    models.MergeStatus    `json:"merge_status"`
	ResultCommitID string                `json:"result_commit_id,omitempty"`
}

// ResolveConflict applies a manual resolution to one conflict under the
// conflict lock. A conflict resolves exactly once; resolving the last open
// conflict completes the merge, writes the result commit, and advances the
// target branch head in the same transaction.
func (s *Service) ResolveConflict(ctx context.Context, req ResolveRequest) (result *ResolveResult, err error) {
	start := time.Now()
	defer func() {
		s.record("resolve_conflict", req.ResolvedBy, start, err, map[string]interface{}{
			"merge_id":    req.MergeID,
			"conflict_id": req.ConflictID,
			"resolution":  string(req.Resolution),
		})
	}()

	if !models.ValidTrinityID(req.MergeID) {
		return nil, models.InvalidInput("malformed merge id %q", req.MergeID)
	}
	if !req.Resolution.Valid() {
		return nil, models.InvalidInput("unknown resolution kind %q", req.Resolution)
	}

	var customDef map[string]interface{}
	if req.Resolution == models.ResolutionCustom {
		if req.CustomDefinition == "" {
			return nil, models.InvalidInput("custom resolution requires a definition")
		}
		if len(req.CustomDefinition) > models.MaxCustomDefinitionLen {
			return nil, models.InvalidInput("custom definition exceeds %d bytes", models.MaxCustomDefinitionLen)
		}
		if jerr := json.Unmarshal([]byte(req.CustomDefinition), &customDef); jerr != nil {
			return nil, models.InvalidInput("custom definition is not a JSON object: %v", jerr)
		}
	}

	op, err := s.GetMergeStatus(req.MergeID)
	if err != nil {
		return nil, err
	}
	if op.Status.Terminal() {
		return nil, models.InvalidState("merge %s is %s and accepts no further resolutions", op.ID, op.Status)
	}

	if c, cerr := s.store.GetConflict(req.MergeID, req.ConflictID); cerr != nil {
		return nil, cerr
	} else if c == nil {
		return nil, models.NotFound("conflict %d not found in merge %s", req.ConflictID, req.MergeID)
	}

	guard, err := s.locks.TryLock(ctx, s.lockTimeout, lock.KeyConflict,
		req.MergeID, strconv.FormatInt(req.ConflictID, 10))
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	resolvedAt := time.Now()
	txErr := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		c, err := s.store.GetConflictTx(tx, req.MergeID, req.ConflictID)
		if err != nil {
			return err
		}
		if c == nil {
			return models.NotFound("conflict %d not found in merge %s", req.ConflictID, req.MergeID)
		}

		ok, err := s.store.MarkConflictResolvedTx(tx, req.MergeID, req.ConflictID,
			req.Resolution, req.CustomDefinition, req.ResolvedBy, resolvedAt)
		if err != nil {
			return err
		}
		if !ok {
			return models.InvalidState("conflict %d already resolved", req.ConflictID)
		}

		if err := s.applyResolutionTx(tx, op, c, req.Resolution, customDef); err != nil {
			return err
		}

		open, err := s.store.OpenConflictCountTx(tx, req.MergeID)
		if err != nil {
			return err
		}
		if open == 0 {
			return s.finalizeTx(tx, op)
		}

		op.Status = models.MergeResolving
		return s.store.UpdateMergeOperationTx(tx, op)
	})
	if txErr != nil {
		return nil, wrapTxErr(txErr, "resolve conflict %d of merge %s", req.ConflictID, req.MergeID)
	}

	s.logger.Info("conflict resolved",
		"merge_id", req.MergeID,
		"conflict_id", req.ConflictID,
		"resolution", req.Resolution,
		"merge_status", op.Status)

	s.bus.Publish(events.Event{
		Name:       events.ConflictResolved,
		MergeID:    req.MergeID,
		ConflictID: req.ConflictID,
		Timestamp:  resolvedAt,
	})
	if op.Status == models.MergeCompleted {
		s.bus.Publish(events.Event{
			Name:      events.MergeCompleted,
			MergeID:   req.MergeID,
			BranchIDs: []int64{op.SourceBranchID, op.TargetBranchID},
			Timestamp: time.Now(),
		})
	}

	return &ResolveResult{
		ConflictID:     req.ConflictID,
		Resolution:     req.Resolution,
		ResolvedAt:     resolvedAt,
		MergeStatus:    op.Status,
		ResultCommitID: op.ResultCommitID,
	}, nil
}
