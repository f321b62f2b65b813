package store

import (
	"database/sql"
	"time"

	"github.com/trinitydb/trinity/internal/models"
)

// CreateMergeOperationTx persists a new merge operation record inside an
// existing transaction.
func (s *Store) CreateMergeOperationTx(tx *sql.Tx, op *models.MergeOperation) error {
	_, err := tx.Exec(`
		INSERT INTO merge_operations
			(id, source_branch_id, target_branch_id, base_branch_id, strategy, status,
			 message, initiated_by, conflict_count, auto_resolved_count, manual_count,
			 result_commit_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.SourceBranchID, op.TargetBranchID, op.BaseBranchID, op.Strategy, op.Status,
		op.Message, op.InitiatedBy, op.ConflictCount, op.AutoResolvedCount, op.ManualCount,
		sql.NullString{String: op.ResultCommitID, Valid: op.ResultCommitID != ""},
		op.CreatedAt, op.UpdatedAt,
	)
	return err
}

// GetMergeOperation retrieves a merge operation by ID. Returns (nil, nil)
// if not found.
func (s *Store) GetMergeOperation(id string) (*models.MergeOperation, error) {
	var op models.MergeOperation
	var resultCommit sql.NullString
	var message, initiatedBy sql.NullString
	var createdAt, updatedAt string

	err := s.db.QueryRow(`
		SELECT id, source_branch_id, target_branch_id, base_branch_id, strategy, status,
		       message, initiated_by, conflict_count, auto_resolved_count, manual_count,
		       result_commit_id, created_at, updated_at
		FROM merge_operations WHERE id = ?`, id).Scan(
		&op.ID, &op.SourceBranchID, &op.TargetBranchID, &op.BaseBranchID, &op.Strategy, &op.Status,
		&message, &initiatedBy, &op.ConflictCount, &op.AutoResolvedCount, &op.ManualCount,
		&resultCommit, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if message.Valid {
		op.Message = message.String
	}
	if initiatedBy.Valid {
		op.InitiatedBy = initiatedBy.String
	}
	if resultCommit.Valid {
		op.ResultCommitID = resultCommit.String
	}
	op.CreatedAt = parseTimestamp(createdAt)
	op.UpdatedAt = parseTimestamp(updatedAt)
	return &op, nil
}

// UpdateMergeOperationTx rewrites the mutable fields of a merge operation
// inside an existing transaction.
func (s *Store) UpdateMergeOperationTx(tx *sql.Tx, op *models.MergeOperation) error {
	op.UpdatedAt = time.Now()
	_, err := tx.Exec(`
		UPDATE merge_operations
		SET status = ?, conflict_count = ?, auto_resolved_count = ?, manual_count = ?,
		    result_commit_id = ?, updated_at = ?
		WHERE id = ?`,
		op.Status, op.ConflictCount, op.AutoResolvedCount, op.ManualCount,
		sql.NullString{String: op.ResultCommitID, Valid: op.ResultCommitID != ""},
		op.UpdatedAt, op.ID,
	)
	return err
}

// InsertConflictTx persists one detected conflict inside an existing
// transaction and fills in its assigned ID.
func (s *Store) InsertConflictTx(tx *sql.Tx, c *models.Conflict) error {
	res, err := tx.Exec(`
		INSERT INTO merge_conflicts
			(merge_id, object_type, object_schema, object_name, conflict_type, severity,
			 auto_resolvable, dependent_count, base_fingerprint, source_fingerprint,
			 target_fingerprint, status, resolution, custom_definition, resolved_by, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.MergeID, c.ObjectType, c.ObjectSchema, c.ObjectName, c.Type, c.Severity,
		c.AutoResolvable, c.DependentCount, c.BaseFingerprint, c.SourceFingerprint,
		c.TargetFingerprint, c.Status,
		sql.NullString{String: string(c.Resolution), Valid: c.Resolution != ""},
		sql.NullString{String: c.CustomDefinition, Valid: c.CustomDefinition != ""},
		sql.NullString{String: c.ResolvedBy, Valid: c.ResolvedBy != ""},
		c.ResolvedAt,
	)
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

// ListConflicts returns every conflict recorded for a merge, oldest first.
func (s *Store) ListConflicts(mergeID string) ([]*models.Conflict, error) {
	rows, err := s.db.Query(conflictSelect+` WHERE merge_id = ? ORDER BY id`, mergeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conflicts []*models.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

// GetConflict retrieves one conflict of a merge. Returns (nil, nil) if not
// found.
func (s *Store) GetConflict(mergeID string, conflictID int64) (*models.Conflict, error) {
	c, err := scanConflict(s.db.QueryRow(conflictSelect+` WHERE merge_id = ? AND id = ?`, mergeID, conflictID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// GetConflictTx is GetConflict inside an existing transaction.
func (s *Store) GetConflictTx(tx *sql.Tx, mergeID string, conflictID int64) (*models.Conflict, error) {
	c, err := scanConflict(tx.QueryRow(conflictSelect+` WHERE merge_id = ? AND id = ?`, mergeID, conflictID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// OpenConflictCountTx counts the still-open conflicts of a merge inside an
// existing transaction.
func (s *Store) OpenConflictCountTx(tx *sql.Tx, mergeID string) (int, error) {
	var n int
	err := tx.QueryRow(`
		SELECT COUNT(*) FROM merge_conflicts
		WHERE merge_id = ? AND status = ?`, mergeID, models.ConflictOpen).Scan(&n)
	return n, err
}

// MarkConflictResolvedTx transitions one conflict to resolved inside an
// existing transaction. The caller has already verified the conflict is
// open; the status guard here keeps a racing writer from double-resolving.
func (s *Store) MarkConflictResolvedTx(tx *sql.Tx, mergeID string, conflictID int64, resolution models.ResolutionKind, customDefinition, resolvedBy string, resolvedAt time.Time) (bool, error) {
	res, err := tx.Exec(`
		UPDATE merge_conflicts
		SET status = ?, resolution = ?, custom_definition = ?, resolved_by = ?, resolved_at = ?
		WHERE merge_id = ? AND id = ? AND status = ?`,
		models.ConflictResolved, string(resolution),
		sql.NullString{String: customDefinition, Valid: customDefinition != ""},
		resolvedBy, resolvedAt,
		mergeID, conflictID, models.ConflictOpen,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const conflictSelect = `
	SELECT id, merge_id, object_type, object_schema, object_name, conflict_type, severity,
	       auto_resolvable, dependent_count, base_fingerprint, source_fingerprint,
	       target_fingerprint, status, resolution, custom_definition, resolved_by, resolved_at
	FROM merge_conflicts`

func scanConflict(row rowScanner) (*models.Conflict, error) {
	var c models.Conflict
	var baseFP, sourceFP, targetFP sql.NullString
	var resolution, customDef, resolvedBy sql.NullString
	var resolvedAt sql.NullString

	err := row.Scan(&c.ID, &c.MergeID, &c.ObjectType, &c.ObjectSchema, &c.ObjectName,
		&c.Type, &c.Severity, &c.AutoResolvable, &c.DependentCount,
		&baseFP, &sourceFP, &targetFP, &c.Status,
		&resolution, &customDef, &resolvedBy, &resolvedAt)
	if err != nil {
		return nil, err
	}

	if baseFP.Valid {
		c.BaseFingerprint = baseFP.String
	}
	if sourceFP.Valid {
		c.SourceFingerprint = sourceFP.String
	}
	if targetFP.Valid {
		c.TargetFingerprint = targetFP.String
	}
	if resolution.Valid {
		c.Resolution = models.ResolutionKind(resolution.String)
	}
	if customDef.Valid {
		c.CustomDefinition = customDef.String
	}
	if resolvedBy.Valid {
		c.ResolvedBy = resolvedBy.String
	}
	if resolvedAt.Valid && resolvedAt.String != "" {
		t := parseTimestamp(resolvedAt.String)
		c.ResolvedAt = &t
	}
	return &c, nil
}
