package engine

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/trinitydb/trinity/internal/models"
)

// applyResolutionTx materializes one resolved conflict on the target
// branch inside the merge or resolution transaction.
//
//   - SOURCE takes the source branch's state of the object, including its
//     deletion when the source side removed it
//   - TARGET leaves the target branch untouched
//   - CUSTOM writes the given definition; for auto-resolved conflicts that
//     definition is the two sides' non-overlapping changes combined
func (s *Service) applyResolutionTx(tx *sql.Tx, op *models.MergeOperation, c *models.Conflict,
	res models.ResolutionKind, customDef map[string]interface{}) error {

	switch res {
	case models.ResolutionTarget:
		return nil

	case models.ResolutionSource:
		src, err := s.store.GetObjectTx(tx, op.SourceBranchID, c.ObjectType, c.ObjectSchema, c.ObjectName)
		if err != nil {
			return fmt.Errorf("read source object %s: %w", c.ObjectKey(), err)
		}
		if src == nil {
			return s.store.RemoveObjectTx(tx, op.TargetBranchID, c.ObjectType, c.ObjectSchema, c.ObjectName)
		}
		return s.store.PutObjectTx(tx, &models.SchemaObject{
			BranchID:    op.TargetBranchID,
			Type:        c.ObjectType,
			Schema:      c.ObjectSchema,
			Name:        c.ObjectName,
			Definition:  src.Definition,
			Fingerprint: src.Fingerprint,
			Version:     src.Version,
			UpdatedAt:   time.Now(),
		})

	case models.ResolutionCustom:
		if customDef == nil {
			return models.InvalidInput("custom resolution requires a definition")
		}
		tgt, err := s.store.GetObjectTx(tx, op.TargetBranchID, c.ObjectType, c.ObjectSchema, c.ObjectName)
		if err != nil {
			return fmt.Errorf("read target object %s: %w", c.ObjectKey(), err)
		}
		version := models.Version{Major: 1}
		if tgt != nil {
			version = tgt.Version.Bump(models.BumpMinor)
		}
		return s.store.PutObjectTx(tx, &models.SchemaObject{
			BranchID:    op.TargetBranchID,
			Type:        c.ObjectType,
			Schema:      c.ObjectSchema,
			Name:        c.ObjectName,
			Definition:  customDef,
			Fingerprint: models.FingerprintDefinition(customDef),
			Version:     version,
			UpdatedAt:   time.Now(),
		})
	}

	return models.InvalidInput("unknown resolution kind %q", res)
}

// applyIncomingTx carries one non-conflicting source-side change onto the
// target branch: additions and modifications are copied, deletions are
// replayed.
func (s *Service) applyIncomingTx(tx *sql.Tx, targetBranchID int64, ch Change) error {
	if ch.Source == nil {
		if ch.Base == nil {
			return nil
		}
		return s.store.RemoveObjectTx(tx, targetBranchID, ch.Base.Type, ch.Base.Schema, ch.Base.Name)
	}
	return s.store.PutObjectTx(tx, &models.SchemaObject{
		BranchID:    targetBranchID,
		Type:        ch.Source.Type,
		Schema:      ch.Source.Schema,
		Name:        ch.Source.Name,
		Definition:  ch.Source.Definition,
		Fingerprint: ch.Source.Fingerprint,
		Version:     ch.Source.Version,
		UpdatedAt:   time.Now(),
	})
}

// unionDefinition combines base plus both sides' changes for a conflict
// the classifier proved non-overlapping. Source changes are applied first;
// the sets are disjoint so order cannot matter.
func unionDefinition(ch Change) map[string]interface{} {
	out := make(map[string]interface{})
	if ch.Base != nil {
		for k, v := range ch.Base.Definition {
			out[k] = v
		}
	}
	for _, side := range []*models.SchemaObject{ch.Source, ch.Target} {
		if side == nil {
			continue
		}
		add, _, mod := definitionDelta(ch.Base, side)
		for k := range add {
			out[k] = side.Definition[k]
		}
		for k := range mod {
			out[k] = side.Definition[k]
		}
	}
	return out
}
