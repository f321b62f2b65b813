package engine

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/trinitydb/trinity/internal/models"
)

// detectTx runs three-way conflict detection between source and target
// relative to base, inside the merge transaction. The returned conflicts
// are ordered by object key so repeated detection over unchanged branches
// produces an identical result. The changes map, keyed by object key,
// carries the three-way object states the applier needs; incoming lists
// the source-side changes that do not conflict and flow into the target
// untouched.
func (s *Service) detectTx(tx *sql.Tx, sourceID, targetID, baseID int64) ([]*models.Conflict, map[string]Change, []Change, error) {
	srcStates, err := s.store.ObjectStatesTx(tx, sourceID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read source branch state: %w", err)
	}
	tgtStates, err := s.store.ObjectStatesTx(tx, targetID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read target branch state: %w", err)
	}
	baseStates, err := s.store.ObjectStatesTx(tx, baseID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read base branch state: %w", err)
	}

	keys := make(map[string]bool)
	for k := range srcStates {
		keys[k] = true
	}
	for k := range tgtStates {
		keys[k] = true
	}
	for k := range baseStates {
		keys[k] = true
	}
	ordered := make([]string, 0, len(keys))
	for k := range keys {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	var conflicts []*models.Conflict
	var incoming []Change
	changes := make(map[string]Change)
	for _, key := range ordered {
		base := baseStates[key]
		src := srcStates[key]
		tgt := tgtStates[key]

		baseFP := objectFingerprint(base)
		srcFP := objectFingerprint(src)
		tgtFP := objectFingerprint(tgt)

		// Identical outcomes never conflict.
		if srcFP == tgtFP {
			continue
		}
		// Target-only change: the source left the object alone, so the
		// target's state stands.
		if srcFP == baseFP {
			continue
		}
		// Source-only change: flows into the target without conflict.
		if tgtFP == baseFP {
			incoming = append(incoming, Change{Base: base, Source: src, Target: tgt})
			continue
		}

		ch := Change{
			Base:           base,
			Source:         src,
			Target:         tgt,
			DependentCount: maxDependents(src, srcStates, tgt, tgtStates),
		}
		switch {
		case base == nil:
			ch.Type = models.ConflictAddedOnBoth
		case src == nil:
			ch.Type = models.ConflictDeletedOnSource
		case tgt == nil:
			ch.Type = models.ConflictDeletedOnTarget
		default:
			ch.Type = models.ConflictBothModified
		}

		severity, auto := s.policy.Classify(ch)
		changes[key] = ch
		conflicts = append(conflicts, &models.Conflict{
			Type:              ch.Type,
			ObjectType:        ch.objectType(),
			ObjectSchema:      objectSchema(base, src, tgt),
			ObjectName:        objectName(base, src, tgt),
			Severity:          severity,
			AutoResolvable:    auto,
			BaseFingerprint:   baseFP,
			SourceFingerprint: srcFP,
			TargetFingerprint: tgtFP,
			DependentCount:    ch.DependentCount,
			Status:            models.ConflictOpen,
		})
	}
	return conflicts, changes, incoming, nil
}

func objectFingerprint(o *models.SchemaObject) string {
	if o == nil {
		return ""
	}
	return o.Fingerprint
}

func objectSchema(candidates ...*models.SchemaObject) string {
	for _, o := range candidates {
		if o != nil {
			return o.Schema
		}
	}
	return ""
}

func objectName(candidates ...*models.SchemaObject) string {
	for _, o := range candidates {
		if o != nil {
			return o.Name
		}
	}
	return ""
}

// maxDependents counts, on each side, the objects whose parent link points
// at the conflicting object and keeps the larger count. Absent sides
// contribute zero.
func maxDependents(src *models.SchemaObject, srcStates map[string]*models.SchemaObject,
	tgt *models.SchemaObject, tgtStates map[string]*models.SchemaObject) int {
	n := countDependents(src, srcStates)
	if m := countDependents(tgt, tgtStates); m > n {
		n = m
	}
	return n
}

func countDependents(o *models.SchemaObject, states map[string]*models.SchemaObject) int {
	if o == nil {
		return 0
	}
	n := 0
	for _, other := range states {
		if other.ParentID == o.ID {
			n++
		}
	}
	return n
}
