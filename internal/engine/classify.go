package engine

import "github.com/trinitydb/trinity/internal/models"

// Change is the three-way shape of a single conflicting object, handed to
// the classifier policy. Any of Base, Source, Target may be nil when the
// object is absent on that side.
type Change struct {
	Type   models.ConflictType
	Base   *models.SchemaObject
	Source *models.SchemaObject
	Target *models.SchemaObject

	// DependentCount is the number of objects whose parent link points at
	// this object, taken as the maximum across the source and target
	// branches.
	DependentCount int
}

func (ch Change) objectType() models.ObjectType {
	switch {
	case ch.Source != nil:
		return ch.Source.Type
	case ch.Target != nil:
		return ch.Target.Type
	case ch.Base != nil:
		return ch.Base.Type
	}
	return ""
}

// ClassifierPolicy assigns a severity to a detected conflict and decides
// whether a strategy may resolve it without a human.
type ClassifierPolicy interface {
	Classify(ch Change) (models.Severity, bool)
}

// DefaultPolicy is the conservative built-in classification:
//
//   - constraint and foreign-key conflicts are CRITICAL and never
//     auto-resolvable, as are destructive changes to objects with
//     dependents
//   - deletions are WARNING (HIGH with dependents) and never auto
//   - concurrent modifications touching disjoint definition keys, with
//     nothing removed, are INFO and auto-resolvable
//   - everything else, including both sides creating the same object, is
//     WARNING and needs a decision
type DefaultPolicy struct{}

func (DefaultPolicy) Classify(ch Change) (models.Severity, bool) {
	if ch.objectType().Relational() {
		return models.SeverityCritical, false
	}

	switch ch.Type {
	case models.ConflictDeletedOnSource, models.ConflictDeletedOnTarget:
		if ch.DependentCount > 0 {
			return models.SeverityCritical, false
		}
		return models.SeverityHigh, false

	case models.ConflictAddedOnBoth:
		return models.SeverityWarning, false

	case models.ConflictBothModified:
		srcAdd, srcDel, srcMod := definitionDelta(ch.Base, ch.Source)
		tgtAdd, tgtDel, tgtMod := definitionDelta(ch.Base, ch.Target)

		if len(srcDel) > 0 || len(tgtDel) > 0 {
			if ch.DependentCount > 0 {
				return models.SeverityCritical, false
			}
			return models.SeverityHigh, false
		}
		if keysOverlap(srcAdd, srcMod, tgtAdd, tgtMod) {
			return models.SeverityWarning, false
		}
		return models.SeverityInfo, true
	}

	return models.SeverityWarning, false
}

// definitionDelta reports the top-level definition keys a side added,
// removed, or modified relative to base.
func definitionDelta(base, side *models.SchemaObject) (added, removed, modified map[string]bool) {
	added = make(map[string]bool)
	removed = make(map[string]bool)
	modified = make(map[string]bool)

	var baseDef, sideDef map[string]interface{}
	if base != nil {
		baseDef = base.Definition
	}
	if side != nil {
		sideDef = side.Definition
	}

	for k, sv := range sideDef {
		bv, ok := baseDef[k]
		switch {
		case !ok:
			added[k] = true
		case models.FingerprintValue(sv) != models.FingerprintValue(bv):
			modified[k] = true
		}
	}
	for k := range baseDef {
		if _, ok := sideDef[k]; !ok {
			removed[k] = true
		}
	}
	return added, removed, modified
}

func keysOverlap(aAdd, aMod, bAdd, bMod map[string]bool) bool {
	touched := func(sets ...map[string]bool) map[string]bool {
		out := make(map[string]bool)
		for _, s := range sets {
			for k := range s {
				out[k] = true
			}
		}
		return out
	}
	a := touched(aAdd, aMod)
	for k := range touched(bAdd, bMod) {
		if a[k] {
			return true
		}
	}
	return false
}
