package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/trinitydb/trinity/internal/models"
)

func obj(typ models.ObjectType, def map[string]interface{}) *models.SchemaObject {
	return &models.SchemaObject{
		Type:        typ,
		Schema:      "public",
		Name:        "users",
		Definition:  def,
		Fingerprint: models.FingerprintDefinition(def),
	}
}

func TestDefaultPolicy_DisjointModificationsAreInfo(t *testing.T) {
	base := obj(models.ObjectTable, map[string]interface{}{"columns": "id"})
	src := obj(models.ObjectTable, map[string]interface{}{"columns": "id", "email": "text"})
	tgt := obj(models.ObjectTable, map[string]interface{}{"columns": "id", "phone": "text"})

	sev, auto := DefaultPolicy{}.Classify(Change{
		Type: models.ConflictBothModified, Base: base, Source: src, Target: tgt,
	})
	assert.Equal(t, models.SeverityInfo, sev)
	assert.True(t, auto)
}

func TestDefaultPolicy_OverlappingModificationsAreWarning(t *testing.T) {
	base := obj(models.ObjectTable, map[string]interface{}{"columns": "id"})
	src := obj(models.ObjectTable, map[string]interface{}{"columns": "id, email"})
	tgt := obj(models.ObjectTable, map[string]interface{}{"columns": "id, phone"})

	sev, auto := DefaultPolicy{}.Classify(Change{
		Type: models.ConflictBothModified, Base: base, Source: src, Target: tgt,
	})
	assert.Equal(t, models.SeverityWarning, sev)
	assert.False(t, auto)
}

func TestDefaultPolicy_RemovedKeyIsDestructive(t *testing.T) {
	base := obj(models.ObjectTable, map[string]interface{}{"columns": "id", "legacy": true})
	src := obj(models.ObjectTable, map[string]interface{}{"columns": "id"})
	tgt := obj(models.ObjectTable, map[string]interface{}{"columns": "id", "legacy": true, "phone": "text"})

	sev, auto := DefaultPolicy{}.Classify(Change{
		Type: models.ConflictBothModified, Base: base, Source: src, Target: tgt,
	})
	assert.Equal(t, models.SeverityHigh, sev)
	assert.False(t, auto)

	sev, auto = DefaultPolicy{}.Classify(Change{
		Type: models.ConflictBothModified, Base: base, Source: src, Target: tgt,
		DependentCount: 2,
	})
	assert.Equal(t, models.SeverityCritical, sev)
	assert.False(t, auto)
}

func TestDefaultPolicy_RelationalTypesAreCritical(t *testing.T) {
	for _, typ := range []models.ObjectType{models.ObjectConstraint, models.ObjectForeignKey} {
		base := obj(typ, map[string]interface{}{"ref": "a"})
		src := obj(typ, map[string]interface{}{"ref": "b"})
		tgt := obj(typ, map[string]interface{}{"ref": "c"})

		sev, auto := DefaultPolicy{}.Classify(Change{
			Type: models.ConflictBothModified, Base: base, Source: src, Target: tgt,
		})
		assert.Equal(t, models.SeverityCritical, sev)
		assert.False(t, auto)
	}
}

func TestDefaultPolicy_Deletions(t *testing.T) {
	base := obj(models.ObjectView, map[string]interface{}{"query": "select 1"})
	tgt := obj(models.ObjectView, map[string]interface{}{"query": "select 2"})

	sev, auto := DefaultPolicy{}.Classify(Change{
		Type: models.ConflictDeletedOnSource, Base: base, Target: tgt,
	})
	assert.Equal(t, models.SeverityHigh, sev)
	assert.False(t, auto)

	sev, _ = DefaultPolicy{}.Classify(Change{
		Type: models.ConflictDeletedOnSource, Base: base, Target: tgt,
		DependentCount: 1,
	})
	assert.Equal(t, models.SeverityCritical, sev)
	_ = auto
}

func TestDefaultPolicy_AddedOnBothIsWarning(t *testing.T) {
	src := obj(models.ObjectIndex, map[string]interface{}{"columns": "email"})
	tgt := obj(models.ObjectIndex, map[string]interface{}{"columns": "phone"})

	sev, auto := DefaultPolicy{}.Classify(Change{
		Type: models.ConflictAddedOnBoth, Source: src, Target: tgt,
	})
	assert.Equal(t, models.SeverityWarning, sev)
	assert.False(t, auto)
}

func TestUnionDefinition_CombinesDisjointChanges(t *testing.T) {
	base := obj(models.ObjectTable, map[string]interface{}{"columns": "id"})
	src := obj(models.ObjectTable, map[string]interface{}{"columns": "id", "email": "text"})
	tgt := obj(models.ObjectTable, map[string]interface{}{"columns": "id", "phone": "text"})

	merged := unionDefinition(Change{Base: base, Source: src, Target: tgt})
	assert.Equal(t, map[string]interface{}{
		"columns": "id",
		"email":   "text",
		"phone":   "text",
	}, merged)
}
