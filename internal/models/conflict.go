package models

import "time"

// ConflictType identifies the shape of a divergence between source and
// target relative to the merge base. The set is closed: every consumer
// switches exhaustively over it.
type ConflictType string

const (
	ConflictBothModified    ConflictType = "both-modified"     // both sides changed the object differently
	ConflictAddedOnBoth     ConflictType = "added-on-both"     // absent at base, added differently on both sides
	ConflictDeletedOnSource ConflictType = "deleted-on-source" // source deleted, target modified
	ConflictDeletedOnTarget ConflictType = "deleted-on-target" // target deleted, source modified
)

// Valid reports whether t is a known conflict type.
func (t ConflictType) Valid() bool {
	switch t {
	case ConflictBothModified, ConflictAddedOnBoth, ConflictDeletedOnSource, ConflictDeletedOnTarget:
		return true
	}
	return false
}

// Severity ranks how risky an unresolved divergence is.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ConflictStatus is the per-conflict state machine: open → resolved.
type ConflictStatus string

const (
	ConflictOpen     ConflictStatus = "open"
	ConflictResolved ConflictStatus = "resolved"
)

// ResolutionKind selects which side wins when a conflict is resolved.
type ResolutionKind string

const (
	ResolutionSource ResolutionKind = "SOURCE"
	ResolutionTarget ResolutionKind = "TARGET"
	ResolutionCustom ResolutionKind = "CUSTOM"
)

// Valid reports whether r is a known resolution kind.
func (r ResolutionKind) Valid() bool {
	switch r {
	case ResolutionSource, ResolutionTarget, ResolutionCustom:
		return true
	}
	return false
}

// MaxCustomDefinitionLen bounds the custom-definition payload accepted by
// the resolution workflow.
const MaxCustomDefinitionLen = 64 * 1024

// Conflict records one divergent object detected for a merge operation.
// Created during detection; the only mutation ever applied is the
// transition to resolved.
type Conflict struct {
	ID                int64          `json:"id"`
	MergeID           string         `json:"merge_id"`
	ObjectType        ObjectType     `json:"object_type"`
	ObjectSchema      string         `json:"object_schema"`
	ObjectName        string         `json:"object_name"`
	Type              ConflictType   `json:"type"`
	Severity          Severity       `json:"severity"`
	AutoResolvable    bool           `json:"auto_resolvable"`
	DependentCount    int            `json:"dependent_count"`
	BaseFingerprint   string         `json:"base_fingerprint,omitempty"`
	SourceFingerprint string         `json:"source_fingerprint,omitempty"`
	TargetFingerprint string         `json:"target_fingerprint,omitempty"`
	Status            ConflictStatus `json:"status"`
	Resolution        ResolutionKind `json:"resolution,omitempty"`
	CustomDefinition  string         `json:"custom_definition,omitempty"`
	ResolvedBy        string         `json:"resolved_by,omitempty"`
	ResolvedAt        *time.Time     `json:"resolved_at,omitempty"`
}

// ObjectKey returns the identity key of the conflicted object.
func (c *Conflict) ObjectKey() string {
	return ObjectKey(c.ObjectType, c.ObjectSchema, c.ObjectName)
}
