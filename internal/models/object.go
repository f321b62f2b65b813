package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/hashstructure/v2"
)

// ObjectType identifies the kind of tracked schema object.
type ObjectType string

const (
	ObjectTable      ObjectType = "table"
	ObjectView       ObjectType = "view"
	ObjectFunction   ObjectType = "function"
	ObjectColumn     ObjectType = "column"
	ObjectIndex      ObjectType = "index"
	ObjectConstraint ObjectType = "constraint"
	ObjectForeignKey ObjectType = "foreign_key"
)

// Relational reports whether changes to this object type can break other
// objects that reference it.
func (t ObjectType) Relational() bool {
	return t == ObjectConstraint || t == ObjectForeignKey
}

// SchemaObject is one tracked object on one branch. (Type, Schema, Name,
// BranchID) is unique. Definition holds the declarative shape of the
// object; Fingerprint is a deterministic hash of it.
type SchemaObject struct {
	ID          int64                  `json:"id"`
	BranchID    int64                  `json:"branch_id"`
	Type        ObjectType             `json:"type"`
	Schema      string                 `json:"schema"`
	Name        string                 `json:"name"`
	Definition  map[string]interface{} `json:"definition,omitempty"`
	Fingerprint string                 `json:"fingerprint"`
	Version     Version                `json:"version"`
	ParentID    int64                  `json:"parent_id,omitempty"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Key returns the branch-independent identity of the object.
func (o *SchemaObject) Key() string {
	return ObjectKey(o.Type, o.Schema, o.Name)
}

// ObjectKey builds the identity key for a schema object.
func ObjectKey(typ ObjectType, schema, name string) string {
	return fmt.Sprintf("%s:%s.%s", typ, schema, name)
}

// SplitObjectKey parses a "type:schema.name" identity key.
func SplitObjectKey(key string) (ObjectType, string, string, error) {
	colon := strings.Index(key, ":")
	if colon <= 0 {
		return "", "", "", fmt.Errorf("malformed object key %q", key)
	}
	dot := strings.Index(key[colon+1:], ".")
	if dot <= 0 || colon+1+dot == len(key)-1 {
		return "", "", "", fmt.Errorf("malformed object key %q", key)
	}
	return ObjectType(key[:colon]), key[colon+1 : colon+1+dot], key[colon+2+dot:], nil
}

// FingerprintDefinition computes the deterministic content fingerprint of
// a definition. Equal definitions always hash equally regardless of map
// iteration order.
func FingerprintDefinition(def map[string]interface{}) string {
	if len(def) == 0 {
		return ""
	}
	h, err := hashstructure.Hash(def, hashstructure.FormatV2, nil)
	if err != nil {
		// hashstructure only fails on unhashable kinds; definitions are
		// decoded JSON, so fall back to a key-ordered digest.
		keys := make([]string, 0, len(def))
		for k := range def {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var acc uint64
		for _, k := range keys {
			kh, _ := hashstructure.Hash(fmt.Sprintf("%s=%v", k, def[k]), hashstructure.FormatV2, nil)
			acc ^= kh
		}
		h = acc
	}
	return fmt.Sprintf("%016x", h)
}

// FingerprintValue hashes a single definition value, used when comparing
// individual definition keys across merge sides.
func FingerprintValue(v interface{}) string {
	h, err := hashstructure.Hash(v, hashstructure.FormatV2, nil)
	if err != nil {
		h, _ = hashstructure.Hash(fmt.Sprintf("%v", v), hashstructure.FormatV2, nil)
	}
	return fmt.Sprintf("%016x", h)
}

// TreeFingerprint computes the aggregate hash over a set of objects, used
// as a commit's TreeHash. Order independent.
func TreeFingerprint(objects []*SchemaObject) string {
	entries := make([]string, 0, len(objects))
	for _, o := range objects {
		entries = append(entries, o.Key()+"@"+o.Fingerprint)
	}
	sort.Strings(entries)
	h, _ := hashstructure.Hash(entries, hashstructure.FormatV2, nil)
	return fmt.Sprintf("%016x", h)
}
