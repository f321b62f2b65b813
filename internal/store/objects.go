package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/trinitydb/trinity/internal/models"
)

// UpsertObject inserts or updates a schema object on its branch. The
// fingerprint is recomputed from the definition; on update the version is
// bumped with the given kind.
func (s *Store) UpsertObject(obj *models.SchemaObject, bump models.BumpKind) (*models.SchemaObject, error) {
	existing, err := s.GetObject(obj.BranchID, obj.Type, obj.Schema, obj.Name)
	if err != nil {
		return nil, err
	}

	obj.Fingerprint = models.FingerprintDefinition(obj.Definition)
	defData, err := json.Marshal(obj.Definition)
	if err != nil {
		return nil, fmt.Errorf("marshal definition: %w", err)
	}

	now := time.Now()
	if existing == nil {
		obj.Version = models.Version{Major: 1}
		res, err := s.db.Exec(`
			INSERT INTO schema_objects
				(branch_id, object_type, schema_name, object_name, definition, fingerprint,
				 v_major, v_minor, v_patch, parent_object_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			obj.BranchID, obj.Type, obj.Schema, obj.Name, string(defData), obj.Fingerprint,
			obj.Version.Major, obj.Version.Minor, obj.Version.Patch,
			sql.NullInt64{Int64: obj.ParentID, Valid: obj.ParentID != 0}, now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert object %s: %w", obj.Key(), err)
		}
		obj.ID, _ = res.LastInsertId()
		obj.UpdatedAt = now
		return obj, nil
	}

	obj.ID = existing.ID
	obj.Version = existing.Version.Bump(bump)
	_, err = s.db.Exec(`
		UPDATE schema_objects
		SET definition = ?, fingerprint = ?, v_major = ?, v_minor = ?, v_patch = ?, updated_at = ?
		WHERE id = ?`,
		string(defData), obj.Fingerprint,
		obj.Version.Major, obj.Version.Minor, obj.Version.Patch, now, obj.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update object %s: %w", obj.Key(), err)
	}
	obj.UpdatedAt = now
	return obj, nil
}

// GetObject retrieves one schema object. Returns (nil, nil) if not found.
func (s *Store) GetObject(branchID int64, typ models.ObjectType, schema, name string) (*models.SchemaObject, error) {
	obj, err := s.scanObject(s.db.QueryRow(`
		SELECT id, branch_id, object_type, schema_name, object_name, definition, fingerprint,
		       v_major, v_minor, v_patch, parent_object_id, updated_at
		FROM schema_objects
		WHERE branch_id = ? AND object_type = ? AND schema_name = ? AND object_name = ?`,
		branchID, typ, schema, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return obj, err
}

// GetObjectTx is GetObject inside an existing transaction.
func (s *Store) GetObjectTx(tx *sql.Tx, branchID int64, typ models.ObjectType, schema, name string) (*models.SchemaObject, error) {
	obj, err := s.scanObject(tx.QueryRow(`
		SELECT id, branch_id, object_type, schema_name, object_name, definition, fingerprint,
		       v_major, v_minor, v_patch, parent_object_id, updated_at
		FROM schema_objects
		WHERE branch_id = ? AND object_type = ? AND schema_name = ? AND object_name = ?`,
		branchID, typ, schema, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return obj, err
}

// DeleteObject removes a schema object from its branch.
func (s *Store) DeleteObject(branchID int64, typ models.ObjectType, schema, name string) error {
	res, err := s.db.Exec(`
		DELETE FROM schema_objects
		WHERE branch_id = ? AND object_type = ? AND schema_name = ? AND object_name = ?`,
		branchID, typ, schema, name)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("object %s not found on branch %d", models.ObjectKey(typ, schema, name), branchID)
	}
	return nil
}

// ObjectStates returns all schema objects on a branch keyed by object
// identity. This is the read set for conflict detection.
func (s *Store) ObjectStates(branchID int64) (map[string]*models.SchemaObject, error) {
	rows, err := s.db.Query(`
		SELECT id, branch_id, object_type, schema_name, object_name, definition, fingerprint,
		       v_major, v_minor, v_patch, parent_object_id, updated_at
		FROM schema_objects WHERE branch_id = ?`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := make(map[string]*models.SchemaObject)
	for rows.Next() {
		obj, err := s.scanObject(rows)
		if err != nil {
			return nil, err
		}
		states[obj.Key()] = obj
	}
	return states, rows.Err()
}

// DependentCount returns the number of objects on the branch that hang off
// the given object (columns under a table, and so on).
func (s *Store) DependentCount(branchID, objectID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM schema_objects
		WHERE branch_id = ? AND parent_object_id = ?`, branchID, objectID).Scan(&n)
	return n, err
}

// CopyObjectsTx clones every schema object from one branch to another
// inside the given transaction, preserving parent linkage. Used when a
// branch is created from a parent.
func (s *Store) CopyObjectsTx(tx *sql.Tx, fromBranchID, toBranchID int64) error {
	_, err := tx.Exec(`
		INSERT INTO schema_objects
			(branch_id, object_type, schema_name, object_name, definition, fingerprint,
			 v_major, v_minor, v_patch, parent_object_id, updated_at)
		SELECT ?, object_type, schema_name, object_name, definition, fingerprint,
		       v_major, v_minor, v_patch, NULL, updated_at
		FROM schema_objects WHERE branch_id = ?`,
		toBranchID, fromBranchID)
	if err != nil {
		return fmt.Errorf("copy objects from branch %d to %d: %w", fromBranchID, toBranchID, err)
	}

	// Second pass: rebind parent linkage to the new branch's rows. The
	// parent is matched by object identity on the source branch.
	_, err = tx.Exec(`
		UPDATE schema_objects AS c
		SET parent_object_id = (
			SELECT np.id
			FROM schema_objects oc
			JOIN schema_objects op ON op.id = oc.parent_object_id
			JOIN schema_objects np ON np.branch_id = c.branch_id
				AND np.object_type = op.object_type
				AND np.schema_name = op.schema_name
				AND np.object_name = op.object_name
			WHERE oc.branch_id = ?
				AND oc.object_type = c.object_type
				AND oc.schema_name = c.schema_name
				AND oc.object_name = c.object_name
		)
		WHERE c.branch_id = ?`,
		fromBranchID, toBranchID)
	if err != nil {
		return fmt.Errorf("rebind parent links on branch %d: %w", toBranchID, err)
	}
	return nil
}

// ObjectStatesTx is ObjectStates inside an existing transaction, so that
// conflict detection reads the same snapshot the merge write commits
// against.
func (s *Store) ObjectStatesTx(tx *sql.Tx, branchID int64) (map[string]*models.SchemaObject, error) {
	rows, err := tx.Query(`
		SELECT id, branch_id, object_type, schema_name, object_name, definition, fingerprint,
		       v_major, v_minor, v_patch, parent_object_id, updated_at
		FROM schema_objects WHERE branch_id = ?`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := make(map[string]*models.SchemaObject)
	for rows.Next() {
		obj, err := s.scanObject(rows)
		if err != nil {
			return nil, err
		}
		states[obj.Key()] = obj
	}
	return states, rows.Err()
}

// PutObjectTx writes the full state of an object on a branch inside an
// existing transaction. Unlike UpsertObject it takes the version as given:
// merge application decides versions, not the store.
func (s *Store) PutObjectTx(tx *sql.Tx, obj *models.SchemaObject) error {
	defData, err := json.Marshal(obj.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO schema_objects
			(branch_id, object_type, schema_name, object_name, definition, fingerprint,
			 v_major, v_minor, v_patch, parent_object_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(object_type, schema_name, object_name, branch_id) DO UPDATE SET
			definition = excluded.definition,
			fingerprint = excluded.fingerprint,
			v_major = excluded.v_major,
			v_minor = excluded.v_minor,
			v_patch = excluded.v_patch,
			updated_at = excluded.updated_at`,
		obj.BranchID, obj.Type, obj.Schema, obj.Name, string(defData), obj.Fingerprint,
		obj.Version.Major, obj.Version.Minor, obj.Version.Patch,
		sql.NullInt64{Int64: obj.ParentID, Valid: obj.ParentID != 0}, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("put object %s: %w", obj.Key(), err)
	}
	return nil
}

// RemoveObjectTx deletes an object from a branch inside an existing
// transaction. Removing an absent object is a no-op.
func (s *Store) RemoveObjectTx(tx *sql.Tx, branchID int64, typ models.ObjectType, schema, name string) error {
	_, err := tx.Exec(`
		DELETE FROM schema_objects
		WHERE branch_id = ? AND object_type = ? AND schema_name = ? AND object_name = ?`,
		branchID, typ, schema, name)
	return err
}

func (s *Store) scanObject(row rowScanner) (*models.SchemaObject, error) {
	var obj models.SchemaObject
	var defData sql.NullString
	var parentID sql.NullInt64
	var updatedAt string

	err := row.Scan(&obj.ID, &obj.BranchID, &obj.Type, &obj.Schema, &obj.Name,
		&defData, &obj.Fingerprint,
		&obj.Version.Major, &obj.Version.Minor, &obj.Version.Patch,
		&parentID, &updatedAt)
	if err != nil {
		return nil, err
	}
	if defData.Valid && defData.String != "" {
		if err := json.Unmarshal([]byte(defData.String), &obj.Definition); err != nil {
			return nil, fmt.Errorf("unmarshal definition for %s: %w", obj.Key(), err)
		}
	}
	if parentID.Valid {
		obj.ParentID = parentID.Int64
	}
	obj.UpdatedAt = parseTimestamp(updatedAt)
	return &obj, nil
}
