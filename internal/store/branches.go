package store

import (
	"database/sql"
	"fmt"

	"github.com/trinitydb/trinity/internal/models"
)

const defaultBranchKey = "DEFAULT_BRANCH"

// CreateBranch stores a new branch. parentID of zero means a root branch.
func (s *Store) CreateBranch(name string, parentID int64, headCommitID string) (*models.Branch, error) {
	res, err := s.db.Exec(`
		INSERT INTO branches (name, parent_id, status, head_commit_id)
		VALUES (?, ?, ?, ?)`,
		name,
		sql.NullInt64{Int64: parentID, Valid: parentID != 0},
		models.BranchActive,
		sql.NullString{String: headCommitID, Valid: headCommitID != ""},
	)
	if err != nil {
		return nil, fmt.Errorf("create branch %q: %w", name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetBranch(id)
}

// CreateBranchTx is CreateBranch inside an existing transaction. It returns
// the new branch id; callers re-read the row after commit if they need the
// full record.
func (s *Store) CreateBranchTx(tx *sql.Tx, name string, parentID int64, headCommitID string) (int64, error) {
	res, err := tx.Exec(`
		INSERT INTO branches (name, parent_id, status, head_commit_id)
		VALUES (?, ?, ?, ?)`,
		name,
		sql.NullInt64{Int64: parentID, Valid: parentID != 0},
		models.BranchActive,
		sql.NullString{String: headCommitID, Valid: headCommitID != ""},
	)
	if err != nil {
		return 0, fmt.Errorf("create branch %q: %w", name, err)
	}
	return res.LastInsertId()
}

// GetBranch retrieves a branch by ID. Returns (nil, nil) if not found.
func (s *Store) GetBranch(id int64) (*models.Branch, error) {
	return s.scanBranch(s.db.QueryRow(`
		SELECT id, name, parent_id, status, head_commit_id, created_at
		FROM branches WHERE id = ?`, id))
}

// GetBranchByName retrieves a branch by name. Returns (nil, nil) if not found.
func (s *Store) GetBranchByName(name string) (*models.Branch, error) {
	return s.scanBranch(s.db.QueryRow(`
		SELECT id, name, parent_id, status, head_commit_id, created_at
		FROM branches WHERE name = ?`, name))
}

// ListBranches returns all branches sorted by name.
func (s *Store) ListBranches() ([]*models.Branch, error) {
	rows, err := s.db.Query(`
		SELECT id, name, parent_id, status, head_commit_id, created_at
		FROM branches ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var branches []*models.Branch
	for rows.Next() {
		b, err := s.scanBranchRow(rows)
		if err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

// UpdateBranchHead moves a branch's head pointer to the given commit.
func (s *Store) UpdateBranchHead(branchID int64, commitID string) error {
	res, err := s.db.Exec(`UPDATE branches SET head_commit_id = ? WHERE id = ?`, commitID, branchID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("branch %d not found", branchID)
	}
	return nil
}

// UpdateBranchHeadTx is UpdateBranchHead inside an existing transaction.
func (s *Store) UpdateBranchHeadTx(tx *sql.Tx, branchID int64, commitID string) error {
	res, err := tx.Exec(`UPDATE branches SET head_commit_id = ? WHERE id = ?`, commitID, branchID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("branch %d not found", branchID)
	}
	return nil
}

// ArchiveBranch marks a branch ARCHIVED. The branch and its commits remain.
func (s *Store) ArchiveBranch(branchID int64) error {
	_, err := s.db.Exec(`UPDATE branches SET status = ? WHERE id = ?`, models.BranchArchived, branchID)
	return err
}

// GetDefaultBranch retrieves the repository default branch name. Returns
// ("", nil) if no default is set.
func (s *Store) GetDefaultBranch() (string, error) {
	return s.GetValue(defaultBranchKey)
}

// SetDefaultBranch sets the repository default branch name.
func (s *Store) SetDefaultBranch(name string) error {
	return s.SetValue(defaultBranchKey, name)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanBranch(row *sql.Row) (*models.Branch, error) {
	b, err := s.scanBranchRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (s *Store) scanBranchRow(row rowScanner) (*models.Branch, error) {
	var b models.Branch
	var parentID sql.NullInt64
	var head sql.NullString
	var createdAt string

	if err := row.Scan(&b.ID, &b.Name, &parentID, &b.Status, &head, &createdAt); err != nil {
		return nil, err
	}
	if parentID.Valid {
		b.ParentID = parentID.Int64
	}
	if head.Valid {
		b.HeadCommitID = head.String
	}
	b.CreatedAt = parseTimestamp(createdAt)
	return &b, nil
}
