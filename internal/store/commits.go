package store

import (
	"database/sql"
	"fmt"

	"github.com/trinitydb/trinity/internal/models"
)

// CreateCommit creates a new commit
func (s *Store) CreateCommit(commit *models.Commit) error {
	return s.createCommit(s.db, commit)
}

// CreateCommitTx is CreateCommit inside an existing transaction.
func (s *Store) CreateCommitTx(tx *sql.Tx, commit *models.Commit) error {
	return s.createCommit(tx, commit)
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

func (s *Store) createCommit(db execer, commit *models.Commit) error {
	if !models.ValidTrinityID(commit.ID) {
		return fmt.Errorf("commit ID %q is not a valid Trinity ID", commit.ID)
	}
	_, err := db.Exec(`
		INSERT INTO commits (id, branch_id, parent_id, message, author, tree_hash, authored_at, committed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		commit.ID, commit.BranchID,
		sql.NullString{String: commit.ParentID, Valid: commit.ParentID != ""},
		commit.Message, commit.Author, commit.TreeHash,
		commit.AuthoredAt, commit.CommittedAt,
	)
	return err
}

// GetCommit retrieves a commit by ID. Returns (nil, nil) if not found.
func (s *Store) GetCommit(id string) (*models.Commit, error) {
	c, err := s.scanCommit(s.db.QueryRow(`
		SELECT id, branch_id, parent_id, message, author, tree_hash, authored_at, committed_at
		FROM commits WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ListCommits returns the commits on a branch, newest first, following the
// parent chain from the branch head.
func (s *Store) ListCommits(branchID int64, limit int) ([]*models.Commit, error) {
	branch, err := s.GetBranch(branchID)
	if err != nil {
		return nil, err
	}
	if branch == nil {
		return nil, fmt.Errorf("branch %d not found", branchID)
	}

	var commits []*models.Commit
	next := branch.HeadCommitID
	for next != "" && (limit <= 0 || len(commits) < limit) {
		c, err := s.GetCommit(next)
		if err != nil {
			return nil, err
		}
		if c == nil {
			break
		}
		commits = append(commits, c)
		next = c.ParentID
	}
	return commits, nil
}

func (s *Store) scanCommit(row rowScanner) (*models.Commit, error) {
	var c models.Commit
	var parentID, author, treeHash sql.NullString
	var authoredAt, committedAt string

	err := row.Scan(&c.ID, &c.BranchID, &parentID, &c.Message, &author, &treeHash, &authoredAt, &committedAt)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		c.ParentID = parentID.String
	}
	if author.Valid {
		c.Author = author.String
	}
	if treeHash.Valid {
		c.TreeHash = treeHash.String
	}
	c.AuthoredAt = parseTimestamp(authoredAt)
	c.CommittedAt = parseTimestamp(committedAt)
	return &c, nil
}
