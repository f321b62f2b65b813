package engine

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/trinitydb/trinity/internal/models"
)

var branchNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._/-]{0,127}$`)

// CreateRootBranch creates a branch with no parent and an initial empty
// commit. A repository usually has exactly one, created at init.
func (s *Service) CreateRootBranch(ctx context.Context, name, author string) (*models.Branch, error) {
	return s.createBranch(ctx, name, 0, author)
}

// ForkBranch creates a branch off a parent, copying the parent's tracked
// objects and writing a fork-point commit, all in one transaction.
func (s *Service) ForkBranch(ctx context.Context, name string, parentID int64, author string) (*models.Branch, error) {
	if parentID <= 0 {
		return nil, models.InvalidInput("parent branch id must be positive")
	}
	return s.createBranch(ctx, name, parentID, author)
}

func (s *Service) createBranch(ctx context.Context, name string, parentID int64, author string) (*models.Branch, error) {
	if !branchNameRe.MatchString(name) {
		return nil, models.InvalidInput("invalid branch name %q", name)
	}
	if existing, err := s.store.GetBranchByName(name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, models.InvalidState("branch %q already exists", name)
	}

	var parent *models.Branch
	if parentID != 0 {
		var err error
		parent, err = s.mustGetBranch(parentID)
		if err != nil {
			return nil, err
		}
		if parent.Status == models.BranchArchived {
			return nil, models.InvalidState("cannot branch off archived branch %q", parent.Name)
		}
	}

	var branchID int64
	txErr := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		branchID, err = s.store.CreateBranchTx(tx, name, parentID, "")
		if err != nil {
			return err
		}

		if parent != nil {
			if err := s.store.CopyObjectsTx(tx, parentID, branchID); err != nil {
				return fmt.Errorf("copy objects from %q: %w", parent.Name, err)
			}
		}

		states, err := s.store.ObjectStatesTx(tx, branchID)
		if err != nil {
			return err
		}
		objects := make([]*models.SchemaObject, 0, len(states))
		for _, o := range states {
			objects = append(objects, o)
		}

		parentCommit := ""
		message := fmt.Sprintf("create branch %q", name)
		if parent != nil {
			parentCommit = parent.HeadCommitID
			message = fmt.Sprintf("fork branch %q from %q", name, parent.Name)
		}

		now := time.Now()
		commit := &models.Commit{
			ID:          s.ids.NewID(),
			BranchID:    branchID,
			ParentID:    parentCommit,
			Message:     message,
			Author:      author,
			TreeHash:    models.TreeFingerprint(objects),
			AuthoredAt:  now,
			CommittedAt: now,
		}
		if err := s.store.CreateCommitTx(tx, commit); err != nil {
			return err
		}
		return s.store.UpdateBranchHeadTx(tx, branchID, commit.ID)
	})
	if txErr != nil {
		return nil, wrapTxErr(txErr, "create branch %q", name)
	}

	s.logger.Info("branch created", "branch", name, "parent", parentID)
	return s.store.GetBranch(branchID)
}

// TrackRequest registers or updates one schema object on a branch.
type TrackRequest struct {
	BranchID   int64                  `json:"branch_id"`
	Type       models.ObjectType      `json:"type"`
	Schema     string                 `json:"schema"`
	Name       string                 `json:"name"`
	Definition map[string]interface{} `json:"definition"`

	// ParentKey optionally names the object this one depends on, as
	// "type:schema.name" on the same branch.
	ParentKey string `json:"parent_key,omitempty"`

	// Bump selects the version bump applied when the object already
	// exists; new objects always start at 1.0.0.
	Bump models.BumpKind `json:"bump,omitempty"`
}

// TrackObject upserts a schema object on a branch. The fingerprint is
// recomputed and the version bumped per the request.
func (s *Service) TrackObject(ctx context.Context, req TrackRequest) (*models.SchemaObject, error) {
	if req.BranchID <= 0 {
		return nil, models.InvalidInput("branch id must be positive")
	}
	if req.Schema == "" || req.Name == "" {
		return nil, models.InvalidInput("object schema and name are required")
	}
	b, err := s.mustGetBranch(req.BranchID)
	if err != nil {
		return nil, err
	}
	if b.Status == models.BranchArchived {
		return nil, models.InvalidState("branch %q is archived", b.Name)
	}

	var parentObjID int64
	if req.ParentKey != "" {
		typ, schema, name, perr := models.SplitObjectKey(req.ParentKey)
		if perr != nil {
			return nil, models.InvalidInput("invalid parent key %q", req.ParentKey)
		}
		parent, perr := s.store.GetObject(req.BranchID, typ, schema, name)
		if perr != nil {
			return nil, perr
		}
		if parent == nil {
			return nil, models.NotFound("parent object %s not found on branch %q", req.ParentKey, b.Name)
		}
		parentObjID = parent.ID
	}

	bump := req.Bump
	if bump == "" {
		bump = models.BumpMinor
	}
	return s.store.UpsertObject(&models.SchemaObject{
		BranchID:   req.BranchID,
		Type:       req.Type,
		Schema:     req.Schema,
		Name:       req.Name,
		Definition: req.Definition,
		ParentID:   parentObjID,
	}, bump)
}

// UntrackObject removes an object from a branch. Objects with dependents
// cannot be removed until the dependents are.
func (s *Service) UntrackObject(ctx context.Context, branchID int64, typ models.ObjectType, schema, name string) error {
	obj, err := s.store.GetObject(branchID, typ, schema, name)
	if err != nil {
		return err
	}
	if obj == nil {
		return models.NotFound("object %s not found on branch %d", models.ObjectKey(typ, schema, name), branchID)
	}
	n, err := s.store.DependentCount(branchID, obj.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return models.InvalidState("object %s has %d dependents", obj.Key(), n)
	}
	return s.store.DeleteObject(branchID, typ, schema, name)
}

// CommitSnapshot records the current tracked state of a branch as a commit
// and advances the branch head.
func (s *Service) CommitSnapshot(ctx context.Context, branchID int64, message, author string) (*models.Commit, error) {
	if message == "" {
		return nil, models.InvalidInput("commit message is required")
	}
	b, err := s.mustGetBranch(branchID)
	if err != nil {
		return nil, err
	}
	if b.Status == models.BranchArchived {
		return nil, models.InvalidState("branch %q is archived", b.Name)
	}

	var commit *models.Commit
	txErr := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		states, err := s.store.ObjectStatesTx(tx, branchID)
		if err != nil {
			return err
		}
		objects := make([]*models.SchemaObject, 0, len(states))
		for _, o := range states {
			objects = append(objects, o)
		}

		now := time.Now()
		commit = &models.Commit{
			ID:          s.ids.NewID(),
			BranchID:    branchID,
			ParentID:    b.HeadCommitID,
			Message:     message,
			Author:      author,
			TreeHash:    models.TreeFingerprint(objects),
			AuthoredAt:  now,
			CommittedAt: now,
		}
		if err := s.store.CreateCommitTx(tx, commit); err != nil {
			return err
		}
		return s.store.UpdateBranchHeadTx(tx, branchID, commit.ID)
	})
	if txErr != nil {
		return nil, wrapTxErr(txErr, "commit on branch %q", b.Name)
	}
	return commit, nil
}

// BranchStatus is the working state of a branch relative to its head
// commit.
type BranchStatus struct {
	Branch      *models.Branch `json:"branch"`
	ObjectCount int            `json:"object_count"`
	TreeHash    string         `json:"tree_hash"`
	HeadTree    string         `json:"head_tree,omitempty"`
	Dirty       bool           `json:"dirty"`
}

// Status compares a branch's tracked objects against its head commit.
func (s *Service) Status(ctx context.Context, branchID int64) (*BranchStatus, error) {
	b, err := s.mustGetBranch(branchID)
	if err != nil {
		return nil, err
	}
	states, err := s.store.ObjectStates(branchID)
	if err != nil {
		return nil, err
	}
	objects := make([]*models.SchemaObject, 0, len(states))
	for _, o := range states {
		objects = append(objects, o)
	}

	st := &BranchStatus{
		Branch:      b,
		ObjectCount: len(objects),
		TreeHash:    models.TreeFingerprint(objects),
	}
	if b.HeadCommitID != "" {
		head, err := s.store.GetCommit(b.HeadCommitID)
		if err != nil {
			return nil, err
		}
		if head != nil {
			st.HeadTree = head.TreeHash
		}
	}
	st.Dirty = st.TreeHash != st.HeadTree
	return st, nil
}

// Log returns a branch's commit history, newest first.
func (s *Service) Log(ctx context.Context, branchID int64, limit int) ([]*models.Commit, error) {
	if _, err := s.mustGetBranch(branchID); err != nil {
		return nil, err
	}
	return s.store.ListCommits(branchID, limit)
}
