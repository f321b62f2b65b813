package engine

import (
	"context"
	"fmt"

	"github.com/trinitydb/trinity/internal/models"
)

// maxLineageDepth bounds the parent-chain walk. Branch trees deeper than
// this indicate corrupted parent links rather than a legitimate layout.
const maxLineageDepth = 4096

// FindMergeBase locates the nearest common ancestor of two branches by
// walking each branch's parent chain. The walk is over branch lineage,
// not the commit graph: a branch's ancestor set is itself plus every
// branch reachable through ParentID.
func (s *Service) FindMergeBase(ctx context.Context, branchA, branchB int64) (*models.MergeBase, error) {
	if branchA <= 0 || branchB <= 0 {
		return nil, models.InvalidInput("branch ids must be positive")
	}
	if branchA == branchB {
		return nil, models.InvalidInput("cannot merge branch %d into itself", branchA)
	}

	if _, err := s.mustGetBranch(branchA); err != nil {
		return nil, err
	}
	if _, err := s.mustGetBranch(branchB); err != nil {
		return nil, err
	}

	// Depth of every ancestor of A, keyed by branch id. A is its own
	// ancestor at depth zero.
	depthsA := make(map[int64]int)
	id := branchA
	for depth := 0; id != 0; depth++ {
		if depth > maxLineageDepth {
			return nil, models.InvalidState("branch %d lineage exceeds depth limit", branchA)
		}
		if _, seen := depthsA[id]; seen {
			return nil, models.InvalidState("cycle in branch lineage at branch %d", id)
		}
		depthsA[id] = depth
		b, err := s.store.GetBranch(id)
		if err != nil {
			return nil, fmt.Errorf("walk lineage of branch %d: %w", branchA, err)
		}
		if b == nil {
			return nil, models.NotFound("branch %d referenced by lineage does not exist", id)
		}
		id = b.ParentID
	}

	// Walk B upward; the first branch that also appears in A's ancestor
	// set is the nearest common ancestor.
	id = branchB
	for depth := 0; id != 0; depth++ {
		if depth > maxLineageDepth {
			return nil, models.InvalidState("branch %d lineage exceeds depth limit", branchB)
		}
		if depthA, ok := depthsA[id]; ok {
			base, err := s.store.GetBranch(id)
			if err != nil {
				return nil, err
			}
			if base == nil {
				return nil, models.NotFound("merge base branch %d does not exist", id)
			}
			return &models.MergeBase{
				BranchID:   base.ID,
				BranchName: base.Name,
				DepthFromA: depthA,
				DepthFromB: depth,
			}, nil
		}
		b, err := s.store.GetBranch(id)
		if err != nil {
			return nil, fmt.Errorf("walk lineage of branch %d: %w", branchB, err)
		}
		if b == nil {
			return nil, models.NotFound("branch %d referenced by lineage does not exist", id)
		}
		id = b.ParentID
	}

	return nil, models.NotFound("branches %d and %d share no common ancestor", branchA, branchB)
}

func (s *Service) mustGetBranch(id int64) (*models.Branch, error) {
	b, err := s.store.GetBranch(id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, models.NotFound("branch %d not found", id)
	}
	return b, nil
}
