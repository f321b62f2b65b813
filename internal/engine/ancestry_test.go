package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trinitydb/trinity/internal/models"
)

func TestFindMergeBase_SiblingBranches(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	main, err := s.CreateRootBranch(ctx, "main", "tester")
	require.NoError(t, err)
	left, err := s.ForkBranch(ctx, "left", main.ID, "tester")
	require.NoError(t, err)
	right, err := s.ForkBranch(ctx, "right", main.ID, "tester")
	require.NoError(t, err)

	base, err := s.FindMergeBase(ctx, left.ID, right.ID)
	require.NoError(t, err)
	assert.Equal(t, main.ID, base.BranchID)
	assert.Equal(t, "main", base.BranchName)
	assert.Equal(t, 1, base.DepthFromA)
	assert.Equal(t, 1, base.DepthFromB)
}

func TestFindMergeBase_Symmetric(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, dev, feature := newBranchTree(t, s)

	ab, err := s.FindMergeBase(ctx, dev, feature)
	require.NoError(t, err)
	ba, err := s.FindMergeBase(ctx, feature, dev)
	require.NoError(t, err)

	assert.Equal(t, ab.BranchID, ba.BranchID)
	assert.Equal(t, ab.DepthFromA, ba.DepthFromB)
	assert.Equal(t, ab.DepthFromB, ba.DepthFromA)
}

func TestFindMergeBase_AncestorIsBase(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	main, _, feature := newBranchTree(t, s)

	// An ancestor merged with its descendant is its own merge base.
	base, err := s.FindMergeBase(ctx, feature, main)
	require.NoError(t, err)
	assert.Equal(t, main, base.BranchID)
	assert.Equal(t, 2, base.DepthFromA)
	assert.Equal(t, 0, base.DepthFromB)
}

func TestFindMergeBase_SelfMergeRejected(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	main, _, _ := newBranchTree(t, s)

	_, err := s.FindMergeBase(ctx, main, main)
	require.Error(t, err)
	assert.Equal(t, models.KindInvalidInput, models.KindOf(err))
}

func TestFindMergeBase_DisjointForests(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	a, err := s.CreateRootBranch(ctx, "root-a", "tester")
	require.NoError(t, err)
	b, err := s.CreateRootBranch(ctx, "root-b", "tester")
	require.NoError(t, err)

	_, err = s.FindMergeBase(ctx, a.ID, b.ID)
	require.Error(t, err)
	assert.Equal(t, models.KindNotFound, models.KindOf(err))
}

func TestFindMergeBase_UnknownBranch(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	main, _, _ := newBranchTree(t, s)

	_, err := s.FindMergeBase(ctx, main, 9999)
	require.Error(t, err)
	assert.Equal(t, models.KindNotFound, models.KindOf(err))

	_, err = s.FindMergeBase(ctx, 0, main)
	require.Error(t, err)
	assert.Equal(t, models.KindInvalidInput, models.KindOf(err))
}
