package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLease_AcquireRelease(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ok, err := st.AcquireLease(ctx, 42, "session-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Another owner cannot take a held lease
	ok, err = st.AcquireLease(ctx, 42, "session-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Re-acquire by the holder refreshes, does not fail
	ok, err = st.AcquireLease(ctx, 42, "session-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, st.ReleaseLease(42, "session-a"))

	ok, err = st.AcquireLease(ctx, 42, "session-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLease_ReleaseByNonOwnerIsNoop(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ok, err := st.AcquireLease(ctx, 7, "session-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, st.ReleaseLease(7, "session-b"))

	// Still held by session-a
	ok, err = st.AcquireLease(ctx, 7, "session-c", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLease_ExpiryAllowsTakeover(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ok, err := st.AcquireLease(ctx, 9, "session-a", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)

	ok, err = st.AcquireLease(ctx, 9, "session-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease should be claimable")
}

func TestLease_ReleaseAll(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for key := int64(1); key <= 3; key++ {
		ok, err := st.AcquireLease(ctx, key, "session-a", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, st.ReleaseAllLeases("session-a"))

	for key := int64(1); key <= 3; key++ {
		ok, err := st.AcquireLease(ctx, key, "session-b", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
