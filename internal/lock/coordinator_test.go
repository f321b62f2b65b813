package lock

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trinitydb/trinity/internal/models"
	"github.com/trinitydb/trinity/internal/store"
	"golang.org/x/sync/errgroup"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "locks.db"))
	require.NoError(t, err)
	require.NoError(t, st.Initialize())
	t.Cleanup(func() { st.Close() })

	c := NewCoordinator(st, 30*time.Second)
	t.Cleanup(func() { c.Close() })
	return c, st
}

func TestKey_OrderIndependent(t *testing.T) {
	k1 := Key(KeyMerge, "3", "7")
	k2 := Key(KeyMerge, "7", "3")
	assert.Equal(t, k1, k2, "participant order must not change the key")
}

func TestKey_TypeNamespaced(t *testing.T) {
	assert.NotEqual(t, Key(KeyMerge, "3", "7"), Key(KeyConflict, "3", "7"))
}

func TestKey_DistinctParticipants(t *testing.T) {
	assert.NotEqual(t, Key(KeyMerge, "3", "7"), Key(KeyMerge, "3", "8"))
}

func TestTryLock_AcquireAndRelease(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	guard, err := c.TryLock(ctx, time.Second, KeyMerge, "1", "2")
	require.NoError(t, err)
	require.NotNil(t, guard)

	// Second attempt with a short timeout observes contention
	_, err = c.TryLock(ctx, 50*time.Millisecond, KeyMerge, "2", "1")
	require.Error(t, err)
	assert.Equal(t, models.KindLockContention, models.KindOf(err))

	require.NoError(t, guard.Release())

	// Reacquirable after release
	guard2, err := c.TryLock(ctx, time.Second, KeyMerge, "1", "2")
	require.NoError(t, err)
	require.NoError(t, guard2.Release())
}

func TestTryLock_ReleaseIdempotent(t *testing.T) {
	c, _ := newTestCoordinator(t)

	guard, err := c.TryLock(context.Background(), time.Second, KeyConflict, "m1", "c1")
	require.NoError(t, err)

	require.NoError(t, guard.Release())
	require.NoError(t, guard.Release())
}

func TestTryLock_MutualExclusion(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	var inCritical atomic.Int32
	var contentionSeen atomic.Int32
	var completed atomic.Int32

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			guard, err := c.TryLock(ctx, 2*time.Second, KeyMerge, "10", "20")
			if err != nil {
				if models.KindOf(err) == models.KindLockContention {
					contentionSeen.Add(1)
					return nil
				}
				return err
			}
			defer guard.Release()

			if inCritical.Add(1) > 1 {
				return errors.New("two holders inside the critical section")
			}
			time.Sleep(5 * time.Millisecond)
			inCritical.Add(-1)
			completed.Add(1)
			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.Positive(t, completed.Load())
	assert.Equal(t, int32(8), completed.Load()+contentionSeen.Load())
}

func TestTryLock_DifferentKeysDoNotContend(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			guard, err := c.TryLock(ctx, 200*time.Millisecond, KeyConflict, "merge-x", string(rune('a'+i)))
			if err != nil {
				errs[i] = err
				return
			}
			time.Sleep(20 * time.Millisecond)
			guard.Release()
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "conflict lock %d should not contend with its siblings", i)
	}
}

func TestTryLock_CrossSessionContention(t *testing.T) {
	_, st := newTestCoordinator(t)
	ctx := context.Background()

	// Two coordinators sharing the lease table model two processes.
	c1 := NewCoordinator(st, 30*time.Second)
	defer c1.Close()
	c2 := NewCoordinator(st, 30*time.Second)
	defer c2.Close()

	guard, err := c1.TryLock(ctx, time.Second, KeyMerge, "5", "6")
	require.NoError(t, err)

	_, err = c2.TryLock(ctx, 50*time.Millisecond, KeyMerge, "5", "6")
	require.Error(t, err)
	assert.Equal(t, models.KindLockContention, models.KindOf(err))

	require.NoError(t, guard.Release())

	guard2, err := c2.TryLock(ctx, time.Second, KeyMerge, "5", "6")
	require.NoError(t, err)
	require.NoError(t, guard2.Release())
}

func TestTryLock_ContextCancellation(t *testing.T) {
	c, _ := newTestCoordinator(t)

	guard, err := c.TryLock(context.Background(), time.Second, KeyMerge, "8", "9")
	require.NoError(t, err)
	defer guard.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err = c.TryLock(ctx, 10*time.Second, KeyMerge, "8", "9")
	require.Error(t, err)
	assert.Equal(t, models.KindLockContention, models.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}
