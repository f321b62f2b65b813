// Package lock implements the advisory lock coordinator for merge and
// conflict-resolution operations. Locks are integer-keyed leases in the
// backing store, scoped to a coordinator session, and released
// automatically when the lease expires if the holder crashes.
package lock

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trinitydb/trinity/internal/models"
)

// KeyType namespaces lock keys so a merge lock and a conflict lock over
// overlapping identifiers never collide.
type KeyType byte

const (
	KeyMerge    KeyType = 0x01 // participants: the two branch IDs
	KeyConflict KeyType = 0x02 // participants: merge ID + conflict ID
)

// Key builds the numeric lock key for a key type and its participant
// identifiers. Participants are sorted before hashing: two merges over the
// same branch pair always contend for the identical key no matter the
// submission order, which is the deadlock-avoidance mechanism.
func Key(kt KeyType, ids ...string) int64 {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	h := fnv.New64a()
	h.Write([]byte{byte(kt)})
	for _, id := range sorted {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return int64(h.Sum64())
}

// LeaseStore is the storage capability the coordinator needs.
type LeaseStore interface {
	AcquireLease(ctx context.Context, key int64, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(key int64, owner string) error
	ReleaseAllLeases(owner string) error
}

const acquirePollInterval = 25 * time.Millisecond

// Coordinator serializes merge and resolution operations through leased
// advisory locks. It is created at service start and closed at shutdown;
// the in-process registry is owned by the instance, never package state.
type Coordinator struct {
	leases  LeaseStore
	session string
	ttl     time.Duration

	mu   sync.Mutex
	held map[int64]bool
}

// NewCoordinator creates a coordinator with a fresh session identity.
func NewCoordinator(leases LeaseStore, ttl time.Duration) *Coordinator {
	return &Coordinator{
		leases:  leases,
		session: uuid.New().String(),
		ttl:     ttl,
		held:    make(map[int64]bool),
	}
}

// Session returns the coordinator's owner identity, as recorded on leases.
func (c *Coordinator) Session() string {
	return c.session
}

// TryLock attempts to take the lock within the given timeout. On success
// the returned guard must be released on every exit path; on contention
// past the deadline the error kind is LockContention so callers can
// distinguish "operation already in progress" from real failures.
func (c *Coordinator) TryLock(ctx context.Context, timeout time.Duration, kt KeyType, ids ...string) (*Guard, error) {
	key := Key(kt, ids...)
	deadline := time.Now().Add(timeout)

	for {
		ok, err := c.tryOnce(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Guard{c: c, key: key}, nil
		}

		if time.Now().After(deadline) {
			return nil, models.LockContention("operation already in progress (lock key %d)", key)
		}

		select {
		case <-ctx.Done():
			return nil, &models.Error{
				Kind:    models.KindLockContention,
				Message: "lock acquisition cancelled",
				Hint:    "another operation is in progress; retry later",
				Err:     ctx.Err(),
			}
		case <-time.After(acquirePollInterval):
		}
	}
}

// tryOnce makes a single acquisition attempt. The in-process registry is
// checked first: goroutines of one process share the session identity, so
// without it a second local caller would satisfy the owner match in the
// lease table and break mutual exclusion.
func (c *Coordinator) tryOnce(ctx context.Context, key int64) (bool, error) {
	c.mu.Lock()
	if c.held[key] {
		c.mu.Unlock()
		return false, nil
	}
	c.held[key] = true
	c.mu.Unlock()

	ok, err := c.leases.AcquireLease(ctx, key, c.session, c.ttl)
	if err != nil || !ok {
		c.mu.Lock()
		delete(c.held, key)
		c.mu.Unlock()
	}
	if err != nil {
		return false, models.TransactionFailure(err, "acquire lock %d", key)
	}
	return ok, nil
}

// release frees the key locally and in the store.
func (c *Coordinator) release(key int64) error {
	c.mu.Lock()
	delete(c.held, key)
	c.mu.Unlock()
	return c.leases.ReleaseLease(key, c.session)
}

// Close releases every lease the session still holds.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	c.held = make(map[int64]bool)
	c.mu.Unlock()
	return c.leases.ReleaseAllLeases(c.session)
}

// Guard is a scoped lock acquisition. Release is idempotent so deferred
// and explicit releases can coexist on the same guard.
type Guard struct {
	c    *Coordinator
	key  int64
	once sync.Once
}

// Key returns the numeric lock key the guard holds.
func (g *Guard) Key() int64 {
	return g.key
}

// Release frees the lock. Safe to call more than once.
func (g *Guard) Release() error {
	var err error
	g.once.Do(func() {
		err = g.c.release(g.key)
	})
	return err
}
