package store

import (
	"context"
	"fmt"
	"time"
)

// AcquireLease attempts to take the integer-keyed lease for the given
// owner. The acquisition is a single atomic upsert: it succeeds when the
// key is free, expired, or already held by the same owner. Returns whether
// the lease is now held by owner.
func (s *Store) AcquireLease(ctx context.Context, key int64, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UnixMilli()
	expires := now + ttl.Milliseconds()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leases (lock_key, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(lock_key) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE leases.expires_at < ? OR leases.owner = excluded.owner`,
		key, owner, expires, now,
	)
	if err != nil {
		return false, fmt.Errorf("acquire lease %d: %w", key, err)
	}

	var holder string
	if err := s.db.QueryRowContext(ctx, `SELECT owner FROM leases WHERE lock_key = ?`, key).Scan(&holder); err != nil {
		return false, fmt.Errorf("read lease %d: %w", key, err)
	}
	return holder == owner, nil
}

// ReleaseLease frees the lease if it is held by owner. Releasing a lease
// that expired and was taken over by someone else is a no-op.
func (s *Store) ReleaseLease(key int64, owner string) error {
	_, err := s.db.Exec(`DELETE FROM leases WHERE lock_key = ? AND owner = ?`, key, owner)
	if err != nil {
		return fmt.Errorf("release lease %d: %w", key, err)
	}
	return nil
}

// ReleaseAllLeases frees every lease held by owner. Called at coordinator
// shutdown so a clean exit never strands locks.
func (s *Store) ReleaseAllLeases(owner string) error {
	_, err := s.db.Exec(`DELETE FROM leases WHERE owner = ?`, owner)
	return err
}
