package driven

import (
	"context"
	"time"
)

// DistributedLock coordinates sweeps across daemon instances sharing one store.
// Within one process the scheduler's in-progress flag is enough; the lock only
// matters when several instances run against the same Redis or PostgreSQL.
type DistributedLock interface {
	// Acquire attempts to acquire a named lock with the given TTL.
	// Returns true if the lock was acquired, false if already held elsewhere.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release releases a named lock. Safe to call if the lock expired.
	Release(ctx context.Context, name string) error

	// Ping checks if the lock backend is healthy.
	Ping(ctx context.Context) error
}
