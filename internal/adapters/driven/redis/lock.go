package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-marks/internal/core/ports/driven"
)

var _ driven.DistributedLock = (*Lock)(nil)

const (
	lockPrefix = keyPrefix + "lock:"

	// defaultLockTTL bounds a lock taken without a TTL
	defaultLockTTL = 10 * time.Minute
)

// releaseScript deletes KEYS[1] only while it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("DEL", KEYS[1])
`)

// Lock is a sweep lock shared by every daemon pointed at the same Redis.
// The key holds the owner ID so an instance whose lock expired cannot
// release the lock of the instance that took over.
type Lock struct {
	client  *redis.Client
	ownerID string
}

// NewLock creates a lock owned by this process.
func NewLock(client *redis.Client) *Lock {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	nonce := make([]byte, 8)
	_, _ = rand.Read(nonce)
	return &Lock{
		client:  client,
		ownerID: fmt.Sprintf("sercha-marks:%s:%d:%s", host, os.Getpid(), hex.EncodeToString(nonce)),
	}
}

func lockKey(name string) string {
	return lockPrefix + name
}

// Acquire takes name for ttl without blocking. It is not reentrant: a
// second Acquire by the holder returns false.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	err := l.client.SetArgs(ctx, lockKey(name), l.ownerID, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return true, nil
}

// Release drops name if this instance still holds it. An expired or
// foreign lock is left alone.
func (l *Lock) Release(ctx context.Context, name string) error {
	if err := releaseScript.Run(ctx, l.client, []string{lockKey(name)}, l.ownerID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// Ping checks if the Redis backend is healthy.
func (l *Lock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// OwnerID returns the identifier this instance locks with.
func (l *Lock) OwnerID() string {
	return l.ownerID
}
