package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/gobd-ledger/internal/shared"
)

// ErrLockHeld is returned when another owner holds the mutex.
var ErrLockHeld = fmt.Errorf("platform/cache: %w", shared.ErrLockHeld)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Mutex is a single-instance Redis lock with an expiry. It only guards against
// concurrent maintenance runs; correctness of the guarded work must not depend
// on it.
type Mutex struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
	token  string
}

// NewMutex prepares a lock on key that expires after ttl.
func NewMutex(client redis.Cmdable, key string, ttl time.Duration) *Mutex {
	return &Mutex{client: client, key: key, ttl: ttl}
}

// Acquire takes the lock or returns ErrLockHeld.
func (m *Mutex) Acquire(ctx context.Context) error {
	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, m.key, token, m.ttl).Result()
	if err != nil {
		return fmt.Errorf("platform/cache: acquire %s: %w", m.key, err)
	}
	if !ok {
		return ErrLockHeld
	}
	m.token = token
	return nil
}

// Release drops the lock if this Mutex still owns it.
func (m *Mutex) Release(ctx context.Context) error {
	if m.token == "" {
		return nil
	}
	token := m.token
	m.token = ""
	if err := releaseScript.Run(ctx, m.client, []string{m.key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("platform/cache: release %s: %w", m.key, err)
	}
	return nil
}
