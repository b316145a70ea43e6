package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// unlockLua deletes a lock key only if its value matches the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager using Redis SETNX with a TTL and
// a Lua-based conditional unlock. It serializes writers of one market across
// every process that shares the Redis instance.
type LockManager struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	// RetryInterval is the pause between attempts while waiting.
	RetryInterval time.Duration
	// MaxWait bounds how long Acquire waits for a held lock. Zero fails fast.
	MaxWait time.Duration
}

var _ domain.LockManager = (*LockManager)(nil)

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:           c.Underlying(),
		unlockSc:      redis.NewScript(unlockLua),
		RetryInterval: 25 * time.Millisecond,
		MaxWait:       2 * time.Second,
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

// Acquire obtains the lock for key, waiting up to MaxWait while another
// holder has it. The returned unlock function is safe to call more than once.
// It returns domain.ErrLockHeld if the lock could not be obtained in time.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := lockKey(key)
	deadline := time.Now().Add(lm.MaxWait)

	for {
		ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("redis: lock %s: %w", key, domain.ErrLockHeld)
		}
		timer := time.NewTimer(lm.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(fmt.Errorf("redis: lock %s: %w", key, domain.ErrLockHeld), ctx.Err())
		case <-timer.C:
		}
	}

	released := false
	unlock := func() {
		if released {
			return
		}
		released = true
		// Background context so the lock is released even after the caller's
		// context is cancelled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lm.unlockSc.Run(unlockCtx, lm.rdb, []string{lk}, token).Err()
	}
	return unlock, nil
}
