package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another worker owns the lock.
var ErrLockHeld = errors.New("lock_held")

// Locker hands out short-lived Redis locks. A nil Locker grants every lock,
// which keeps single-node deployments working without Redis.
type Locker struct {
	client *redislock.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: redislock.New(client)}
}

// Acquire obtains key for ttl. The returned release func is always safe to
// call, including after the lock expired.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if l == nil || l.client == nil {
		return noop, nil
	}
	if key == "" {
		return noop, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return noop, errors.New("lock ttl must be positive")
	}

	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return noop, ErrLockHeld
	}
	if err != nil {
		return noop, err
	}
	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return nil
		}
		return err
	}, nil
}
