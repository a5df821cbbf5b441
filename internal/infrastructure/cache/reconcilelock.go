package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/moneta-pay/moneta/internal/shared/logger"
)

const (
	// reconcileLockKeyPrefix is the prefix for all reconcile lock keys
	reconcileLockKeyPrefix = "moneta:lock:"
	// DefaultReconcileLockTTL bounds how long a crashed holder can block others
	DefaultReconcileLockTTL = 30 * time.Second

	lockRetryInterval = 50 * time.Millisecond
)

// releaseScript deletes the lock only when still held by this owner.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ReconcileLock serializes reconcile critical sections across instances with
// a Redis SETNX lock per key.
type ReconcileLock struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.Interface
}

// NewReconcileLock creates a new ReconcileLock instance
func NewReconcileLock(client *redis.Client, ttl time.Duration, log logger.Interface) *ReconcileLock {
	if ttl <= 0 {
		ttl = DefaultReconcileLockTTL
	}
	return &ReconcileLock{client: client, ttl: ttl, log: log}
}

// WithLock runs fn while holding the lock for key, blocking until the lock is
// acquired or ctx is done. The lock expires after the configured TTL so a
// crashed holder cannot block the key forever.
func (l *ReconcileLock) WithLock(ctx context.Context, key string, fn func() error) error {
	fullKey := reconcileLockKeyPrefix + key
	owner, err := lockOwnerToken()
	if err != nil {
		return err
	}

	for {
		acquired, err := l.client.SetNX(ctx, fullKey, owner, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if acquired {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	defer func() {
		// Best effort: an expired lock releases itself via TTL.
		if err := releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{fullKey}, owner).Err(); err != nil && err != redis.Nil {
			l.log.Warnw("failed to release reconcile lock", "key", key, "error", err)
		}
	}()

	return fn()
}

func lockOwnerToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
