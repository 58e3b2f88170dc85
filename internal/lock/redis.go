package lock

import (
	"context" // Context for Redis operations
	"fmt"     // Error wrapping
	"sync"    // Release once
	"time"    // Lease and retry durations

	"github.com/google/uuid"       // Lease ownership tokens
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// releaseScript deletes the lock only if this holder still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Redis is a Locker shared by every server instance pointing at the same Redis.
// Leases expire after ttl so a crashed holder cannot wedge a wallet; the
// store's version check still rejects a write whose lease ran out.
type Redis struct {
	rdb   *redis.Client // Redis client
	ttl   time.Duration // Lease length
	retry time.Duration // Poll interval while waiting
}

// NewRedis builds a Redis locker with the given lease length
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl, retry: 10 * time.Millisecond}
}

// Lock polls SET NX PX until it wins the key or ctx is done
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := "lock:" + key // Namespaced lock key
	token := uuid.NewString() // Identifies this holder
	for {
		ok, err := r.rdb.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break // Lock acquired
		}
		select {
		case <-time.After(r.retry):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			// Release with a fresh context so a cancelled request still frees the lease
			if err := releaseScript.Run(context.Background(), r.rdb, []string{redisKey}, token).Err(); err != nil {
				logrus.WithFields(logrus.Fields{
					"key":   key,         // Lock key
					"error": err.Error(), // Error message
				}).Warn("Failed to release lock")
			}
		})
	}, nil
}
