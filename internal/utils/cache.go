package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"strconv"       // Key building
	"time"          // Time durations

	"github.com/redis/go-redis/v9" // Redis client
)

// A nil *redis.Client disables caching: reads miss and writes are no-ops.
//
// Cached reads are keyed on a write counter (a generation, or the wallet version)
// read before the data. A reader that loses a race with a write stores its page
// under the old counter, which no later reader asks for.

// AdminGenKey counts writes that admin listings can observe
const AdminGenKey = "admin:gen"

// WalletsGenKey counts writes to an owner's wallets
func WalletsGenKey(ownerID uint) string {
	return "wallets:owner:" + strconv.FormatUint(uint64(ownerID), 10) + ":gen"
}

// WalletsKey is the cache key for an owner's wallet list at a generation
func WalletsKey(ownerID uint, gen int64) string {
	return "wallets:owner:" + strconv.FormatUint(uint64(ownerID), 10) + ":v:" + strconv.FormatInt(gen, 10)
}

// HistoryKey is the hash holding every cached history page of a wallet
func HistoryKey(walletID uint) string {
	return "txhistory:wallet:" + strconv.FormatUint(uint64(walletID), 10)
}

// HistoryField names one page inside HistoryKey, as of a wallet version
func HistoryField(version int64, skip, limit int) string {
	return "v:" + strconv.FormatInt(version, 10) + ":skip:" + strconv.Itoa(skip) + ":limit:" + strconv.Itoa(limit)
}

// Generation reads a write counter; an unset counter is 0
func Generation(ctx context.Context, rdb *redis.Client, key string) (int64, error) {
	if rdb == nil {
		return 0, nil // Caching disabled
	}
	gen, err := rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil // Nothing written yet
	}
	return gen, err
}

// BumpGeneration increments every counter in keys in one round trip
func BumpGeneration(ctx context.Context, rdb *redis.Client, keys ...string) error {
	if rdb == nil || len(keys) == 0 {
		return nil // Caching disabled
	}
	pipe := rdb.TxPipeline()
	for _, k := range keys {
		pipe.Incr(ctx, k) // Counters never expire
	}
	_, err := pipe.Exec(ctx)
	return err
}

// GetCache retrieves a value from Redis and unmarshals it into dest
func GetCache(ctx context.Context, rdb *redis.Client, key string, dest any) (bool, error) {
	if rdb == nil {
		return false, nil // Caching disabled
	}
	val, err := rdb.Get(ctx, key).Result() // Get value from Redis
	if err == redis.Nil {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// SetCache sets a value in Redis with a specified TTL
func SetCache(ctx context.Context, rdb *redis.Client, key string, value any, ttl time.Duration) error {
	if rdb == nil {
		return nil // Caching disabled
	}
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err // Return error if marshaling fails
	}
	return rdb.Set(ctx, key, b, ttl).Err() // Set value in Redis with TTL
}

// GetCacheField retrieves one field of a cached hash and unmarshals it into dest
func GetCacheField(ctx context.Context, rdb *redis.Client, key, field string, dest any) (bool, error) {
	if rdb == nil {
		return false, nil // Caching disabled
	}
	val, err := rdb.HGet(ctx, key, field).Result() // Get field from hash
	if err == redis.Nil {
		return false, nil // Field does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// SetCacheField stores one field of a hash and refreshes the hash TTL
func SetCacheField(ctx context.Context, rdb *redis.Client, key, field string, value any, ttl time.Duration) error {
	if rdb == nil {
		return nil // Caching disabled
	}
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err
	}
	pipe := rdb.TxPipeline()      // Set and expire together
	pipe.HSet(ctx, key, field, b) // Store the page
	pipe.Expire(ctx, key, ttl)    // Whole hash expires together
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteCache deletes keys from Redis
func DeleteCache(ctx context.Context, rdb *redis.Client, keys ...string) error {
	if rdb == nil {
		return nil // Caching disabled
	}
	return rdb.Del(ctx, keys...).Err() // Delete keys from Redis
}
