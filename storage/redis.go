package storage

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
)

var Redis *redis.Client

func InitializeRedis() {
	// Get Redis URL from environment, fallback to localhost for development
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "localhost:6379"
		log.Println("REDIS_URL not set, using localhost:6379 (development mode)")
	}

	Redis = redis.NewClient(&redis.Options{
		Addr:     redisURL,
		Password: "",
		DB:       0,
	})

	log.Println("Redis initialized with address:", redisURL)
}

// AcquireLock takes a short-lived SETNX lock. It returns true when the lock
// was taken. When redis is unavailable it also returns true: the lock only
// serializes the common case, the DB-level guards stay authoritative.
func AcquireLock(ctx context.Context, key string, ttl time.Duration) bool {
	if Redis == nil {
		return true
	}
	ok, err := Redis.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		log.Printf("redis lock %s unavailable: %v", key, err)
		return true
	}
	return ok
}

// ReleaseLock drops a lock taken with AcquireLock.
func ReleaseLock(ctx context.Context, key string) {
	if Redis == nil {
		return
	}
	if err := Redis.Del(ctx, key).Err(); err != nil {
		log.Printf("redis unlock %s failed: %v", key, err)
	}
}
