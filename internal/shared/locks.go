package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BillingRunLockKey builds the redis key guarding a monthly billing run.
func BillingRunLockKey(period string) string {
	return fmt.Sprintf("billing:run:%s:lock", period)
}

// AcquireLock takes a best-effort distributed lock. A nil client grants
// the lock, so single-node setups without Redis still run.
func AcquireLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (bool, error) {
	if client == nil {
		return true, nil
	}
	return client.SetNX(ctx, key, "1", ttl).Result()
}

// ReleaseLock drops a lock taken with AcquireLock.
func ReleaseLock(ctx context.Context, client *redis.Client, key string) error {
	if client == nil {
		return nil
	}
	return client.Del(ctx, key).Err()
}
