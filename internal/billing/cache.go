package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// AccountSummary is the cached per-account dashboard snapshot.
type AccountSummary struct {
	ProfileID       int64           `json:"profile_id"`
	Balance         decimal.Decimal `json:"balance"`
	AvailableCredit decimal.Decimal `json:"available_credit"`
	PendingCount    int             `json:"pending_count"`
	PendingTotal    decimal.Decimal `json:"pending_total"`
}

// SummaryCache keeps account summaries in Redis. A nil cache is a
// no-op so tests and degraded deployments can skip Redis entirely.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryCache instantiates the cache helper.
func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{client: client, ttl: ttl}
}

func summaryKey(profileID int64) string {
	return fmt.Sprintf("billing:summary:%d", profileID)
}

// Fetch loads a cached summary or populates it using the loader.
func (c *SummaryCache) Fetch(ctx context.Context, profileID int64, loader func(context.Context) (AccountSummary, error)) (AccountSummary, error) {
	if loader == nil {
		return AccountSummary{}, errors.New("billing: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := summaryKey(profileID)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached AccountSummary
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		// Corrupt entry, fall through and rebuild.
	} else if !errors.Is(err, redis.Nil) {
		return AccountSummary{}, fmt.Errorf("billing: cache get: %w", err)
	}

	summary, err := loader(ctx)
	if err != nil {
		return AccountSummary{}, err
	}
	encoded, err := json.Marshal(summary)
	if err != nil {
		return AccountSummary{}, fmt.Errorf("billing: cache encode: %w", err)
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		return AccountSummary{}, fmt.Errorf("billing: cache set: %w", err)
	}
	return summary, nil
}

// Invalidate drops the cached summary after a write.
func (c *SummaryCache) Invalidate(ctx context.Context, profileID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, summaryKey(profileID)).Err()
}
