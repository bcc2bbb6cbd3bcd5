package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"restopos/backend/internal/domain"
)

const summaryKeyPrefix = "restopos:summary:"

func summaryKey(businessDate string) string {
	return summaryKeyPrefix + businessDate
}

type RedisSummaryCache struct {
	client *redis.Client
}

func NewRedisSummaryCache(addr string, password string, db int) *RedisSummaryCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSummaryCache{client: client}
}

func (c *RedisSummaryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSummaryCache) Close() error {
	return c.client.Close()
}

func (c *RedisSummaryCache) Get(ctx context.Context, businessDate string) (*domain.DailySummary, bool, error) {
	val, err := c.client.Get(ctx, summaryKey(businessDate)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.DailySummary
	if err := json.Unmarshal(val, &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

// Set stores a saved summary. Only persisted snapshots are cached, so an
// entry without a business date is refused.
func (c *RedisSummaryCache) Set(ctx context.Context, summary domain.DailySummary, ttl time.Duration) error {
	if summary.BusinessDate == "" {
		return errors.New("summary has no business date")
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryKey(summary.BusinessDate), payload, ttl).Err()
}

func (c *RedisSummaryCache) Delete(ctx context.Context, businessDate string) error {
	return c.client.Del(ctx, summaryKey(businessDate)).Err()
}
