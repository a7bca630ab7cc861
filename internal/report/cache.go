package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultCacheKey = "report:summary"

// Cache keeps the latest Summary in Redis as JSON.
type Cache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, key: DefaultCacheKey, ttl: ttl}
}

// Get returns the cached summary, or false when nothing is cached.
func (c *Cache) Get(ctx context.Context) (*Summary, bool, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", c.key, err)
	}

	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, fmt.Errorf("decode cached summary: %w", err)
	}
	return &s, true, nil
}

func (c *Cache) Set(ctx context.Context, s *Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", c.key, err)
	}
	return nil
}

