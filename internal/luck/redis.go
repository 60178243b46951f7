package luck

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisCache stores scores under "<prefix>luck:<user>:<day>" with a TTL
// running to the end of the day.
type RedisCache struct {
	client goredis.UniversalClient
	prefix string
}

func NewRedisCache(client goredis.UniversalClient, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// NewRedisClient builds a client from a redis:// URL.
func NewRedisClient(url string) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return goredis.NewClient(opt), nil
}

func (c *RedisCache) key(userID int64, day string) string {
	return fmt.Sprintf("%sluck:%d:%s", c.prefix, userID, day)
}

func (c *RedisCache) Claim(ctx context.Context, userID int64, day string, score int, ttl time.Duration) (int, bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	key := c.key(userID, day)
	// one retry covers a key that expired between SETNX and GET
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := c.client.SetNX(ctx, key, score, ttl).Result()
		if err != nil {
			return 0, false, fmt.Errorf("luck setnx: %w", err)
		}
		if ok {
			return score, true, nil
		}
		v, err := c.client.Get(ctx, key).Int()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return 0, false, fmt.Errorf("luck get: %w", err)
		}
		return v, false, nil
	}
	return 0, false, errors.New("luck: key vanished twice")
}
