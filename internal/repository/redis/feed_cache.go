package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	FeedKeyPrefix     = "feed:page"
	FeedGenerationKey = "feed:gen"
	DefaultFeedTTL    = 20 * time.Second
)

// FeedCache feed 分页读穿缓存。
// key 带上代号，失效时 INCR 代号即可让所有旧 key 作废，旧 key 依赖 TTL 自然淘汰
type FeedCache struct {
	RDB *redis.Client
	TTL time.Duration
}

func NewFeedCache(rdb *redis.Client, ttl time.Duration) *FeedCache {
	if ttl <= 0 {
		ttl = DefaultFeedTTL
	}
	return &FeedCache{RDB: rdb, TTL: ttl}
}

func (c *FeedCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.RDB.Get(ctx, FeedGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *FeedCache) pageKey(gen int64, key string) string {
	return fmt.Sprintf("%s:%d:%s", FeedKeyPrefix, gen, key)
}

// Get 命中时解码到 dst；同时返回当前代号供回填使用
func (c *FeedCache) Get(ctx context.Context, key string, dst any) (int64, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return 0, false, err
	}
	raw, err := c.RDB.Get(ctx, c.pageKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return gen, false, nil
	}
	if err != nil {
		return gen, false, err
	}
	if err = json.Unmarshal(raw, dst); err != nil {
		return gen, false, err
	}
	return gen, true, nil
}

// Set 回填到 Get 时读到的代号下
func (c *FeedCache) Set(ctx context.Context, gen int64, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, c.pageKey(gen, key), raw, c.TTL).Err()
}

// Invalidate 任何写操作后调用
func (c *FeedCache) Invalidate(ctx context.Context) error {
	return c.RDB.Incr(ctx, FeedGenerationKey).Err()
}
