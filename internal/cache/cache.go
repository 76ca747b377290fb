package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"taskflow/internal/domain"
)

const keyPrefix = "taskflow:"

func ProjectKey(id string) string { return keyPrefix + "project:" + id }
func TaskKey(id string) string    { return keyPrefix + "task:" + id }

// Cache is a read-through helper over Redis. A nil *Cache is valid and
// behaves as an always-missing cache. Errors are logged and never returned.
type Cache struct {
	client *redislib.Client
	ttl    time.Duration
	logger *zap.Logger
}

func New(client *redislib.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// NewClient parses a redis:// URL and verifies connectivity.
func NewClient(url string) (*redislib.Client, error) {
	opts, err := redislib.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redislib.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (c *Cache) get(ctx context.Context, key string, dst any) bool {
	if c == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redislib.Nil) {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warn("cache decode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *Cache) set(ctx context.Context, key string, v any) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) del(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (c *Cache) Project(ctx context.Context, id string) (domain.Project, bool) {
	var p domain.Project
	ok := c.get(ctx, ProjectKey(id), &p)
	return p, ok
}

func (c *Cache) PutProject(ctx context.Context, p domain.Project) { c.set(ctx, ProjectKey(p.ID), p) }

func (c *Cache) Task(ctx context.Context, id string) (domain.Task, bool) {
	var t domain.Task
	ok := c.get(ctx, TaskKey(id), &t)
	return t, ok
}

func (c *Cache) PutTask(ctx context.Context, t domain.Task) { c.set(ctx, TaskKey(t.ID), t) }

func (c *Cache) InvalidateProject(ctx context.Context, ids ...string) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, ProjectKey(id))
	}
	c.del(ctx, keys...)
}

func (c *Cache) InvalidateTask(ctx context.Context, ids ...string) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, TaskKey(id))
	}
	c.del(ctx, keys...)
}
