package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// JobState is the lightweight status mirror kept in Redis so pollers do not
// hit Postgres on every request. Postgres remains the source of truth.
type JobState struct {
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	CurrentStep string `json:"current_step"`
}

// Cache is the caching interface. All Redis operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	SetJobState(ctx context.Context, jobID uuid.UUID, state JobState, ttl time.Duration) error
	GetJobState(ctx context.Context, jobID uuid.UUID) (JobState, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) SetJobState(ctx context.Context, jobID uuid.UUID, state JobState, ttl time.Duration) error {
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, JobStateKey(jobID), map[string]any{
		"status":       state.Status,
		"progress":     state.Progress,
		"current_step": state.CurrentStep,
	})
	pipe.Expire(ctx, JobStateKey(jobID), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) GetJobState(ctx context.Context, jobID uuid.UUID) (JobState, bool, error) {
	vals, err := c.client.HGetAll(ctx, JobStateKey(jobID)).Result()
	if err != nil {
		return JobState{}, false, err
	}
	if len(vals) == 0 {
		return JobState{}, false, nil
	}
	state := JobState{
		Status:      vals["status"],
		CurrentStep: vals["current_step"],
	}
	if p, err := strconv.Atoi(vals["progress"]); err == nil {
		state.Progress = p
	}
	return state, true, nil
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
