package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Jainish-S/playground/apps/card-generator-go/internal/config"
	"github.com/redis/go-redis/v9"
)

const MergeStream = "cards:merge"

var ErrCacheMiss = errors.New("cache miss")

// MergeJob asks the worker to merge the ID PDFs of one print queue batch.
type MergeJob struct {
	ID      string
	BatchID int64
}

// RedisCache wraps the Redis client for caching operations
type RedisCache struct {
	client    *redis.Client
	fieldsTTL time.Duration
}

// New creates a new Redis cache client
func New(cfg *config.Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		DB:           cfg.RedisDB,
		Password:     cfg.RedisPassword,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, cfg.FieldsCacheTTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, fieldsTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, fieldsTTL: fieldsTTL}
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// HealthCheck performs a Redis health check
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func fieldsKey(templateID string) string {
	return "fields:" + templateID
}

// GetFields decodes the cached field catalog of a template into dest.
func (c *RedisCache) GetFields(ctx context.Context, templateID string, dest any) error {
	val, err := c.client.Get(ctx, fieldsKey(templateID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("cache get error: %w", err)
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("cache decode error: %w", err)
	}
	return nil
}

// SetFields caches the field catalog of a template with the configured TTL
func (c *RedisCache) SetFields(ctx context.Context, templateID string, fields any) error {
	val, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("cache encode error: %w", err)
	}
	if err := c.client.Set(ctx, fieldsKey(templateID), val, c.fieldsTTL).Err(); err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

// DeleteFields drops the cached catalog after the template changes
func (c *RedisCache) DeleteFields(ctx context.Context, templateID string) error {
	if err := c.client.Del(ctx, fieldsKey(templateID)).Err(); err != nil {
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

// CheckRateLimit implements fixed window rate limiting
// Returns true if request is allowed, false if rate limited
func (c *RedisCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	rateLimitKey := "ratelimit:" + key

	count, err := c.client.Incr(ctx, rateLimitKey).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit error: %w", err)
	}

	if count == 1 {
		if err := c.client.Expire(ctx, rateLimitKey, window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire error: %w", err)
		}
	}

	return count <= int64(limit), nil
}

// EnqueueMergeJob adds a batch merge request to the merge stream
func (c *RedisCache) EnqueueMergeJob(ctx context.Context, batchID int64) (string, error) {
	id, err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: MergeStream,
		Values: map[string]interface{}{"batch_id": batchID},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("stream add error: %w", err)
	}
	return id, nil
}

// ReadMergeJobs pops up to count jobs from the merge stream without blocking.
// Entries with an unreadable batch id are dropped. If a delete fails, the jobs
// already removed from the stream are returned with the error.
func (c *RedisCache) ReadMergeJobs(ctx context.Context, count int) ([]MergeJob, error) {
	result, err := c.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{MergeStream, "0"},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stream read error: %w", err)
	}

	jobs := make([]MergeJob, 0)
	for _, stream := range result {
		for _, msg := range stream.Messages {
			if err := c.client.XDel(ctx, stream.Stream, msg.ID).Err(); err != nil {
				return jobs, fmt.Errorf("stream delete error: %w", err)
			}

			raw, _ := msg.Values["batch_id"].(string)
			batchID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				continue
			}
			jobs = append(jobs, MergeJob{ID: msg.ID, BatchID: batchID})
		}
	}

	return jobs, nil
}

// Stats returns Redis statistics
func (c *RedisCache) Stats() *redis.PoolStats {
	return c.client.PoolStats()
}
