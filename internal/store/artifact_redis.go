package store

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisArtifacts keeps artifacts as Redis hashes that expire after ttl.
type RedisArtifacts struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisArtifacts(redisURL string, ttl time.Duration) (*RedisArtifacts, error) {
	c, err := Connect(redisURL)
	if err != nil {
		return nil, err
	}
	return NewRedisArtifactsClient(c, ttl), nil
}

// NewRedisArtifactsClient shares an existing client. Close closes it.
func NewRedisArtifactsClient(c *redis.Client, ttl time.Duration) *RedisArtifacts {
	return &RedisArtifacts{client: c, ttl: ttl}
}

func (s *RedisArtifacts) Close() error { return s.client.Close() }

func (s *RedisArtifacts) key(k string) string { return "artifact:" + k }

func (s *RedisArtifacts) Put(ctx context.Context, key string, data []byte) error {
	k := s.key(key)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, k, map[string]interface{}{
		"data":       data,
		"size":       len(data),
		"created_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisArtifacts) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.HGet(ctx, s.key(key), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *RedisArtifacts) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// Connect parses redisURL and pings the server.
func Connect(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}
