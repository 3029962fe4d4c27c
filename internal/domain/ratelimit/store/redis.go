package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript bumps the counter and arms the expiry when the window opens.
// It returns the new count and the remaining lifetime in milliseconds.
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a redis-backed window store shared by every gateway instance.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &redisStore{
		client: client,
		prefix: prefix,
	}, nil
}

func (s *redisStore) key(id string) string {
	return s.prefix + id
}

func (s *redisStore) Increment(ctx context.Context, key string, window time.Duration) (Window, error) {
	if key == "" {
		return Window{}, fmt.Errorf("rate limit key required")
	}
	res, err := incrementScript.Run(ctx, s.client, []string{s.key(key)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("redis increment: %w", err)
	}
	if len(res) != 2 {
		return Window{}, fmt.Errorf("redis increment: unexpected reply %v", res)
	}
	return windowFromTTL(key, int(res[0]), time.Duration(res[1])*time.Millisecond, window), nil
}

func (s *redisStore) Get(ctx context.Context, key string) (Window, bool, error) {
	var (
		getCmd *redis.StringCmd
		ttlCmd *redis.DurationCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		getCmd = pipe.Get(ctx, s.key(key))
		ttlCmd = pipe.PTTL(ctx, s.key(key))
		return nil
	})
	if err != nil && err != redis.Nil {
		return Window{}, false, err
	}
	count, err := getCmd.Int()
	if err == redis.Nil {
		return Window{}, false, nil
	}
	if err != nil {
		return Window{}, false, err
	}
	ttl := ttlCmd.Val()
	if ttl <= 0 {
		return Window{}, false, nil
	}
	return windowFromTTL(key, count, ttl, 0), true, nil
}

func (s *redisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *redisStore) CleanupExpired(context.Context) error {
	// Redis handles expiration via TTL.
	return nil
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	var (
		cursor uint64
		active int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		active += len(keys)
		if next == 0 {
			break
		}
		cursor = next
	}
	return map[string]any{
		"type":   "redis",
		"active": active,
		"prefix": s.prefix,
	}, nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}

// windowFromTTL rebuilds window bounds from the remaining key lifetime. When
// window is zero the start is unknown and left at the expiry minus ttl.
func windowFromTTL(key string, count int, ttl, window time.Duration) Window {
	now := time.Now()
	expiresAt := now.Add(ttl)
	start := now
	if window > 0 {
		start = expiresAt.Add(-window)
	}
	return Window{Key: key, Count: count, Start: start, ExpiresAt: expiresAt}
}
