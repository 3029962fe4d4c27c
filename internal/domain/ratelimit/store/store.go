package store

import (
	"context"
	"time"
)

// Window is the attempt counter of one client key.
type Window struct {
	Key       string
	Count     int
	Start     time.Time
	ExpiresAt time.Time
}

// Store holds rate limit windows. Increment must be atomic per key: it opens a
// new window when none is active, otherwise it bumps the live one.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (Window, error)
	Get(ctx context.Context, key string) (Window, bool, error)
	Reset(ctx context.Context, key string) error
	CleanupExpired(ctx context.Context) error
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver string
	Redis  *RedisConfig
	// Now overrides the clock of the memory and sqlite drivers.
	Now func() time.Time
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

func clock(cfg Config) func() time.Time {
	if cfg.Now != nil {
		return cfg.Now
	}
	return time.Now
}
