package config

import (
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DirectoryStatic = "static"
	DirectorySQLite = "sqlite"

	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// DefaultUsers is the single-account directory shipped with the application.
const DefaultUsers = "bob@audaces.com:12345"

// DefaultConfig returns the configuration used before the YAML overlay and the
// environment are applied.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			AllowedOrigins:  []string{"http://localhost:4200", "http://localhost:3000"},
			MaxBodyBytes:    1 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL:  24 * time.Hour,
			Directory: DirectoryStatic,
			Users:     DefaultUsers,
		},
		RateLimit: RateLimitConfig{
			Store:       StoreMemory,
			MaxAttempts: 5,
			Window:      15 * time.Minute,
			GCInterval:  time.Minute,
			Redis: RedisConfig{
				Prefix: "moodify:ratelimit:",
			},
		},
		Upstream: UpstreamConfig{
			BaseURL: openai.DefaultConfig("").BaseURL,
			Timeout: 60 * time.Second,
		},
		Storage: StorageConfig{
			SQLiteDSN: "data/moodify.db",
		},
		Log: LogConfig{
			Level: "info",
			File:  "server.log",
		},
		Observability: ObservabilityConfig{
			ServiceName: "moodify-server",
		},
	}
}
