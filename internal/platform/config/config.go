package config

import (
	"time"
)

// Config is the full runtime configuration of the gateway. Secrets are only ever
// read from the environment; everything else may also come from the YAML overlay.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	Storage       StorageConfig       `yaml:"storage"`
	Log           LogConfig           `yaml:"log"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	TrustedProxies  []string      `yaml:"trusted_proxies" env:"TRUSTED_PROXIES" envSeparator:","`
	StaticDir       string        `yaml:"static_dir" env:"STATIC_DIR"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"-" env:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
	// Directory selects the credential directory driver: static or sqlite.
	Directory string `yaml:"directory" env:"AUTH_DIRECTORY"`
	// Users seeds the directory as "email:password" pairs separated by commas.
	Users string `yaml:"-" env:"AUTH_USERS"`
}

type RateLimitConfig struct {
	Store       string        `yaml:"store" env:"RATE_LIMIT_STORE"`
	MaxAttempts int           `yaml:"max_attempts" env:"RATE_LIMIT_MAX"`
	Window      time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW"`
	GCInterval  time.Duration `yaml:"gc_interval" env:"RATE_LIMIT_GC_INTERVAL"`
	Redis       RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Username string `yaml:"username,omitempty" env:"REDIS_USERNAME"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db,omitempty" env:"REDIS_DB"`
	Prefix   string `yaml:"prefix,omitempty" env:"REDIS_PREFIX"`
}

type UpstreamConfig struct {
	APIKey  string        `yaml:"-" env:"OPENAI_API_KEY"`
	BaseURL string        `yaml:"base_url" env:"UPSTREAM_BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"UPSTREAM_TIMEOUT"`
}

type StorageConfig struct {
	SQLiteDSN string `yaml:"sqlite_dsn" env:"SQLITE_DSN"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
	Dir   string `yaml:"dir" env:"LOG_DIR"`
	File  string `yaml:"file" env:"LOG_FILE"`
}

type ObservabilityConfig struct {
	Enabled      bool   `yaml:"enabled" env:"OBSERVABILITY_ENABLED"`
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
}

// NeedsSQLite reports whether any configured driver is backed by the sqlite database.
func (c *Config) NeedsSQLite() bool {
	return c.Auth.Directory == DirectorySQLite || c.RateLimit.Store == StoreSQLite
}
