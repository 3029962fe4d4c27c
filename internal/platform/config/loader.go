package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"moodify-server-go/internal/platform/errors"
)

// Loader assembles configuration from defaults, an optional YAML overlay and the
// process environment, in that order.
type Loader struct {
	useDotEnv   bool
	dotEnvFiles []string
	environment map[string]string
}

// NewLoader creates a loader that reads .env and the process environment.
func NewLoader() *Loader {
	return &Loader{useDotEnv: true}
}

// WithDotEnv toggles loading variables from .env files before reading config.
func (l *Loader) WithDotEnv(enabled bool, files ...string) *Loader {
	l.useDotEnv = enabled
	l.dotEnvFiles = files
	return l
}

// WithEnvironment replaces the process environment (useful for tests).
func (l *Loader) WithEnvironment(environment map[string]string) *Loader {
	l.environment = environment
	return l
}

// Result captures the loaded configuration and the overlay it came from.
type Result struct {
	Config *Config
	Path   string
}

// Load builds and validates the configuration. Missing secrets are reported as
// KindConfig errors and must abort startup.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv && l.environment == nil {
		// A missing .env file is normal in production.
		_ = godotenv.Load(l.dotEnvFiles...)
	}

	cfg := DefaultConfig()

	path := l.lookup("CONFIG_FILE")
	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	opts := env.Options{}
	if l.environment != nil {
		opts.Environment = l.environment
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, errors.Wrap(errors.KindConfig, "config.env", "failed to parse environment", err)
	}
	normalize(cfg)

	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: path}, nil
}

func (l *Loader) lookup(key string) string {
	if l.environment != nil {
		return l.environment[key]
	}
	return os.Getenv(key)
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.KindConfig, "config.yaml", "failed to read config file", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrap(errors.KindConfig, "config.yaml", "failed to parse config file", err)
	}
	return nil
}

func normalize(cfg *Config) {
	cfg.Auth.Directory = strings.ToLower(strings.TrimSpace(cfg.Auth.Directory))
	cfg.RateLimit.Store = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Store))
	cfg.Upstream.BaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.Upstream.BaseURL), "/")

	origins := cfg.Server.AllowedOrigins[:0]
	for _, origin := range cfg.Server.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	cfg.Server.AllowedOrigins = origins
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New(errors.KindConfig, "config.validate", "JWT_SECRET environment variable is required")
	}
	if cfg.Upstream.APIKey == "" {
		return errors.New(errors.KindConfig, "config.validate", "OPENAI_API_KEY environment variable is required")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("invalid port %d", cfg.Server.Port))
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		return errors.New(errors.KindConfig, "config.validate", "max body bytes must be positive")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return errors.New(errors.KindConfig, "config.validate", "token ttl must be positive")
	}
	if cfg.RateLimit.MaxAttempts <= 0 || cfg.RateLimit.Window <= 0 {
		return errors.New(errors.KindConfig, "config.validate", "rate limit attempts and window must be positive")
	}
	if cfg.Upstream.Timeout <= 0 {
		return errors.New(errors.KindConfig, "config.validate", "upstream timeout must be positive")
	}
	if u, err := url.Parse(cfg.Upstream.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("invalid upstream base url %q", cfg.Upstream.BaseURL))
	}

	switch cfg.Auth.Directory {
	case DirectoryStatic, DirectorySQLite:
	default:
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("unsupported auth directory %q", cfg.Auth.Directory))
	}
	switch cfg.RateLimit.Store {
	case StoreMemory, StoreSQLite:
	case StoreRedis:
		if cfg.RateLimit.Redis.Addr == "" {
			return errors.New(errors.KindConfig, "config.validate", "REDIS_ADDR is required for the redis rate limit store")
		}
	default:
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("unsupported rate limit store %q", cfg.RateLimit.Store))
	}
	return nil
}
