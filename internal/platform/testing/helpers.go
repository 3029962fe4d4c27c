package testing

import (
	"testing"
	"time"

	"moodify-server-go/internal/platform/config"
	"moodify-server-go/internal/platform/logging"
)

// TestJWTSecret is the signing secret used by SetupTestConfig.
const TestJWTSecret = "test-secret-please-change"

// SetupTestConfig returns a validated-looking configuration for in-process servers.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Auth.JWTSecret = TestJWTSecret
	cfg.Auth.Users = "bob@x.com:12345"
	cfg.Upstream.APIKey = "sk-test"
	cfg.Upstream.Timeout = 2 * time.Second
	cfg.Storage.SQLiteDSN = "file::memory:?cache=shared"
	cfg.Log.Level = "info"
	cfg.Log.Dir = ""

	return cfg
}

// SetupTestLogger returns a logger that discards output unless -v is given.
func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	if !testing.Verbose() {
		return logging.Discard()
	}
	cfg := SetupTestConfig(t)
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger
}
