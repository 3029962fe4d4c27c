package bootstrap

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	platformconfig "moodify-server-go/internal/platform/config"
	platformerrors "moodify-server-go/internal/platform/errors"
	platformlogging "moodify-server-go/internal/platform/logging"
)

func testEnvironment(t *testing.T, overrides map[string]string) map[string]string {
	t.Helper()
	env := map[string]string{
		"JWT_SECRET":        "smoke-secret",
		"OPENAI_API_KEY":    "sk-smoke",
		"UPSTREAM_BASE_URL": "http://127.0.0.1:1",
		"AUTH_USERS":        "bob@x.com:12345",
		"LOG_LEVEL":         "error",
	}
	for k, v := range overrides {
		env[k] = v
	}
	return env
}

func newState(t *testing.T, overrides map[string]string) *appState {
	t.Helper()
	return &appState{
		loader: platformconfig.NewLoader().WithDotEnv(false).WithEnvironment(testEnvironment(t, overrides)),
	}
}

func TestInitGraphOrder(t *testing.T) {
	steps := InitGraph()
	want := []string{
		"config:load",
		"logging:init-provider",
		"observability:setup-hooks",
		"eventbus:start",
		"storage:init-database",
		"auth:init-manager",
		"ratelimit:init-limiter",
		"proxy:init-forwarder",
		"http:init-router",
	}
	if len(steps) != len(want) {
		t.Fatalf("unexpected step count: got %d want %d", len(steps), len(want))
	}
	for i, step := range steps {
		if step.ID != want[i] {
			t.Fatalf("step %d mismatch: got %s want %s", i, step.ID, want[i])
		}
	}
}

func TestExecuteInitGraph(t *testing.T) {
	state := newState(t, nil)
	if err := executeInitSteps(context.Background(), InitGraph(), state); err != nil {
		t.Fatalf("executeInitSteps failed: %v", err)
	}
	defer state.close()

	if state.config == nil || state.logger == nil {
		t.Fatal("config/logger not initialised")
	}
	if state.authManager == nil || state.limiter == nil || state.forwarder == nil || state.router == nil {
		t.Fatal("components not initialised")
	}
	if state.observabilityShutdown == nil {
		t.Fatal("observability shutdown hook not set")
	}
	if state.db != nil {
		t.Fatal("database opened although no driver needs it")
	}

	srv := httptest.NewServer(state.router.Engine)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/auth/login", "application/json", strings.NewReader(`{"email":"bob@x.com","password":"12345"}`))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["email"] != "bob@x.com" || body["token"] == "" {
		t.Fatalf("unexpected login body %v", body)
	}
}

func TestExecuteInitGraphWithSQLite(t *testing.T) {
	state := newState(t, map[string]string{
		"AUTH_DIRECTORY":   "sqlite",
		"RATE_LIMIT_STORE": "sqlite",
		"SQLITE_DSN":       filepath.Join(t.TempDir(), "smoke.db"),
	})
	if err := executeInitSteps(context.Background(), InitGraph(), state); err != nil {
		t.Fatalf("executeInitSteps failed: %v", err)
	}
	defer state.close()

	if state.db == nil {
		t.Fatal("expected sqlite database")
	}
	users, err := state.directory.List(context.Background())
	if err != nil || len(users) != 1 || users[0] != "bob@x.com" {
		t.Fatalf("unexpected seeded users %v (%v)", users, err)
	}
}

func TestExecuteInitGraphWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	state := newState(t, map[string]string{
		"RATE_LIMIT_STORE": "redis",
		"REDIS_ADDR":       mr.Addr(),
	})
	if err := executeInitSteps(context.Background(), InitGraph(), state); err != nil {
		t.Fatalf("executeInitSteps failed: %v", err)
	}
	defer state.close()

	decision, err := state.limiter.Allow(context.Background(), "203.0.113.9")
	if err != nil || !decision.Allowed {
		t.Fatalf("unexpected decision %+v (%v)", decision, err)
	}
}

func TestMissingSecretAbortsStartup(t *testing.T) {
	for _, key := range []string{"JWT_SECRET", "OPENAI_API_KEY"} {
		t.Run(key, func(t *testing.T) {
			state := newState(t, map[string]string{key: ""})
			err := executeInitSteps(context.Background(), InitGraph(), state)
			if err == nil {
				t.Fatal("expected startup failure")
			}
			if !platformerrors.IsKind(err, platformerrors.KindConfig) {
				t.Fatalf("expected config error, got %v", err)
			}
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("error should name %s: %v", key, err)
			}
			if state.router != nil {
				t.Fatal("router must not be built")
			}
		})
	}
}

func TestExecuteInitStepsChecksDependencies(t *testing.T) {
	steps := []initStep{
		{ID: "b", DependsOn: []string{"a"}, Execute: func(context.Context, *appState) error { return nil }},
	}
	err := executeInitSteps(context.Background(), steps, &appState{})
	if err == nil || !platformerrors.IsKind(err, platformerrors.KindBootstrap) {
		t.Fatalf("expected bootstrap error, got %v", err)
	}
}

func TestRunServesUntilCancelled(t *testing.T) {
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe listener: %v", err)
	}
	port := probe.Addr().(*net.TCPAddr).Port
	probe.Close()

	state := newState(t, map[string]string{
		"HOST": "127.0.0.1",
		"PORT": strconv.Itoa(port),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, state) }()

	healthURL := "http://127.0.0.1:" + strconv.Itoa(port) + "/api/health"
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(healthURL)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("health status %d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestLogBootstrapGraphOutput(t *testing.T) {
	tmp := t.TempDir()
	logger, err := platformlogging.New(platformlogging.Config{
		Level:    "info",
		Dir:      tmp,
		Filename: "graph.log",
		Console:  &strings.Builder{},
	})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logBootstrapGraph(InitGraph(), logger)
	logger.Close()

	data, err := os.ReadFile(filepath.Join(tmp, "graph.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "init graph overview") {
		t.Fatalf("graph header missing in log output: %s", content)
	}
	for _, step := range InitGraph() {
		if !strings.Contains(content, step.ID) {
			t.Fatalf("expected graph output to contain %q, got: %s", step.ID, content)
		}
	}
}
