package httptransport_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"moodify-server-go/internal/domain/auth"
	"moodify-server-go/internal/domain/auth/directory"
	"moodify-server-go/internal/domain/proxy"
	"moodify-server-go/internal/domain/ratelimit"
	rlstore "moodify-server-go/internal/domain/ratelimit/store"
	platformtesting "moodify-server-go/internal/platform/testing"
	httptransport "moodify-server-go/internal/transport/http"
	"moodify-server-go/internal/transport/http/authapi"
	"moodify-server-go/internal/transport/http/gateway"
	"moodify-server-go/internal/transport/http/health"
)

type harness struct {
	engine   *gin.Engine
	upstream *httptest.Server
	calls    *atomic.Int32
}

func newHarness(t *testing.T, upstreamStatus int, upstreamBody string) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	calls := &atomic.Int32{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(upstreamStatus)
		_, _ = io.WriteString(w, upstreamBody)
	}))
	t.Cleanup(upstream.Close)

	staticDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<html>moodify</html>"), 0o644))

	cfg := platformtesting.SetupTestConfig(t)
	cfg.Server.StaticDir = staticDir
	cfg.Server.MaxBodyBytes = 1 << 10
	cfg.Upstream.BaseURL = upstream.URL
	logger := platformtesting.SetupTestLogger(t)

	users, err := directory.ParseUsers(cfg.Auth.Users)
	require.NoError(t, err)
	dir, err := directory.New(directory.Config{Driver: cfg.Auth.Directory, Users: users, Cost: bcrypt.MinCost}, directory.Dependencies{})
	require.NoError(t, err)
	codec, err := auth.NewTokenCodec(cfg.Auth.JWTSecret, auth.WithTTL(cfg.Auth.TokenTTL))
	require.NoError(t, err)
	manager, err := auth.NewManager(auth.Options{Verifier: dir, Codec: codec, Logger: logger})
	require.NoError(t, err)
	limiter, err := ratelimit.NewLimiter(ratelimit.Options{
		Store:       rlstore.NewMemory(rlstore.Config{}),
		Logger:      logger,
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		Window:      cfg.RateLimit.Window,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })
	forwarder, err := proxy.New(proxy.Config{BaseURL: cfg.Upstream.BaseURL, APIKey: cfg.Upstream.APIKey, Timeout: cfg.Upstream.Timeout}, logger, nil)
	require.NoError(t, err)

	router, err := httptransport.Build(httptransport.Options{Config: cfg, Logger: logger, Authenticator: manager})
	require.NoError(t, err)

	authService, err := authapi.NewService(authapi.Options{Manager: manager, Limiter: limiter, Logger: logger})
	require.NoError(t, err)
	gatewayService, err := gateway.NewService(forwarder, logger)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, authService.Register(ctx, router))
	require.NoError(t, gatewayService.Register(ctx, router))
	require.NoError(t, health.NewService(limiter, logger).Register(ctx, router))

	return &harness{engine: router.Engine, upstream: upstream, calls: calls}
}

func (h *harness) do(method, path, body, token string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (h *harness) login(t *testing.T) string {
	t.Helper()
	rec := h.do(http.MethodPost, "/api/auth/login", `{"email":"bob@x.com","password":"12345"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "bob@x.com", body["email"])
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func alterOneChar(token string) string {
	i := strings.IndexByte(token, '.') + 5
	replacement := byte('a')
	if token[i] == 'a' {
		replacement = 'b'
	}
	return token[:i] + string(replacement) + token[i+1:]
}

func TestLoginVerifyEndToEnd(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{}`)
	token := h.login(t)

	rec := h.do(http.MethodGet, "/api/auth/verify", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"valid": true, "email": "bob@x.com"}, decode(t, rec))

	rec = h.do(http.MethodGet, "/api/auth/verify", "", alterOneChar(token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired token", decode(t, rec)["error"])
}

func TestLoginRejections(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
		error  string
	}{
		{"wrong password", `{"email":"bob@x.com","password":"123456"}`, 401, "Invalid credentials"},
		{"unknown user", `{"email":"eve@x.com","password":"12345"}`, 401, "Invalid credentials"},
		{"missing password", `{"email":"bob@x.com"}`, 400, "Email and password are required"},
		{"numeric password", `{"email":"bob@x.com","password":12345}`, 400, "Email and password are required"},
		{"empty email", `{"email":"","password":"12345"}`, 400, "Email and password are required"},
		{"array body", `["bob@x.com","12345"]`, 400, "Email and password are required"},
		{"no body", ``, 400, "Email and password are required"},
		{"malformed json", `{"email":`, 400, "Invalid request body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, http.StatusOK, `{}`)
			rec := h.do(http.MethodPost, "/api/auth/login", tc.body, "")
			assert.Equal(t, tc.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tc.error, body["error"])
			assert.NotContains(t, body, "token")
		})
	}
}

func TestLoginRateLimit(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{}`)

	for i := 1; i <= 5; i++ {
		rec := h.do(http.MethodPost, "/api/auth/login", `{"email":"bob@x.com","password":"wrong"}`, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i)
		assert.Equal(t, "5", rec.Header().Get("RateLimit-Limit"))
		assert.Equal(t, string(rune('0'+5-i)), rec.Header().Get("RateLimit-Remaining"))
	}

	rec := h.do(http.MethodPost, "/api/auth/login", `{"email":"bob@x.com","password":"12345"}`, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many login attempts, please try again later", decode(t, rec)["error"])
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("RateLimit-Remaining"))

	other := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"bob@x.com","password":"12345"}`))
	other.RemoteAddr = "198.51.100.7:4000"
	otherRec := httptest.NewRecorder()
	h.engine.ServeHTTP(otherRec, other)
	assert.Equal(t, http.StatusOK, otherRec.Code, "other clients keep their own window")
}

func TestSessionGate(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{}`)

	rec := h.do(http.MethodGet, "/api/auth/verify", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "No token provided", decode(t, rec)["error"])

	rec = h.do(http.MethodGet, "/api/auth/verify", "", "", "Authorization", "Basic Ym9iOjEyMzQ1")
	assert.Equal(t, "No token provided", decode(t, rec)["error"])

	rec = h.do(http.MethodGet, "/api/auth/verify", "", "not.a.jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired token", decode(t, rec)["error"])

	rec = h.do(http.MethodPost, "/api/chat/completions", `{"messages":[]}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, h.calls.Load())
}

func TestChatProxyEndToEnd(t *testing.T) {
	const reply = `{"id":"chatcmpl-1","choices":[{"index":0,"message":{"role":"assistant","content":"hello"}}]}`
	h := newHarness(t, http.StatusOK, reply)
	token := h.login(t)

	rec := h.do(http.MethodPost, "/api/chat/completions", `{"messages":[{"role":"user","content":"hi"}]}`, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, reply, rec.Body.String())
	assert.Equal(t, int32(1), h.calls.Load())

	rec = h.do(http.MethodPost, "/api/chat/completions", `{"prompt":"hi"}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decode(t, rec)["error"])
	assert.Equal(t, int32(1), h.calls.Load(), "invalid bodies never reach the upstream")

	rec = h.do(http.MethodPost, "/api/chat/completions", `{"messages":[{"role":"user"}]}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int32(1), h.calls.Load())

	rec = h.do(http.MethodPost, "/api/images/generations", `{"prompt":"hi","n":"2"}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int32(1), h.calls.Load())

	rec = h.do(http.MethodPost, "/api/images/generations", `{"prompt":"hi"}`, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(2), h.calls.Load(), "n and size are optional")
}

func TestUpstreamStatusPassthrough(t *testing.T) {
	const reply = `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`
	h := newHarness(t, http.StatusTooManyRequests, reply)
	token := h.login(t)

	rec := h.do(http.MethodPost, "/api/images/generations", `{"prompt":"a green coat","size":"1024x1024"}`, token)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, reply, rec.Body.String())
}

func TestUpstreamTransportFailure(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{}`)
	token := h.login(t)
	h.upstream.Close()

	rec := h.do(http.MethodPost, "/api/chat/completions", `{"messages":[{"role":"user","content":"hi"}]}`, token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]any{"error": "Proxy error"}, decode(t, rec))
}

func TestBodyLimits(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{}`)
	token := h.login(t)

	big := `{"messages":[{"role":"user","content":"` + strings.Repeat("x", 2<<10) + `"}]}`
	rec := h.do(http.MethodPost, "/api/chat/completions", big, token)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = h.do(http.MethodPost, "/api/chat/completions", `{"messages":[`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, h.calls.Load())
}

func TestBoundaryRoutes(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{}`)

	rec := h.do(http.MethodGet, "/api/unknown", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", decode(t, rec)["error"])

	rec = h.do(http.MethodGet, "/boards/42", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "moodify")
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "https://oaidalleapiprodscus.blob.core.windows.net")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = h.do(http.MethodGet, "/api/health", "", "", "X-Request-ID", "req-123")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	healthBody := decode(t, rec)
	assert.Equal(t, "ok", healthBody["status"])
	assert.Equal(t, map[string]any{"type": "memory", "limit": float64(5), "window_seconds": float64(900)}, healthBody["rate_limit"])

	rec = h.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "moodify_http_requests_total")
}

func TestCorsPreflight(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{}`)

	rec := h.do(http.MethodOptions, "/api/auth/login", "", "",
		"Origin", "http://localhost:4200",
		"Access-Control-Request-Method", "POST",
		"Access-Control-Request-Headers", "content-type",
	)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:4200", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = h.do(http.MethodOptions, "/api/auth/login", "", "",
		"Origin", "http://evil.example",
		"Access-Control-Request-Method", "POST",
	)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestTokenExpiryThroughGateway(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{}`)
	cfg := platformtesting.SetupTestConfig(t)

	past := time.Now().Add(-25 * time.Hour)
	codec, err := auth.NewTokenCodec(cfg.Auth.JWTSecret, auth.WithClock(func() time.Time { return past }))
	require.NoError(t, err)
	expired, err := codec.Issue("bob@x.com")
	require.NoError(t, err)

	rec := h.do(http.MethodGet, "/api/auth/verify", "", expired.Value)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired token", decode(t, rec)["error"])
}
