package observability

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSetupWithoutExporter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	shutdown, err := Setup(context.Background(), Config{Enabled: true}, logger)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if shutdown == nil {
		t.Fatal("expected shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !Enabled() {
		t.Fatal("expected enabled")
	}

	_, end := StartSpan(context.Background(), "test", "op")
	end(errors.New("boom"))

	out := buf.String()
	if !strings.Contains(out, "span start") || !strings.Contains(out, "span end") {
		t.Fatalf("span lifecycle not logged: %s", out)
	}
	if !strings.Contains(out, "boom") {
		t.Fatalf("span error not logged: %s", out)
	}
}

func TestSpanLoggingDisabled(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	if _, err := Setup(context.Background(), Config{Enabled: false}, logger); err != nil {
		t.Fatalf("setup: %v", err)
	}
	buf.Reset()

	_, end := StartSpan(context.Background(), "test", "quiet")
	end(nil)
	RecordMetric(context.Background(), "quiet.metric", 1, nil)

	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %s", buf.String())
	}
}

func TestMetricsHandlerExposesCounters(t *testing.T) {
	if _, err := Setup(context.Background(), Config{}, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("setup: %v", err)
	}
	ObserveHTTP(context.Background(), "POST", "/api/auth/login", 200, 5*time.Millisecond)
	CountLogin(context.Background(), "success")
	CountUpstream(context.Background(), "chat", 0)

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"moodify_http_requests_total",
		`moodify_login_attempts_total{outcome="success"}`,
		`moodify_upstream_requests_total{route="chat",status="0"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
