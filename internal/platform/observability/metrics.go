package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moodify",
		Name:      "http_requests_total",
		Help:      "HTTP requests handled by the gateway.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "moodify",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	loginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moodify",
		Name:      "login_attempts_total",
		Help:      "Login attempts by outcome.",
	}, []string{"outcome"})

	upstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moodify",
		Name:      "upstream_requests_total",
		Help:      "Proxied upstream calls by route and status (0 = transport failure).",
	}, []string{"route", "status"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequests,
		httpDuration,
		loginAttempts,
		upstreamRequests,
	)
}

// MetricsHandler serves the gateway registry in the Prometheus exposition format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// ObserveHTTP records one served request.
func ObserveHTTP(ctx context.Context, method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, code).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	RecordMetric(ctx, "http.requests", 1, map[string]string{
		"method": method,
		"path":   path,
		"status": code,
	})
	RecordMetric(ctx, "http.request.duration_ms", float64(duration.Milliseconds()), map[string]string{
		"method": method,
		"path":   path,
	})
}

// CountLogin records a login attempt outcome: success, rejected, invalid, throttled or error.
func CountLogin(ctx context.Context, outcome string) {
	loginAttempts.WithLabelValues(outcome).Inc()
	RecordMetric(ctx, "auth.login", 1, map[string]string{"outcome": outcome})
}

// CountUpstream records a proxied call. status 0 marks a transport failure.
func CountUpstream(ctx context.Context, route string, status int) {
	code := strconv.Itoa(status)
	upstreamRequests.WithLabelValues(route, code).Inc()
	RecordMetric(ctx, "proxy.upstream", 1, map[string]string{"route": route, "status": code})
}
