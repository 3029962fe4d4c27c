package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"

	"moodify-server-go/internal/platform/logging"
	httptransport "moodify-server-go/internal/transport/http"
)

// LimiterSource reports the login limiter policy and its store statistics.
type LimiterSource interface {
	Limit() int
	Window() time.Duration
	Stats(ctx context.Context) (map[string]any, error)
}

// Service answers GET /api/health.
type Service struct {
	started time.Time
	limiter LimiterSource
	logger  *logging.Logger
}

// Response is the health payload.
type Response struct {
	Status        string         `json:"status"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Goroutines    int            `json:"goroutines"`
	Memory        *MemoryStats   `json:"memory,omitempty"`
	RateLimit     map[string]any `json:"rate_limit,omitempty"`
}

// MemoryStats describes host memory usage.
type MemoryStats struct {
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

func NewService(limiter LimiterSource, logger *logging.Logger) *Service {
	return &Service{started: time.Now(), limiter: limiter, logger: logger}
}

func (s *Service) Register(ctx context.Context, router *httptransport.Router) error {
	router.API.GET("/health", httptransport.Dispatch(s.handleHealth))
	return nil
}

func (s *Service) handleHealth(c *gin.Context) *httptransport.Result {
	ctx := c.Request.Context()
	resp := Response{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		resp.Memory = &MemoryStats{TotalBytes: vm.Total, UsedBytes: vm.Used, UsedPercent: vm.UsedPercent}
	} else {
		s.logger.DebugTag("HTTP", "host memory unavailable: %v", err)
	}

	if s.limiter != nil {
		stats, err := s.limiter.Stats(ctx)
		if err != nil {
			s.logger.WarnTag("HTTP", "rate limit store unhealthy: %v", err)
			resp.Status = "degraded"
			return httptransport.JSON(http.StatusServiceUnavailable, resp)
		}
		resp.RateLimit = map[string]any{
			"type":           stats["type"],
			"limit":          s.limiter.Limit(),
			"window_seconds": int64(s.limiter.Window().Seconds()),
		}
	}
	return httptransport.JSON(http.StatusOK, resp)
}
