package httptransport

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"

	"moodify-server-go/internal/platform/config"
	"moodify-server-go/internal/platform/logging"
	"moodify-server-go/internal/platform/observability"
)

// Options configures the HTTP router builder.
type Options struct {
	Config        *config.Config
	Logger        *logging.Logger
	Authenticator Authenticator
}

// Router bundles together the gin engine, the API group and the shared stages
// services compose their pipelines from.
type Router struct {
	Engine  *gin.Engine
	API     *gin.RouterGroup
	Session Stage
	Body    Stage
}

// Build constructs a gin engine pre-configured with recovery, request ids,
// logging, observability, security headers and CORS.
func Build(opts Options) (*Router, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("http router requires config")
	}
	if opts.Authenticator == nil {
		return nil, fmt.Errorf("http router requires an authenticator")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	cfg := opts.Config

	if strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.ErrorTag("HTTP", "panic serving %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
		RespondError(c, http.StatusInternalServerError, MsgInternalError)
	}))
	engine.Use(requestIDMiddleware())
	engine.Use(loggingMiddleware(logger))
	engine.Use(observabilityMiddleware())
	engine.Use(securityHeadersMiddleware())

	if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	engine.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))

	engine.GET("/metrics", gin.WrapH(observability.MetricsHandler()))

	staticRoot := cfg.Server.StaticDir
	if staticRoot != "" {
		engine.Use(static.Serve("/", static.LocalFile(staticRoot, false)))
	}
	engine.NoRoute(spaFallback(staticRoot))

	api := engine.Group("/api")

	return &Router{
		Engine:  engine,
		API:     api,
		Session: SessionStage(opts.Authenticator),
		Body:    BodyStage(cfg.Server.MaxBodyBytes),
	}, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", observability.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", "RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", observability.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		origins = config.DefaultConfig().Server.AllowedOrigins
	}
	for _, origin := range origins {
		if origin == "*" {
			// Credentialed requests echo the caller origin instead of "*".
			cfg.AllowOriginFunc = func(string) bool { return true }
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

// spaFallback answers unknown API paths with a JSON 404 and serves index.html
// for everything else so client-side routes survive a reload.
func spaFallback(staticRoot string) gin.HandlerFunc {
	index := ""
	if staticRoot != "" {
		index = filepath.Join(staticRoot, "index.html")
	}
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/api" || strings.HasPrefix(path, "/api/") || c.Request.Method != http.MethodGet || index == "" {
			RespondError(c, http.StatusNotFound, MsgNotFound)
			return
		}
		if _, err := os.Stat(index); err != nil {
			RespondError(c, http.StatusNotFound, MsgNotFound)
			return
		}
		c.File(index)
	}
}
