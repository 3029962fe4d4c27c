package httptransport

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"moodify-server-go/internal/platform/logging"
	"moodify-server-go/internal/platform/observability"
)

var contentSecurityPolicy = strings.Join([]string{
	"default-src 'self'",
	"base-uri 'self'",
	"font-src 'self' https://fonts.gstatic.com",
	"form-action 'self'",
	"frame-ancestors 'self'",
	"img-src 'self' data: https://oaidalleapiprodscus.blob.core.windows.net",
	"object-src 'none'",
	"script-src 'self' 'unsafe-inline'",
	"script-src-attr 'unsafe-inline'",
	"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com",
	"connect-src 'self'",
	"upgrade-insecure-requests",
}, ";")

var securityHeaders = map[string]string{
	"Content-Security-Policy":           contentSecurityPolicy,
	"Cross-Origin-Opener-Policy":        "same-origin",
	"Cross-Origin-Resource-Policy":      "same-origin",
	"Origin-Agent-Cluster":              "?1",
	"Referrer-Policy":                   "no-referrer",
	"Strict-Transport-Security":         "max-age=31536000; includeSubDomains",
	"X-Content-Type-Options":            "nosniff",
	"X-DNS-Prefetch-Control":            "off",
	"X-Download-Options":                "noopen",
	"X-Frame-Options":                   "SAMEORIGIN",
	"X-Permitted-Cross-Domain-Policies": "none",
	"X-XSS-Protection":                  "0",
}

func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		for k, v := range securityHeaders {
			h.Set(k, v)
		}
		c.Next()
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(observability.RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = observability.NewRequestID()
		}
		c.Header(observability.RequestIDHeader, id)
		c.Request = c.Request.WithContext(observability.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()

		msg := "%s %s -> %d (%s) id=%s"
		args := []any{c.Request.Method, c.Request.URL.Path, status, duration, observability.RequestID(c.Request.Context())}
		if stage := TerminalStage(c); stage != "" {
			msg += " stage=%s"
			args = append(args, stage)
		}
		if status >= http.StatusInternalServerError {
			logger.WarnTag("HTTP", msg, args...)
			return
		}
		logger.InfoTag("HTTP", msg, args...)
	}
}

func observabilityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		reqCtx, spanEnd := observability.StartSpan(c.Request.Context(), "http.server", c.Request.Method+" "+path)
		var spanErr error
		c.Request = c.Request.WithContext(reqCtx)

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		status := c.Writer.Status()
		if len(c.Errors) > 0 {
			spanErr = c.Errors.Last().Err
		} else if status >= http.StatusInternalServerError {
			spanErr = fmt.Errorf("status %d", status)
		}
		spanEnd(spanErr)

		observability.ObserveHTTP(reqCtx, c.Request.Method, path, status, duration)
	}
}
