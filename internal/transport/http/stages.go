package httptransport

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"moodify-server-go/internal/domain/auth"
	"moodify-server-go/internal/domain/eventbus"
	"moodify-server-go/internal/domain/proxy"
	"moodify-server-go/internal/domain/ratelimit"
	"moodify-server-go/internal/platform/logging"
	"moodify-server-go/internal/platform/observability"
)

// Context keys set by the stages.
const (
	CtxIdentity      = "identity"
	CtxBody          = "body"
	ctxTerminalStage = "terminal_stage"
)

// MsgNoToken is returned when a protected request carries no bearer token.
const MsgNoToken = "No token provided"

// Authenticator validates bearer tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// AttemptLimiter counts login attempts per client key.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// SessionStage requires a valid "Authorization: Bearer <token>" header and
// stores the identity on the request.
func SessionStage(authenticator Authenticator) Stage {
	return Stage{
		Name: "session",
		Run: func(c *gin.Context) *Result {
			header := c.GetHeader("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return Fail(http.StatusUnauthorized, MsgNoToken)
			}
			token := strings.TrimPrefix(header, "Bearer ")
			if i := strings.IndexByte(token, ' '); i >= 0 {
				token = token[:i]
			}

			identity, err := authenticator.Authenticate(c.Request.Context(), token)
			if err != nil {
				return Fail(http.StatusUnauthorized, auth.MsgInvalidToken)
			}
			c.Set(CtxIdentity, identity)
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), identity))
			return nil
		},
	}
}

// BodyStage reads the request body up to maxBytes and rejects malformed JSON.
// An empty body is passed on as empty.
func BodyStage(maxBytes int64) Stage {
	return Stage{
		Name: "body",
		Run: func(c *gin.Context) *Result {
			reader := http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
			payload, err := io.ReadAll(reader)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if stderrors.As(err, &tooLarge) {
					return Fail(http.StatusRequestEntityTooLarge, MsgPayloadTooLarge)
				}
				return Fail(http.StatusBadRequest, proxy.MsgInvalidBody)
			}
			if len(payload) > 0 && !sonic.Valid(payload) {
				return Fail(http.StatusBadRequest, proxy.MsgInvalidBody)
			}
			c.Set(CtxBody, payload)
			return nil
		},
	}
}

// Body returns the payload captured by BodyStage.
func Body(c *gin.Context) []byte {
	if v, ok := c.Get(CtxBody); ok {
		if payload, ok := v.([]byte); ok {
			return payload
		}
	}
	return nil
}

// RateLimitStage counts the attempt against the client address and answers 429
// once the window is exhausted. RateLimit-* headers are set on every response.
func RateLimitStage(limiter AttemptLimiter, events eventbus.Publisher, logger *logging.Logger) Stage {
	if events == nil {
		events = eventbus.Nop{}
	}
	return Stage{
		Name: "ratelimit",
		Run: func(c *gin.Context) *Result {
			ctx := c.Request.Context()
			key := c.ClientIP()
			decision, err := limiter.Allow(ctx, key)
			if err != nil {
				logger.ErrorTag("LIMIT", "rate limit check failed: %v", err)
				return Fail(http.StatusInternalServerError, MsgInternalError)
			}

			resetSeconds := strconv.Itoa(int(decision.RetryAfter / time.Second))
			c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
			c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			c.Header("RateLimit-Reset", resetSeconds)
			if decision.Allowed {
				return nil
			}

			observability.CountLogin(ctx, "throttled")
			events.Publish(eventbus.EventAuthThrottled, eventbus.ThrottledEventData{
				ClientKey: key,
				ResetAt:   decision.ResetAt,
				RequestID: observability.RequestID(ctx),
			})
			return FromError(ratelimit.ThrottledError(), MsgInternalError).WithHeader("Retry-After", resetSeconds)
		},
	}
}

// Identity returns the identity stored by SessionStage.
func Identity(c *gin.Context) string {
	return c.GetString(CtxIdentity)
}
