package authapi

import (
	"context"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"moodify-server-go/internal/domain/auth"
	"moodify-server-go/internal/domain/eventbus"
	"moodify-server-go/internal/platform/errors"
	"moodify-server-go/internal/platform/logging"
	httptransport "moodify-server-go/internal/transport/http"
)

// Login issues session tokens for valid credentials.
type Login interface {
	Login(ctx context.Context, creds auth.Credentials, clientKey string) (auth.Token, error)
}

// Options wires the auth routes.
type Options struct {
	Manager Login
	Limiter httptransport.AttemptLimiter
	Events  eventbus.Publisher
	Logger  *logging.Logger
}

// Service serves /api/auth/login and /api/auth/verify.
type Service struct {
	manager Login
	limiter httptransport.AttemptLimiter
	events  eventbus.Publisher
	logger  *logging.Logger
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

// VerifyResponse is returned for a valid bearer token.
type VerifyResponse struct {
	Valid bool   `json:"valid"`
	Email string `json:"email"`
}

// NewService creates the auth HTTP service.
func NewService(opts Options) (*Service, error) {
	if opts.Manager == nil {
		return nil, errors.New(errors.KindConfig, "authapi.new", "auth manager is required")
	}
	if opts.Limiter == nil {
		return nil, errors.New(errors.KindConfig, "authapi.new", "rate limiter is required")
	}
	if opts.Logger == nil {
		return nil, errors.New(errors.KindConfig, "authapi.new", "logger is required")
	}
	return &Service{
		manager: opts.Manager,
		limiter: opts.Limiter,
		events:  opts.Events,
		logger:  opts.Logger,
	}, nil
}

// Register mounts the auth routes on the API group of router.
func (s *Service) Register(ctx context.Context, router *httptransport.Router) error {
	group := router.API.Group("/auth")
	group.POST("/login", httptransport.Dispatch(s.handleLogin,
		router.Body,
		httptransport.RateLimitStage(s.limiter, s.events, s.logger),
	))
	group.GET("/verify", httptransport.Dispatch(s.handleVerify, router.Session))

	s.logger.InfoTag("HTTP", "auth routes registered")
	return nil
}

type loginRequest struct {
	Email    any `json:"email"`
	Password any `json:"password"`
}

func (s *Service) handleLogin(c *gin.Context) *httptransport.Result {
	var req loginRequest
	if payload := httptransport.Body(c); len(payload) > 0 {
		// Non-object JSON leaves both fields empty.
		_ = sonic.Unmarshal(payload, &req)
	}
	email, _ := req.Email.(string)
	password, _ := req.Password.(string)

	token, err := s.manager.Login(c.Request.Context(), auth.Credentials{Identity: email, Secret: password}, c.ClientIP())
	if err != nil {
		if errors.HTTPStatus(err) == http.StatusInternalServerError {
			s.logger.ErrorTag("AUTH", "login failed: %v", err)
		}
		return httptransport.FromError(err, httptransport.MsgInternalError)
	}
	return httptransport.JSON(http.StatusOK, LoginResponse{Token: token.Value, Email: token.Identity})
}

func (s *Service) handleVerify(c *gin.Context) *httptransport.Result {
	return httptransport.JSON(http.StatusOK, VerifyResponse{Valid: true, Email: httptransport.Identity(c)})
}
