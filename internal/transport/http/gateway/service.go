package gateway

import (
	"context"

	"github.com/gin-gonic/gin"

	"moodify-server-go/internal/domain/proxy"
	"moodify-server-go/internal/platform/errors"
	"moodify-server-go/internal/platform/logging"
	httptransport "moodify-server-go/internal/transport/http"
)

// Forwarder relays validated bodies upstream.
type Forwarder interface {
	Forward(ctx context.Context, route proxy.Route, body []byte) (*proxy.Response, error)
}

// Service exposes the proxied upstream routes.
type Service struct {
	forwarder Forwarder
	logger    *logging.Logger
}

// NewService creates the gateway HTTP service.
func NewService(forwarder Forwarder, logger *logging.Logger) (*Service, error) {
	if forwarder == nil {
		return nil, errors.New(errors.KindConfig, "gateway.new", "forwarder is required")
	}
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "gateway.new", "logger is required")
	}
	return &Service{forwarder: forwarder, logger: logger}, nil
}

// Register mounts one protected POST route per proxy destination.
func (s *Service) Register(ctx context.Context, router *httptransport.Router) error {
	router.API.POST("/chat/completions", httptransport.Dispatch(s.forward(proxy.RouteChat), router.Body, router.Session))
	router.API.POST("/images/generations", httptransport.Dispatch(s.forward(proxy.RouteImages), router.Body, router.Session))

	s.logger.InfoTag("HTTP", "gateway routes registered")
	return nil
}

func (s *Service) forward(route proxy.Route) httptransport.Handler {
	return func(c *gin.Context) *httptransport.Result {
		resp, err := s.forwarder.Forward(c.Request.Context(), route, httptransport.Body(c))
		if err != nil {
			return httptransport.FromError(err, proxy.MsgProxyError)
		}
		return httptransport.RawJSON(resp.Status, resp.Body)
	}
}
