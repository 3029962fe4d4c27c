package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"moodify-server-go/internal/domain/auth"
	"moodify-server-go/internal/domain/eventbus"
	apperrors "moodify-server-go/internal/platform/errors"
	"moodify-server-go/internal/platform/logging"
	"moodify-server-go/internal/platform/observability"
)

// Messages returned to proxy callers.
const (
	MsgInvalidBody = "Invalid request body"
	MsgProxyError  = "Proxy error"
)

const (
	defaultTimeout      = 60 * time.Second
	maxUpstreamBodySize = 32 << 20
)

// Config configures the upstream connection.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// HTTPClient replaces the default client. Its Timeout is left untouched.
	HTTPClient *http.Client
}

// Response is the upstream answer relayed to the caller unchanged.
type Response struct {
	Status int
	Body   []byte
}

// Proxy forwards validated bodies to the upstream API with the service credential.
type Proxy struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logging.Logger
	events  eventbus.Publisher
}

// New builds a Proxy.
func New(cfg Config, logger *logging.Logger, events eventbus.Publisher) (*Proxy, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.New(apperrors.KindConfig, "proxy.new", "OPENAI_API_KEY environment variable is required")
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = openai.DefaultConfig("").BaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	if events == nil {
		events = eventbus.Nop{}
	}
	return &Proxy{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  client,
		logger:  logger,
		events:  events,
	}, nil
}

// Validate checks body against the contract of route without any network I/O.
func (p *Proxy) Validate(route Route, body []byte) error {
	dest, err := Lookup(route)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDomain, "proxy.validate", "unknown route", err)
	}
	if !dest.Check(body) {
		return apperrors.New(apperrors.KindValidation, "proxy.validate", MsgInvalidBody)
	}
	return nil
}

// Forward validates body and relays it to the upstream endpoint of route. Any
// upstream status is returned as a Response; only transport failures are errors.
func (p *Proxy) Forward(ctx context.Context, route Route, body []byte) (*Response, error) {
	if err := p.Validate(route, body); err != nil {
		return nil, err
	}
	dest, _ := Lookup(route)

	ctx, finish := observability.StartSpan(ctx, "proxy", "proxy."+string(route))
	resp, err := p.send(ctx, dest, body)
	finish(err)

	if err != nil {
		observability.CountUpstream(ctx, string(route), 0)
		p.logger.ErrorTag("PROXY", "%s proxy error: %v", dest.Label, err)
		identity, _ := auth.IdentityFrom(ctx)
		p.events.Publish(eventbus.EventProxyFailed, eventbus.ProxyFailedEventData{
			Route:     string(route),
			Identity:  identity,
			RequestID: observability.RequestID(ctx),
			Reason:    err.Error(),
		})
		return nil, apperrors.Wrap(apperrors.KindTransport, "proxy.forward", MsgProxyError, err)
	}

	observability.CountUpstream(ctx, string(route), resp.Status)
	if resp.Status >= http.StatusBadRequest {
		p.logUpstreamError(dest, resp)
	}
	return resp, nil
}

func (p *Proxy) send(ctx context.Context, dest Destination, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+dest.Path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if len(payload) > maxUpstreamBodySize {
		return nil, fmt.Errorf("upstream body exceeds %d bytes", maxUpstreamBodySize)
	}
	if !sonic.Valid(payload) {
		return nil, fmt.Errorf("upstream returned non-JSON body with status %d", resp.StatusCode)
	}
	return &Response{Status: resp.StatusCode, Body: payload}, nil
}

func (p *Proxy) logUpstreamError(dest Destination, resp *Response) {
	var parsed openai.ErrorResponse
	if err := sonic.Unmarshal(resp.Body, &parsed); err != nil || parsed.Error == nil {
		p.logger.WarnTag("PROXY", "%s upstream returned %d", dest.Label, resp.Status)
		return
	}
	p.logger.WarnTag("PROXY", "%s upstream returned %d (%s): %s", dest.Label, resp.Status, parsed.Error.Type, parsed.Error.Message)
}
