package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const (
	ChatPath  = "/api/chat/completions"
	ImagePath = "/api/images/generations"
)

// StatusError is a non-success gateway response.
type StatusError struct {
	Status int
	Route  string
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: status %d: %v", e.Route, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: status %d", e.Route, e.Status)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// API performs the business calls through the session's interceptor.
type API struct {
	client *openai.Client
}

func NewAPI(session *Session) *API {
	cfg := openai.DefaultConfig("")
	cfg.BaseURL = session.endpoint("/api")
	cfg.HTTPClient = session.HTTPClient()
	return &API{client: openai.NewClientWithConfig(cfg)}
}

func (a *API) ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return resp, statusError(ChatPath, err)
	}
	return resp, nil
}

func (a *API) GenerateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error) {
	resp, err := a.client.CreateImage(ctx, req)
	if err != nil {
		return resp, statusError(ImagePath, err)
	}
	return resp, nil
}

func statusError(route string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &StatusError{Status: apiErr.HTTPStatusCode, Route: route, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &StatusError{Status: reqErr.HTTPStatusCode, Route: route, Err: err}
	}
	return err
}

// StatusOf extracts the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}
	if errors.Is(err, ErrRateLimited) {
		return http.StatusTooManyRequests
	}
	return 0
}
