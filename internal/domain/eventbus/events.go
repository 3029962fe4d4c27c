package eventbus

import "time"

// Topics published by the gateway.
const (
	EventAuthLogin     = "auth:login"
	EventAuthThrottled = "auth:throttled"
	EventProxyFailed   = "proxy:failed"
)

// EventSessionChanged is published by the client session on every state transition.
const EventSessionChanged = "session:changed"

// LoginEventData describes one login attempt that reached the credential verifier.
type LoginEventData struct {
	Identity  string    `json:"identity"`
	ClientKey string    `json:"client_key"`
	Success   bool      `json:"success"`
	RequestID string    `json:"request_id,omitempty"`
	At        time.Time `json:"at"`
}

// ThrottledEventData describes a login attempt rejected by the rate limiter.
type ThrottledEventData struct {
	ClientKey string    `json:"client_key"`
	ResetAt   time.Time `json:"reset_at"`
	RequestID string    `json:"request_id,omitempty"`
}

// ProxyFailedEventData describes a forward that never produced an upstream response.
type ProxyFailedEventData struct {
	Route     string `json:"route"`
	Identity  string `json:"identity,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Reason    string `json:"reason"`
}
