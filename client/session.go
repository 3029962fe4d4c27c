// Package client holds the caller side of the gateway: the session store, the
// request interceptor that attaches bearer tokens, the route guard and typed
// business calls.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/bytedance/sonic"
	"golang.org/x/sync/singleflight"

	"moodify-server-go/internal/domain/eventbus"
	"moodify-server-go/internal/platform/logging"
)

const (
	LoginPath  = "/api/auth/login"
	VerifyPath = "/api/auth/verify"

	defaultTimeout   = 90 * time.Second
	maxResponseBytes = 1 << 20
)

// ErrRateLimited is returned by Login when the server throttles the caller.
var ErrRateLimited = errors.New("login rate limited")

// State is the client-side view of the session.
type State int

const (
	StateUnauthenticated State = iota
	StatePendingVerification
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StatePendingVerification:
		return "pending-verification"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot is the observable part of a Session.
type Snapshot struct {
	State    State
	Identity string
}

// Navigator moves the user to the login view.
type Navigator interface {
	NavigateToLogin()
}

// NavigatorFunc adapts a plain function to Navigator.
type NavigatorFunc func()

func (f NavigatorFunc) NavigateToLogin() { f() }

// Options configures a Session.
type Options struct {
	// BaseURL is the gateway origin, optionally with a path prefix.
	BaseURL string
	// Transport is the round tripper below the interceptor.
	Transport http.RoundTripper
	Timeout   time.Duration
	Store     TokenStore
	Navigator Navigator
	Logger    *logging.Logger
}

// Session owns the token and the derived authentication state. Consumers only
// read it; every mutation goes through Login, Logout or Verify.
type Session struct {
	baseURL   *url.URL
	store     TokenStore
	navigator Navigator
	logger    *logging.Logger
	bus       evbus.Bus
	client    *http.Client
	verifies  singleflight.Group

	mu       sync.RWMutex
	token    string
	identity string
	state    State
}

type loginResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

type verifyResponse struct {
	Valid bool   `json:"valid"`
	Email string `json:"email"`
}

// NewSession restores any persisted token. A restored token starts
// unauthenticated until Verify confirms it.
func NewSession(opts Options) (*Session, error) {
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid gateway url %q", opts.BaseURL)
	}
	store := opts.Store
	if store == nil {
		store = NewMemoryTokenStore("")
	}
	navigator := opts.Navigator
	if navigator == nil {
		navigator = NavigatorFunc(func() {})
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	token, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("restore token: %w", err)
	}

	s := &Session{
		baseURL:   base,
		store:     store,
		navigator: navigator,
		logger:    logger,
		bus:       eventbus.New(),
		token:     token,
		state:     StateUnauthenticated,
	}
	s.client = &http.Client{
		Transport: NewInterceptor(s, transport),
		Timeout:   timeout,
	}
	return s, nil
}

// HTTPClient returns the interceptor-backed client used for every gateway call.
func (s *Session) HTTPClient() *http.Client {
	return s.client
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{State: s.state, Identity: s.identity}
}

// Subscribe registers fn for every state change.
func (s *Session) Subscribe(fn func(Snapshot)) error {
	return s.bus.Subscribe(eventbus.EventSessionChanged, fn)
}

func (s *Session) Unsubscribe(fn func(Snapshot)) error {
	return s.bus.Unsubscribe(eventbus.EventSessionChanged, fn)
}

// Login posts the credentials. Rejected credentials yield (false, nil), a
// throttled attempt yields ErrRateLimited; neither changes the session.
func (s *Session) Login(ctx context.Context, identity, secret string) (bool, error) {
	payload, err := sonic.Marshal(map[string]string{"email": identity, "password": secret})
	if err != nil {
		return false, fmt.Errorf("encode login request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(LoginPath), bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return false, fmt.Errorf("read login response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusUnauthorized:
		return false, nil
	case http.StatusTooManyRequests:
		return false, ErrRateLimited
	default:
		return false, &StatusError{Status: resp.StatusCode, Route: LoginPath}
	}

	var out loginResponse
	if err := sonic.Unmarshal(body, &out); err != nil {
		return false, fmt.Errorf("decode login response: %w", err)
	}
	if out.Token == "" {
		return false, fmt.Errorf("login response carried no token")
	}
	var saveErr error
	s.transition(func() {
		if saveErr = s.store.Save(out.Token); saveErr != nil {
			return
		}
		s.token = out.Token
		s.identity = out.Email
		s.state = StateAuthenticated
	})
	if saveErr != nil {
		return false, fmt.Errorf("persist token: %w", saveErr)
	}
	s.logger.DebugTag("SESSION", "signed in as %s", out.Email)
	return true, nil
}

// Logout clears the token and the state, then navigates to the login view.
func (s *Session) Logout() {
	s.signOut(func() bool { return true })
}

// Verify asks the server whether the held token is still valid. Without a
// token it returns false and makes no request. Any failure reported by the
// exchange logs out; the caller's own cancellation only returns false.
// Concurrent calls share one request, which outlives any single caller.
func (s *Session) Verify(ctx context.Context) bool {
	token := s.Token()
	if token == "" || ctx.Err() != nil {
		return false
	}
	flight := s.verifies.DoChan(token, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.client.Timeout)
		defer cancel()
		return s.verify(flightCtx, token), nil
	})
	select {
	case <-ctx.Done():
		return false
	case res := <-flight:
		return res.Val.(bool)
	}
}

func (s *Session) verify(ctx context.Context, token string) bool {
	s.transition(func() {
		if s.token == token {
			s.state = StatePendingVerification
		}
	})

	identity, err := s.fetchIdentity(ctx)
	if err != nil {
		s.logger.DebugTag("SESSION", "token verification failed: %v", err)
		s.expireIfCurrent(token)
		return false
	}

	current := false
	s.transition(func() {
		if s.token == token {
			s.identity = identity
			s.state = StateAuthenticated
			current = true
		}
	})
	return current
}

func (s *Session) fetchIdentity(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint(VerifyPath), nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Status: resp.StatusCode, Route: VerifyPath}
	}
	var out verifyResponse
	if err := sonic.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode verify response: %w", err)
	}
	if !out.Valid {
		return "", fmt.Errorf("server reported token invalid")
	}
	return out.Email, nil
}

// expireIfCurrent logs out only when token is still the held token, so a late
// 401 for an older token never ends a newer session.
func (s *Session) expireIfCurrent(token string) {
	if token == "" {
		return
	}
	s.signOut(func() bool { return s.token == token })
}

// signOut clears the token when match holds. The check, the persisted token
// and the state change share one critical section so a concurrent Login is
// either fully kept or fully cleared.
func (s *Session) signOut(match func() bool) {
	signedOut := false
	s.transition(func() {
		if !match() {
			return
		}
		if err := s.store.Clear(); err != nil {
			s.logger.WarnTag("SESSION", "failed to clear persisted token: %v", err)
		}
		s.token = ""
		s.identity = ""
		s.state = StateUnauthenticated
		signedOut = true
	})
	if signedOut {
		s.navigator.NavigateToLogin()
	}
}

func (s *Session) transition(apply func()) {
	s.mu.Lock()
	before := Snapshot{State: s.state, Identity: s.identity}
	apply()
	after := Snapshot{State: s.state, Identity: s.identity}
	s.mu.Unlock()

	if before != after {
		s.bus.Publish(eventbus.EventSessionChanged, after)
	}
}

func (s *Session) routePath(route string) string {
	return strings.TrimSuffix(s.baseURL.Path, "/") + route
}

func (s *Session) endpoint(route string) string {
	u := *s.baseURL
	u.Path = s.routePath(route)
	u.RawPath = ""
	u.RawQuery = ""
	return u.String()
}
