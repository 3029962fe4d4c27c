package auth

import (
	"context"
	"errors"
	"time"

	"moodify-server-go/internal/domain/auth/model"
	"moodify-server-go/internal/domain/eventbus"
	apperrors "moodify-server-go/internal/platform/errors"
	"moodify-server-go/internal/platform/observability"
)

type (
	// Credentials re-exports the submitted login pair.
	Credentials = model.Credentials
	// Token re-exports the issued session token.
	Token = model.Token
	// Logger re-exports the logging interface used across the domain.
	Logger = model.Logger
)

// Messages returned to callers of the login and verify operations.
const (
	MsgCredentialsRequired = "Email and password are required"
	MsgInvalidCredentials  = "Invalid credentials"
)

// CredentialVerifier checks an identity/secret pair against a user directory.
type CredentialVerifier interface {
	Verify(ctx context.Context, identity, secret string) (bool, error)
}

// Options encapsulates the dependencies required to construct a Manager.
type Options struct {
	Verifier CredentialVerifier
	Codec    *TokenCodec
	Logger   Logger
	// Events receives auth:login events. Optional.
	Events eventbus.Publisher
}

// Manager issues tokens for verified credentials and authenticates presented tokens.
type Manager struct {
	verifier CredentialVerifier
	codec    *TokenCodec
	logger   Logger
	events   eventbus.Publisher
}

// NewManager wires a Manager using the supplied options.
func NewManager(opts Options) (*Manager, error) {
	if opts.Verifier == nil {
		return nil, errors.New("auth manager requires a credential verifier")
	}
	if opts.Codec == nil {
		return nil, errors.New("auth manager requires a token codec")
	}
	if opts.Logger == nil {
		return nil, errors.New("auth manager requires a logger")
	}
	events := opts.Events
	if events == nil {
		events = eventbus.Nop{}
	}
	return &Manager{
		verifier: opts.Verifier,
		codec:    opts.Codec,
		logger:   opts.Logger,
		events:   events,
	}, nil
}

// Login verifies creds and issues a token. clientKey only feeds the audit trail.
func (m *Manager) Login(ctx context.Context, creds Credentials, clientKey string) (Token, error) {
	ctx, finish := observability.StartSpan(ctx, "auth", "auth.login")
	token, err := m.login(ctx, creds, clientKey)
	finish(err)
	return token, err
}

func (m *Manager) login(ctx context.Context, creds Credentials, clientKey string) (Token, error) {
	if creds.Identity == "" || creds.Secret == "" {
		observability.CountLogin(ctx, "invalid")
		return Token{}, apperrors.New(apperrors.KindValidation, "auth.login", MsgCredentialsRequired)
	}

	ok, err := m.verifier.Verify(ctx, creds.Identity, creds.Secret)
	if err != nil {
		observability.CountLogin(ctx, "error")
		m.logger.Error("credential lookup failed: %v", err)
		return Token{}, apperrors.Wrap(apperrors.KindStorage, "auth.login", "credential lookup failed", err)
	}

	m.events.Publish(eventbus.EventAuthLogin, eventbus.LoginEventData{
		Identity:  creds.Identity,
		ClientKey: clientKey,
		Success:   ok,
		RequestID: observability.RequestID(ctx),
		At:        time.Now(),
	})

	if !ok {
		observability.CountLogin(ctx, "rejected")
		m.logger.Debug("login rejected for %s", creds.Identity)
		return Token{}, apperrors.New(apperrors.KindAuth, "auth.login", MsgInvalidCredentials)
	}

	token, err := m.codec.Issue(creds.Identity)
	if err != nil {
		observability.CountLogin(ctx, "error")
		return Token{}, err
	}
	observability.CountLogin(ctx, "success")
	m.logger.Debug("issued token %s for %s", token.ID, creds.Identity)
	return token, nil
}

// Authenticate validates a presented bearer token and returns its identity.
func (m *Manager) Authenticate(ctx context.Context, tokenString string) (string, error) {
	identity, err := m.codec.Verify(tokenString)
	if err != nil {
		m.logger.Debug("token rejected: %v", errors.Unwrap(err))
		return "", err
	}
	return identity, nil
}
