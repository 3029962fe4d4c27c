package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"moodify-server-go/internal/domain/auth/model"
	"moodify-server-go/internal/platform/errors"
)

// DefaultTokenTTL is the lifetime of an issued session token.
const DefaultTokenTTL = 24 * time.Hour

// MsgInvalidToken is returned for every token that fails verification.
const MsgInvalidToken = "Invalid or expired token"

// Claims is the JWT payload carried by session tokens.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 session tokens carrying an identity claim.
type TokenCodec struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// TokenOption customises a TokenCodec.
type TokenOption func(*TokenCodec)

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) TokenOption {
	return func(c *TokenCodec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces the time source used for issuing and verifying tokens.
func WithClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec builds a codec. An empty secret is a configuration error.
func NewTokenCodec(secretKey string, opts ...TokenOption) (*TokenCodec, error) {
	if secretKey == "" {
		return nil, errors.New(errors.KindConfig, "token.new", "JWT_SECRET environment variable is required")
	}
	codec := &TokenCodec{
		secretKey: []byte(secretKey),
		ttl:       DefaultTokenTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(codec)
	}
	return codec, nil
}

// Issue signs a token for identity that expires TTL after now.
func (c *TokenCodec) Issue(identity string) (model.Token, error) {
	if identity == "" {
		return model.Token{}, errors.New(errors.KindValidation, "token.issue", "identity is required")
	}

	issuedAt := c.now()
	expiresAt := issuedAt.Add(c.ttl)
	id := uuid.NewString()
	claims := Claims{
		Email: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject(identity),
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secretKey)
	if err != nil {
		return model.Token{}, errors.Wrap(errors.KindPlatform, "token.issue", "failed to sign token", err)
	}
	return model.Token{
		Value:     signed,
		Identity:  identity,
		ID:        id,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks signature, algorithm and expiry and returns the identity claim.
func (c *TokenCodec) Verify(tokenString string) (string, error) {
	claims, err := c.Parse(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Email, nil
}

// Parse verifies tokenString and returns its full claims.
func (c *TokenCodec) Parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New(errors.KindAuth, "token.verify", MsgInvalidToken)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return c.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, errors.Wrap(errors.KindAuth, "token.verify", MsgInvalidToken, err)
	}
	if !token.Valid || claims.Email == "" {
		return nil, errors.New(errors.KindAuth, "token.verify", MsgInvalidToken)
	}
	return claims, nil
}

func subject(identity string) string {
	if local, _, ok := strings.Cut(identity, "@"); ok && local != "" {
		return local
	}
	return identity
}
