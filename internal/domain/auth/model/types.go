package model

import "time"

// Credentials is a submitted identity/secret pair. It is never persisted.
type Credentials struct {
	Identity string `json:"email"`
	Secret   string `json:"password"`
}

// Token is a signed session token together with the claims it was issued with.
type Token struct {
	Value     string    `json:"token"`
	Identity  string    `json:"email"`
	ID        string    `json:"-"`
	IssuedAt  time.Time `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// Logger provides the minimal logging contract required by the auth domain.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}
