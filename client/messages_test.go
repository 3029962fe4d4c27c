package client

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageFor(t *testing.T) {
	cases := []struct {
		status int
		lang   string
		want   string
	}{
		{http.StatusUnauthorized, "en", "Your session has expired. Please sign in again."},
		{http.StatusTooManyRequests, "en", "Too many requests. Please wait a moment and try again."},
		{http.StatusInternalServerError, "en", "The service is temporarily unavailable. Please try again later."},
		{http.StatusTeapot, "en", "Something went wrong. Please try again."},
		{http.StatusUnauthorized, "pt-BR", "Sua sessão expirou. Entre novamente."},
		{http.StatusTooManyRequests, "pt", "Muitas solicitações. Aguarde um momento e tente novamente."},
		{http.StatusUnauthorized, "fr", "Your session has expired. Please sign in again."},
		{http.StatusUnauthorized, "", "Your session has expired. Please sign in again."},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MessageFor(tc.status, tc.lang), "status %d lang %q", tc.status, tc.lang)
	}
}

func TestMessageForRoute(t *testing.T) {
	assert.Equal(t, Message(KeyImagePromptRejected, "en"), MessageForRoute(ImagePath, http.StatusBadRequest, "en"))
	assert.Equal(t, Message(KeyGeneric, "en"), MessageForRoute(ChatPath, http.StatusBadRequest, "en"))
	assert.Equal(t, Message(KeyRateLimited, "en"), MessageForRoute(ImagePath, http.StatusTooManyRequests, "en"))
}

func TestMessageForError(t *testing.T) {
	assert.Equal(t, Message(KeyRateLimited, "en"), MessageForError(ErrRateLimited, "en"))
	assert.Equal(t, Message(KeyServiceUnavailable, "pt-BR"), MessageForError(errors.New("dial tcp: connection refused"), "pt-BR"))
	err := &StatusError{Status: http.StatusUnauthorized, Route: ChatPath, Err: errors.New("Invalid or expired token")}
	assert.Equal(t, Message(KeyInvalidSession, "en"), MessageForError(err, "en"))
	assert.NotContains(t, MessageForError(err, "en"), "Invalid or expired token")
}

func TestEveryKeyIsTranslated(t *testing.T) {
	for _, key := range []string{KeyInvalidCredentials, KeyInvalidSession, KeyRateLimited, KeyServiceUnavailable, KeyGeneric, KeyImagePromptRejected} {
		en := Message(key, "en")
		pt := Message(key, "pt-BR")
		assert.NotEqual(t, key, en)
		assert.NotEqual(t, key, pt)
		assert.NotEqual(t, en, pt, key)
	}
}
