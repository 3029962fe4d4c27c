package client

import (
	"errors"
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys shown to users. Raw server text never reaches the user.
const (
	KeyInvalidCredentials  = "errors.invalidCredentials"
	KeyInvalidSession      = "errors.invalidSession"
	KeyRateLimited         = "errors.rateLimited"
	KeyServiceUnavailable  = "errors.serviceUnavailable"
	KeyGeneric             = "errors.generic"
	KeyImagePromptRejected = "errors.imagePromptRejected"
)

var supportedLanguages = []language.Tag{
	language.English,
	language.BrazilianPortuguese,
}

var (
	languageMatcher = language.NewMatcher(supportedLanguages)
	messages        = mustBuildCatalog()
)

func mustBuildCatalog() *catalog.Builder {
	builder := catalog.NewBuilder(catalog.Fallback(language.English))
	entries := map[language.Tag]map[string]string{
		language.English: {
			KeyInvalidCredentials:  "Invalid email or password.",
			KeyInvalidSession:      "Your session has expired. Please sign in again.",
			KeyRateLimited:         "Too many requests. Please wait a moment and try again.",
			KeyServiceUnavailable:  "The service is temporarily unavailable. Please try again later.",
			KeyGeneric:             "Something went wrong. Please try again.",
			KeyImagePromptRejected: "The image prompt was rejected. Try describing it differently.",
		},
		language.BrazilianPortuguese: {
			KeyInvalidCredentials:  "E-mail ou senha inválidos.",
			KeyInvalidSession:      "Sua sessão expirou. Entre novamente.",
			KeyRateLimited:         "Muitas solicitações. Aguarde um momento e tente novamente.",
			KeyServiceUnavailable:  "O serviço está temporariamente indisponível. Tente novamente mais tarde.",
			KeyGeneric:             "Algo deu errado. Tente novamente.",
			KeyImagePromptRejected: "O prompt da imagem foi rejeitado. Tente descrevê-lo de outra forma.",
		},
	}
	for tag, byKey := range entries {
		for key, text := range byKey {
			if err := builder.SetString(tag, key, text); err != nil {
				panic(err)
			}
		}
	}
	return builder
}

// Message returns the text for key in the closest supported language.
func Message(key, lang string) string {
	return printerFor(lang).Sprintf(message.Key(key, key))
}

// MessageFor maps an HTTP status to the user-facing catalog.
func MessageFor(status int, lang string) string {
	return Message(keyForStatus(status), lang)
}

// MessageForRoute is MessageFor with route-specific overrides.
func MessageForRoute(route string, status int, lang string) string {
	if route == ImagePath && status == http.StatusBadRequest {
		return Message(KeyImagePromptRejected, lang)
	}
	return MessageFor(status, lang)
}

// MessageForError picks the message for an error returned by Session or API.
// Errors without a status are treated as the service being unreachable.
func MessageForError(err error, lang string) string {
	if errors.Is(err, ErrRateLimited) {
		return Message(KeyRateLimited, lang)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return MessageForRoute(statusErr.Route, statusErr.Status, lang)
	}
	return Message(KeyServiceUnavailable, lang)
}

func keyForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return KeyInvalidSession
	case http.StatusTooManyRequests:
		return KeyRateLimited
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KeyServiceUnavailable
	default:
		return KeyGeneric
	}
}

func printerFor(lang string) *message.Printer {
	tag := language.English
	if desired, err := language.Parse(lang); err == nil {
		_, index, confidence := languageMatcher.Match(desired)
		if confidence != language.No {
			tag = supportedLanguages[index]
		}
	}
	return message.NewPrinter(tag, message.Catalog(messages))
}
