package main

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"moodify-server-go/client"
)

const defaultServer = "http://localhost:3000"

// errRedirected reports that a protected command was refused by the guard.
var errRedirected = errors.New("not signed in")

type globalOptions struct {
	server    string
	tokenFile string
	lang      string
	timeout   time.Duration
	hint      loginHint
}

// loginHint prints the sign-in hint at most once per command, whether the
// session navigates to login or the guard refuses a command.
type loginHint struct {
	once sync.Once
	show func()
}

func (h *loginHint) NavigateToLogin() {
	h.once.Do(func() {
		if h.show != nil {
			h.show()
			return
		}
		info("Run `moodify login` to sign in.")
	})
}

func (o *globalOptions) bind(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&o.server, "server", envOr("MOODIFY_SERVER", defaultServer), "Gateway base URL")
	flags.StringVar(&o.tokenFile, "token-file", os.Getenv("MOODIFY_TOKEN_FILE"), "Token file (defaults to the user config directory)")
	flags.StringVar(&o.lang, "lang", envOr("MOODIFY_LANG", systemLanguage()), "Message language (en, pt-BR)")
	flags.DurationVar(&o.timeout, "timeout", 90*time.Second, "Request timeout")
}

func (o *globalOptions) session() (*client.Session, error) {
	path := o.tokenFile
	if path == "" {
		var err error
		if path, err = client.DefaultTokenPath(); err != nil {
			return nil, err
		}
	}
	return client.NewSession(client.Options{
		BaseURL:   o.server,
		Timeout:   o.timeout,
		Store:     client.NewFileTokenStore(path),
		Navigator: &o.hint,
	})
}

// protected opens the session and passes it through the guard.
func (o *globalOptions) protected(ctx context.Context) (*client.Session, error) {
	session, err := o.session()
	if err != nil {
		return nil, err
	}
	decision := client.NewGuard(session).Check(ctx)
	if !decision.Allow {
		warn("%s", client.Message(client.KeyInvalidSession, o.lang))
		o.hint.NavigateToLogin()
		return nil, errRedirected
	}
	return session, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// systemLanguage turns LANG values like pt_BR.UTF-8 into a BCP 47 tag.
func systemLanguage() string {
	lang := os.Getenv("LANG")
	if i := strings.IndexByte(lang, '.'); i >= 0 {
		lang = lang[:i]
	}
	lang = strings.ReplaceAll(lang, "_", "-")
	if lang == "" || lang == "C" || lang == "POSIX" {
		return "en"
	}
	return lang
}
