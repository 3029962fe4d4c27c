package client

import "net/http"

// Interceptor attaches the session token to outgoing calls and ends the
// session when a protected call comes back 401.
type Interceptor struct {
	session *Session
	base    http.RoundTripper
}

func NewInterceptor(session *Session, base http.RoundTripper) *Interceptor {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Interceptor{session: session, base: base}
}

func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	path := req.URL.Path
	if path == i.session.routePath(LoginPath) {
		return i.base.RoundTrip(req)
	}

	token := i.session.Token()
	out := req
	if token != "" {
		out = req.Clone(req.Context())
		out.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := i.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	// The verify route reports its own failures through Session.Verify.
	if resp.StatusCode == http.StatusUnauthorized && path != i.session.routePath(VerifyPath) {
		i.session.expireIfCurrent(token)
	}
	return resp, nil
}
