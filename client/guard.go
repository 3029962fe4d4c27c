package client

import "context"

// LoginRoute is where a rejected navigation is sent.
const LoginRoute = "/login"

// Decision is the outcome of a navigation check. Redirect is set iff Allow is false.
type Decision struct {
	Allow    bool
	Redirect string
}

// Guard gates protected views on the session.
type Guard struct {
	session *Session
}

func NewGuard(session *Session) *Guard {
	return &Guard{session: session}
}

// Check allows an authenticated session without a request. Otherwise it
// verifies once and redirects to LoginRoute on failure.
func (g *Guard) Check(ctx context.Context) Decision {
	if g.session.State() == StateAuthenticated {
		return Decision{Allow: true}
	}
	if g.session.Verify(ctx) {
		return Decision{Allow: true}
	}
	return Decision{Redirect: LoginRoute}
}
