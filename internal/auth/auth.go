// Package auth provides multi-scheme request authentication for Aegis.
// Schemes are pluggable: each registers an authenticator built from its
// block of the security configuration, and incoming requests walk the
// authentication chain until a scheme claims them.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// Principal is the authenticated identity attached to a request after a
// scheme claims it.
type Principal struct {
	// Name is the authenticated username.
	Name string
	// Scheme is the name of the scheme that claimed the request.
	Scheme string
	// Roles are roles asserted by the credential itself (for example token
	// claims). Roles assigned through the authorization section are resolved
	// separately at authorization time.
	Roles []string
}

// Authenticator verifies the credentials of an HTTP request for one scheme.
type Authenticator interface {
	// Scheme returns the scheme name this authenticator was built for.
	Scheme() string

	// Challenge returns the Authorization header scheme token this
	// authenticator answers to, e.g. "Basic" or "Bearer". The chain uses it
	// as the request discriminator.
	Challenge() string

	// Authenticate either claims the request by returning a principal,
	// declines it with ErrDeclined, or fails with another error. A failing
	// authenticator does not stop the chain.
	Authenticate(ctx context.Context, r *http.Request) (*Principal, error)
}

type contextKey string

const principalContextKey contextKey = "aegis_principal"

// WithPrincipal attaches a principal to the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFrom retrieves the principal attached to the context, or nil.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey).(*Principal)
	return p
}

// HeaderScheme returns the lowercased scheme token of an Authorization-style
// header value: the text before the first space.
func HeaderScheme(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	if i := strings.IndexByte(header, ' '); i > 0 {
		return strings.ToLower(header[:i])
	}
	return strings.ToLower(header)
}
