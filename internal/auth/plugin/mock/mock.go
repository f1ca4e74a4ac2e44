// Package mock provides the "mock" authentication scheme: any request
// carrying a mock credential marker is claimed with a fixed principal. It
// exists to exercise command routing and chain fallback in tests and
// development setups.
package mock

import (
	"context"
	"net/http"

	"github.com/aegisgate/aegis/internal/auth"
	"github.com/aegisgate/aegis/internal/security"
)

func init() {
	auth.RegisterPlugin(&plugin{})
}

// PrincipalName is the fixed identity the mock scheme asserts.
const PrincipalName = "mock"

// plugin implements the auth.Plugin interface for the mock scheme.
type plugin struct{}

func (p *plugin) Scheme() string {
	return "mock"
}

func (p *plugin) Description() string {
	return "Mock authentication that claims any request bearing a mock credential"
}

func (p *plugin) Create(block security.SchemeBlock) (auth.Authenticator, error) {
	return &Authenticator{}, nil
}

// EditAuthentication recognizes set-property with the single blockUnknown
// key. Unknown keys accumulate a per-key error; if no key was recognized the
// editor returns nil.
func (p *plugin) EditAuthentication(block security.SchemeBlock, ops []*security.CommandOperation) (*security.SchemeBlock, error) {
	changed := false
	for _, op := range ops {
		if op.Name != "set-property" {
			return nil, auth.UnsupportedCommand(op.Name)
		}
		data, ok := op.DataMap()
		if !ok {
			continue
		}
		for key, value := range data {
			if key != "blockUnknown" {
				op.AddError("Unknown property " + key)
				continue
			}
			if block.Properties == nil {
				block.Properties = make(map[string]any)
			}
			block.Properties[key] = value
			changed = true
		}
	}
	if !changed {
		return nil, nil
	}
	return &block, nil
}

// Authenticator claims any request whose Authorization header uses the mock
// scheme token.
type Authenticator struct{}

func (a *Authenticator) Scheme() string {
	return "mock"
}

func (a *Authenticator) Challenge() string {
	return "mock"
}

func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*auth.Principal, error) {
	if auth.HeaderScheme(r.Header.Get("Authorization")) != "mock" {
		return nil, auth.ErrDeclined
	}
	return &auth.Principal{Name: PrincipalName, Scheme: "mock"}, nil
}
