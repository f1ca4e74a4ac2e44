// Package jwt provides the "jwt" authentication scheme: Bearer tokens
// verified with an HMAC key held in the scheme's properties.
package jwt

import (
	"context"
	"net/http"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/aegisgate/aegis/internal/auth"
	"github.com/aegisgate/aegis/internal/security"
)

func init() {
	auth.RegisterPlugin(&plugin{})
}

// Recognized set-property keys.
var properties = map[string]bool{
	"key":          true,
	"issuer":       true,
	"audience":     true,
	"roleClaim":    true,
	"blockUnknown": true,
}

// plugin implements the auth.Plugin interface for the jwt scheme.
type plugin struct{}

func (p *plugin) Scheme() string {
	return "jwt"
}

func (p *plugin) Description() string {
	return "Bearer token authentication with HMAC-signed JWTs"
}

// Create builds an authenticator from the scheme block. A block without a
// key is valid configuration but declines every request until a key is set
// through the admin API.
func (p *plugin) Create(block security.SchemeBlock) (auth.Authenticator, error) {
	roleClaim := block.StringProperty("roleClaim")
	if roleClaim == "" {
		roleClaim = "roles"
	}
	return &Authenticator{
		key:       []byte(block.StringProperty("key")),
		issuer:    block.StringProperty("issuer"),
		audience:  block.StringProperty("audience"),
		roleClaim: roleClaim,
	}, nil
}

// EditAuthentication recognizes set-property over the scheme's tunables.
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
			if !properties[key] {
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

// Authenticator verifies Bearer tokens against the configured HMAC key.
type Authenticator struct {
	key       []byte
	issuer    string
	audience  string
	roleClaim string
}

func (a *Authenticator) Scheme() string {
	return "jwt"
}

func (a *Authenticator) Challenge() string {
	return "Bearer"
}

// Authenticate verifies the request's Bearer token. Requests without a
// Bearer token are declined; a token that fails verification is an
// authentication error.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*auth.Principal, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, auth.ErrDeclined
	}
	if len(a.key) == 0 {
		return nil, auth.ErrDeclined
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	}
	if a.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwtlib.WithAudience(a.audience))
	}

	token, err := jwtlib.Parse(raw, func(t *jwtlib.Token) (any, error) {
		return a.key, nil
	}, opts...)
	if err != nil {
		return nil, auth.NewSchemeError("jwt", "parse", err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, auth.NewSchemeError("jwt", "claims", auth.ErrInvalidCredentials)
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, auth.NewSchemeError("jwt", "claims", auth.ErrInvalidCredentials)
	}

	return &auth.Principal{
		Name:   subject,
		Scheme: "jwt",
		Roles:  a.rolesFrom(claims),
	}, nil
}

// rolesFrom extracts the configured role claim; a missing or malformed
// claim simply yields no token-asserted roles.
func (a *Authenticator) rolesFrom(claims jwtlib.MapClaims) []string {
	v, ok := claims[a.roleClaim]
	if !ok {
		return nil
	}
	roles, err := security.ToStringList(v)
	if err != nil {
		return nil
	}
	return roles
}
