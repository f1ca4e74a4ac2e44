// Package authz evaluates the authorization half of the security document:
// role assignments per scheme and the shared ordered permission list.
package authz

import (
	"fmt"
	"strings"

	"github.com/aegisgate/aegis/internal/auth"
	"github.com/aegisgate/aegis/internal/security"
)

// AnyRole grants a permission to every authenticated principal.
const AnyRole = "*"

// DeniedError is the 403 outcome of permission evaluation.
type DeniedError struct {
	Principal  string
	Permission string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("principal %q denied by permission %q", e.Principal, e.Permission)
}

// Authorizer evaluates requests against one snapshot of the authorization
// section. Like the authentication chain it is rebuilt after every persisted
// edit.
type Authorizer struct {
	schemes     []security.SchemeBlock
	permissions []security.Permission
}

// New builds an authorizer from a config snapshot.
func New(cfg security.SecurityConfig) *Authorizer {
	return &Authorizer{
		schemes:     cfg.Authorization.Schemes,
		permissions: cfg.Authorization.Permissions,
	}
}

// RolesFor returns the union of the principal's role assignments across all
// authorization scheme blocks, plus any roles the credential itself asserts.
func (a *Authorizer) RolesFor(p *auth.Principal) []string {
	seen := make(map[string]bool)
	var roles []string
	add := func(rs []string) {
		for _, r := range rs {
			if !seen[r] {
				seen[r] = true
				roles = append(roles, r)
			}
		}
	}
	add(p.Roles)
	for _, block := range a.schemes {
		add(block.UserRoles[p.Name])
	}
	return roles
}

// Authorize checks the request against the permission list in order: the
// first permission whose path and method predicates match decides. A request
// matching no permission is allowed; rules are opt-in.
func (a *Authorizer) Authorize(p *auth.Principal, method, path string) error {
	if p == nil {
		return auth.ErrUnauthenticated
	}
	for _, perm := range a.permissions {
		if !matchPath(perm.Path, path) || !matchMethod(perm.Methods, method) {
			continue
		}
		if a.roleAllowed(p, perm.Role) {
			return nil
		}
		return &DeniedError{Principal: p.Name, Permission: perm.Name}
	}
	return nil
}

func (a *Authorizer) roleAllowed(p *auth.Principal, required []string) bool {
	if len(required) == 0 {
		return true
	}
	held := make(map[string]bool)
	for _, r := range a.RolesFor(p) {
		held[r] = true
	}
	for _, r := range required {
		if r == AnyRole || held[r] {
			return true
		}
	}
	return false
}

// matchPath matches exact paths and trailing-* prefixes.
func matchPath(pattern, path string) bool {
	if pattern == "" {
		return false
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(path, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == path
}

// matchMethod treats an empty method list as all methods.
func matchMethod(methods []string, method string) bool {
	if len(methods) == 0 {
		return true
	}
	for _, m := range methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}
