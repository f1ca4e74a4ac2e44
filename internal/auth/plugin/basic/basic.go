// Package basic provides the "basic" authentication scheme: username and
// password against bcrypt hashes held in the scheme's credentials block.
package basic

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/aegisgate/aegis/internal/auth"
	"github.com/aegisgate/aegis/internal/security"
)

func init() {
	auth.RegisterPlugin(&plugin{})
}

// bcryptCost is the cost factor for newly hashed passwords.
const bcryptCost = 12

// Recognized set-property keys.
var properties = map[string]bool{
	"blockUnknown": true,
	"realm":        true,
}

// plugin implements the auth.Plugin interface for the basic scheme.
type plugin struct{}

// Scheme returns the scheme name.
func (p *plugin) Scheme() string {
	return "basic"
}

// Description returns a human-readable description.
func (p *plugin) Description() string {
	return "HTTP Basic authentication against bcrypt credential hashes"
}

// Create builds an authenticator from the scheme block.
func (p *plugin) Create(block security.SchemeBlock) (auth.Authenticator, error) {
	users := make(map[string]string, len(block.Credentials))
	for user, hash := range block.Credentials {
		users[user] = hash
	}
	return &Authenticator{users: users}, nil
}

// EditAuthentication applies set-user, delete-user, and set-property
// commands to the scheme block.
func (p *plugin) EditAuthentication(block security.SchemeBlock, ops []*security.CommandOperation) (*security.SchemeBlock, error) {
	changed := false
	for _, op := range ops {
		switch op.Name {
		case "set-user":
			if p.setUsers(&block, op) {
				changed = true
			}
		case "delete-user":
			if p.deleteUsers(&block, op) {
				changed = true
			}
		case "set-property":
			if setProperties(&block, op) {
				changed = true
			}
		default:
			return nil, auth.UnsupportedCommand(op.Name)
		}
	}
	if !changed {
		return nil, nil
	}
	return &block, nil
}

// setUsers hashes each given plaintext password and stores it under the
// username. Existing users are overwritten.
func (p *plugin) setUsers(block *security.SchemeBlock, op *security.CommandOperation) bool {
	data, ok := op.DataMap()
	if !ok {
		return false
	}
	changed := false
	for user, v := range data {
		password, ok := v.(string)
		if !ok || password == "" {
			op.AddError(fmt.Sprintf("password for user %q must be a non-empty string", user))
			continue
		}
		hash, err := HashPassword(password)
		if err != nil {
			op.AddError(fmt.Sprintf("hash password for user %q: %v", user, err))
			continue
		}
		if block.Credentials == nil {
			block.Credentials = make(map[string]string)
		}
		block.Credentials[user] = hash
		changed = true
	}
	return changed
}

// deleteUsers accepts a single username or a list of usernames.
func (p *plugin) deleteUsers(block *security.SchemeBlock, op *security.CommandOperation) bool {
	users, err := security.ToStringList(op.Value)
	if err != nil {
		op.AddError("delete-user requires a username or list of usernames")
		return false
	}
	changed := false
	for _, user := range users {
		if _, exists := block.Credentials[user]; !exists {
			op.AddError(fmt.Sprintf("no such user: %s", user))
			continue
		}
		delete(block.Credentials, user)
		changed = true
	}
	return changed
}

// setProperties applies recognized property keys, accumulating a per-key
// error for unknown keys without aborting the remaining keys.
func setProperties(block *security.SchemeBlock, op *security.CommandOperation) bool {
	data, ok := op.DataMap()
	if !ok {
		return false
	}
	changed := false
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
	return changed
}

// Authenticator verifies Basic credentials against the bcrypt hashes of the
// scheme block snapshot it was built from.
type Authenticator struct {
	users map[string]string
}

// Scheme returns the scheme name.
func (a *Authenticator) Scheme() string {
	return "basic"
}

// Challenge returns the Authorization header scheme token.
func (a *Authenticator) Challenge() string {
	return "Basic"
}

// Authenticate verifies the request's Basic credentials.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*auth.Principal, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, auth.ErrDeclined
	}

	hash, exists := a.users[username]
	if !exists {
		return nil, auth.NewSchemeError("basic", "authenticate", auth.ErrUserNotFound)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, auth.NewSchemeError("basic", "authenticate", auth.ErrInvalidCredentials)
	}

	return &auth.Principal{Name: username, Scheme: "basic"}, nil
}

// HashPassword creates a bcrypt hash of a password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
