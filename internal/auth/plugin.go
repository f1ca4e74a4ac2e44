package auth

import (
	"fmt"

	"github.com/aegisgate/aegis/internal/security"
)

// Plugin is the interface for authentication scheme plugins. Each plugin
// builds an authenticator from its scheme block of the security document.
type Plugin interface {
	// Scheme returns the scheme name the plugin serves (e.g. "basic").
	Scheme() string

	// Description returns a human-readable description of the plugin.
	Description() string

	// Create builds an authenticator from a snapshot of the scheme's block.
	Create(block security.SchemeBlock) (Authenticator, error)
}

// ConfigEditor is the optional capability of a plugin whose authentication
// block is editable through the admin API. The editor receives a snapshot
// and returns a new snapshot; it must recognize its own command vocabulary
// (set-user, delete-user, set-property) and reject everything else with
// "Unsupported command: <name>".
type ConfigEditor interface {
	EditAuthentication(block security.SchemeBlock, ops []*security.CommandOperation) (*security.SchemeBlock, error)
}

// UnsupportedCommand builds the rejection every editor raises for a command
// outside its vocabulary.
func UnsupportedCommand(name string) error {
	return security.BadRequest("Unsupported command: %s", name)
}

// roleEditor applies set-user-role commands to an authorization scheme
// block. Role assignment works the same way for every scheme, so one editor
// serves all registered authorization schemes.
type roleEditor struct{}

func (roleEditor) Edit(block security.SchemeBlock, ops []*security.CommandOperation) (*security.SchemeBlock, error) {
	changed := false
	for _, op := range ops {
		if op.Name != "set-user-role" {
			return nil, UnsupportedCommand(op.Name)
		}
		data, ok := op.DataMap()
		if !ok {
			continue
		}
		for user, rolesVal := range data {
			if rolesVal == nil {
				if _, exists := block.UserRoles[user]; exists {
					delete(block.UserRoles, user)
					changed = true
				}
				continue
			}
			roles, err := security.ToStringList(rolesVal)
			if err != nil {
				op.AddError(fmt.Sprintf("roles for user %q must be a string or list of strings", user))
				continue
			}
			if block.UserRoles == nil {
				block.UserRoles = make(map[string][]string)
			}
			block.UserRoles[user] = roles
			changed = true
		}
	}
	if !changed {
		return nil, nil
	}
	return &block, nil
}
