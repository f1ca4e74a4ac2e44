package auth

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aegisgate/aegis/internal/security"
)

// Global plugin registry, populated by init() functions in the scheme
// plugin packages.
var (
	pluginsMu sync.RWMutex
	plugins   = make(map[string]Plugin)
)

// RegisterPlugin registers a scheme plugin. This is typically called from
// init() functions in plugin packages. Registering the same scheme twice
// overwrites the earlier plugin.
func RegisterPlugin(p Plugin) {
	pluginsMu.Lock()
	defer pluginsMu.Unlock()

	if _, exists := plugins[p.Scheme()]; exists {
		slog.Warn("auth scheme plugin already registered, overwriting", "scheme", p.Scheme())
	}
	plugins[p.Scheme()] = p
}

// GetPlugin returns a plugin by scheme name.
func GetPlugin(scheme string) (Plugin, bool) {
	pluginsMu.RLock()
	defer pluginsMu.RUnlock()
	p, ok := plugins[scheme]
	return p, ok
}

// ListPlugins returns a sorted list of all registered scheme names.
func ListPlugins() []string {
	pluginsMu.RLock()
	defer pluginsMu.RUnlock()

	names := make([]string, 0, len(plugins))
	for name := range plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// boundScheme is one authentication scheme bound to its built authenticator
// and the tunables read from its block.
type boundScheme struct {
	name          string
	blockUnknown  bool
	authenticator Authenticator
	editor        ConfigEditor
}

// Registry binds the scheme blocks of one security config snapshot to their
// plugins. It is rebuilt after every persisted edit; lookups on a registry
// always reflect a single consistent document version.
type Registry struct {
	authc       []boundScheme
	authzByName map[string]bool
}

// BuildRegistry builds authenticators for every authentication scheme block
// of the document, in document order. A block naming an unregistered plugin
// is a configuration error.
func BuildRegistry(cfg security.SecurityConfig) (*Registry, error) {
	reg := &Registry{authzByName: make(map[string]bool)}

	for _, block := range cfg.Authentication.Schemes {
		p, ok := GetPlugin(block.Name)
		if !ok {
			return nil, fmt.Errorf("unknown auth scheme %q (registered: %v)", block.Name, ListPlugins())
		}
		a, err := p.Create(block.Clone())
		if err != nil {
			return nil, fmt.Errorf("create authenticator for scheme %q: %w", block.Name, err)
		}
		bound := boundScheme{
			name:          block.Name,
			blockUnknown:  block.BoolProperty("blockUnknown", false),
			authenticator: a,
		}
		bound.editor, _ = p.(ConfigEditor)
		reg.authc = append(reg.authc, bound)
	}

	for _, block := range cfg.Authorization.Schemes {
		reg.authzByName[block.Name] = true
	}
	return reg, nil
}

// SchemeCount returns the number of bound authentication schemes.
func (r *Registry) SchemeCount() int {
	return len(r.authc)
}

// Authenticators returns the bound authenticators in document order.
func (r *Registry) Authenticators() []Authenticator {
	out := make([]Authenticator, len(r.authc))
	for i, b := range r.authc {
		out[i] = b.authenticator
	}
	return out
}

// SchemeEditor resolves a scheme's editor for a section. Authentication
// edits go to the scheme plugin's editor capability; authorization role
// edits are served by the shared role editor for every scheme present in the
// authorization section.
func (r *Registry) SchemeEditor(section security.Section, scheme string) (security.SchemeEditor, bool) {
	switch section {
	case security.SectionAuthorization:
		if !r.authzByName[scheme] {
			return nil, false
		}
		return roleEditor{}, true
	default:
		for _, b := range r.authc {
			if b.name == scheme && b.editor != nil {
				return authcEditor{b.editor}, true
			}
		}
		return nil, false
	}
}

// authcEditor adapts the plugin editor capability to security.SchemeEditor.
type authcEditor struct {
	editor ConfigEditor
}

func (e authcEditor) Edit(block security.SchemeBlock, ops []*security.CommandOperation) (*security.SchemeBlock, error) {
	return e.editor.EditAuthentication(block, ops)
}
