package security

import (
	"context"
	"log/slog"
	"sync"
)

// SchemeEditor applies a scheme's administrative edit commands to a snapshot
// of its block. Editors are pure: they never mutate the given block, and a
// nil result means the commands produced no change. A nil result together
// with accumulated operation errors is a validation failure.
type SchemeEditor interface {
	Edit(block SchemeBlock, ops []*CommandOperation) (*SchemeBlock, error)
}

// Registry resolves a scheme name to its editor for a section. The registry
// is rebuilt from the document after every persist, so an editor lookup
// always reflects the registered schemes of the current configuration.
type Registry interface {
	SchemeEditor(section Section, scheme string) (SchemeEditor, bool)
}

// Permission commands operate on the shared permission list and carry no
// scheme wrapper.
func isPermissionCommand(name string) bool {
	switch name {
	case "set-permission", "update-permission", "delete-permission":
		return true
	}
	return false
}

// Router validates and dispatches scheme-tagged edit commands against the
// security document. Every command except the permission commands must wrap
// its payload in a single-key object naming a registered scheme; the router
// rejects malformed or unknown-scheme commands before any editor runs.
//
// Edits are serialized: one command batch is applied at a time, and a batch
// either fully applies (validate, mutate, persist) or fully fails with
// nothing persisted.
type Router struct {
	store    Store
	registry Registry
	log      *slog.Logger

	mu sync.Mutex
}

// NewRouter creates a command router over the given store and registry.
func NewRouter(store Store, registry Registry) *Router {
	return &Router{
		store:    store,
		registry: registry,
		log:      slog.With("component", "security-router"),
	}
}

// Route parses and applies one admin POST body against a section of the
// document. It returns the document version the caller now observes: the new
// version after a persist, or the unchanged version for a clean no-op batch.
func (rt *Router) Route(ctx context.Context, section Section, body []byte) (int64, error) {
	ops, err := ParseCommands(body)
	if err != nil {
		return 0, err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cfg, version, err := rt.store.Read()
	if err != nil {
		return 0, err
	}

	work := cfg.Clone()
	changed := false

	for _, op := range ops {
		opChanged, err := rt.apply(&work, section, op)
		if err != nil {
			return 0, err
		}
		changed = changed || opChanged
	}

	if err := CollectErrors(ops); err != nil {
		return 0, err
	}

	if !changed {
		rt.log.Debug("command batch produced no change", "section", string(section))
		return version, nil
	}

	newVersion, err := rt.store.Persist(work, version)
	if err != nil {
		return 0, err
	}
	rt.log.Info("security config edited",
		"section", string(section),
		"commands", len(ops),
		"version", newVersion,
	)
	return newVersion, nil
}

// apply runs a single operation against the working copy, reporting whether
// it changed the document.
func (rt *Router) apply(work *SecurityConfig, section Section, op *CommandOperation) (bool, error) {
	if isPermissionCommand(op.Name) {
		if section != SectionAuthorization {
			return false, BadRequest("command %q is only valid for the authorization section", op.Name)
		}
		return rt.applyPermission(work, op)
	}

	scheme, payload, err := unwrapScheme(op)
	if err != nil {
		return false, err
	}

	block, ok := work.SchemeBlock(section, scheme)
	if !ok {
		return false, BadRequest("unknown scheme %q for %s", scheme, string(section))
	}
	editor, ok := rt.registry.SchemeEditor(section, scheme)
	if !ok {
		return false, BadRequest("scheme %q does not support %s edits", scheme, string(section))
	}

	sub := &CommandOperation{Name: op.Name, Value: payload}
	updated, err := editor.Edit(block.Clone(), []*CommandOperation{sub})
	if err != nil {
		return false, err
	}
	for _, msg := range sub.Errors() {
		op.AddError(msg)
	}
	if updated == nil {
		// No change; whether that is a failure depends on accumulated errors,
		// which the caller checks before persisting.
		return false, nil
	}
	updated.Name = scheme
	work.SetSchemeBlock(section, *updated)
	return true, nil
}

func (rt *Router) applyPermission(work *SecurityConfig, op *CommandOperation) (bool, error) {
	perms := work.Authorization.Permissions
	var (
		updated []Permission
		err     error
	)
	switch op.Name {
	case "set-permission":
		updated, err = SetPermission(perms, op)
	case "update-permission":
		updated, err = UpdatePermission(perms, op)
	case "delete-permission":
		updated, err = DeletePermission(perms, op)
	}
	if err != nil {
		return false, err
	}
	work.Authorization.Permissions = updated
	return true, nil
}

// unwrapScheme enforces the scheme wrapper: the command value must be an
// object with exactly one key naming the target scheme.
func unwrapScheme(op *CommandOperation) (scheme string, payload any, err error) {
	wrapper, ok := op.Value.(map[string]any)
	if !ok || len(wrapper) != 1 {
		return "", nil, BadRequest("command %q must wrap its payload in a single-key object naming the target scheme", op.Name)
	}
	for k, v := range wrapper {
		return k, v, nil
	}
	panic("unreachable")
}
