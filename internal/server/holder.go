package server

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aegisgate/aegis/internal/auth"
	"github.com/aegisgate/aegis/internal/authz"
	"github.com/aegisgate/aegis/internal/security"
)

// snapshot bundles everything derived from one version of the security
// document. It is replaced wholesale on every persisted edit, so readers
// always see a consistent chain and authorizer pair.
type snapshot struct {
	registry   *auth.Registry
	chain      *auth.Chain
	authorizer *authz.Authorizer
}

// Holder owns the current snapshot and rebuilds it whenever the store
// reports a change. It backs both the request middleware and the edit
// router's scheme dispatch.
type Holder struct {
	store          security.Store
	attemptTimeout time.Duration
	log            *slog.Logger
	snap           atomic.Pointer[snapshot]
}

// NewHolder builds the initial snapshot and subscribes to store changes.
func NewHolder(store security.Store, attemptTimeout time.Duration) (*Holder, error) {
	h := &Holder{
		store:          store,
		attemptTimeout: attemptTimeout,
		log:            slog.With("component", "snapshot-holder"),
	}
	if err := h.rebuild(); err != nil {
		return nil, err
	}
	store.Subscribe(func() {
		if err := h.rebuild(); err != nil {
			// The persisted config was validated before the edit went
			// through, so a rebuild failure here means a scheme plugin
			// rejected settings it previously accepted. Keep serving the
			// old snapshot rather than going dark.
			h.log.Error("rebuild snapshot", "error", err)
		}
	})
	return h, nil
}

func (h *Holder) rebuild() error {
	cfg, ver, err := h.store.Read()
	if err != nil {
		return fmt.Errorf("read security config: %w", err)
	}
	reg, err := auth.BuildRegistry(cfg)
	if err != nil {
		return fmt.Errorf("build scheme registry: %w", err)
	}
	h.snap.Store(&snapshot{
		registry:   reg,
		chain:      auth.NewChain(reg, h.attemptTimeout),
		authorizer: authz.New(cfg),
	})
	h.log.Debug("snapshot rebuilt", "version", ver, "schemes", reg.SchemeCount())
	return nil
}

// Chain returns the current authentication chain.
func (h *Holder) Chain() *auth.Chain {
	return h.snap.Load().chain
}

// Authorizer returns the current authorizer.
func (h *Holder) Authorizer() *authz.Authorizer {
	return h.snap.Load().authorizer
}

// SchemeEditor resolves the editor for a scheme in the current snapshot.
func (h *Holder) SchemeEditor(section security.Section, scheme string) (security.SchemeEditor, bool) {
	return h.snap.Load().registry.SchemeEditor(section, scheme)
}
