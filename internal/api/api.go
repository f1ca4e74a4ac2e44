// Package api provides the admin HTTP API for the security config: one
// endpoint per document section for reading the current config and posting
// edit commands, plus health, version, and metrics endpoints.
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aegisgate/aegis/internal/auth"
	"github.com/aegisgate/aegis/internal/authz"
	"github.com/aegisgate/aegis/internal/metrics"
	"github.com/aegisgate/aegis/internal/security"
	"github.com/aegisgate/aegis/internal/version"
)

// Admin endpoint prefixes.
const (
	AuthenticationPath = "/admin/authentication"
	AuthorizationPath  = "/admin/authorization"
)

// maxCommandBody bounds admin POST bodies.
const maxCommandBody = 1 << 20

// SnapshotProvider yields the authentication chain and authorizer built from
// the current config snapshot.
type SnapshotProvider interface {
	Chain() *auth.Chain
	Authorizer() *authz.Authorizer
}

// Config holds API wiring.
type Config struct {
	Store     security.Store
	Router    *security.Router
	Snapshots SnapshotProvider
	Metrics   *metrics.Metrics
	Realm     string
}

// API serves the admin endpoints.
type API struct {
	store     security.Store
	router    *security.Router
	snapshots SnapshotProvider
	metrics   *metrics.Metrics
	realm     string
	log       *slog.Logger
}

// New creates a new admin API.
func New(cfg Config) *API {
	realm := cfg.Realm
	if realm == "" {
		realm = "aegis"
	}
	return &API{
		store:     cfg.Store,
		router:    cfg.Router,
		snapshots: cfg.Snapshots,
		metrics:   cfg.Metrics,
		realm:     realm,
		log:       slog.With("component", "admin-api"),
	}
}

// Handler returns the HTTP router for the API.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", a.handleHealth)
	r.Get("/version", a.handleVersion)
	if a.metrics != nil {
		r.Handle("/metrics", a.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(a.authenticated)
		r.Get(AuthenticationPath, a.handleGet(security.SectionAuthentication))
		r.Post(AuthenticationPath, a.handlePost(security.SectionAuthentication))
		r.Get(AuthorizationPath, a.handleGet(security.SectionAuthorization))
		r.Post(AuthorizationPath, a.handlePost(security.SectionAuthorization))
	})

	return r
}

// authenticated walks the authentication chain and then the authorizer. A
// request no scheme claims is rejected with 401 before reaching a handler.
func (a *API) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chain := a.snapshots.Chain()

		principal, err := chain.Authenticate(r.Context(), r)
		if err != nil {
			a.countAuth("none", "rejected")
			a.sendUnauthorized(w, chain)
			return
		}
		a.countAuth(principal.Scheme, "ok")

		if err := a.snapshots.Authorizer().Authorize(principal, r.Method, r.URL.Path); err != nil {
			a.log.Info("request denied",
				"principal", principal.Name,
				"scheme", principal.Scheme,
				"path", r.URL.Path,
			)
			a.writeJSON(w, http.StatusForbidden, map[string]any{"error": "Forbidden"})
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

// handleGet serves the current document. With a path query parameter the
// response carries just the value at that path expression, e.g.
// ?path=authentication/schemes[0]/credentials/harry.
func (a *API) handleGet(section security.Section) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, ver, err := a.store.Read()
		if err != nil {
			a.writeJSON(w, security.StatusOf(err), map[string]any{"error": err.Error()})
			return
		}

		if path := r.URL.Query().Get("path"); path != "" {
			value, _ := cfg.Lookup(path)
			a.writeJSON(w, http.StatusOK, map[string]any{"value": value})
			return
		}

		body := map[string]any{"version": ver}
		if section == security.SectionAuthorization {
			body[string(section)] = cfg.Authorization
		} else {
			body[string(section)] = cfg.Authentication
		}
		a.writeJSON(w, http.StatusOK, body)
	}
}

// handlePost routes an edit command batch to the section.
func (a *API) handlePost(section security.Section) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody))
		if err != nil {
			a.countEdit(section, http.StatusBadRequest)
			a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unreadable request body"})
			return
		}

		ver, err := a.router.Route(r.Context(), section, body)
		if err != nil {
			status := security.StatusOf(err)
			a.countEdit(section, status)
			a.log.Info("edit command rejected",
				"section", string(section),
				"status", status,
				"error", err.Error(),
			)
			a.writeJSON(w, status, map[string]any{"error": err.Error()})
			return
		}

		a.countEdit(section, http.StatusOK)
		if a.metrics != nil {
			a.metrics.ConfigVersion.Set(float64(ver))
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": ver})
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, version.GetInfo())
}

func (a *API) sendUnauthorized(w http.ResponseWriter, chain *auth.Chain) {
	challenges := chain.Challenges()
	if len(challenges) == 0 {
		challenges = []string{"Basic"}
	}
	var hdr []string
	for _, ch := range challenges {
		hdr = append(hdr, ch+` realm="`+a.realm+`"`)
	}
	w.Header().Set("WWW-Authenticate", strings.Join(hdr, ", "))
	a.writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Error("write response", "error", err)
	}
}

func (a *API) countAuth(scheme, outcome string) {
	if a.metrics != nil {
		a.metrics.AuthAttempts.WithLabelValues(scheme, outcome).Inc()
	}
}

func (a *API) countEdit(section security.Section, status int) {
	if a.metrics != nil {
		a.metrics.EditCommands.WithLabelValues(string(section), strconv.Itoa(status)).Inc()
	}
}
