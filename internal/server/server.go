// Package server wires the security store, authentication chain, and admin
// API into a runnable Aegis server.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/aegisgate/aegis/internal/api"
	"github.com/aegisgate/aegis/internal/config"
	"github.com/aegisgate/aegis/internal/logging"
	"github.com/aegisgate/aegis/internal/metrics"
	"github.com/aegisgate/aegis/internal/security"

	// Register the built-in authentication scheme plugins.
	_ "github.com/aegisgate/aegis/internal/auth/plugin/basic"
	_ "github.com/aegisgate/aegis/internal/auth/plugin/jwt"
	_ "github.com/aegisgate/aegis/internal/auth/plugin/kerberos"
	_ "github.com/aegisgate/aegis/internal/auth/plugin/ldap"
	_ "github.com/aegisgate/aegis/internal/auth/plugin/mock"
)

// Server is the main Aegis server.
type Server struct {
	config  *config.ServerConfig
	store   *security.FileStore
	holder  *Holder
	metrics *metrics.Metrics

	httpServer *http.Server
}

// New creates a new Aegis server.
func New(cfg *config.ServerConfig) (*Server, error) {
	if err := logging.Setup(cfg.Logging); err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}

	store, err := security.OpenFileStore(cfg.Security.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open security store: %w", err)
	}

	ver, err := bootstrap(store, cfg.Security.BootstrapPath)
	if err != nil {
		return nil, err
	}

	holder, err := NewHolder(store, cfg.Auth.AttemptTimeout.Duration())
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	m.ConfigVersion.Set(float64(ver))

	a := api.New(api.Config{
		Store:     store,
		Router:    security.NewRouter(store, holder),
		Snapshots: holder,
		Metrics:   m,
		Realm:     cfg.Auth.Realm,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      a.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  cfg.Server.IdleTimeout.Duration(),
	}

	return &Server{
		config:     cfg,
		store:      store,
		holder:     holder,
		metrics:    m,
		httpServer: httpServer,
	}, nil
}

// bootstrap seeds an empty store from the bootstrap document, if one is
// configured. A store that already holds a version is left untouched so a
// stale bootstrap file cannot clobber admin edits.
func bootstrap(store *security.FileStore, path string) (int64, error) {
	_, ver, err := store.Read()
	if err != nil {
		return 0, fmt.Errorf("read security store: %w", err)
	}
	if ver > 0 || path == "" {
		return ver, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read bootstrap document: %w", err)
	}
	var seed security.SecurityConfig
	if err := json.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parse bootstrap document: %w", err)
	}
	ver, err = store.Persist(seed, 0)
	if err != nil {
		return 0, fmt.Errorf("seed security store: %w", err)
	}
	return ver, nil
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	log := logging.WithComponent("server")

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			"addr", s.config.Server.Listen,
			"tls", s.config.Server.TLS != nil && s.config.Server.TLS.Enabled,
			"store", s.config.Security.StorePath,
		)
		var err error
		if tls := s.config.Server.TLS; tls != nil && tls.Enabled {
			err = s.httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.GracefulPeriod.Duration())
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return logging.Close()
}
