package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatdb/pkg/banner"
	"chatdb/pkg/channels"
	"chatdb/pkg/config"
	"chatdb/pkg/ident"
	"chatdb/pkg/logger"
	"chatdb/pkg/messages"
	"chatdb/pkg/search"
	"chatdb/pkg/store"
	"chatdb/pkg/users"
	"chatdb/pkg/validation"
	"chatdb/pkg/workspaces"
)

// App wires the store and the repositories together and owns their
// lifecycle. Construction order follows the dependency direction: users,
// then channels, then messages, then search.
type App struct {
	cfg     *config.Config
	sources string
	version string

	st *store.Store

	Users      *users.Repo
	Channels   *channels.Repo
	Messages   *messages.Repo
	Search     *search.Index
	Workspaces *workspaces.Repo

	srv *http.Server
}

// New validates the effective config, opens the store and constructs the
// repositories. It does not start the metrics listener; call Run to start
// it and block until shutdown.
func New(cfg *config.Config, sources, version string) (*App, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Storage.DBPath, cfg.Limits.BatchGet)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.Storage.DBPath, err)
	}

	ids := ident.UUIDGenerator{}
	clock := ident.SystemClock{}
	rules := validation.Rules{
		MaxContentLen: cfg.Limits.MaxContentLen,
		MaxNameLen:    cfg.Limits.MaxNameLen,
	}

	ur := users.New(st, ids, clock, rules)
	cr := channels.New(st, ur, ids, clock, rules, cfg.Chat.DefaultChannel)
	mr := messages.New(st, ur, cr, ids, clock, rules)
	sx := search.New(st, mr, cr, cfg.Limits.SearchResults, cfg.Limits.CandidateScan)
	wr := workspaces.New(st, ids, clock, rules)

	return &App{
		cfg: cfg, sources: sources, version: version,
		st:         st,
		Users:      ur,
		Channels:   cr,
		Messages:   mr,
		Search:     sx,
		Workspaces: wr,
	}, nil
}

// Run ensures the default channel exists, starts the metrics/health
// listener and blocks until ctx is canceled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.Channels.EnsureDefault(ctx); err != nil {
		return fmt.Errorf("ensure default channel: %w", err)
	}

	banner.Print(a.cfg, a.sources, a.version)

	errCh := a.startMetrics()

	select {
	case <-ctx.Done():
		a.shutdownMetrics()
		return a.Close()
	case err := <-errCh:
		_ = a.Close()
		return err
	}
}

// Close flushes and closes the store.
func (a *App) Close() error {
	if a.st == nil {
		return nil
	}
	err := a.st.Close()
	a.st = nil
	return err
}

// startMetrics serves /metrics and /healthz on the configured address. A
// listener failure is fatal to Run; ErrServerClosed from shutdown is not.
func (a *App) startMetrics() <-chan error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	a.srv = &http.Server{Addr: a.cfg.Metrics.Address, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics_listening", "addr", a.cfg.Metrics.Address)
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

func (a *App) shutdownMetrics() {
	if a.srv == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(sctx); err != nil {
		logger.Warn("metrics_shutdown_failed", "error", err)
	}
}
