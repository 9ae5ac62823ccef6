// Package app wires the uniFree messaging server runtime: config, logging, storage,
// HTTP routes and the realtime gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"unifree/cmd/identity"
	"unifree/cmd/internal/auth/session"
	"unifree/cmd/internal/realtime"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Store releases the persistence resources New opened (pool, badger files).
type Store interface {
	Close(ctx context.Context) error
}

// App is the server runtime: it owns HTTP server wiring and the messaging components.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	registry *prometheus.Registry
	presence *realtime.Presence
	ws       *realtime.WSGateway
}

// New wires config, token verification, stores, metrics and the messaging gateway.
// The Presence registry is created once here and shared by reference.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogColor)
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("auth config: %w", err)
	}
	tokens, err := session.NewAccessTokenManager(sessCfg)
	if err != nil {
		return nil, fmt.Errorf("auth config: %w", err)
	}

	res, err := newStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := realtime.NewMetrics(registry)

	presence := realtime.NewPresence(log, metrics)
	ws, err := realtime.NewWSGateway(log, realtime.LoadGatewayConfigFromEnv(), realtime.GatewayDeps{
		Gate:       realtime.NewGate(log, tokens, res.users, metrics),
		Presence:   presence,
		History:    realtime.NewHistoryLoader(log, res.messages, res.users),
		Dispatcher: realtime.NewDispatcher(log, res.messages, presence, res.users, metrics),
		Receipts:   realtime.NewReadReceipts(log, res.messages, metrics),
		Metrics:    metrics,
	})
	if err != nil {
		_ = res.closer.Close(context.Background())
		return nil, err
	}

	log.Info("auth.config", "token_format", sessCfg.Format, "issuer", sessCfg.Issuer)

	return &App{
		cfg:       cfg,
		log:       log,
		store:     res.closer,
		dbPool:    res.pool,
		dbEnabled: res.pool != nil,
		registry:  registry,
		presence:  presence,
		ws:        ws,
	}, nil
}

// Handler returns the full HTTP handler (routes plus middleware).
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.ws, a.registry)
	return WithRequestLogging(WithSecurityHeaders(mux), a.log)
}

// Run serves HTTP until ctx is canceled or the listener fails, then drains and closes the stores.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"db_enabled", a.dbEnabled,
		"health_url", base+"/healthz",
		"ws_url", wsBaseURL(base)+"/ws",
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done", "online_users", a.presence.Len())
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		_ = a.store.Close(context.Background())
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	// Close store resources (pool, badger files).
	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type storeResources struct {
	closer   Store
	pool     *pgxpool.Pool
	messages realtime.MessageStore
	users    identity.Directory
}

// newStore picks the persistence backends: Postgres when a database URL is set, otherwise
// Badger (when a path is set) or in-memory messages with the dev user directory.
func newStore(ctx context.Context, cfg Config, log Logger) (storeResources, error) {
	if cfg.DatabaseURL == "" {
		return newLocalStore(cfg, log)
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return storeResources{}, err
	}

	// Ownership model:
	// - app owns pool lifecycle
	// - PostgresStore.Close() is a no-op
	msgStore, err := realtime.NewPostgresStore(pool, realtime.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return storeResources{}, err
	}
	if cfg.DBAutoMigrate {
		if err := msgStore.Migrate(ctx); err != nil {
			pool.Close()
			return storeResources{}, err
		}
		log.Info("db.migrated", "schema", cfg.DBSchema)
	}

	users, err := identity.NewPostgresDirectory(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return storeResources{}, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)
	return storeResources{
		closer:   closerStore{messages: msgStore, pool: pool},
		pool:     pool,
		messages: msgStore,
		users:    users,
	}, nil
}

func newLocalStore(cfg Config, log Logger) (storeResources, error) {
	devUsers, err := identity.ParseUserList(cfg.DevUsers)
	if err != nil {
		return storeResources{}, fmt.Errorf("UNIFREE_DEV_USERS: %w", err)
	}
	users := identity.NewMemoryDirectory(devUsers...)
	log.Info("db.disabled.memory_directory", "users", len(devUsers))

	if cfg.BadgerPath != "" {
		msgStore, err := realtime.OpenBadgerStore(cfg.BadgerPath)
		if err != nil {
			return storeResources{}, err
		}
		log.Info("db.disabled.badger_store", "path", cfg.BadgerPath)
		return storeResources{
			closer:   closerStore{messages: msgStore},
			messages: msgStore,
			users:    users,
		}, nil
	}

	log.Info("db.disabled.inmemory_store")
	msgStore := realtime.NewInMemoryStore()
	return storeResources{
		closer:   closerStore{messages: msgStore},
		messages: msgStore,
		users:    users,
	}, nil
}

type closerStore struct {
	messages realtime.MessageStore
	pool     *pgxpool.Pool
}

func (s closerStore) Close(_ context.Context) error {
	var err error
	if s.messages != nil {
		err = s.messages.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}
