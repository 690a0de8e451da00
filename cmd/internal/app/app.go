// Package app wires the idvault runtime: config, logging, record store, field sealer,
// metrics, and the operational HTTP endpoints.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"idvault/cmd/identity"
	"idvault/cmd/security/sealer"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the idvault runtime: it owns the record service and the ops HTTP server.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	registry *prometheus.Registry
	records  *identity.Service
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	st, dbPool, dbEnabled, recordStore, err := newStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	a, err := wire(cfg, log, dbPool, dbEnabled, recordStore)
	if err != nil {
		_ = st.Close(context.Background())
		return nil, err
	}
	a.store = st
	return a, nil
}

func wire(cfg Config, log Logger, dbPool *pgxpool.Pool, dbEnabled bool, recordStore identity.Store) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics, err := identity.NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	sl := sealer.New(cfg.Sealer)
	if err := sl.Err(); err != nil {
		// Reads of plain attributes keep working; Create and RevealSecrets will fail.
		log.Warn("sealer.misconfigured", "err", err)
	} else {
		log.Info("sealer.ready", "algorithm", string(sl.Algorithm()), "fingerprint_keyed", sl.FingerprintKeyed())
	}
	if !sl.FingerprintKeyed() {
		log.Warn("sealer.fingerprint.unkeyed", "env", sealer.FingerprintKeyEnv)
	}

	opts := []identity.Option{
		identity.WithLogger(log),
		identity.WithMetrics(metrics),
	}
	if dbEnabled && cfg.AuditEnabled {
		audit, err := identity.NewPostgresAuditLog(dbPool, log, identity.WithSchema(cfg.DBSchema))
		if err != nil {
			return nil, err
		}
		opts = append(opts, identity.WithAudit(audit))
	}

	svc, err := identity.NewService(recordStore, sl, opts...)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		store:     nopStore{},
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		registry:  reg,
		records:   svc,
	}, nil
}

// Records returns the record service for an embedding transport layer.
func (a *App) Records() *identity.Service { return a.records }

// Handler returns the ops HTTP handler (health, readiness, metrics) with middleware applied.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.registry)
	return WithRequestLogging(WithSecurityHeaders(mux), a.log)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
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

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
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

	// Close store resources (pool etc).
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

// newStore decides between Postgres-backed persistence and the in-memory store.
func newStore(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, identity.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return nopStore{}, nil, false, identity.NewMemoryStore(), nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, nil, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)

	// Ownership model:
	// - app owns pool lifecycle
	// - identity.PostgresStore never closes it
	records, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, err
	}

	if err := CheckRecordSchema(ctx, pool, cfg.DBSchema, requiredTables(cfg)); err != nil {
		pool.Close()
		return nil, nil, false, nil, err
	}

	return dbStore{pool: pool}, pool, true, records, nil
}

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
