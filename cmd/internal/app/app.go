// Package app wires the Beacon server runtime: config, logging, stores, the
// realtime gateway, and the HTTP surface.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"beacon/cmd/internal/api"
	"beacon/cmd/internal/auth"
	"beacon/cmd/internal/realtime"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// App is the Beacon server runtime.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	metricsReg *prometheus.Registry

	gateway *realtime.Gateway
	api     *api.Handler

	users    auth.UserStore
	messages realtime.MessageStore
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	a := &App{cfg: cfg, log: log, metricsReg: prometheus.NewRegistry()}

	var (
		messages realtime.MessageStore
		channels realtime.ChannelStore
		users    auth.UserStore
	)

	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_stores")
		messages = realtime.NewMemoryMessageStore()
		channels = realtime.NewMemoryChannelStore(cfg.SeedChannels...)
		users = auth.NewMemoryUserStore()
	} else {
		pool, err := NewDBPool(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		a.dbPool = pool
		a.dbEnabled = true
		log.Info("db.enabled.postgres_stores")

		if messages, err = realtime.NewPostgresMessageStore(pool); err != nil {
			pool.Close()
			return nil, err
		}
		if channels, err = realtime.NewPostgresChannelStore(pool); err != nil {
			pool.Close()
			return nil, err
		}
		if users, err = auth.NewPostgresUserStore(pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	a.users = users
	a.messages = messages

	tokens, err := newTokenService(cfg, log)
	if err != nil {
		if a.dbPool != nil {
			a.dbPool.Close()
		}
		return nil, err
	}

	metrics := realtime.NewMetrics(a.metricsReg)
	registry := realtime.NewRegistry(log)
	router := realtime.NewRouter(log, registry, metrics)

	a.gateway = realtime.NewGateway(log, realtime.GatewayDeps{
		Registry: registry,
		Router:   router,
		Verifier: tokens,
		Channels: channels,
		Store:    messages,
		Metrics:  metrics,
	}, realtime.GatewayConfig{
		OriginRequired:    cfg.WSOriginRequired,
		AllowedOrigins:    cfg.WSAllowedOrigins,
		SendQueueSize:     cfg.WSSendQueue,
		WriteTimeout:      cfg.WSWriteTimeout,
		HeartbeatInterval: cfg.WSHeartbeatInterval,
		HeartbeatTimeout:  cfg.WSHeartbeatTimeout,
		RateEvents:        cfg.WSRateEvents,
		RateWindow:        cfg.WSRateWindow,
	})

	a.api = api.NewHandler(log, users, tokens, channels, messages)

	return a, nil
}

func newTokenService(cfg Config, log Logger) (*auth.TokenService, error) {
	secret := cfg.TokenSecret
	if secret == "" {
		// Dev-only: tokens do not survive a restart.
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate dev token secret: %w", err)
		}
		secret = hex.EncodeToString(b)
		log.Warn("token.secret.generated", "hint", "set BEACON_TOKEN_SECRET for stable tokens")
	}
	return auth.NewTokenService([]byte(secret), cfg.TokenTTL)
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(a.routes(), a.log),
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
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
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	_ = a.messages.Close()
	_ = a.users.Close()
	if a.dbPool != nil {
		a.dbPool.Close()
	}

	a.log.Info("server.stopped")
	return nil
}
