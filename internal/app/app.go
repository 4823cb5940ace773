package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/quicklink-server/internal/auth"
	"github.com/vovakirdan/quicklink-server/internal/config"
	"github.com/vovakirdan/quicklink-server/internal/core"
	"github.com/vovakirdan/quicklink-server/internal/metrics"
	"github.com/vovakirdan/quicklink-server/internal/proto"
	"github.com/vovakirdan/quicklink-server/internal/service/community"
	"github.com/vovakirdan/quicklink-server/internal/store"
	"github.com/vovakirdan/quicklink-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/quicklink-server/internal/transport/http"
)

// App wires together storage, the broadcast hub and the HTTP transport.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	})

	reg := metrics.NewRegistry()
	hub := core.NewHub(st, core.HubOptions{
		Encode:  proto.EncodeMessageEvent,
		Metrics: metrics.NewHubMetrics(reg),
		Logger:  logger,
		Conn: core.ConnOptions{
			SendBuffer:   cfg.WS.SendBuffer,
			WriteTimeout: cfg.WS.WriteTimeout,
			PingInterval: cfg.WS.PingInterval,
		},
	})

	server := transporthttp.NewServer(transporthttp.Deps{
		Hub:       hub,
		Auth:      authService,
		Community: community.New(st, hub, cfg.HistoryLimit, logger),
		Metrics:   reg,
		Config:    cfg,
		Logger:    logger,
	})

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// Migrate applies the schema to the configured database and exits.
func Migrate(cfg *config.Config, logger *zerolog.Logger) error {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("schema applied")
	return st.Close()
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	hubDone := make(chan struct{})
	go func() {
		a.hub.Run(hubCtx)
		close(hubDone)
	}()

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		stopHub()
		<-hubDone
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		// Hijacked websocket connections are not tracked by Shutdown; the hub closes them.
		<-hubDone
		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
