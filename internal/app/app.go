// Package app wires all Orbit subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects the floor
// store, the room state channel, the reconciler, and the HTTP API; Run
// executes the serving loops; Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithFloorStore, WithChannel, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eburon-meet/orbit/internal/api"
	"github.com/eburon-meet/orbit/internal/config"
	"github.com/eburon-meet/orbit/internal/floor"
	"github.com/eburon-meet/orbit/internal/health"
	"github.com/eburon-meet/orbit/internal/observe"
	"github.com/eburon-meet/orbit/internal/roomstate"
	"github.com/eburon-meet/orbit/internal/session"
	"github.com/eburon-meet/orbit/internal/store/postgres"
	"github.com/eburon-meet/orbit/pkg/provider/stt"
	"github.com/eburon-meet/orbit/pkg/provider/translate"
	"github.com/eburon-meet/orbit/pkg/provider/tts"
)

// DefaultListenAddr is used when server.listen_addr is not configured.
const DefaultListenAddr = ":8080"

// serverStopTimeout bounds the HTTP drain triggered by Run's own context.
const serverStopTimeout = 5 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	STT       stt.Provider
	Translate translate.Provider
	TTS       tts.Provider
}

// App owns all subsystem lifetimes and orchestrates the Orbit meeting server.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger

	// Subsystems — initialised in New, torn down in Shutdown.
	metrics    *observe.Metrics
	channel    roomstate.Channel
	tracker    *roomstate.Tracker
	floorStore floor.Store
	archive    session.TranscriptArchive
	reconciler *roomstate.Reconciler
	server     *api.Server
	rooms      *RoomManager

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithFloorStore injects a floor store instead of creating one from config.
func WithFloorStore(s floor.Store) Option {
	return func(a *App) { a.floorStore = s }
}

// WithChannel injects a room state channel instead of creating one from config.
func WithChannel(ch roomstate.Channel) Option {
	return func(a *App) { a.channel = ch }
}

// WithArchive injects a transcript archive instead of creating one from config.
func WithArchive(ar session.TranscriptArchive) Option {
	return func(a *App) { a.archive = ar }
}

// WithMetrics injects a metrics instance instead of using the global one.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if providers == nil {
		providers = &Providers{}
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Room state channel ────────────────────────────────────────────
	if err := a.initChannel(); err != nil {
		return nil, fmt.Errorf("app: init channel: %w", err)
	}
	a.tracker = roomstate.NewTracker(a.channel)

	// ── 2. Floor store + transcript archive ──────────────────────────────
	var checkers []health.Checker
	if a.floorStore == nil {
		cs, err := a.initStore(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: init store: %w", err)
		}
		checkers = cs
	}

	// ── 3. Reconciler ────────────────────────────────────────────────────
	a.reconciler = roomstate.NewReconciler(a.floorStore, a.tracker, cfg.Floor.HeartbeatInterval.Std())

	// ── 4. Room sessions ─────────────────────────────────────────────────
	a.rooms = NewRoomManager(RoomManagerConfig{
		Config:     cfg,
		Providers:  providers,
		Store:      a.floorStore,
		Channel:    a.channel,
		Archive:    a.archive,
		Reconciler: a.reconciler,
		Metrics:    a.metrics,
		Logger:     a.log,
	})

	// ── 5. HTTP API ──────────────────────────────────────────────────────
	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = DefaultListenAddr
	}
	serverCfg := api.ServerConfig{
		Addr:    addr,
		Store:   a.floorStore,
		Health:  health.New(checkers...),
		Metrics: a.metrics,
		Logger:  a.log,
	}
	if cfg.Server.TLS != nil {
		serverCfg.TLSCertFile = cfg.Server.TLS.CertFile
		serverCfg.TLSKeyFile = cfg.Server.TLS.KeyFile
	}
	srv, err := api.NewServer(serverCfg)
	if err != nil {
		return nil, fmt.Errorf("app: init api server: %w", err)
	}
	a.server = srv

	return a, nil
}

// initChannel sets up the room state channel from config unless one was
// injected.
func (a *App) initChannel() error {
	if a.channel != nil {
		return nil
	}

	switch a.cfg.Channel.Backend {
	case config.ChannelNATS:
		ch, err := roomstate.ConnectNATS(a.cfg.Channel.NATSURL)
		if err != nil {
			return err
		}
		a.channel = ch
		a.closers = append(a.closers, func() error {
			ch.Close()
			return nil
		})
		a.log.Info("room state channel connected", "backend", "nats", "url", a.cfg.Channel.NATSURL)
	default:
		a.channel = roomstate.NewHub()
		a.log.Info("room state channel created", "backend", "memory")
	}
	return nil
}

// initStore sets up the floor store and transcript archive from config.
// Lock mutations are fed into the tracker so listeners see them without
// waiting for a reconciler sweep. Returns readiness checkers for the
// backing services.
func (a *App) initStore(ctx context.Context) ([]health.Checker, error) {
	stale := a.cfg.Floor.StaleThreshold.Std()

	switch a.cfg.Store.Backend {
	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, a.cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})

		storeOpts := []postgres.FloorStoreOption{
			postgres.WithChangeHook(a.tracker.LockChanged),
		}
		if stale > 0 {
			storeOpts = append(storeOpts, postgres.WithStaleThreshold(stale))
		}
		a.floorStore = postgres.NewFloorStore(pool, storeOpts...)
		if a.archive == nil {
			a.archive = postgres.NewTranscriptStore(pool)
		}
		a.log.Info("floor store connected", "backend", "postgres")

		return []health.Checker{{
			Name:  "postgres",
			Check: func(ctx context.Context) error { return pool.Ping(ctx) },
		}}, nil

	default:
		storeOpts := []floor.MemStoreOption{
			floor.WithChangeHook(a.tracker.LockChanged),
		}
		if stale > 0 {
			storeOpts = append(storeOpts, floor.WithStaleThreshold(stale))
		}
		a.floorStore = floor.NewMemStore(storeOpts...)
		if a.archive == nil {
			// No archive in memory mode; listener catch-up is disabled.
			a.log.Info("floor store created", "backend", "memory", "archive", false)
		}
		return nil, nil
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Rooms returns the per-room session manager.
func (a *App) Rooms() *RoomManager { return a.rooms }

// Server returns the HTTP API server.
func (a *App) Server() *api.Server { return a.server }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the HTTP server and the floor reconciler and blocks until ctx is
// cancelled or a serving loop fails. When ctx is done, Run drains the HTTP
// server and returns the context error.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Start()
	})
	g.Go(func() error {
		return a.reconciler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), serverStopTimeout)
		defer cancel()
		return a.server.Stop(stopCtx)
	})

	a.log.Info("app running", "listen_addr", a.cfg.Server.ListenAddr)
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops room sessions, drains the HTTP server, and tears down all
// subsystems in reverse-init order. It respects the context deadline: if ctx
// expires before all closers finish, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		a.rooms.StopAll(ctx)

		if err := a.server.Stop(ctx); err != nil {
			a.log.Warn("api server stop error", "err", err)
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
