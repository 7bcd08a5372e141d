// Package api exposes the floor-control HTTP surface: claim, heartbeat, and
// release actions per room, the current lock snapshot, and the operational
// endpoints (health, readiness, Prometheus metrics).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eburon-meet/orbit/internal/floor"
	"github.com/eburon-meet/orbit/internal/health"
	"github.com/eburon-meet/orbit/internal/observe"
	"github.com/eburon-meet/orbit/pkg/types"
)

// shutdownTimeout bounds graceful drain on Stop.
const shutdownTimeout = 10 * time.Second

// Server routes floor-control requests to a [floor.Store].
type Server struct {
	store    floor.Store
	health   *health.Handler
	log      *slog.Logger
	router   chi.Router
	httpSrv  *http.Server
	certFile string
	keyFile  string
}

// ServerConfig holds construction parameters for a [Server].
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// Store is the floor-lock table all room routes operate on. Required.
	Store floor.Store

	// Health serves /healthz and /readyz. Required.
	Health *health.Handler

	// Metrics instruments request durations. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewServer builds the router. Call [Server.Start] to begin serving.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("api: Store is required")
	}
	if cfg.Health == nil {
		return nil, errors.New("api: Health is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	srv := &Server{
		store:    cfg.Store,
		health:   cfg.Health,
		log:      log,
		certFile: cfg.TLSCertFile,
		keyFile:  cfg.TLSKeyFile,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(observe.Middleware(metrics))

	r.Get("/healthz", srv.health.Healthz)
	r.Get("/readyz", srv.health.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/rooms/{room}", func(r chi.Router) {
		r.Get("/floor", srv.handleGetFloor)
		r.Post("/floor", srv.handlePostFloor)
	})

	srv.router = r
	srv.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv, nil
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start serves until the listener fails or [Server.Stop] is called.
// http.ErrServerClosed is swallowed: a deliberate stop is not an error.
func (s *Server) Start() error {
	tls := s.certFile != "" && s.keyFile != ""
	s.log.Info("http api listening", "addr", s.httpSrv.Addr, "tls", tls)

	var err error
	if tls {
		err = s.httpSrv.ListenAndServeTLS(s.certFile, s.keyFile)
	} else {
		err = s.httpSrv.ListenAndServe()
	}
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// floorState is the JSON shape of a lock snapshot.
type floorState struct {
	RoomID      string    `json:"room_id"`
	Held        bool      `json:"held"`
	Holder      string    `json:"holder,omitempty"`
	AcquiredAt  time.Time `json:"acquired_at,omitempty"`
	HeartbeatAt time.Time `json:"heartbeat_at,omitempty"`
}

func lockJSON(roomID string, lock types.FloorLock) floorState {
	return floorState{
		RoomID:      roomID,
		Held:        lock.Held(),
		Holder:      lock.Holder,
		AcquiredAt:  lock.AcquiredAt,
		HeartbeatAt: lock.HeartbeatAt,
	}
}

// floorAction is the POST /floor request body.
type floorAction struct {
	Action   string `json:"action"`
	Identity string `json:"identity"`
}

func (s *Server) handleGetFloor(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room")

	lock, err := s.store.Snapshot(r.Context(), roomID)
	if err != nil {
		s.log.Error("floor snapshot failed", "room", roomID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, lockJSON(roomID, lock))
}

func (s *Server) handlePostFloor(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room")

	var req floorAction
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Identity == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "identity is required"})
		return
	}

	ctx := r.Context()
	switch req.Action {
	case "claim":
		lock, err := s.store.Acquire(ctx, roomID, req.Identity)
		var held *floor.LockHeldError
		if errors.As(err, &held) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error":  "floor is held",
				"holder": held.Holder,
			})
			return
		}
		if err != nil {
			s.log.Error("floor claim failed", "room", roomID, "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, lockJSON(roomID, lock))

	case "force_claim":
		lock, err := s.store.ForceAcquire(ctx, roomID, req.Identity)
		if err != nil {
			s.log.Error("floor force claim failed", "room", roomID, "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, lockJSON(roomID, lock))

	case "heartbeat":
		if err := s.store.Heartbeat(ctx, roomID, req.Identity); err != nil {
			s.log.Error("floor heartbeat failed", "room", roomID, "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "release":
		if err := s.store.Release(ctx, roomID, req.Identity); err != nil {
			s.log.Error("floor release failed", "room", roomID, "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "action must be claim, force_claim, heartbeat, or release",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
