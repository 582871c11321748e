// Package admin serves the operational HTTP endpoints of a running file
// server on a separate address:
//
//	GET /healthz   liveness and admission occupancy
//	GET /metrics   Prometheus exposition
//	GET /stats     JSON snapshot of server metrics
//	GET /stats/ws  WebSocket pushing the snapshot every StatsInterval
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vango-dev/getserve/pkg/server"
)

// DefaultStatsInterval is how often /stats/ws pushes a snapshot.
const DefaultStatsInterval = time.Second

// StatsSource provides the snapshot served on /stats. *server.Server
// implements it.
type StatsSource interface {
	Metrics() *server.ServerMetrics
}

// Config configures the admin server.
type Config struct {
	// Address is the listen address, e.g. "127.0.0.1:9090".
	Address string

	// StatsInterval is the push interval of /stats/ws.
	// Default: 1 second.
	StatsInterval time.Duration

	// Gatherer is exposed on /metrics.
	// Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Logger is the structured logger. Default: slog.Default().
	Logger *slog.Logger
}

// Server is the admin HTTP server.
type Server struct {
	config Config
	source StatsSource
	router chi.Router
	logger *slog.Logger

	hub     *statsHub
	hubOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	httpServer *http.Server
}

// New creates an admin server reading stats from source.
func New(source StatsSource, config Config) *Server {
	if config.StatsInterval <= 0 {
		config.StatsInterval = DefaultStatsInterval
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "admin")

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config: config,
		source: source,
		logger: logger,
		hub:    newStatsHub(logger),
		ctx:    ctx,
		cancel: cancel,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/stats", s.handleStats)
	r.Get("/stats/ws", s.handleStatsWS)
	return r
}

// Handler returns the admin router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe listens on Config.Address and serves until ctx is done or
// Close is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves the admin endpoints on ln until ctx is done or Close is called.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	s.logger.Info("admin listening", "address", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops the HTTP server and disconnects stats subscribers.
func (s *Server) Close() error {
	s.cancel()
	s.hub.closeAll()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// Subscribers returns the number of connected /stats/ws clients.
func (s *Server) Subscribers() int {
	return s.hub.count()
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	InUse    int    `json:"in_use"`
	Capacity int    `json:"capacity"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	m := s.source.Metrics()
	writeJSON(w, HealthResponse{
		Status:   "ok",
		InUse:    m.Admission.InUse,
		Capacity: m.Admission.Capacity,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.source.Metrics())
}

func (s *Server) handleStatsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	s.hubOnce.Do(func() {
		go s.hub.run(s.ctx, s.config.StatsInterval, s.source)
	})

	client := s.hub.add(conn)
	// First snapshot right away; later ones come from the hub ticker.
	if err := client.send(s.source.Metrics()); err != nil {
		s.hub.remove(client)
		return
	}

	// Keep connection alive until client disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.remove(client)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
