package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/vango-dev/getserve/pkg/admission"
	"github.com/vango-dev/getserve/pkg/resolve"
)

// shutdownPollInterval is how often Shutdown looks for idle connections.
const shutdownPollInterval = 50 * time.Millisecond

// Server accepts connections and serves each one on its own goroutine,
// admitting at most Config.Capacity handlers at a time.
type Server struct {
	// Configuration
	config *Config

	// Request handler with middleware applied
	handler Handler

	// Admission control
	admission *admission.Controller

	// Metrics
	metrics *MetricsCollector

	// Logger
	logger *slog.Logger

	// Base context for handlers, cancelled when connections are force-closed
	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu           sync.Mutex
	listener     *BoundListener
	stopServe    context.CancelFunc
	conns        map[*conn]struct{}
	handlers     sync.WaitGroup
	shuttingDown atomic.Bool
	nextConnID   atomic.Uint64
}

// BoundListener is a listening socket together with the address it was
// bound from.
type BoundListener struct {
	net.Listener
	Address *resolve.Address
	Backlog int
}

// New creates a new Server with the given configuration. Unset fields are
// filled from DefaultConfig.
func New(config *Config) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	config = config.Clone()
	config.applyDefaults()

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")

	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}
	for _, warning := range config.GetConfigWarnings() {
		logger.Warn("config warning", "warning", warning)
	}

	var opts []admission.Option
	if config.AdmissionObserver != nil {
		opts = append(opts, admission.WithObserver(config.AdmissionObserver))
	}
	ctl, err := admission.New(config.Capacity, opts...)
	if err != nil {
		return nil, err
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:     config,
		handler:    Chain(config.Handler, config.Middleware...),
		admission:  ctl,
		metrics:    NewMetricsCollector(),
		logger:     logger,
		baseCtx:    baseCtx,
		cancelBase: cancel,
		conns:      make(map[*conn]struct{}),
	}, nil
}

// Start resolves the bind endpoint, binds it and starts listening.
// Resolution failures are returned as *resolve.HostResolutionError, bind
// failures as *ServerFatalError.
func (s *Server) Start(ctx context.Context) (*BoundListener, error) {
	if s.shuttingDown.Load() {
		return nil, ErrServerClosed
	}

	resolver := s.config.Resolver
	if resolver == nil {
		resolver = resolve.DefaultResolver
	}
	addr, err := resolver.Resolve(ctx, s.config.Host, s.config.Port, s.config.FamilyOrder)
	if err != nil {
		return nil, err
	}

	ln, err := resolve.Listen(ctx, addr, s.config.Backlog)
	if err != nil {
		return nil, &ServerFatalError{Op: "listen", Addr: addr.String(), Err: err}
	}

	s.logger.Info("listening",
		"address", ln.Addr().String(),
		"family", addr.Family.String(),
		"backlog", s.config.Backlog,
		"capacity", s.config.Capacity)

	return &BoundListener{Listener: ln, Address: addr, Backlog: s.config.Backlog}, nil
}

// Serve accepts connections on bl until ctx is done, Shutdown is called, or
// accepting fails. For each connection it first acquires an admission slot,
// blocking the accept loop while the server is at capacity, and then serves
// the connection on a new goroutine that releases the slot when it exits.
//
// Serve returns nil when stopped through ctx or Shutdown. An accept failure
// closes the listener and returns a *ServerFatalError.
func (s *Server) Serve(ctx context.Context, bl *BoundListener) error {
	s.mu.Lock()
	if s.shuttingDown.Load() {
		s.mu.Unlock()
		bl.Close()
		return ErrServerClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.listener = bl
	s.stopServe = cancel
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { s.closeListener() })
	defer stop()

	for {
		rwc, err := bl.Accept()
		if err != nil {
			if s.shuttingDown.Load() || ctx.Err() != nil {
				return nil
			}
			s.closeListener()
			s.logger.Error("accept failed", "error", err)
			return &ServerFatalError{Op: "accept", Addr: bl.Addr().String(), Err: err}
		}
		s.metrics.RecordConnAccepted()

		slot, err := s.admission.Acquire(ctx)
		if err != nil {
			// Stopped while waiting for capacity.
			rwc.Close()
			s.metrics.RecordConnClosed()
			return nil
		}

		c := s.newConn(rwc, slot)
		if !s.trackConn(c) {
			c.close()
			slot.Release()
			return nil
		}
		go c.serve(s.baseCtx)
	}
}

// Run starts the server on the configured address and blocks until an
// interrupt, a termination signal, ctx cancellation, or a listener failure.
// Handlers are then drained for up to ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bl, err := s.Start(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(ctx, bl)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		s.logger.Info("shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		return err
	}
	return serveErr
}

// Shutdown stops accepting, closes idle connections and waits for active
// ones to finish. When ctx expires first, remaining connections are closed
// and ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)
	s.closeListener()

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()
	for {
		s.closeIdleConns()
		select {
		case <-done:
			s.logger.Info("server shutdown complete")
			return nil
		case <-ctx.Done():
			s.closeAllConns()
			s.cancelBase()
			<-done
			s.logger.Error("shutdown error", "error", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Server) closeListener() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return
	}
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn("listener close failed", "error", err)
	}
	s.listener = nil
	if s.stopServe != nil {
		s.stopServe()
		s.stopServe = nil
	}
}

func (s *Server) newConn(rwc net.Conn, slot *admission.Slot) *conn {
	id := s.nextConnID.Add(1)
	return &conn{
		srv:    s,
		id:     id,
		rwc:    rwc,
		slot:   slot,
		logger: s.logger.With("conn", id, "remote", rwc.RemoteAddr().String()),
	}
}

// trackConn registers c and counts it as a running handler. It fails once
// shutdown has begun.
func (s *Server) trackConn(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown.Load() {
		return false
	}
	s.conns[c] = struct{}{}
	s.handlers.Add(1)
	return true
}

func (s *Server) untrackConn(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) closeIdleConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		if c.idle.Load() {
			c.rwc.Close()
		}
	}
}

func (s *Server) closeAllConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.rwc.Close()
	}
}

// Admission returns the admission controller.
func (s *Server) Admission() *admission.Controller {
	return s.admission
}

// Config returns the server configuration.
func (s *Server) Config() *Config {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// SetLogger sets the server logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}
