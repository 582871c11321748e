package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/vango-dev/getserve/pkg/admission"
	"github.com/vango-dev/getserve/pkg/resolve"
)

const (
	// DefaultPort is the port served when none is configured.
	DefaultPort = 9001

	// DefaultReadBufferSize is the size of each transport read.
	DefaultReadBufferSize = 4096

	// DefaultMaxRequestBytes bounds the bytes buffered for one request.
	DefaultMaxRequestBytes = 64 * 1024
)

// Config holds configuration for the listener and its connection handlers.
type Config struct {
	// Bind endpoint

	// Host is the bind host. Empty means any local address.
	Host string

	// Port is the bind port. 0 picks an ephemeral port.
	// Default: 9001 (set by DefaultConfig only).
	Port int

	// FamilyOrder is the address family preference used to resolve Host.
	// Default: resolve.ServerOrder (IPv6 first).
	FamilyOrder resolve.Order

	// Resolver performs the lookup. Default: resolve.DefaultResolver.
	Resolver *resolve.Resolver

	// Backlog is the listen queue depth for connections not yet accepted.
	// Default: 5.
	Backlog int

	// Admission

	// Capacity is the maximum number of connections handled at once.
	// Default: 8.
	Capacity int

	// AdmissionObserver receives slot acquire/release events.
	AdmissionObserver admission.Observer

	// Connection handling

	// ReadBufferSize is the size of each transport read.
	// Default: 4096.
	ReadBufferSize int

	// MaxRequestBytes is the most a client may send without completing a
	// request. Exceeding it gets a 400 response and the connection closed.
	// Default: 64KB.
	MaxRequestBytes int

	// CloseAfterResponse closes each connection after one exchange. When
	// false, a connection serves requests until the peer closes it.
	// Default: false.
	CloseAfterResponse bool

	// IdleTimeout bounds each wait for client bytes. 0 disables it, in
	// which case a stalled client keeps its admission slot.
	// Default: 0.
	IdleTimeout time.Duration

	// WriteTimeout bounds writing one response. 0 disables it.
	// Default: 0.
	WriteTimeout time.Duration

	// Server lifecycle

	// ShutdownTimeout is the maximum time Run waits for handlers to drain.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// Dispatch

	// Handler answers parsed requests. Required.
	Handler Handler

	// Middleware wraps Handler; the first entry is outermost.
	Middleware []Middleware

	// ConnStateHook is called on every connection state transition.
	ConnStateHook func(net.Conn, ConnState)

	// Logger is the structured logger. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults. Handler must still
// be set.
func DefaultConfig() *Config {
	return &Config{
		Port:            DefaultPort,
		FamilyOrder:     resolve.ServerOrder,
		Backlog:         resolve.DefaultBacklog,
		Capacity:        admission.DefaultCapacity,
		ReadBufferSize:  DefaultReadBufferSize,
		MaxRequestBytes: DefaultMaxRequestBytes,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.FamilyOrder = append(resolve.Order(nil), c.FamilyOrder...)
	clone.Middleware = append([]Middleware(nil), c.Middleware...)
	return &clone
}

// WithAddress sets the bind host and port and returns the config for chaining.
func (c *Config) WithAddress(host string, port int) *Config {
	c.Host = host
	c.Port = port
	return c
}

// WithCapacity sets the admission capacity and returns the config for chaining.
func (c *Config) WithCapacity(n int) *Config {
	c.Capacity = n
	return c
}

// WithHandler sets the request handler and returns the config for chaining.
func (c *Config) WithHandler(h Handler) *Config {
	c.Handler = h
	return c
}

// WithMiddleware appends middleware and returns the config for chaining.
func (c *Config) WithMiddleware(mw ...Middleware) *Config {
	c.Middleware = append(c.Middleware, mw...)
	return c
}

// applyDefaults fills unset fields from DefaultConfig. Port is left alone
// because 0 is meaningful.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if len(c.FamilyOrder) == 0 {
		c.FamilyOrder = defaults.FamilyOrder
	}
	if c.Backlog == 0 {
		c.Backlog = defaults.Backlog
	}
	if c.Capacity == 0 {
		c.Capacity = defaults.Capacity
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = defaults.ReadBufferSize
	}
	if c.MaxRequestBytes == 0 {
		c.MaxRequestBytes = defaults.MaxRequestBytes
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
}

// ValidateConfig checks the configuration for values the server cannot run with.
func (c *Config) ValidateConfig() error {
	var errs []error
	if c.Handler == nil {
		errs = append(errs, ErrNoHandler)
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("server: port %d out of range", c.Port))
	}
	if c.Capacity < 0 {
		errs = append(errs, fmt.Errorf("server: capacity %d must be positive", c.Capacity))
	}
	if c.Backlog < 0 {
		errs = append(errs, fmt.Errorf("server: backlog %d must be positive", c.Backlog))
	}
	if c.ReadBufferSize < 0 || c.MaxRequestBytes < 0 {
		errs = append(errs, errors.New("server: buffer sizes must be positive"))
	}
	if c.MaxRequestBytes > 0 && c.ReadBufferSize > c.MaxRequestBytes {
		errs = append(errs, fmt.Errorf("server: read buffer %d larger than max request %d", c.ReadBufferSize, c.MaxRequestBytes))
	}
	if c.IdleTimeout < 0 || c.WriteTimeout < 0 {
		errs = append(errs, errors.New("server: timeouts must not be negative"))
	}
	return errors.Join(errs...)
}

// GetConfigWarnings returns advice about legal but risky settings.
func (c *Config) GetConfigWarnings() []string {
	var warnings []string
	if c.IdleTimeout == 0 {
		warnings = append(warnings, "IdleTimeout is 0: a stalled client holds its admission slot until it closes")
	}
	if c.Capacity > 0 && c.Backlog > 0 && c.Backlog < c.Capacity/4 {
		warnings = append(warnings, fmt.Sprintf("Backlog %d is small for Capacity %d", c.Backlog, c.Capacity))
	}
	return warnings
}
