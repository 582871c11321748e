package server

import (
	"errors"
	"fmt"
)

// Sentinel errors for server conditions.
var (
	// ErrServerFatal matches every *ServerFatalError via errors.Is.
	ErrServerFatal = errors.New("server: listening socket failed")

	// ErrServerClosed is returned by Start and Serve after Shutdown.
	ErrServerClosed = errors.New("server: server closed")

	// ErrNoHandler is returned when the configuration has no Handler.
	ErrNoHandler = errors.New("server: no handler configured")
)

// ServerFatalError reports a failure of the listening socket. The server
// stops accepting when it occurs.
type ServerFatalError struct {
	Op   string // "listen" or "accept"
	Addr string
	Err  error
}

// Error returns the error message with the bind address.
func (e *ServerFatalError) Error() string {
	return fmt.Sprintf("server: %s %s: %v", e.Op, e.Addr, e.Err)
}

// Unwrap exposes ErrServerFatal and the underlying error.
func (e *ServerFatalError) Unwrap() []error {
	return []error{ErrServerFatal, e.Err}
}

// TransportError wraps a read or write failure on one connection. It
// aborts that connection only.
type TransportError struct {
	ConnID uint64
	Remote string
	Op     string // "read" or "write"
	Err    error
}

// Error returns the error message with connection context.
func (e *TransportError) Error() string {
	return fmt.Sprintf("server: conn %d (%s): %s: %v", e.ConnID, e.Remote, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// HandlerError wraps a panic raised while serving a connection.
type HandlerError struct {
	ConnID uint64
	Panic  any
	Stack  []byte
}

// Error returns the error message.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("server: handler panic on conn %d: %v", e.ConnID, e.Panic)
}
