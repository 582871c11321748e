// Package client retrieves files from a getserve server.
//
// A Client holds one connection and sends requests over it one at a time:
//
//	c, err := client.Dial(ctx, "localhost", 9001, resolve.ClientOrder)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	resp, err := c.Get(ctx, "/index.html")
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/vango-dev/getserve/pkg/protocol"
	"github.com/vango-dev/getserve/pkg/resolve"
)

// ErrClosed is returned by requests on a closed Client.
var ErrClosed = errors.New("client: connection closed")

// Option configures a Client.
type Option func(*Client)

// WithResolver sets the resolver used by Dial.
func WithResolver(r *resolve.Resolver) Option {
	return func(c *Client) {
		c.resolver = r
	}
}

// WithTimeout bounds each request/response exchange. 0 disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is a connection to a server. Requests are serialized; a Client is
// safe for concurrent use but gains nothing from it.
type Client struct {
	resolver *resolve.Resolver
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	conn   net.Conn
	br     *bufio.Reader
	addr   *resolve.Address
	closed bool
}

// Dial resolves host and port in order and connects to the first address
// found. A nil order means resolve.ClientOrder.
func Dial(ctx context.Context, host string, port int, order resolve.Order, opts ...Option) (*Client, error) {
	c := &Client{
		resolver: resolve.DefaultResolver,
		logger:   slog.Default().With("component", "client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if order == nil {
		order = resolve.ClientOrder
	}

	addr, err := c.resolver.Resolve(ctx, host, port, order)
	if err != nil {
		return nil, err
	}
	conn, err := resolve.Dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("client: connect %s: %w", addr, err)
	}

	c.logger.Debug("connected", "address", addr.String(), "family", addr.Family.String())
	c.conn = conn
	c.br = bufio.NewReader(conn)
	c.addr = addr
	return c, nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, opts ...Option) *Client {
	c := &Client{
		logger: slog.Default().With("component", "client"),
		conn:   conn,
		br:     bufio.NewReader(conn),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Address returns the address Dial connected to, or nil for NewClient.
func (c *Client) Address() *resolve.Address {
	return c.addr
}

// Get requests target and returns the response. A 404 is a response, not
// an error.
func (c *Client) Get(ctx context.Context, target string) (*protocol.Response, error) {
	return c.Send(ctx, protocol.EncodeRequest(target))
}

// Send writes raw as is and reads one response. raw must end with a blank
// line for the server to answer it.
func (c *Client) Send(ctx context.Context, raw []byte) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	deadline, ok := ctx.Deadline()
	if c.timeout > 0 {
		if d := time.Now().Add(c.timeout); !ok || d.Before(deadline) {
			deadline, ok = d, true
		}
	}
	if ok {
		c.conn.SetDeadline(deadline)
	}

	// Unblock the exchange when ctx is cancelled. The deadline is cleared
	// only once the callback can no longer run.
	cancelled := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Unix(1, 0))
		close(cancelled)
	})
	defer func() {
		if !stop() {
			<-cancelled
		}
		c.conn.SetDeadline(time.Time{})
	}()

	if _, err := c.conn.Write(raw); err != nil {
		return nil, c.exchangeError(ctx, "write", err)
	}
	resp, err := protocol.ReadResponse(c.br)
	if err != nil {
		return nil, c.exchangeError(ctx, "read", err)
	}

	c.logger.Debug("response", "status", resp.Status.Code(), "bytes", len(resp.Body))
	return resp, nil
}

func (c *Client) exchangeError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("client: %s: %w", op, err)
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
