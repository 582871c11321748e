package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-dev/getserve/pkg/admission"
	"github.com/vango-dev/getserve/pkg/protocol"
)

// ConnState is the lifecycle state of a served connection.
type ConnState int

const (
	// StateReading waits for request bytes from the client.
	StateReading ConnState = iota
	// StateParsing parses a complete request.
	StateParsing
	// StateDispatching runs the Handler.
	StateDispatching
	// StateResponding writes the response.
	StateResponding
	// StateFailed is entered when the connection is aborted by an error.
	StateFailed
	// StateClosed is terminal: the transport is closed and the slot released.
	StateClosed
)

// String returns the string representation of the state.
func (s ConnState) String() string {
	switch s {
	case StateReading:
		return "reading"
	case StateParsing:
		return "parsing"
	case StateDispatching:
		return "dispatching"
	case StateResponding:
		return "responding"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// conn owns one accepted connection for its whole life: the transport, the
// accumulated request bytes and the admission slot.
type conn struct {
	srv    *Server
	id     uint64
	rwc    net.Conn
	slot   *admission.Slot
	logger *slog.Logger

	buf       []byte
	exchanges int

	// idle is set while waiting for the first byte of a request.
	idle      atomic.Bool
	closeOnce sync.Once
}

// serve runs the read/parse/dispatch/respond cycle until the peer closes
// the connection, an exchange fails, or the server closes it. The transport
// is closed and the slot released on every exit path.
func (c *conn) serve(ctx context.Context) {
	defer c.srv.handlers.Done()
	defer c.setState(StateClosed)
	defer c.slot.Release()
	defer c.close()
	defer func() {
		if r := recover(); r != nil {
			herr := &HandlerError{ConnID: c.id, Panic: r, Stack: debug.Stack()}
			c.srv.metrics.RecordHandlerPanic()
			c.logger.Error("handler panic", "error", herr, "stack", string(herr.Stack))
			c.setState(StateFailed)
		}
	}()

	c.logger.Debug("connection accepted")

	cfg := c.srv.config
	chunk := make([]byte, cfg.ReadBufferSize)
	c.buf = make([]byte, 0, cfg.ReadBufferSize)

	for {
		for {
			end := protocol.FrameEnd(c.buf)
			if end < 0 {
				break
			}
			if !c.exchange(ctx, c.buf[:end]) {
				return
			}
			c.buf = append(c.buf[:0], c.buf[end:]...)
			if cfg.CloseAfterResponse {
				return
			}
		}

		if len(c.buf) > cfg.MaxRequestBytes {
			c.logger.Warn("request too large", "buffered", len(c.buf), "limit", cfg.MaxRequestBytes)
			c.respond(protocol.ErrorResponse(protocol.StatusBadRequest), time.Now())
			return
		}

		c.setState(StateReading)
		c.idle.Store(len(c.buf) == 0)
		if cfg.IdleTimeout > 0 {
			c.rwc.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
		}
		n, err := c.rwc.Read(chunk)
		c.idle.Store(false)
		if n > 0 {
			c.srv.metrics.RecordBytesReceived(n)
			c.buf = append(c.buf, chunk[:n]...)
		}
		if err != nil {
			c.readFailed(err)
			return
		}
	}
}

// exchange parses and answers one framed request. It reports whether the
// connection can go on.
func (c *conn) exchange(ctx context.Context, raw []byte) bool {
	start := time.Now()
	c.exchanges++

	c.setState(StateParsing)
	req, err := protocol.Parse(raw)
	if err != nil {
		status := protocol.StatusBadRequest
		if errors.Is(err, protocol.ErrUnsupportedMethod) {
			status = protocol.StatusNotImplemented
		}
		c.logger.Debug("parse failed", "error", err, "status", status.Code())
		return c.respond(protocol.ErrorResponse(status), start)
	}

	c.setState(StateDispatching)
	reqCtx := WithConnInfo(ctx, &ConnInfo{
		ID:         c.id,
		RemoteAddr: c.rwc.RemoteAddr(),
		LocalAddr:  c.rwc.LocalAddr(),
		Exchange:   c.exchanges,
	})
	resp := c.srv.handler.ServeRequest(reqCtx, req)
	if resp == nil {
		resp = protocol.ErrorResponse(protocol.StatusNotFound)
	}

	c.logger.Debug("request served", "target", req.Target, "status", resp.Status.Code(), "bytes", len(resp.Body))
	return c.respond(resp, start)
}

// respond writes resp in full. It reports whether the write succeeded.
func (c *conn) respond(resp *protocol.Response, start time.Time) bool {
	c.setState(StateResponding)
	if timeout := c.srv.config.WriteTimeout; timeout > 0 {
		c.rwc.SetWriteDeadline(time.Now().Add(timeout))
	}

	n, err := resp.WriteTo(c.rwc)
	c.srv.metrics.RecordBytesSent(int(n))
	if err != nil {
		c.srv.metrics.RecordWriteError()
		c.fail(&TransportError{ConnID: c.id, Remote: c.rwc.RemoteAddr().String(), Op: "write", Err: err})
		return false
	}

	c.srv.metrics.RecordResponse(resp.Status, time.Since(start))
	return true
}

func (c *conn) readFailed(err error) {
	switch {
	case errors.Is(err, io.EOF):
		if len(c.buf) > 0 {
			c.logger.Debug("peer closed with incomplete request", "buffered", len(c.buf))
		} else {
			c.logger.Debug("peer closed")
		}
	case errors.Is(err, net.ErrClosed) && c.srv.shuttingDown.Load():
		c.logger.Debug("closed by shutdown")
	case errors.Is(err, os.ErrDeadlineExceeded):
		c.logger.Debug("idle timeout", "timeout", c.srv.config.IdleTimeout)
	default:
		c.srv.metrics.RecordReadError()
		c.fail(&TransportError{ConnID: c.id, Remote: c.rwc.RemoteAddr().String(), Op: "read", Err: err})
	}
}

func (c *conn) fail(err error) {
	c.setState(StateFailed)
	c.logger.Warn("connection aborted", "error", err)
}

// close closes the transport exactly once.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.rwc.Close()
		c.srv.untrackConn(c)
		c.srv.metrics.RecordConnClosed()
		c.logger.Debug("connection closed", "exchanges", c.exchanges)
	})
}

func (c *conn) setState(state ConnState) {
	if hook := c.srv.config.ConnStateHook; hook != nil {
		hook(c.rwc, state)
	}
}
