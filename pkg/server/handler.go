package server

import (
	"context"
	"net"

	"github.com/vango-dev/getserve/pkg/protocol"
)

// Handler answers one parsed request. Implementations must be safe for
// concurrent use; each connection calls ServeRequest from its own goroutine.
// A nil response is sent as 404.
type Handler interface {
	ServeRequest(ctx context.Context, req *protocol.Request) *protocol.Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *protocol.Request) *protocol.Response

// ServeRequest calls f.
func (f HandlerFunc) ServeRequest(ctx context.Context, req *protocol.Request) *protocol.Response {
	return f(ctx, req)
}

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

// Chain wraps h with mw. The first middleware is the outermost.
func Chain(h Handler, mw ...Middleware) Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// ConnInfo describes the connection a request arrived on.
type ConnInfo struct {
	ID         uint64
	RemoteAddr net.Addr
	LocalAddr  net.Addr
	Exchange   int // 1 for the first request on the connection
}

type connInfoKey struct{}

// ConnInfoFromContext returns the connection info stored in ctx by the
// server, or nil.
func ConnInfoFromContext(ctx context.Context) *ConnInfo {
	info, _ := ctx.Value(connInfoKey{}).(*ConnInfo)
	return info
}

// WithConnInfo returns a context carrying info.
func WithConnInfo(ctx context.Context, info *ConnInfo) context.Context {
	return context.WithValue(ctx, connInfoKey{}, info)
}
