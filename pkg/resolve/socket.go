package resolve

import (
	"context"
	"net"
)

// DefaultBacklog is the listen queue depth used when none is configured.
const DefaultBacklog = 5

// Listen creates a stream socket for addr, binds it and starts listening
// with the given backlog. A backlog <= 0 means DefaultBacklog.
func Listen(ctx context.Context, addr *Address, backlog int) (net.Listener, error) {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ln, err := listen(ctx, addr, backlog)
	if err != nil {
		return nil, &net.OpError{Op: "listen", Net: addr.Network(), Addr: addr.TCPAddr(), Err: err}
	}
	return ln, nil
}

// Dial connects to addr.
func Dial(ctx context.Context, addr *Address) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, addr.Network(), addr.String())
}
