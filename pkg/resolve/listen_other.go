//go:build !linux

package resolve

import (
	"context"
	"net"
)

// listen falls back to the net package; the OS picks the backlog.
func listen(ctx context.Context, addr *Address, _ int) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, addr.Network(), addr.String())
}
