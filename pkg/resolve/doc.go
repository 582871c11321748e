// Package resolve turns a host and port into a single stream socket address
// and creates listening or connected sockets from it.
//
// Resolution tries address families in a caller-supplied Order and returns
// the first address of the first family that yields anything:
//
//	addr, err := resolve.Resolve(ctx, "", 9001, resolve.ServerOrder)
//	ln, err := resolve.Listen(ctx, addr, resolve.DefaultBacklog)
//
//	addr, err := resolve.Resolve(ctx, "example.com", 9001, resolve.ClientOrder)
//	conn, err := resolve.Dial(ctx, addr)
//
// Servers bind IPv6 first so a wildcard bind is dual-stack; clients connect
// over IPv4 first. Both go through the same Resolve.
package resolve
