//go:build linux

package resolve

import (
	"context"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

func listen(_ context.Context, addr *Address, backlog int) (net.Listener, error) {
	domain := unix.AF_INET
	if addr.Family == IPv6 {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}

	if err := setup(fd, addr, backlog); err != nil {
		unix.Close(fd)
		return nil, err
	}

	// FileListener dups the descriptor; f owns and closes the original.
	f := os.NewFile(uintptr(fd), "listener:"+addr.String())
	defer f.Close()
	return net.FileListener(f)
}

func setup(fd int, addr *Address, backlog int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return os.NewSyscallError("setsockopt", err)
	}

	ip := addr.AddrPort.Addr()
	port := int(addr.AddrPort.Port())

	var sa unix.Sockaddr
	switch addr.Family {
	case IPv6:
		if ip.IsUnspecified() {
			// Accept v4-mapped peers on the wildcard bind.
			if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
				return os.NewSyscallError("setsockopt", err)
			}
		}
		sa6 := &unix.SockaddrInet6{Port: port, Addr: ip.As16()}
		if zone := ip.Zone(); zone != "" {
			if ifi, err := net.InterfaceByName(zone); err == nil {
				sa6.ZoneId = uint32(ifi.Index)
			}
		}
		sa = sa6
	default:
		sa = &unix.SockaddrInet4{Port: port, Addr: ip.As4()}
	}

	if err := unix.Bind(fd, sa); err != nil {
		return os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return os.NewSyscallError("listen", err)
	}
	return nil
}
