package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// Family identifies an IP address family.
type Family uint8

const (
	IPv4 Family = iota + 1 // AF_INET
	IPv6                   // AF_INET6
)

// String returns the string representation of the family.
func (f Family) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// ipNetwork returns the network name used for lookups restricted to f.
func (f Family) ipNetwork() string {
	if f == IPv6 {
		return "ip6"
	}
	return "ip4"
}

// tcpNetwork returns the stream network name for f.
func (f Family) tcpNetwork() string {
	if f == IPv6 {
		return "tcp6"
	}
	return "tcp4"
}

// owns reports whether addr belongs to family f.
func (f Family) owns(addr netip.Addr) bool {
	switch f {
	case IPv4:
		return addr.Is4()
	case IPv6:
		return addr.Is6()
	default:
		return false
	}
}

// unspecified returns the wildcard address of f.
func (f Family) unspecified() netip.Addr {
	if f == IPv6 {
		return netip.IPv6Unspecified()
	}
	return netip.IPv4Unspecified()
}

// ParseFamily parses a family name such as "ipv4", "ip6", "tcp4" or "6".
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ipv4", "ip4", "tcp4", "4", "inet":
		return IPv4, nil
	case "ipv6", "ip6", "tcp6", "6", "inet6":
		return IPv6, nil
	default:
		return 0, fmt.Errorf("resolve: unknown address family %q", s)
	}
}

// Order is the sequence of families tried by Resolve.
type Order []Family

// Preference orders for the two sides of a connection. Binding prefers IPv6
// so a wildcard bind can serve both stacks; connecting prefers IPv4.
var (
	ServerOrder = Order{IPv6, IPv4}
	ClientOrder = Order{IPv4, IPv6}
)

// ParseOrder parses a list of family names into an Order.
// Duplicate families are rejected.
func ParseOrder(names []string) (Order, error) {
	if len(names) == 0 {
		return nil, ErrEmptyOrder
	}
	order := make(Order, 0, len(names))
	seen := make(map[Family]bool, 2)
	for _, name := range names {
		fam, err := ParseFamily(name)
		if err != nil {
			return nil, err
		}
		if seen[fam] {
			return nil, fmt.Errorf("resolve: family %s listed twice", fam)
		}
		seen[fam] = true
		order = append(order, fam)
	}
	return order, nil
}

// Strings returns the family names of o.
func (o Order) Strings() []string {
	out := make([]string, len(o))
	for i, f := range o {
		out[i] = f.String()
	}
	return out
}

// Address is a single resolved stream endpoint. It is produced by Resolve
// and consumed once to create a socket.
type Address struct {
	Family        Family
	SocketType    string // always "stream"
	Protocol      string // always "tcp"
	CanonicalName string // set only when the Resolver asks for it
	AddrPort      netip.AddrPort
}

// Network returns the net package network name ("tcp4" or "tcp6").
func (a *Address) Network() string {
	return a.Family.tcpNetwork()
}

// String returns the host:port form of the address.
func (a *Address) String() string {
	return a.AddrPort.String()
}

// TCPAddr converts the address to a *net.TCPAddr.
func (a *Address) TCPAddr() *net.TCPAddr {
	return net.TCPAddrFromAddrPort(a.AddrPort)
}

// Lookuper performs a name lookup restricted to one IP network ("ip4" or
// "ip6"). *net.Resolver satisfies it.
type Lookuper interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// cnameLookuper is implemented by lookupers that can report canonical names.
type cnameLookuper interface {
	LookupCNAME(ctx context.Context, host string) (string, error)
}

// Resolver turns a host and port into one Address, trying families in a
// caller-supplied order.
type Resolver struct {
	// Lookuper performs name lookups. Default: net.DefaultResolver.
	Lookuper Lookuper

	// CanonicalName asks the resolver to fill Address.CanonicalName for
	// names (not literals). Lookup failures of the CNAME are ignored.
	CanonicalName bool
}

// DefaultResolver is used by the package-level Resolve.
var DefaultResolver = &Resolver{}

// Resolve resolves host and port with DefaultResolver.
func Resolve(ctx context.Context, host string, port int, order Order) (*Address, error) {
	return DefaultResolver.Resolve(ctx, host, port, order)
}

// Resolve returns the first address of the first family in order that
// yields any result. It does not aggregate candidates across families.
//
// An empty host means "any local address" and resolves to the wildcard
// address of the first family. If no family yields an address the error is
// a *HostResolutionError naming host.
func (r *Resolver) Resolve(ctx context.Context, host string, port int, order Order) (*Address, error) {
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	if len(order) == 0 {
		return nil, ErrEmptyOrder
	}

	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")

	var errs []error
	for _, fam := range order {
		addr, err := r.lookup(ctx, host, fam)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			errs = append(errs, fmt.Errorf("%s: %w", fam, err))
			continue
		}

		resolved := &Address{
			Family:     fam,
			SocketType: "stream",
			Protocol:   "tcp",
			AddrPort:   netip.AddrPortFrom(addr, uint16(port)),
		}
		if r.CanonicalName && host != "" && !isLiteral(host) {
			resolved.CanonicalName = r.canonicalName(ctx, host)
		}
		return resolved, nil
	}

	return nil, &HostResolutionError{Host: host, Port: port, Errs: errs}
}

func (r *Resolver) lookup(ctx context.Context, host string, fam Family) (netip.Addr, error) {
	if host == "" {
		return fam.unspecified(), nil
	}

	if literal, err := netip.ParseAddr(host); err == nil {
		// A v4-mapped literal is an IPv4 address.
		literal = literal.Unmap()
		if !fam.owns(literal) {
			return netip.Addr{}, errFamilyMismatch
		}
		return literal, nil
	}

	addrs, err := r.lookuper().LookupNetIP(ctx, fam.ipNetwork(), host)
	if err != nil {
		return netip.Addr{}, err
	}
	for _, addr := range addrs {
		// Resolvers may hand back v4-mapped v6 addresses for ip4 lookups.
		addr = addr.Unmap()
		if fam.owns(addr) {
			return addr, nil
		}
	}
	return netip.Addr{}, errNoAddress
}

func (r *Resolver) lookuper() Lookuper {
	if r.Lookuper != nil {
		return r.Lookuper
	}
	return net.DefaultResolver
}

func (r *Resolver) canonicalName(ctx context.Context, host string) string {
	cl, ok := r.lookuper().(cnameLookuper)
	if !ok {
		return ""
	}
	name, err := cl.LookupCNAME(ctx, host)
	if err != nil {
		return ""
	}
	return name
}

func isLiteral(host string) bool {
	_, err := netip.ParseAddr(host)
	return err == nil
}

var (
	errFamilyMismatch = errors.New("literal address belongs to another family")
	errNoAddress      = errors.New("no address for family")
)
