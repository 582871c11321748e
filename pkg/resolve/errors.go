package resolve

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrHostResolution matches every *HostResolutionError via errors.Is.
	ErrHostResolution = errors.New("resolve: host resolution failed")

	// ErrInvalidPort is returned for ports outside 0-65535.
	ErrInvalidPort = errors.New("resolve: invalid port")

	// ErrEmptyOrder is returned when no address family is given.
	ErrEmptyOrder = errors.New("resolve: empty family order")
)

// HostResolutionError reports that no family in the order yielded an
// address for Host.
type HostResolutionError struct {
	Host string
	Port int
	Errs []error // one per family tried
}

// Error returns the error message naming the unresolved host.
func (e *HostResolutionError) Error() string {
	host := e.Host
	if host == "" {
		host = "<any>"
	}
	if len(e.Errs) == 0 {
		return fmt.Sprintf("resolve: unable to resolve host %q to an IP address", host)
	}
	reasons := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		reasons[i] = err.Error()
	}
	return fmt.Sprintf("resolve: unable to resolve host %q to an IP address (%s)", host, strings.Join(reasons, "; "))
}

// Unwrap exposes ErrHostResolution and the per-family lookup errors.
func (e *HostResolutionError) Unwrap() []error {
	return append([]error{ErrHostResolution}, e.Errs...)
}
