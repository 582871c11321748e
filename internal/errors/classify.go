package errors

import (
	stderrors "errors"
	"io/fs"
	"syscall"

	"github.com/vango-dev/getserve/pkg/client"
	"github.com/vango-dev/getserve/pkg/protocol"
	"github.com/vango-dev/getserve/pkg/resolve"
	"github.com/vango-dev/getserve/pkg/server"
)

// Classify maps an error returned by the resolve, server or client packages
// to a registered code and returns it as a CodedError with a suggestion.
// Errors that already carry a code are returned unchanged. Unknown errors
// are wrapped without a code.
func Classify(err error) *CodedError {
	if err == nil {
		return nil
	}

	var ce *CodedError
	if stderrors.As(err, &ce) {
		return ce
	}

	var hre *resolve.HostResolutionError
	if stderrors.As(err, &hre) {
		return New("E100").Wrap(err).
			WithSuggestion("Check the host name, or allow another address family with --family.")
	}

	var sfe *server.ServerFatalError
	if stderrors.As(err, &sfe) {
		if sfe.Op == "accept" {
			return New("E111").Wrap(err)
		}
		switch {
		case stderrors.Is(err, syscall.EADDRINUSE):
			return New("E112").Wrap(err).
				WithSuggestion("Stop the other process or choose a different --port.")
		case stderrors.Is(err, syscall.EACCES):
			return New("E113").Wrap(err).
				WithSuggestion("Use a port above 1024.")
		}
		return New("E110").Wrap(err)
	}

	switch {
	case stderrors.Is(err, resolve.ErrInvalidPort):
		return New("E122").Wrap(err)
	case stderrors.Is(err, resolve.ErrEmptyOrder):
		return New("E101").Wrap(err)
	case stderrors.Is(err, protocol.ErrMalformedResponse),
		stderrors.Is(err, client.ErrClosed):
		return New("E142").Wrap(err)
	case stderrors.Is(err, syscall.ECONNREFUSED):
		return New("E140").Wrap(err).
			WithSuggestion("Make sure a getserve server is running on that host and port.")
	case stderrors.Is(err, fs.ErrNotExist):
		return New("E124").Wrap(err)
	}

	return &CodedError{Category: CategoryCLI, Message: "Command failed", Wrapped: err}
}
