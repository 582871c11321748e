// Package fileserve resolves request targets against a serving root and
// reads the files they name.
//
// A Store reads whole files by root-relative name. DirStore serves a local
// directory and S3Store serves objects from a bucket. Handler turns a parsed
// GET request into a response using a Store.
package fileserve

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"strings"

	"github.com/vango-dev/getserve/pkg/protocol"
)

// ErrNotFound is returned by a Store when the named file does not exist.
var ErrNotFound = errors.New("fileserve: file not found")

// Store reads files relative to a serving root.
type Store interface {
	// ReadFile returns the full contents of the root-relative name.
	// It returns an error wrapping ErrNotFound when name does not exist.
	ReadFile(ctx context.Context, name string) ([]byte, error)
}

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, name string) ([]byte, error)

// ReadFile calls f.
func (f StoreFunc) ReadFile(ctx context.Context, name string) ([]byte, error) {
	return f(ctx, name)
}

// CleanPath maps a request target onto a root-relative slash path.
//
// Leading "./" and "/" prefixes are stripped and ".." segments are resolved
// against the root, so the result never refers to anything outside it:
// "/../../etc/passwd" becomes "etc/passwd". A query string is dropped.
// An empty result means the root itself. ok is false for targets holding a
// NUL byte or a backslash.
func CleanPath(target string) (name string, ok bool) {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		target = target[:i]
	}

	// Reject NUL early and platform-dependent separators.
	if strings.IndexByte(target, 0) != -1 || strings.Contains(target, "\\") {
		return "", false
	}

	clean := path.Clean("/" + target)
	return strings.TrimPrefix(clean, "/"), true
}

// ContentType returns the content type for name based on its extension.
// Unknown or missing extensions map to protocol.DefaultContentType.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return protocol.DefaultContentType
}

var contentTypes = map[string]string{
	".txt":      "text/plain",
	".text":     "text/plain",
	".log":      "text/plain",
	".html":     "text/html",
	".htm":      "text/html",
	".css":      "text/css",
	".csv":      "text/csv",
	".js":       "text/javascript",
	".mjs":      "text/javascript",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".xml":      "text/xml",
}

// Handler serves GET requests from a Store.
type Handler struct {
	store  Store
	index  string
	logger *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithIndex sets the file served for the root target ("/").
// Default: "index.html". An empty name makes "/" a 404.
func WithIndex(name string) HandlerOption {
	return func(h *Handler) {
		h.index = name
	}
}

// WithLogger sets the logger used for unexpected store failures.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a Handler reading from store.
func NewHandler(store Store, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:  store,
		index:  "index.html",
		logger: slog.Default().With("component", "fileserve"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeRequest answers req with the file it names, or a 404 response with
// an empty body when the file cannot be read.
func (h *Handler) ServeRequest(ctx context.Context, req *protocol.Request) *protocol.Response {
	name, ok := CleanPath(req.Target)
	if !ok {
		return protocol.ErrorResponse(protocol.StatusNotFound)
	}
	if name == "" {
		if h.index == "" {
			return protocol.ErrorResponse(protocol.StatusNotFound)
		}
		name = h.index
	}

	body, err := h.store.ReadFile(ctx, name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			h.logger.Warn("read failed", "name", name, "error", err)
		}
		return protocol.ErrorResponse(protocol.StatusNotFound)
	}

	return protocol.NewResponse(protocol.StatusOK, ContentType(name), body)
}
