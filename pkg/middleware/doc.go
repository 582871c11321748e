// Package middleware provides observability middleware for the file server.
//
// Each constructor returns a server.Middleware that wraps the request
// handler. Middleware only sees requests that parsed successfully; parse
// failures are answered by the server before dispatch.
//
// # Prometheus Metrics
//
// Prometheus counts requests by status and times the handler.
// AdmissionObserver exports admission slot occupancy and wait time:
//
//	reg := prometheus.NewRegistry()
//	cfg := server.DefaultConfig().
//	    WithHandler(handler).
//	    WithMiddleware(middleware.Prometheus(middleware.WithRegistry(reg)))
//	cfg.AdmissionObserver = middleware.AdmissionObserver(middleware.WithRegistry(reg))
//
// Metrics are created once per process on the first call and shared by all
// later calls.
//
// # OpenTelemetry Tracing
//
// OpenTelemetry starts a server span per request:
//
//	cfg.WithMiddleware(middleware.OpenTelemetry(
//	    middleware.WithTracerName("files"),
//	    middleware.WithIncludePeer(false),
//	))
//
// # Access Logging
//
// AccessLog writes one structured log line per request:
//
//	cfg.WithMiddleware(middleware.AccessLog(logger, slog.LevelInfo))
//
// # Ordering
//
// The first middleware passed to WithMiddleware is the outermost, so place
// tracing before metrics to include metric recording in the span.
package middleware
