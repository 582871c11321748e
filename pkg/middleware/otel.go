package middleware

import (
	"context"
	"fmt"

	"github.com/vango-dev/getserve/pkg/protocol"
	"github.com/vango-dev/getserve/pkg/server"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name for the file server.
const defaultTracerName = "getserve"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "getserve").
	TracerName string

	// TracerProvider supplies the tracer.
	// Default: the global provider from otel.GetTracerProvider.
	TracerProvider trace.TracerProvider

	// IncludePeer includes the client address in traces.
	// Enabled by default.
	IncludePeer bool

	// Filter determines which requests to trace.
	// Return true to trace the request, false to skip.
	// If nil, all requests are traced.
	Filter func(req *protocol.Request) bool

	// AttributeExtractor extracts custom attributes from the request.
	// Called for each traced request.
	AttributeExtractor func(ctx context.Context, req *protocol.Request) []attribute.KeyValue

	// tracer is the resolved tracer instance.
	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithIncludePeer enables/disables including the client address in traces.
func WithIncludePeer(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludePeer = include
	}
}

// WithRequestFilter sets a filter function for requests.
func WithRequestFilter(filter func(req *protocol.Request) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(ctx context.Context, req *protocol.Request) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// defaultOTelConfig returns the default OpenTelemetry configuration.
func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName:  defaultTracerName,
		IncludePeer: true,
		Filter:      nil,
	}
}

// OpenTelemetry creates middleware that traces every answered request.
//
// The middleware:
//   - Creates a server span per request with the target and connection
//   - Passes the span context to the wrapped handler
//   - Records the status code and body size, marking 5xx responses as errors
//
// Example:
//
//	cfg := server.DefaultConfig().
//	    WithHandler(fileserve.NewHandler(store)).
//	    WithMiddleware(middleware.OpenTelemetry(middleware.WithTracerName("files")))
//
// Without WithTracerProvider the tracer comes from the global provider.
// Configure it in main() before starting the server:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
func OpenTelemetry(opts ...OTelOption) server.Middleware {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}

	// Resolve tracer
	if config.TracerProvider != nil {
		config.tracer = config.TracerProvider.Tracer(config.TracerName)
	} else {
		config.tracer = otel.Tracer(config.TracerName)
	}

	return func(next server.Handler) server.Handler {
		return server.HandlerFunc(func(ctx context.Context, req *protocol.Request) *protocol.Response {
			if config.Filter != nil && !config.Filter(req) {
				return next.ServeRequest(ctx, req)
			}

			attrs := []attribute.KeyValue{
				attribute.String("getserve.method", string(req.Method)),
				attribute.String("getserve.target", req.Target),
			}
			if info := server.ConnInfoFromContext(ctx); info != nil {
				attrs = append(attrs,
					attribute.Int64("getserve.conn_id", int64(info.ID)),
					attribute.Int("getserve.exchange", info.Exchange),
				)
				if config.IncludePeer && info.RemoteAddr != nil {
					attrs = append(attrs, attribute.String("net.peer.addr", info.RemoteAddr.String()))
				}
			}
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(ctx, req)...)
			}

			spanCtx, span := config.tracer.Start(
				ctx,
				formatSpanName(req),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			resp := next.ServeRequest(spanCtx, req)

			status := protocol.StatusNotFound
			size := 0
			if resp != nil {
				status = resp.Status
				size = len(resp.Body)
			}
			span.SetAttributes(
				attribute.Int("getserve.status_code", status.Code()),
				attribute.Int("getserve.body_bytes", size),
			)
			if status.Code() >= 500 {
				span.SetStatus(codes.Error, status.String())
			} else {
				span.SetStatus(codes.Ok, "")
			}

			return resp
		})
	}
}

// SpanFromContext retrieves the current trace span from the context.
//
// Example:
//
//	func (h *myHandler) ServeRequest(ctx context.Context, req *protocol.Request) *protocol.Response {
//	    middleware.SpanFromContext(ctx).SetAttributes(attribute.Bool("cache.hit", true))
//	    ...
//	}
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// formatSpanName creates a span name from the request. The target is left
// to attributes to keep span names low-cardinality.
func formatSpanName(req *protocol.Request) string {
	return fmt.Sprintf("getserve %s", req.Method)
}
