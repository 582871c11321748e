package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/vango-dev/getserve/pkg/protocol"
	"github.com/vango-dev/getserve/pkg/server"
)

// AccessLog creates middleware that logs one line per answered request.
// 2xx responses are logged at level, everything else one step higher.
// A nil logger uses slog.Default().
func AccessLog(logger *slog.Logger, level slog.Level) server.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "access")

	return func(next server.Handler) server.Handler {
		return server.HandlerFunc(func(ctx context.Context, req *protocol.Request) *protocol.Response {
			start := time.Now()
			resp := next.ServeRequest(ctx, req)

			status := protocol.StatusNotFound
			size := 0
			if resp != nil {
				status = resp.Status
				size = len(resp.Body)
			}

			lvl := level
			if status != protocol.StatusOK {
				lvl = level + 4
			}
			if !logger.Enabled(ctx, lvl) {
				return resp
			}

			attrs := []slog.Attr{
				slog.String("method", string(req.Method)),
				slog.String("target", req.Target),
				slog.Int("status", status.Code()),
				slog.Int("bytes", size),
				slog.Duration("duration", time.Since(start)),
			}
			if info := server.ConnInfoFromContext(ctx); info != nil {
				attrs = append(attrs, slog.Uint64("conn", info.ID))
				if info.RemoteAddr != nil {
					attrs = append(attrs, slog.String("remote", info.RemoteAddr.String()))
				}
			}
			logger.LogAttrs(ctx, lvl, "request", attrs...)

			return resp
		})
	}
}
