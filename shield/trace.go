package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/rewind/idgen"
	"github.com/hazyhaar/rewind/kit"
)

type contextKey string

var newRequestID = idgen.Prefixed("req_", idgen.Short(12))

// LoggerKey holds the per-request logger.
const LoggerKey contextKey = "shield_logger"

// RequestID tags each request with an ID. An incoming X-Request-ID is kept;
// otherwise a fresh one is generated. The ID is echoed in the response,
// stored with kit.WithRequestID and attached to a per-request logger.
func RequestID(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" || len(id) > 64 {
				id = newRequestID()
			}
			w.Header().Set("X-Request-ID", id)

			ctx := kit.WithRequestID(r.Context(), id)
			ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)
			ctx = context.WithValue(ctx, LoggerKey, logger)
			logger.Debug("request", "remote_addr", r.RemoteAddr)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetLogger returns the per-request logger, or slog.Default.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
