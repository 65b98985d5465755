// Package shield provides the HTTP middleware stack placed in front of the
// rewind control API: response headers, body limits and request tracing.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.Stack(logger, 8<<20) {
//	    r.Use(mw)
//	}
package shield

import (
	"log/slog"
	"net/http"
)

// Stack returns the default middleware stack, outermost first:
// HeadToGet, SecurityHeaders, MaxBody, RequestID.
func Stack(logger *slog.Logger, maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(APIHeaders()),
		MaxBody(maxBody),
		RequestID(logger),
	}
}

// HeadToGet serves HEAD requests with the GET handler. net/http drops the
// body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
