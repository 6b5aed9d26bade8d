package middleware

import (
	"net/http"

	"intent-scheduler/internal/common/logging"

	"github.com/lucsky/cuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	userIDHeader    = "X-User-ID"
)

// RequestID tags each request with an id, reusing a caller-supplied
// X-Request-ID, and echoes it on the response. The id and the caller's user
// id are stored on the request context for logging.WithContext.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = cuid.New()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := logging.WithRequestID(r.Context(), id)
		ctx = logging.WithUserID(ctx, r.Header.Get(userIDHeader))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
