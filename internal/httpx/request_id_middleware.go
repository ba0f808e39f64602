package httpx

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"stefabooks/internal/logger"
)

const requestIDHeader = "X-Request-Id"

// RequestIDMiddleware tags the request with an id and a logger carrying it.
func RequestIDMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(requestIDHeader)
			if requestID == "" || len(requestID) > 128 {
				requestID = uuid.New().String()
			}

			w.Header().Set(requestIDHeader, requestID)
			ctx := ContextWithRequestID(r.Context(), requestID)
			ctx = logger.WithContext(ctx, base.With("request_id", requestID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
