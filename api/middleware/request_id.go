package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
)

const (
	requestIDHeader  = "X-Request-Id"
	cloudTraceHeader = "X-Cloud-Trace-Context"
)

// RequestID stamps every request with an id, preferring a valid client
// X-Request-Id, then the load balancer trace id, then a fresh UUID.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := resolveRequestID(r)
			w.Header().Set(requestIDHeader, reqID)
			next.ServeHTTP(w, r.WithContext(logg.WithRequestID(r.Context(), reqID)))
		})
	}
}

func resolveRequestID(r *http.Request) string {
	if id, err := uuid.Parse(strings.TrimSpace(r.Header.Get(requestIDHeader))); err == nil {
		return id.String()
	}
	// TRACE_ID/SPAN_ID;o=OPTIONS, trace id is 32 hex chars
	if raw := r.Header.Get(cloudTraceHeader); raw != "" {
		traceID, _, _ := strings.Cut(raw, "/")
		if id, err := uuid.Parse(traceID); err == nil {
			return id.String()
		}
	}
	return uuid.NewString()
}
