// ABOUTME: HTTP middleware applied around the gateway mux
// ABOUTME: Adds request IDs, access logging, Prometheus request metrics, and panic recovery

package gateway

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// instrument wraps the mux. The mux sets r.Pattern on the request it is
// handed, so the route label is read after next returns.
func (g *Gateway) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" || len(reqID) > 64 {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if p := recover(); p != nil {
				g.logger.Error("handler panic", "path", r.URL.Path, "request_id", reqID, "panic", p)
				if !rec.wroteHeader {
					writeJSON(rec, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
				}
			}

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			elapsed := time.Since(start)
			g.metrics.ObserveRequest(r.Method, route, rec.status, elapsed)
			g.logger.Debug("http request",
				"method", r.Method,
				"route", route,
				"status", rec.status,
				"duration", elapsed,
				"request_id", reqID,
			)
		}()

		next.ServeHTTP(rec, r)
	})
}
