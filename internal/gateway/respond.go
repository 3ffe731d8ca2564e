// ABOUTME: JSON response helpers shared by the gateway HTTP handlers
// ABOUTME: Maps classified errors to status codes and writes rate limit headers

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/session-gateway/internal/apierr"
	"github.com/2389/session-gateway/internal/ratelimit"
	"github.com/2389/session-gateway/internal/session"
)

// maxBodyBytes caps request bodies read by the API handlers.
const maxBodyBytes = 1 << 20

// unreachableDetail replaces transport failures in error bodies.
const unreachableDetail = "upstream service unreachable"

// errorResponse is the body of every failed API request.
type errorResponse struct {
	Error          string `json:"error"`
	Details        any    `json:"details,omitempty"`
	UpstreamStatus int    `json:"upstreamStatus,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to encode JSON response", "error", err)
	}
}

// upstreamDetails returns the remote body as JSON when it parses, else as text.
func upstreamDetails(body string) any {
	if body == "" {
		return nil
	}
	if json.Valid([]byte(body)) {
		return json.RawMessage(body)
	}
	return body
}

// errorBody builds the response for err. msg, when non-empty, replaces the
// error's own message.
func errorBody(err error, msg string) (int, errorResponse) {
	var e *apierr.Error
	if !errors.As(err, &e) {
		e = apierr.Internal("internal server error", err)
	}

	resp := errorResponse{Error: e.Message}
	if msg != "" {
		resp.Error = msg
	}

	var verr *session.ValidationError
	switch {
	case errors.As(err, &verr):
		resp.Details = verr.Fields
	case e.Kind == apierr.KindUpstream:
		resp.Details = upstreamDetails(e.UpstreamBody)
		resp.UpstreamStatus = e.UpstreamStatus
		// Transport errors name internal hosts; they are logged, not returned.
		if resp.Details == nil && e.Err != nil {
			resp.Details = unreachableDetail
		}
	}
	return e.Status(), resp
}

// writeError writes err as a JSON error body. Server-side failures are logged
// at error level; client errors at debug.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	g.writeErrorAs(w, r, err, "")
}

func (g *Gateway) writeErrorAs(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status, resp := errorBody(err, msg)
	g.writeErrorStatus(w, r, status, resp, err)
}

func (g *Gateway) writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, resp errorResponse, err error) {
	if status >= http.StatusInternalServerError {
		g.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"kind", apierr.KindOf(err),
			"error", err,
		)
	} else {
		g.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, resp)
}

// setRateLimitHeaders reports the window state for d.
func (g *Gateway) setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	if d.Limit <= 0 {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining()))
	if !d.WindowEnd.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.WindowEnd.Unix(), 10))
	}
	if !d.Allowed {
		h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.WindowEnd, g.now())))
	}
}

// retryAfterSeconds rounds the wait up to whole seconds, minimum one.
func retryAfterSeconds(windowEnd, now time.Time) int {
	secs := int(math.Ceil(windowEnd.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// throttle checks p for actor and writes a 429 when refused.
// Returns false if the request must stop.
func (g *Gateway) throttle(w http.ResponseWriter, r *http.Request, actor string, p ratelimit.Policy) bool {
	d := g.limiter.Check(r.Context(), actor, p)
	g.setRateLimitHeaders(w, d)
	if d.Allowed {
		return true
	}
	g.metrics.RateLimitHit(p.Namespace)
	g.logger.Info("rate limit exceeded", "actor", actor, "namespace", p.Namespace, "count", d.Count)
	g.writeError(w, r, apierr.RateLimited())
	return false
}

// readBody reads a capped request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apierr.InvalidInput("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, apierr.InvalidInput("failed to read request body")
	}
	return body, nil
}

// decodeBody decodes a capped JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apierr.InvalidInput("invalid JSON body")
	}
	return nil
}
