// ABOUTME: Tests for the gateway error taxonomy
// ABOUTME: Covers status mapping, wrapping, and kind lookup through wrapped errors

package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Status(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"unauthenticated", Unauthenticated("no actor"), http.StatusUnauthorized},
		{"invalid input", InvalidInput("roomName is required"), http.StatusBadRequest},
		{"rate limited", RateLimited(), http.StatusTooManyRequests},
		{"configuration", Configuration("livekit credentials"), http.StatusInternalServerError},
		{"upstream", Upstream("dispatch failed", http.StatusBadGateway, "boom"), http.StatusInternalServerError},
		{"conflict", Conflict("duplicate"), http.StatusConflict},
		{"internal", Internal("oops", errors.New("x")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Status())
		})
	}
}

func TestKindOf_ThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("issuing credential: %w", InvalidInput("bad room"))

	assert.Equal(t, KindInvalidInput, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindInvalidInput))
	assert.False(t, Is(wrapped, KindUpstream))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestError_MessageIncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := UpstreamTransport("calling backend", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")

	err = Upstream("calling backend", 503, "unavailable")
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, "unavailable", err.UpstreamBody)
}

func TestConfiguration_Message(t *testing.T) {
	assert.Equal(t, "agent webhook url not configured", Configuration("agent webhook url").Error())
}
