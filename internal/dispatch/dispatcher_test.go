// ABOUTME: Tests for agent dispatch against an httptest worker endpoint
// ABOUTME: Covers payload shape, bearer auth, upstream errors, retries, and pass-through bodies

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/session-gateway/internal/apierr"
	"github.com/2389/session-gateway/internal/upstream"
)

func testRetry() *upstream.RetryPolicy {
	return &upstream.RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
}

func TestDispatch_SendsJoinRequest(t *testing.T) {
	var got Request
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"joining","worker":"w-1"}`))
	}))
	defer srv.Close()

	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	d := New(Config{WebhookURL: srv.URL, APIKey: "agent-key"}, upstream.NewClient(), nil, nil)
	d.now = func() time.Time { return fixed }

	res, err := d.Dispatch(context.Background(), "StudyRoom")
	require.NoError(t, err)

	assert.Equal(t, "StudyRoom", got.RoomName)
	assert.Equal(t, "2026-03-04T05:06:07Z", got.Timestamp)
	assert.Equal(t, ActionJoinRoom, got.Action)
	assert.Equal(t, "Bearer agent-key", gotAuth)

	assert.Equal(t, "StudyRoom", res.RoomName)
	assert.Equal(t, map[string]any{"status": "joining", "worker": "w-1"}, res.Response)
}

func TestDispatch_UnparseableAckIsEmptyObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	d := New(Config{WebhookURL: srv.URL}, upstream.NewClient(), nil, nil)
	res, err := d.Dispatch(context.Background(), "room")
	require.NoError(t, err)
	assert.Empty(t, res.Response)
	assert.NotNil(t, res.Response)
}

func TestDispatch_UpstreamErrorKeepsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	d := New(Config{WebhookURL: srv.URL}, upstream.NewClient(), testRetry(), nil)
	_, err := d.Dispatch(context.Background(), "room")
	require.Error(t, err)

	var e *apierr.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, apierr.KindUpstream, e.Kind)
	assert.Equal(t, http.StatusForbidden, e.UpstreamStatus)
	assert.Equal(t, `{"error":"bad key"}`, e.UpstreamBody)
}

func TestDispatch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	d := New(Config{WebhookURL: srv.URL}, upstream.NewClient(), testRetry(), nil)
	_, err := d.Dispatch(context.Background(), "room")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDispatch_RequiresEndpoint(t *testing.T) {
	d := New(Config{}, upstream.NewClient(), nil, nil)

	_, err := d.Dispatch(context.Background(), "room")
	assert.True(t, apierr.Is(err, apierr.KindConfiguration))
}

func TestDispatch_RequiresRoomName(t *testing.T) {
	d := New(Config{WebhookURL: "http://unused.invalid"}, upstream.NewClient(), nil, nil)

	_, err := d.Dispatch(context.Background(), "")
	assert.True(t, apierr.Is(err, apierr.KindInvalidInput))
}
