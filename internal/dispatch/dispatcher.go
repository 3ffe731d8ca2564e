// ABOUTME: Agent dispatcher that triggers a remote worker to join a named room
// ABOUTME: Relays non-2xx responses as upstream errors and passes the 2xx body through

package dispatch

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/session-gateway/internal/apierr"
	"github.com/2389/session-gateway/internal/upstream"
)

// ActionJoinRoom is the action tag sent with every dispatch request.
const ActionJoinRoom = "join_room"

// Request is the payload posted to the worker trigger endpoint.
type Request struct {
	RoomName  string `json:"roomName"`
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
}

// Result is the outcome of a successful dispatch.
type Result struct {
	RoomName string
	// Response is the worker's acknowledgment, or an empty map if the body
	// was not a JSON object.
	Response map[string]any
}

// Config holds the trigger endpoint and its optional bearer key.
type Config struct {
	WebhookURL string
	APIKey     string
}

// Dispatcher triggers the remote agent worker.
type Dispatcher struct {
	cfg    Config
	client *upstream.Client
	retry  *upstream.RetryPolicy
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Dispatcher. A nil retry policy disables retries.
func New(cfg Config, client *upstream.Client, retry *upstream.RetryPolicy, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:    cfg,
		client: client,
		retry:  retry,
		logger: logger.With("component", "dispatch"),
		now:    time.Now,
	}
}

// Dispatch asks the worker to join roomName.
func (d *Dispatcher) Dispatch(ctx context.Context, roomName string) (*Result, error) {
	if roomName == "" {
		return nil, apierr.InvalidInput("roomName is required")
	}
	if d.cfg.WebhookURL == "" {
		return nil, apierr.Configuration("agent webhook url")
	}

	body := Request{
		RoomName:  roomName,
		Timestamp: d.now().UTC().Format(time.RFC3339),
		Action:    ActionJoinRoom,
	}

	resp, err := d.client.Do(ctx, upstream.Request{
		Method: http.MethodPost,
		URL:    d.cfg.WebhookURL,
		Bearer: d.cfg.APIKey,
		Body:   body,
		Retry:  d.retry,
		Name:   "agent dispatch",
	})
	if err != nil {
		d.logger.Error("agent dispatch failed", "room", roomName, "error", err)
		return nil, err
	}

	d.logger.Info("agent dispatched", "room", roomName, "status", resp.StatusCode)
	return &Result{RoomName: roomName, Response: resp.Object()}, nil
}
