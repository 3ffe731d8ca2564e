// ABOUTME: Routes decoded webhook events; function calls go through the table onto the queue
// ABOUTME: Never fails the caller: every problem is logged and counted instead

package webhook

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/2389/session-gateway/internal/metrics"
)

// Outcome describes what Route did with one event.
type Outcome struct {
	Type     EventType
	Function string
	JobID    string
	// Err records why the event led to no work; it is informational only.
	Err error
}

// Queued reports whether a job was accepted for the event.
func (o Outcome) Queued() bool {
	return o.JobID != ""
}

// ErrUnknownFunction marks a function-call naming an unregistered function.
var ErrUnknownFunction = errors.New("unknown function")

// Router classifies events and dispatches function calls.
type Router struct {
	table   *FunctionTable
	queue   *Queue
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRouter creates a Router.
func NewRouter(table *FunctionTable, queue *Queue, logger *slog.Logger, m *metrics.Metrics) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		table:   table,
		queue:   queue,
		logger:  logger.With("component", "webhook"),
		metrics: m,
	}
}

// Route handles one raw webhook body.
func (r *Router) Route(ctx context.Context, body []byte) Outcome {
	event, err := ParseEvent(body)
	if err != nil {
		r.logger.Warn("webhook parse error", "error", err, "bytes", len(body))
		r.metrics.WebhookEvent("malformed")
		return Outcome{Type: EventUnknown, Err: err}
	}

	r.metrics.WebhookEvent(string(event.Type))

	switch event.Type {
	case EventFunctionCall:
		return r.routeFunctionCall(ctx, event)
	case EventError:
		r.logger.Error("agent reported error", "data", string(event.Data))
	case EventUnknown:
		r.logger.Info("unknown webhook event type", "type", event.RawType)
	default:
		r.logger.Info("webhook event", "type", event.Type)
	}
	return Outcome{Type: event.Type}
}

func (r *Router) routeFunctionCall(ctx context.Context, event *Event) Outcome {
	out := Outcome{Type: event.Type}

	call, err := event.FunctionCall()
	if err != nil {
		r.logger.Warn("malformed function call", "error", err)
		r.metrics.FunctionCall(metrics.UnregisteredAction, metrics.FunctionInvalid)
		out.Err = err
		return out
	}
	out.Function = call.Name

	fn, ok := r.table.Lookup(call.Name)
	if !ok {
		r.logger.Info("unknown function, dropping", "function", call.Name)
		r.metrics.FunctionCall(metrics.UnregisteredAction, metrics.FunctionUnknown)
		out.Err = ErrUnknownFunction
		return out
	}

	job := &Job{
		ID:       uuid.NewString(),
		Function: fn,
		Call:     call,
	}
	if err := r.queue.Enqueue(job); err != nil {
		r.logger.Warn("function call not queued",
			"function", call.Name,
			"error", err,
			"depth", r.queue.Len(),
		)
		r.metrics.FunctionCall(fn.Label, metrics.FunctionQueueFull)
		out.Err = err
		return out
	}

	r.logger.Debug("function call queued", "function", call.Name, "job_id", job.ID, "label", fn.Label)
	r.metrics.FunctionCall(fn.Label, metrics.FunctionQueued)
	out.JobID = job.ID
	return out
}
