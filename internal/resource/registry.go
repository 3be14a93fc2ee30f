// Package resource implements the action-dispatch machinery layered on top
// of a bidirectional connection: a registry mapping action names to
// handlers, the standard CRUD action set bound to a store repository and a
// serializer, and subscription plumbing for pushed change events.
package resource

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sockrest/internal/errors"
	"sockrest/internal/infrastructure"
	"sockrest/internal/protocol"
)

// Handler processes one decoded request and returns the payload and status
// for the response envelope. A returned errors.ErrNotFound maps to a 404
// envelope and errors.ValidationErrors to a 400 envelope; any other error
// propagates to the connection handler as a fault.
type Handler func(ctx context.Context, req *protocol.Request) (data any, status int, err error)

// Registry maps action names to handlers for one resource.
type Registry struct {
	resource string
	handlers map[string]Handler
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewRegistry creates an empty registry for the named resource.
func NewRegistry(resource string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Registry{
		resource: resource,
		handlers: make(map[string]Handler),
		logger: logger.With(
			slog.String("component", "resource.registry"),
			slog.String("resource", resource)),
		tracer: otel.Tracer("sockrest/resource"),
	}
}

// Register binds a handler to an action name, replacing any previous
// binding. This is also the extension point for custom actions.
func (r *Registry) Register(action string, h Handler) {
	r.handlers[action] = h
}

// Resource returns the resource name this registry serves.
func (r *Registry) Resource() string {
	return r.resource
}

// Actions returns the registered action names, sorted.
func (r *Registry) Actions() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch decodes one inbound message, invokes its handler and wraps the
// outcome into a response envelope. Protocol-level failures (unknown
// action, missing lookup, invalid data) become error envelopes; any other
// handler error is returned to the caller as a connection-level fault.
func (r *Registry) Dispatch(ctx context.Context, raw []byte) (*protocol.Response, error) {
	req, err := protocol.DecodeRequest(raw)
	if err != nil {
		r.logger.WarnContext(ctx, "undecodable message",
			slog.String("error", err.Error()),
			slog.Int("size", len(raw)))
		observeDispatch(r.resource, "", 400, 0)
		return protocol.BadRequest(&protocol.Request{}, "Unable to decode message"), nil
	}

	handler, ok := r.handlers[req.Action]
	if !ok {
		r.logger.WarnContext(ctx, "unknown action requested",
			slog.String("action", req.Action))
		observeDispatch(r.resource, req.Action, 400, 0)
		return protocol.BadRequest(req, "Invalid action"), nil
	}

	ctx, span := r.tracer.Start(ctx, "ws."+r.resource+"."+req.Action,
		trace.WithAttributes(
			attribute.String("sockrest.resource", r.resource),
			attribute.String("sockrest.action", req.Action)))
	defer span.End()

	start := time.Now()
	data, status, err := handler(ctx, req)
	elapsed := time.Since(start)

	var resp *protocol.Response
	switch {
	case err == nil:
		resp = protocol.New(req, status, data)
	case stderrors.Is(err, errors.ErrNotFound):
		resp = protocol.NotFound(req)
	default:
		var verrs errors.ValidationErrors
		if stderrors.As(err, &verrs) {
			resp = protocol.ValidationFailed(req, verrs.Messages())
			break
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observeDispatch(r.resource, req.Action, 0, elapsed)
		return nil, fmt.Errorf("action %q: %w", req.Action, err)
	}

	span.SetAttributes(attribute.Int("sockrest.response_status", resp.ResponseStatus))
	observeDispatch(r.resource, req.Action, resp.ResponseStatus, elapsed)

	r.logger.DebugContext(ctx, "action dispatched",
		slog.String("action", req.Action),
		slog.Int("status", resp.ResponseStatus),
		slog.Duration("duration", elapsed))
	return resp, nil
}

// statusLabel renders a response status for metric labels; 0 means the
// handler faulted before producing an envelope.
func statusLabel(status int) string {
	if status == 0 {
		return "fault"
	}
	return strconv.Itoa(status)
}
