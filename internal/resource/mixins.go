package resource

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"sockrest/internal/errors"
	"sockrest/internal/events"
	"sockrest/internal/infrastructure"
	"sockrest/internal/protocol"
	"sockrest/internal/store"
)

// Standard action names.
const (
	ActionCreate      = "create"
	ActionList        = "list"
	ActionRetrieve    = "retrieve"
	ActionUpdate      = "update"
	ActionPatch       = "patch"
	ActionDelete      = "delete"
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// Broadcaster pushes an encoded event envelope to every session subscribed
// to a topic. The websocket hub implements this.
type Broadcaster interface {
	BroadcastEvent(topic string, payload []byte)
}

// Resource binds one entity type's repository and serializer and exposes
// the standard CRUD action set through its registry.
type Resource[T any] struct {
	name        string
	repo        *store.Repository[T]
	serializer  Serializer[T]
	registry    *Registry
	broadcaster Broadcaster
	publisher   events.Publisher
	logger      *slog.Logger
}

// Option configures a Resource.
type Option[T any] func(*Resource[T])

// WithBroadcaster enables subscriber push for entity change events.
func WithBroadcaster[T any](b Broadcaster) Option[T] {
	return func(r *Resource[T]) { r.broadcaster = b }
}

// WithPublisher enables AMQP change-event publishing.
func WithPublisher[T any](p events.Publisher) Option[T] {
	return func(r *Resource[T]) { r.publisher = p }
}

// WithLogger sets the resource's logger.
func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(r *Resource[T]) { r.logger = l }
}

// New builds a resource and registers the standard actions.
func New[T any](name string, repo *store.Repository[T], s Serializer[T], opts ...Option[T]) *Resource[T] {
	r := &Resource[T]{
		name:       name,
		repo:       repo,
		serializer: s,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = infrastructure.GetLogger()
	}
	r.logger = r.logger.With(
		slog.String("component", "resource"),
		slog.String("resource", name))

	r.registry = NewRegistry(name, r.logger)
	r.registry.Register(ActionCreate, r.create)
	r.registry.Register(ActionList, r.list)
	r.registry.Register(ActionRetrieve, r.retrieve)
	r.registry.Register(ActionUpdate, r.update)
	r.registry.Register(ActionPatch, r.patch)
	r.registry.Register(ActionDelete, r.delete)
	r.registry.Register(ActionSubscribe, r.subscribe)
	r.registry.Register(ActionUnsubscribe, r.unsubscribe)
	return r
}

// Name returns the resource name.
func (r *Resource[T]) Name() string {
	return r.name
}

// Actions exposes the registry, including for custom action registration.
func (r *Resource[T]) Actions() *Registry {
	return r.registry
}

// Register binds a custom action handler.
func (r *Resource[T]) Register(action string, h Handler) {
	r.registry.Register(action, h)
}

// Repository exposes the backing repository for custom actions.
func (r *Resource[T]) Repository() *store.Repository[T] {
	return r.repo
}

// Serializer exposes the bound serializer for custom actions.
func (r *Resource[T]) Serializer() Serializer[T] {
	return r.serializer
}

// lookup resolves the request's pk against the repository. A missing or
// absent pk maps to the not-found condition, per the lookup contract.
func (r *Resource[T]) lookup(ctx context.Context, req *protocol.Request) (*T, error) {
	if req.PK == nil {
		return nil, fmt.Errorf("missing pk: %w", errors.ErrNotFound)
	}
	return r.repo.Get(ctx, uint64(*req.PK))
}

func (r *Resource[T]) create(ctx context.Context, req *protocol.Request) (any, int, error) {
	var entity T
	if err := r.serializer.Apply(req.Data, &entity, false); err != nil {
		return nil, 0, err
	}
	if err := r.repo.Create(ctx, &entity); err != nil {
		return nil, 0, err
	}
	data := r.serializer.Serialize(&entity)
	r.notify(ctx, ActionCreate, http.StatusCreated, r.serializer.PrimaryKey(&entity), data)
	return data, http.StatusCreated, nil
}

func (r *Resource[T]) list(ctx context.Context, req *protocol.Request) (any, int, error) {
	entities, err := r.repo.List(ctx)
	if err != nil {
		return nil, 0, err
	}
	out := make([]any, 0, len(entities))
	for i := range entities {
		out = append(out, r.serializer.Serialize(&entities[i]))
	}
	return out, http.StatusOK, nil
}

func (r *Resource[T]) retrieve(ctx context.Context, req *protocol.Request) (any, int, error) {
	entity, err := r.lookup(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	return r.serializer.Serialize(entity), http.StatusOK, nil
}

func (r *Resource[T]) update(ctx context.Context, req *protocol.Request) (any, int, error) {
	return r.applyUpdate(ctx, req, false)
}

func (r *Resource[T]) patch(ctx context.Context, req *protocol.Request) (any, int, error) {
	return r.applyUpdate(ctx, req, true)
}

// applyUpdate loads the entity, merges the provided fields onto it and
// persists. Fields absent from the payload keep their stored values, so a
// successful response always echoes the full entity.
func (r *Resource[T]) applyUpdate(ctx context.Context, req *protocol.Request, partial bool) (any, int, error) {
	entity, err := r.lookup(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	if err := r.serializer.Apply(req.Data, entity, partial); err != nil {
		return nil, 0, err
	}
	if err := r.repo.Save(ctx, entity); err != nil {
		return nil, 0, err
	}
	data := r.serializer.Serialize(entity)
	r.notify(ctx, ActionUpdate, http.StatusOK, r.serializer.PrimaryKey(entity), data)
	return data, http.StatusOK, nil
}

func (r *Resource[T]) delete(ctx context.Context, req *protocol.Request) (any, int, error) {
	entity, err := r.lookup(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	if err := r.repo.Delete(ctx, entity); err != nil {
		return nil, 0, err
	}
	pk := r.serializer.PrimaryKey(entity)
	r.notify(ctx, ActionDelete, http.StatusNoContent, pk, map[string]any{"pk": pk})
	return nil, http.StatusNoContent, nil
}

func (r *Resource[T]) subscribe(ctx context.Context, req *protocol.Request) (any, int, error) {
	sess := SessionFrom(ctx)
	if sess == nil {
		return nil, 0, errors.Invalid("action", "Subscriptions are not available on this connection.")
	}
	sess.Subscribe(r.name)
	return map[string]any{"subscribed": r.name}, http.StatusOK, nil
}

func (r *Resource[T]) unsubscribe(ctx context.Context, req *protocol.Request) (any, int, error) {
	sess := SessionFrom(ctx)
	if sess == nil {
		return nil, 0, errors.Invalid("action", "Subscriptions are not available on this connection.")
	}
	sess.Unsubscribe(r.name)
	return map[string]any{"subscribed": nil}, http.StatusOK, nil
}

// notify fans a committed mutation out to websocket subscribers and, when
// configured, the AMQP exchange. Failures are logged, never surfaced: the
// client's own response must not depend on event delivery.
func (r *Resource[T]) notify(ctx context.Context, action string, status int, pk uint64, data any) {
	if r.broadcaster != nil {
		evt := protocol.Event(action, status, data)
		payload, err := evt.Encode()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to encode event envelope",
				slog.String("action", action),
				slog.String("error", err.Error()))
		} else {
			r.broadcaster.BroadcastEvent(r.name, payload)
		}
	}

	if r.publisher != nil {
		err := r.publisher.Publish(ctx, events.Event{
			Resource: r.name,
			Action:   action,
			PK:       pk,
			Data:     data,
		})
		if err != nil {
			r.logger.WarnContext(ctx, "event publish failed",
				slog.String("action", action),
				slog.Uint64("pk", pk),
				slog.String("error", err.Error()))
		}
	}
}
