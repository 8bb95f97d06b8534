package event

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/storefront/backend/internal/domain/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/storefront/backend/internal/infrastructure/event"

// InMemoryEventBus dispatches domain events to subscribed handlers in the
// publisher's goroutine. Settlement operations publish only after commit, so
// handlers always observe committed state.
type InMemoryEventBus struct {
	subs     subscriptions
	logger   *zap.Logger
	tracer   trace.Tracer
	running  atomic.Bool
	failures atomic.Int64
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryEventBus{
		subs:   subscriptions{byType: make(map[string][]shared.EventHandler)},
		logger: logger.Named("event_bus"),
		tracer: otel.Tracer(tracerName),
	}
}

// Publish hands each event to every matching handler. Handler failures are
// logged and counted; they never fail the publisher.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, event := range events {
		handlers := b.subs.lookup(event.EventType())
		if len(handlers) == 0 {
			continue
		}

		ctx, span := b.tracer.Start(ctx, "event.publish "+event.EventType(),
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("event.type", event.EventType()),
				attribute.String("event.aggregate_type", event.AggregateType()),
				attribute.String("event.aggregate_id", event.AggregateID().String()),
				attribute.Int("event.handlers", len(handlers)),
			))

		for _, handler := range handlers {
			if err := b.dispatch(ctx, handler, event); err != nil {
				b.failures.Add(1)
				span.RecordError(err)
				span.SetStatus(codes.Error, "handler failed")
				b.logger.Error("handler failed to process event",
					zap.String("event_type", event.EventType()),
					zap.String("event_id", event.EventID().String()),
					zap.String("aggregate_id", event.AggregateID().String()),
					zap.Error(err),
				)
			}
		}
		span.End()
	}
	return nil
}

// Subscribe registers a handler. Without explicit types the handler's own
// EventTypes are used.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.subs.add(handler, eventTypes...)
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.subs.remove(handler)
}

// Start marks the bus running
func (b *InMemoryEventBus) Start(context.Context) error {
	b.running.Store(true)
	b.logger.Info("event bus started")
	return nil
}

// Stop marks the bus stopped. Dispatch is synchronous so nothing is in flight
// once publishers have returned.
func (b *InMemoryEventBus) Stop(context.Context) error {
	b.running.Store(false)
	b.logger.Info("event bus stopped", zap.Int64("handler_failures", b.failures.Load()))
	return nil
}

// Running reports whether Start has been called without a matching Stop
func (b *InMemoryEventBus) Running() bool {
	return b.running.Load()
}

// Failures returns how many handler invocations have failed or panicked
func (b *InMemoryEventBus) Failures() int64 {
	return b.failures.Load()
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, event)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)

// subscriptions maps event types to handlers; handlers added without types
// see every event.
type subscriptions struct {
	mu     sync.RWMutex
	byType map[string][]shared.EventHandler
	all    []shared.EventHandler
}

func (s *subscriptions) add(h shared.EventHandler, types ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(types) == 0 {
		s.all = append(s.all, h)
		return
	}
	for _, t := range types {
		if !slices.Contains(s.byType[t], h) {
			s.byType[t] = append(s.byType[t], h)
		}
	}
}

func (s *subscriptions) remove(h shared.EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := func(x shared.EventHandler) bool { return x == h }
	s.all = slices.DeleteFunc(s.all, drop)
	for t, hs := range s.byType {
		if hs = slices.DeleteFunc(hs, drop); len(hs) == 0 {
			delete(s.byType, t)
		} else {
			s.byType[t] = hs
		}
	}
}

// lookup returns typed handlers first, then catch-all ones
func (s *subscriptions) lookup(eventType string) []shared.EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Concat(s.byType[eventType], s.all)
}
