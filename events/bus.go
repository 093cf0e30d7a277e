package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// InMemoryBus is an in-process implementation of Bus.
//
// Features:
//   - Event fan-out to multiple subscribers
//   - Command dispatch to a single handler
//   - Middleware chain for cross-cutting concerns
//   - Handler introspection
//
// Usage:
//
//	bus := NewInMemoryBus(logger)
//	unsubscribe := bus.Subscribe(KeyEventType("m", ModControl), toggleMic)
//	defer unsubscribe()
//	err := bus.Publish(ctx, &KeyEvent{Key: "m", Modifiers: ModControl})
type InMemoryBus struct {
	handlers    map[string]HandlerFunc
	subscribers map[string][]subscription
	middleware  []Middleware
	nextID      uint64
	logger      Logger
	mu          sync.RWMutex
}

type subscription struct {
	id      uint64
	handler HandlerFunc
}

// NewInMemoryBus creates an empty bus. A nil logger discards output.
func NewInMemoryBus(logger Logger) *InMemoryBus {
	if logger == nil {
		logger = nopLogger{}
	}
	return &InMemoryBus{
		handlers:    make(map[string]HandlerFunc),
		subscribers: make(map[string][]subscription),
		logger:      logger,
	}
}

// =============================================================================
// MESSAGING
// =============================================================================

// Publish delivers an event to every subscriber concurrently and waits for
// all of them. A failing subscriber does not stop the others; their errors
// are joined, passed to middleware and returned.
func (b *InMemoryBus) Publish(ctx context.Context, event Message) error {
	eventType := GetMessageType(event)

	processed, err := b.runMiddlewareBefore(ctx, event)
	if err != nil {
		return err
	}
	if processed == nil {
		b.logger.Debug("event_aborted_by_middleware", "event", eventType)
		return nil
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subscribers[eventType]))
	copy(subs, b.subscribers[eventType])
	b.mu.RUnlock()

	if len(subs) == 0 {
		b.logger.Debug("event_no_subscribers", "event", eventType)
		_ = b.runMiddlewareAfter(ctx, event, nil)
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(subs))
	for i, sub := range subs {
		wg.Add(1)
		go func(idx int, h HandlerFunc) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("subscriber_panic_recovered", "event", eventType, "panic", r)
					errs[idx] = &panicError{value: r}
				}
			}()
			if err := h(ctx, processed); err != nil {
				errs[idx] = err
				b.logger.Warn("subscriber_failed", "event", eventType, "index", idx, "error", err.Error())
			}
		}(i, sub.handler)
	}
	wg.Wait()

	joined := errors.Join(errs...)
	_ = b.runMiddlewareAfter(ctx, event, joined)
	return joined
}

// Send delivers a command to its handler and returns the handler error.
// A command without handler is logged and dropped.
func (b *InMemoryBus) Send(ctx context.Context, command Message) error {
	messageType := GetMessageType(command)

	processed, err := b.runMiddlewareBefore(ctx, command)
	if err != nil {
		return err
	}
	if processed == nil {
		b.logger.Debug("command_aborted_by_middleware", "command", messageType)
		return nil
	}

	b.mu.RLock()
	handler, exists := b.handlers[messageType]
	b.mu.RUnlock()

	if !exists {
		b.logger.Warn("command_no_handler", "command", messageType)
		return nil
	}

	handlerErr := handler(ctx, processed)
	if handlerErr != nil {
		b.logger.Warn("command_handler_failed", "command", messageType, "error", handlerErr.Error())
	}
	return b.runMiddlewareAfter(ctx, command, handlerErr)
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Subscribe subscribes handler to an event type. The returned function
// removes exactly this subscription.
func (b *InMemoryBus) Subscribe(eventType string, handler HandlerFunc) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	b.logger.Debug("subscribed", "event", eventType)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subscribers[eventType]
			for i, s := range subs {
				if s.id == id {
					b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(b.subscribers[eventType]) == 0 {
				delete(b.subscribers, eventType)
			}
			b.logger.Debug("unsubscribed", "event", eventType)
		})
	}
}

// RegisterHandler registers the handler for a command type. Only one
// handler per type is allowed.
func (b *InMemoryBus) RegisterHandler(messageType string, handler HandlerFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[messageType]; exists {
		return NewHandlerAlreadyRegisteredError(messageType)
	}
	b.handlers[messageType] = handler
	b.logger.Debug("handler_registered", "command", messageType)
	return nil
}

// UnregisterHandler removes the handler for a command type.
func (b *InMemoryBus) UnregisterHandler(messageType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, messageType)
}

// AddMiddleware appends middleware. Before runs in registration order,
// After in reverse.
func (b *InMemoryBus) AddMiddleware(middleware Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware)
}

// =============================================================================
// INTROSPECTION
// =============================================================================

// HasHandler reports whether a command type has a handler.
func (b *InMemoryBus) HasHandler(messageType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, exists := b.handlers[messageType]
	return exists
}

// SubscriberCount returns the number of subscribers for an event type.
func (b *InMemoryBus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

// GetRegisteredTypes returns every type with a handler or subscriber,
// sorted.
func (b *InMemoryBus) GetRegisteredTypes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	types := make(map[string]struct{})
	for t := range b.handlers {
		types[t] = struct{}{}
	}
	for t := range b.subscribers {
		types[t] = struct{}{}
	}
	return sortedKeys(types)
}

// Clear removes all handlers, subscribers and middleware.
func (b *InMemoryBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[string]HandlerFunc)
	b.subscribers = make(map[string][]subscription)
	b.middleware = nil
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (b *InMemoryBus) middlewareSnapshot() []Middleware {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Middleware, len(b.middleware))
	copy(out, b.middleware)
	return out
}

func (b *InMemoryBus) runMiddlewareBefore(ctx context.Context, message Message) (Message, error) {
	current := message
	for _, mw := range b.middlewareSnapshot() {
		result, err := mw.Before(ctx, current)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, nil
		}
		current = result
	}
	return current, nil
}

func (b *InMemoryBus) runMiddlewareAfter(ctx context.Context, message Message, err error) error {
	mws := b.middlewareSnapshot()
	for i := len(mws) - 1; i >= 0; i-- {
		err = mws[i].After(ctx, message, err)
	}
	return err
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("subscriber panicked: %v", e.value)
}

var _ Bus = (*InMemoryBus)(nil)
