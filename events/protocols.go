// Package events provides the application event bus shared by widgets.
//
// The bus replaces process-wide event managers: the application root creates
// one Bus and hands it to every component that publishes or listens.
//
// Messaging patterns:
//   - Publish(event): fan-out to every subscriber of the event type
//   - Send(command): single registered handler
package events

import (
	"context"
)

// Message is implemented by everything carried on the bus.
type Message interface {
	// Category returns "event" or "command".
	Category() string
}

// TypedMessage is implemented by messages that route under a dynamic type,
// such as named events and key events.
type TypedMessage interface {
	Message
	MessageType() string
}

// HandlerFunc processes a message.
type HandlerFunc func(ctx context.Context, message Message) error

// Middleware intercepts messages before and after handling.
type Middleware interface {
	// Before returns the (possibly replaced) message, or nil to abort.
	Before(ctx context.Context, message Message) (Message, error)
	// After sees the handler error and may replace it.
	After(ctx context.Context, message Message, err error) error
}

// Bus is the application event bus.
type Bus interface {
	// Publish delivers an event to all of its subscribers.
	Publish(ctx context.Context, event Message) error
	// Send delivers a command to its single handler.
	Send(ctx context.Context, command Message) error

	// Subscribe registers handler for eventType and returns an unsubscribe
	// function.
	Subscribe(eventType string, handler HandlerFunc) func()
	// RegisterHandler registers the handler for a command type.
	RegisterHandler(messageType string, handler HandlerFunc) error
	// UnregisterHandler removes the handler for a command type.
	UnregisterHandler(messageType string)
	AddMiddleware(middleware Middleware)

	HasHandler(messageType string) bool
	SubscriberCount(eventType string) int
	GetRegisteredTypes() []string
	Clear()
}

// Logger is the structured logger used by the bus and its middleware.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
