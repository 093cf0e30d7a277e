package widget

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when the container is used before Init.
	ErrNotInitialized = errors.New("container not initialized")
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("container already initialized")
	// ErrAlreadyShutdown is returned once the owner has been shut down.
	ErrAlreadyShutdown = errors.New("already shut down")
)

// WidgetNotFoundError is returned when a widget name is not registered.
type WidgetNotFoundError struct {
	Name string
}

func (e *WidgetNotFoundError) Error() string {
	return fmt.Sprintf("widget %q not found", e.Name)
}

// NewWidgetNotFoundError creates a new WidgetNotFoundError.
func NewWidgetNotFoundError(name string) *WidgetNotFoundError {
	return &WidgetNotFoundError{Name: name}
}

// DuplicateWidgetError is returned when two widgets share a name.
type DuplicateWidgetError struct {
	Name string
}

func (e *DuplicateWidgetError) Error() string {
	return fmt.Sprintf("widget %q already registered", e.Name)
}

// NewDuplicateWidgetError creates a new DuplicateWidgetError.
func NewDuplicateWidgetError(name string) *DuplicateWidgetError {
	return &DuplicateWidgetError{Name: name}
}

// PortNotFoundError is returned when a widget has no port with the given name.
type PortNotFoundError struct {
	Widget    string
	Port      string
	Direction string // "input" or "output"
}

func (e *PortNotFoundError) Error() string {
	return fmt.Sprintf("widget %q has no %s %q", e.Widget, e.Direction, e.Port)
}

// NewPortNotFoundError creates a new PortNotFoundError.
func NewPortNotFoundError(widget, port, direction string) *PortNotFoundError {
	return &PortNotFoundError{Widget: widget, Port: port, Direction: direction}
}

// TypeMismatchError is returned when a payload type does not match a port.
type TypeMismatchError struct {
	Port     string
	Expected string
	Actual   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s expects %s, got %s", e.Port, e.Expected, e.Actual)
}

// NewTypeMismatchError creates a new TypeMismatchError.
func NewTypeMismatchError(port, expected, actual string) *TypeMismatchError {
	return &TypeMismatchError{Port: port, Expected: expected, Actual: actual}
}

// ExclusiveInputError is returned when a second output resolves to an input
// that accepts a single connection.
type ExclusiveInputError struct {
	Input    string
	Existing string
}

func (e *ExclusiveInputError) Error() string {
	return fmt.Sprintf("%s already connected to %s", e.Input, e.Existing)
}

// NewExclusiveInputError creates a new ExclusiveInputError.
func NewExclusiveInputError(input, existing string) *ExclusiveInputError {
	return &ExclusiveInputError{Input: input, Existing: existing}
}
