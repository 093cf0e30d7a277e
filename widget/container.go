package widget

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/watsonkit/watsonkit/events"
)

// Container owns the widgets of one application, wires their ports and
// drives their lifecycle. It replaces engine-owned lifecycle callbacks and
// global managers: everything a widget needs is passed in explicitly.
//
// Usage:
//
//	c := widget.NewContainer(logger, widget.WithEventBus(bus))
//	c.Register(mic)
//	c.Register(stt)
//	c.Connect("Microphone", "Audio", "SpeechToText", "Audio")
//	c.Init(ctx)
//	defer c.Shutdown(ctx)
type Container struct {
	logger   Logger
	bus      events.Bus
	observer DispatchObserver

	widgets map[string]Widget
	order   []string
	wired   map[string]string // exclusive input -> source output
	state   State
	mu      sync.RWMutex
}

// ContainerOption configures a Container.
type ContainerOption func(*Container)

// WithEventBus sets the bus returned by Events.
func WithEventBus(bus events.Bus) ContainerOption {
	return func(c *Container) { c.bus = bus }
}

// WithDispatchObserver installs o on every registered widget.
func WithDispatchObserver(o DispatchObserver) ContainerOption {
	return func(c *Container) { c.observer = o }
}

// NewContainer creates an empty container.
func NewContainer(logger Logger, opts ...ContainerOption) *Container {
	if logger == nil {
		logger = NopLogger{}
	}
	c := &Container{
		logger:  logger,
		widgets: make(map[string]Widget),
		wired:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events returns the application event bus, or nil.
func (c *Container) Events() events.Bus { return c.bus }

// State returns the container lifecycle state.
func (c *Container) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Register adds w. Names must be unique.
func (c *Container) Register(w Widget) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateShutDown {
		return ErrAlreadyShutdown
	}
	name := w.WidgetName()
	if _, exists := c.widgets[name]; exists {
		return NewDuplicateWidgetError(name)
	}
	c.widgets[name] = w
	c.order = append(c.order, name)

	if c.observer != nil {
		if o, ok := w.(interface{ SetDispatchObserver(DispatchObserver) }); ok {
			o.SetDispatchObserver(c.observer)
		}
	}
	c.logger.Debug("widget_registered", "widget", name)
	return nil
}

// Widget returns the widget registered under name.
func (c *Container) Widget(name string) (Widget, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.widgets[name]
	return w, ok
}

// Widgets returns all widgets in registration order.
func (c *Container) Widgets() []Widget {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Widget, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.widgets[name])
	}
	return out
}

// Connect links output fromOutput of widget from to input toInput of widget
// to. toInput may be empty to match by payload type. The input itself is
// resolved on the first send.
func (c *Container) Connect(from, fromOutput, to, toInput string) error {
	src, ok := c.Widget(from)
	if !ok {
		return NewWidgetNotFoundError(from)
	}
	dst, ok := c.Widget(to)
	if !ok {
		return NewWidgetNotFoundError(to)
	}
	out, ok := src.Output(fromOutput)
	if !ok {
		return NewPortNotFoundError(from, fromOutput, "output")
	}
	var in InputPort
	if toInput != "" {
		if in, ok = dst.Input(toInput); !ok {
			return NewPortNotFoundError(to, toInput, "input")
		}
		if in.DataType() != out.DataType() {
			return NewTypeMismatchError(in.FullName(), in.DataTypeName(), out.DataTypeName())
		}
	} else {
		in = firstInputOfType(dst, out)
	}
	if in != nil && in.Exclusive() {
		source := from + "/" + fromOutput
		key := to + "/" + in.Name()
		c.mu.Lock()
		existing, taken := c.wired[key]
		if !taken {
			c.wired[key] = source
		}
		c.mu.Unlock()
		if taken && existing != source {
			return NewExclusiveInputError(key, existing)
		}
	}

	out.Connect(dst, toInput)
	c.logger.Info("widgets_connected",
		"output", out.FullName(),
		"target", to,
		"input", toInput,
	)
	return nil
}

// Inject delivers d straight to an input, bypassing outputs. Used by control
// surfaces and tests.
func (c *Container) Inject(widgetName, inputName string, d Data) error {
	if c.State() != StateInitialized {
		return ErrNotInitialized
	}
	w, ok := c.Widget(widgetName)
	if !ok {
		return NewWidgetNotFoundError(widgetName)
	}
	in, ok := w.Input(inputName)
	if !ok {
		return NewPortNotFoundError(widgetName, inputName, "input")
	}
	return SafeExecute(c.logger, "inject "+in.FullName(), func() error {
		return in.ReceiveData(d)
	})
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Init starts every widget's ports and runs Initializers in registration
// order. It stops at the first failure.
func (c *Container) Init(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateInitializing, StateInitialized:
		c.mu.Unlock()
		return ErrAlreadyInitialized
	case StateShutDown:
		c.mu.Unlock()
		return ErrAlreadyShutdown
	}
	c.state = StateInitializing
	c.mu.Unlock()

	widgets := c.Widgets()
	for i, w := range widgets {
		w.Inputs()
		w.Outputs()
		if initializer, ok := w.(Initializer); ok {
			if err := initializer.Init(ctx); err != nil {
				c.logger.Error("widget_init_failed", "widget", w.WidgetName(), "error", err.Error())
				initErr := fmt.Errorf("init %s: %w", w.WidgetName(), err)
				if rbErr := c.rollback(ctx, widgets[:i]); rbErr != nil {
					initErr = errors.Join(initErr, rbErr)
				}
				c.mu.Lock()
				c.state = StateUninitialized
				c.mu.Unlock()
				return initErr
			}
		}
	}

	c.mu.Lock()
	c.state = StateInitialized
	n := len(c.order)
	c.mu.Unlock()

	c.logger.Info("container_initialized", "widgets", n)
	return nil
}

// rollback shuts down already initialized widgets in reverse order so a
// later Init starts from a clean slate. Ports stay live.
func (c *Container) rollback(ctx context.Context, done []Widget) error {
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		w := done[i]
		s, ok := w.(Shutdowner)
		if !ok {
			continue
		}
		err := SafeExecute(c.logger, "rollback "+w.WidgetName(), func() error {
			return s.Shutdown(ctx)
		})
		if err != nil {
			c.logger.Error("widget_rollback_failed", "widget", w.WidgetName(), "error", err.Error())
			errs = append(errs, fmt.Errorf("rollback %s: %w", w.WidgetName(), err))
		}
	}
	c.logger.Warn("container_init_rolled_back", "widgets", len(done))
	return errors.Join(errs...)
}

// Shutdown runs Shutdowners in reverse registration order and makes every
// widget's ports inert. All widgets are visited; errors are joined.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateShutDown {
		c.mu.Unlock()
		return ErrAlreadyShutdown
	}
	c.state = StateShutDown
	c.mu.Unlock()

	widgets := c.Widgets()
	var errs []error
	for i := len(widgets) - 1; i >= 0; i-- {
		w := widgets[i]
		if s, ok := w.(Shutdowner); ok {
			err := SafeExecute(c.logger, "shutdown "+w.WidgetName(), func() error {
				return s.Shutdown(ctx)
			})
			if err != nil {
				c.logger.Error("widget_shutdown_failed", "widget", w.WidgetName(), "error", err.Error())
				errs = append(errs, fmt.Errorf("shutdown %s: %w", w.WidgetName(), err))
			}
		}
		if m, ok := w.(interface{ markShutdown() }); ok {
			m.markShutdown()
		}
	}

	c.logger.Info("container_shutdown", "widgets", len(widgets), "errors", len(errs))
	return errors.Join(errs...)
}

// firstInputOfType picks the input a type-matched connection from out will
// resolve to: the first declared input with the same payload type.
func firstInputOfType(dst Widget, out OutputPort) InputPort {
	for _, in := range dst.Inputs() {
		if in.DataType() == out.DataType() {
			return in
		}
	}
	return nil
}
