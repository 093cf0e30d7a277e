package widget

import (
	"context"
	"sync"
)

// State is the lifecycle state of a widget's ports.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateInitialized
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateShutDown:
		return "shut_down"
	default:
		return "unknown"
	}
}

// Widget is a component that owns input and output ports.
type Widget interface {
	WidgetName() string
	Inputs() []InputPort
	Outputs() []OutputPort
	Input(name string) (InputPort, bool)
	Output(name string) (OutputPort, bool)
}

// Initializer is implemented by widgets that need work done by Container.Init
// after their ports are started.
type Initializer interface {
	Init(ctx context.Context) error
}

// Shutdowner is implemented by widgets that release resources in
// Container.Shutdown.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Base holds a widget's declared ports and starts them on first access.
// Embed *Base in concrete widgets.
type Base struct {
	name     string
	logger   Logger
	inputs   []InputPort
	outputs  []OutputPort
	observer DispatchObserver
	state    State
	once     sync.Once
	mu       sync.RWMutex
}

// NewBase creates a Base named name. A nil logger discards output.
func NewBase(name string, logger Logger) *Base {
	if logger == nil {
		logger = NopLogger{}
	}
	return &Base{name: name, logger: logger}
}

// WithInputs declares input ports. Ports declared after initialization are
// ignored.
func (b *Base) WithInputs(ports ...InputPort) *Base {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateUninitialized {
		b.logger.Warn("ports_declared_after_init", "widget", b.name, "count", len(ports))
		return b
	}
	b.inputs = append(b.inputs, ports...)
	return b
}

// WithOutputs declares output ports. Ports declared after initialization are
// ignored.
func (b *Base) WithOutputs(ports ...OutputPort) *Base {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateUninitialized {
		b.logger.Warn("ports_declared_after_init", "widget", b.name, "count", len(ports))
		return b
	}
	b.outputs = append(b.outputs, ports...)
	return b
}

func (b *Base) WidgetName() string { return b.name }

// Logger returns the widget's logger.
func (b *Base) Logger() Logger {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.logger
}

// State returns the current lifecycle state.
func (b *Base) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// SetDispatchObserver installs the observer told about deliveries from this
// widget's outputs.
func (b *Base) SetDispatchObserver(o DispatchObserver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observer = o
}

// DispatchObserver returns the installed observer, if any.
func (b *Base) DispatchObserver() DispatchObserver {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.observer
}

// Inputs returns the declared inputs, starting all ports on first call.
func (b *Base) Inputs() []InputPort {
	b.ensureStarted()
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]InputPort, len(b.inputs))
	copy(out, b.inputs)
	return out
}

// Outputs returns the declared outputs, starting all ports on first call.
func (b *Base) Outputs() []OutputPort {
	b.ensureStarted()
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]OutputPort, len(b.outputs))
	copy(out, b.outputs)
	return out
}

// Input finds an input by name.
func (b *Base) Input(name string) (InputPort, bool) {
	for _, in := range b.Inputs() {
		if in.Name() == name {
			return in, true
		}
	}
	return nil, false
}

// Output finds an output by name.
func (b *Base) Output(name string) (OutputPort, bool) {
	for _, out := range b.Outputs() {
		if out.Name() == name {
			return out, true
		}
	}
	return nil, false
}

func (b *Base) ensureStarted() {
	b.once.Do(func() {
		b.mu.Lock()
		if b.state != StateUninitialized {
			b.mu.Unlock()
			return
		}
		b.state = StateInitializing
		inputs := append([]InputPort(nil), b.inputs...)
		outputs := append([]OutputPort(nil), b.outputs...)
		b.mu.Unlock()

		for _, in := range inputs {
			in.Start(b)
		}
		for _, out := range outputs {
			out.Start(b)
		}

		b.mu.Lock()
		if b.state == StateInitializing {
			b.state = StateInitialized
		}
		b.mu.Unlock()

		b.logger.Debug("widget_ports_started",
			"widget", b.name,
			"inputs", len(inputs),
			"outputs", len(outputs),
		)
	})
}

// markShutdown makes every port inert. Outputs stop sending and are
// disconnected; inputs reject further data.
func (b *Base) markShutdown() {
	b.ensureStarted()
	b.mu.Lock()
	b.state = StateShutDown
	outputs := append([]OutputPort(nil), b.outputs...)
	b.mu.Unlock()

	for _, out := range outputs {
		out.Disconnect()
	}
}
