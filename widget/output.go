package widget

import (
	"reflect"
	"sync"
	"time"
)

// Output sends envelopes of type T to inputs on other widgets.
type Output[T Data] struct {
	name     string
	dataType reflect.Type

	owner       Widget
	logger      Logger
	links       []*link
	resolutions int
	mu          sync.Mutex
}

// link is one connection. resolved is cached after the first successful
// lookup and cleared when the target is reassigned.
type link struct {
	target    Widget
	inputName string
	resolved  InputPort
}

// NewOutput creates an output named name.
func NewOutput[T Data](name string) *Output[T] {
	return &Output[T]{
		name:     name,
		dataType: reflect.TypeFor[T](),
		logger:   NopLogger{},
	}
}

func (o *Output[T]) Name() string           { return o.name }
func (o *Output[T]) DataType() reflect.Type { return o.dataType }
func (o *Output[T]) DataTypeName() string   { return typeName(o.dataType) }

func (o *Output[T]) Owner() Widget {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.owner
}

func (o *Output[T]) FullName() string {
	return fullName(o.Owner(), o.name)
}

// Start implements OutputPort.
func (o *Output[T]) Start(owner Widget) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.owner != nil {
		return
	}
	o.owner = owner
	o.logger = loggerOf(owner)
}

// Connect implements OutputPort.
func (o *Output[T]) Connect(target Widget, inputName string) {
	if target == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, l := range o.links {
		if l.target == target && l.inputName == inputName {
			return
		}
	}
	o.links = append(o.links, &link{target: target, inputName: inputName})
}

// SetTarget implements OutputPort.
func (o *Output[T]) SetTarget(target Widget, inputName string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropLinks()
	if target != nil {
		o.links = []*link{{target: target, inputName: inputName}}
	}
}

// Disconnect implements OutputPort.
func (o *Output[T]) Disconnect() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropLinks()
}

func (o *Output[T]) dropLinks() {
	source := fullName(o.owner, o.name)
	for _, l := range o.links {
		if l.resolved != nil {
			l.resolved.detach(source)
		}
	}
	o.links = nil
}

// IsConnected implements OutputPort.
func (o *Output[T]) IsConnected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.links) > 0
}

// Connections implements OutputPort.
func (o *Output[T]) Connections() []Connection {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Connection, 0, len(o.links))
	for _, l := range o.links {
		c := Connection{
			Output:   fullName(o.owner, o.name),
			Target:   l.target.WidgetName(),
			Input:    l.inputName,
			DataType: typeName(o.dataType),
		}
		if l.resolved != nil {
			c.Input = l.resolved.Name()
			c.Resolved = true
		}
		out = append(out, c)
	}
	return out
}

// Resolutions counts successful target lookups since creation.
func (o *Output[T]) Resolutions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resolutions
}

// Send implements OutputPort.
func (o *Output[T]) Send(d Data) bool {
	typed, ok := d.(T)
	if !ok {
		o.logger.Warn("output_type_mismatch",
			"output", o.FullName(),
			"expected", o.DataTypeName(),
			"actual", NameOf(d),
		)
		return false
	}
	return o.SendData(typed)
}

// SendData delivers d to every connected input. It returns true only when
// there is at least one connection and every delivery succeeded.
func (o *Output[T]) SendData(d T) bool {
	o.mu.Lock()
	owner, logger := o.owner, o.logger
	if owner == nil {
		o.mu.Unlock()
		logger.Warn("output_not_started", "output", o.name)
		return false
	}
	if s, ok := owner.(interface{ State() State }); ok && s.State() == StateShutDown {
		o.mu.Unlock()
		logger.Warn("output_owner_shutdown", "output", fullName(owner, o.name))
		return false
	}
	if len(o.links) == 0 {
		o.mu.Unlock()
		logger.Debug("output_not_connected", "output", fullName(owner, o.name))
		return false
	}

	targets := make([]InputPort, 0, len(o.links))
	var failed []*link
	for _, l := range o.links {
		if in := o.resolve(l); in != nil {
			targets = append(targets, in)
		} else {
			failed = append(failed, l)
		}
	}
	o.mu.Unlock()

	ok := len(failed) == 0
	observer := observerOf(owner)
	if observer != nil {
		for _, l := range failed {
			observer.ResolutionFailed(o, l.target.WidgetName(), l.inputName)
		}
	}
	for _, in := range targets {
		if !o.deliver(logger, observer, in, d) {
			ok = false
		}
	}
	return ok
}

// resolve returns the cached input for l or looks it up; nil on failure.
// Caller holds o.mu.
func (o *Output[T]) resolve(l *link) InputPort {
	if l.resolved != nil {
		return l.resolved
	}

	source := fullName(o.owner, o.name)
	var matches []InputPort
	for _, in := range l.target.Inputs() {
		if l.inputName != "" && in.Name() != l.inputName {
			continue
		}
		if in.DataType() != o.dataType {
			continue
		}
		matches = append(matches, in)
	}

	if len(matches) == 0 {
		o.logger.Error("output_resolution_failed",
			"output", source,
			"target", l.target.WidgetName(),
			"input", l.inputName,
			"data_type", typeName(o.dataType),
		)
		return nil
	}
	if len(matches) > 1 {
		o.logger.Debug("output_ambiguous_target",
			"output", source,
			"target", l.target.WidgetName(),
			"candidates", len(matches),
			"chosen", matches[0].Name(),
		)
	}

	in := matches[0]
	if err := in.attach(source); err != nil {
		o.logger.Error("output_resolution_failed",
			"output", source,
			"target", l.target.WidgetName(),
			"error", err.Error(),
		)
		return nil
	}

	l.resolved = in
	o.resolutions++
	o.logger.Debug("output_resolved", "output", source, "input", in.FullName())
	return in
}

func (o *Output[T]) deliver(logger Logger, observer DispatchObserver, in InputPort, d T) bool {
	start := time.Now()
	err := SafeExecute(logger, "deliver "+in.FullName(), func() error {
		return in.ReceiveData(d)
	})
	if observer != nil {
		observer.Delivered(o, in, d, err, time.Since(start))
	}
	if err != nil {
		logger.Error("output_delivery_failed",
			"output", o.FullName(),
			"input", in.FullName(),
			"data", NameOf(d),
			"error", err.Error(),
		)
		return false
	}
	return true
}

func observerOf(owner Widget) DispatchObserver {
	if o, ok := owner.(interface{ DispatchObserver() DispatchObserver }); ok {
		return o.DispatchObserver()
	}
	return nil
}

var _ OutputPort = (*Output[*TextData])(nil)
