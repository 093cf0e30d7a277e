package widget

import (
	"reflect"
	"sync"
)

// Input receives envelopes of type T and hands them to a typed handler.
type Input[T Data] struct {
	name      string
	handler   func(T) error
	dataType  reflect.Type
	exclusive bool

	owner   Widget
	logger  Logger
	bound   bool
	sources []string
	mu      sync.RWMutex
}

// InputOption configures an Input.
type InputOption func(*inputConfig)

type inputConfig struct {
	exclusive bool
}

// WithExclusive limits the input to a single source output. Inputs accept
// any number of sources otherwise.
func WithExclusive() InputOption {
	return func(c *inputConfig) { c.exclusive = true }
}

// NewInput creates an input named name that calls handler for each envelope.
func NewInput[T Data](name string, handler func(T) error, opts ...InputOption) *Input[T] {
	cfg := inputConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Input[T]{
		name:      name,
		handler:   handler,
		dataType:  reflect.TypeFor[T](),
		exclusive: cfg.exclusive,
		logger:    NopLogger{},
	}
}

func (i *Input[T]) Name() string           { return i.name }
func (i *Input[T]) DataType() reflect.Type { return i.dataType }
func (i *Input[T]) DataTypeName() string   { return typeName(i.dataType) }
func (i *Input[T]) Exclusive() bool        { return i.exclusive }

func (i *Input[T]) Owner() Widget {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.owner
}

func (i *Input[T]) FullName() string {
	return fullName(i.Owner(), i.name)
}

// IsBound reports whether a handler was bound by Start.
func (i *Input[T]) IsBound() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.bound
}

// Start implements InputPort.
func (i *Input[T]) Start(owner Widget) {
	i.mu.Lock()
	if i.owner != nil {
		i.mu.Unlock()
		return
	}
	i.owner = owner
	i.logger = loggerOf(owner)
	i.bound = i.handler != nil
	i.mu.Unlock()

	if !i.bound {
		i.logger.Warn("input_handler_missing", "input", i.FullName())
	}
}

// ReceiveData implements InputPort.
func (i *Input[T]) ReceiveData(d Data) error {
	typed, ok := d.(T)
	if !ok {
		return NewTypeMismatchError(i.FullName(), i.DataTypeName(), NameOf(d))
	}

	i.mu.RLock()
	bound, handler, owner := i.bound, i.handler, i.owner
	i.mu.RUnlock()

	if !bound {
		return nil
	}
	if s, ok := owner.(interface{ State() State }); ok && s.State() == StateShutDown {
		return ErrAlreadyShutdown
	}
	return handler(typed)
}

// Sources lists the outputs currently resolved to this input.
func (i *Input[T]) Sources() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]string, len(i.sources))
	copy(out, i.sources)
	return out
}

func (i *Input[T]) attach(source string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, s := range i.sources {
		if s == source {
			return nil
		}
	}
	if i.exclusive && len(i.sources) > 0 {
		return NewExclusiveInputError(fullName(i.owner, i.name), i.sources[0])
	}
	i.sources = append(i.sources, source)
	return nil
}

func (i *Input[T]) detach(source string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for idx, s := range i.sources {
		if s == source {
			i.sources = append(i.sources[:idx], i.sources[idx+1:]...)
			return
		}
	}
}

var _ InputPort = (*Input[*TextData])(nil)
