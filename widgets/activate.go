package widgets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/watsonkit/watsonkit/events"
	"github.com/watsonkit/watsonkit/widget"
)

// Activate is a toggle. Every change is emitted as BooleanData, and a key
// combination on the bus can flip it.
type Activate struct {
	*widget.Base
	Active *widget.Output[*widget.BooleanData]

	bus     events.Bus
	binding string

	mu          sync.Mutex
	value       bool
	unsubscribe func()
}

// NewActivate creates a toggle with an initial value. binding is a key
// combination such as "ctrl+m"; empty means no key binding.
func NewActivate(name string, initial bool, binding string, bus events.Bus, logger widget.Logger) *Activate {
	a := &Activate{bus: bus, binding: binding, value: initial}
	a.Active = widget.NewOutput[*widget.BooleanData]("Active")
	a.Base = widget.NewBase(name, logger).WithOutputs(a.Active)
	return a
}

// Value returns the current state.
func (a *Activate) Value() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value
}

// Set changes the state and emits it.
func (a *Activate) Set(v bool) {
	a.mu.Lock()
	a.value = v
	a.mu.Unlock()
	a.Active.SendData(widget.NewBooleanData(v))
}

// Toggle flips the state and emits it.
func (a *Activate) Toggle() {
	a.mu.Lock()
	a.value = !a.value
	v := a.value
	a.mu.Unlock()
	a.Active.SendData(widget.NewBooleanData(v))
}

// Init subscribes to the key binding and emits the initial state.
func (a *Activate) Init(ctx context.Context) error {
	if a.binding != "" && a.bus != nil {
		key, mods, err := ParseKeyBinding(a.binding)
		if err != nil {
			return err
		}
		a.unsubscribe = a.bus.Subscribe(events.KeyEventType(key, mods), func(context.Context, events.Message) error {
			a.Toggle()
			return nil
		})
	}
	a.Active.SendData(widget.NewBooleanData(a.Value()))
	return nil
}

// Shutdown removes the key binding.
func (a *Activate) Shutdown(ctx context.Context) error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	return nil
}

// ParseKeyBinding parses "ctrl+alt+m" style bindings. The last element is
// the key.
func ParseKeyBinding(s string) (string, events.Modifier, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	key := strings.TrimSpace(parts[len(parts)-1])
	if key == "" {
		return "", 0, fmt.Errorf("key binding %q has no key", s)
	}
	var mods events.Modifier
	for _, p := range parts[:len(parts)-1] {
		switch strings.TrimSpace(p) {
		case "ctrl", "control":
			mods |= events.ModControl
		case "alt":
			mods |= events.ModAlt
		case "shift":
			mods |= events.ModShift
		default:
			return "", 0, fmt.Errorf("key binding %q: unknown modifier %q", s, p)
		}
	}
	return key, mods, nil
}
