package events

import (
	"sort"
	"strings"
)

// MessageCategory is the routing category of a message.
type MessageCategory string

const (
	// MessageCategoryEvent fans out to all subscribers.
	MessageCategoryEvent MessageCategory = "event"
	// MessageCategoryCommand goes to a single handler.
	MessageCategoryCommand MessageCategory = "command"
)

// =============================================================================
// NAMED EVENTS
// =============================================================================

// NamedEvent is a free-form event routed by name, e.g. an intent detected
// by a classifier.
type NamedEvent struct {
	Name string `json:"name"`
	Args []any  `json:"args,omitempty"`
}

// NewNamedEvent creates a NamedEvent.
func NewNamedEvent(name string, args ...any) *NamedEvent {
	return &NamedEvent{Name: name, Args: args}
}

func (m *NamedEvent) Category() string    { return string(MessageCategoryEvent) }
func (m *NamedEvent) MessageType() string { return m.Name }

// =============================================================================
// KEY EVENTS
// =============================================================================

// Modifier is a keyboard modifier bit set.
type Modifier uint8

const (
	ModNone  Modifier = 0
	ModShift Modifier = 1 << iota
	ModControl
	ModAlt
)

func (m Modifier) String() string {
	var parts []string
	if m&ModControl != 0 {
		parts = append(parts, "ctrl")
	}
	if m&ModAlt != 0 {
		parts = append(parts, "alt")
	}
	if m&ModShift != 0 {
		parts = append(parts, "shift")
	}
	return strings.Join(parts, "+")
}

// KeyEvent reports a key press. Subscribers register for one key and
// modifier combination via KeyEventType.
type KeyEvent struct {
	Key       string   `json:"key"`
	Modifiers Modifier `json:"modifiers"`
}

func (m *KeyEvent) Category() string    { return string(MessageCategoryEvent) }
func (m *KeyEvent) MessageType() string { return KeyEventType(m.Key, m.Modifiers) }

// KeyEventType is the routing type for a key combination, e.g. "key:ctrl+m".
func KeyEventType(key string, mods Modifier) string {
	key = strings.ToLower(key)
	if mods == ModNone {
		return "key:" + key
	}
	return "key:" + mods.String() + "+" + key
}

// =============================================================================
// WIDGET EVENTS
// =============================================================================

// MicrophoneToggled is published when a microphone starts or stops capture.
type MicrophoneToggled struct {
	Widget string `json:"widget"`
	Active bool   `json:"active"`
}

func (m *MicrophoneToggled) Category() string { return string(MessageCategoryEvent) }

// ServiceFailed is published when a widget's service call fails.
type ServiceFailed struct {
	Widget     string `json:"widget"`
	Service    string `json:"service"`
	Operation  string `json:"operation"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error"`
}

func (m *ServiceFailed) Category() string { return string(MessageCategoryEvent) }

// =============================================================================
// COMMANDS
// =============================================================================

// SetMicrophoneActive asks the named microphone to start or stop capture.
type SetMicrophoneActive struct {
	Widget string `json:"widget"`
	Active bool   `json:"active"`
}

func (m *SetMicrophoneActive) Category() string { return string(MessageCategoryCommand) }

// MessageType routes the command to one microphone.
func (m *SetMicrophoneActive) MessageType() string {
	return SetMicrophoneActiveType(m.Widget)
}

// SetMicrophoneActiveType is the command type handled by microphone widget name.
func SetMicrophoneActiveType(widget string) string {
	return "SetMicrophoneActive:" + widget
}

// =============================================================================
// HELPERS
// =============================================================================

// GetMessageType returns the routing type of a message.
func GetMessageType(msg Message) string {
	if typed, ok := msg.(TypedMessage); ok {
		return typed.MessageType()
	}

	switch msg.(type) {
	case *MicrophoneToggled:
		return "MicrophoneToggled"
	case *ServiceFailed:
		return "ServiceFailed"
	default:
		return "Unknown"
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
