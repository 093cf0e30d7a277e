package widget

import (
	"reflect"
	"time"
)

// InputPort is the untyped view of an Input.
type InputPort interface {
	Name() string
	DataType() reflect.Type
	DataTypeName() string
	Owner() Widget
	FullName() string
	Exclusive() bool

	// Start binds the handler and records the owner. Idempotent.
	Start(owner Widget)
	// ReceiveData invokes the bound handler; an unbound input is a no-op.
	ReceiveData(d Data) error

	attach(source string) error
	detach(source string)
}

// OutputPort is the untyped view of an Output.
type OutputPort interface {
	Name() string
	DataType() reflect.Type
	DataTypeName() string
	Owner() Widget
	FullName() string

	// Start records the owner. Idempotent.
	Start(owner Widget)
	// Connect adds a target. An empty inputName matches by payload type only.
	Connect(target Widget, inputName string)
	// SetTarget replaces every connection and invalidates resolved inputs.
	SetTarget(target Widget, inputName string)
	Disconnect()
	Connections() []Connection
	IsConnected() bool
	// Send delivers d if it has the output's payload type.
	Send(d Data) bool
}

// Connection describes one output→input link. Input is the resolved input
// name, or the requested one while unresolved.
type Connection struct {
	Output   string
	Target   string
	Input    string
	DataType string
	Resolved bool
}

// DispatchObserver is told about every delivery attempt.
type DispatchObserver interface {
	Delivered(from OutputPort, to InputPort, d Data, err error, elapsed time.Duration)
	ResolutionFailed(from OutputPort, target, input string)
}

func fullName(owner Widget, port string) string {
	if owner == nil {
		return port
	}
	return owner.WidgetName() + "/" + port
}
