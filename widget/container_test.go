package widget

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watsonkit/watsonkit/events"
)

// =============================================================================
// REGISTRATION / WIRING
// =============================================================================

func TestContainerEndToEnd(t *testing.T) {
	c := NewContainer(nil)
	sender := newTextNode("Sender")
	receiver := newTextNode("Receiver")
	require.NoError(t, c.Register(sender))
	require.NoError(t, c.Register(receiver))
	require.NoError(t, c.Connect("Sender", "TextOut", "Receiver", "TextIn"))
	require.NoError(t, c.Init(context.Background()))

	assert.True(t, sender.Out.SendData(NewTextData("Hello World")))
	assert.Equal(t, []string{"Hello World"}, receiver.Received())
	assert.Equal(t, StateInitialized, c.State())
	assert.Equal(t, StateInitialized, sender.State())
}

func TestRegisterDuplicate(t *testing.T) {
	c := NewContainer(nil)
	require.NoError(t, c.Register(newTextNode("Same")))

	err := c.Register(newTextNode("Same"))
	var dup *DuplicateWidgetError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "Same", dup.Name)
}

func TestWidgetsKeepsRegistrationOrder(t *testing.T) {
	c := NewContainer(nil)
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, c.Register(newTextNode(name)))
	}

	var names []string
	for _, w := range c.Widgets() {
		names = append(names, w.WidgetName())
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)

	w, ok := c.Widget("a")
	require.True(t, ok)
	assert.Equal(t, "a", w.WidgetName())
	_, ok = c.Widget("zzz")
	assert.False(t, ok)
}

func TestConnectValidation(t *testing.T) {
	c := NewContainer(nil)
	require.NoError(t, c.Register(newTextNode("Text")))
	require.NoError(t, c.Register(newBoolSink("Bool")))

	tests := []struct {
		name              string
		from, out, to, in string
		check             func(t *testing.T, err error)
	}{
		{
			name: "unknown source", from: "Nope", out: "TextOut", to: "Text", in: "TextIn",
			check: func(t *testing.T, err error) {
				var e *WidgetNotFoundError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, "Nope", e.Name)
			},
		},
		{
			name: "unknown target", from: "Text", out: "TextOut", to: "Nope", in: "TextIn",
			check: func(t *testing.T, err error) {
				var e *WidgetNotFoundError
				require.ErrorAs(t, err, &e)
			},
		},
		{
			name: "unknown output", from: "Text", out: "Missing", to: "Text", in: "TextIn",
			check: func(t *testing.T, err error) {
				var e *PortNotFoundError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, "output", e.Direction)
			},
		},
		{
			name: "unknown input", from: "Text", out: "TextOut", to: "Bool", in: "Missing",
			check: func(t *testing.T, err error) {
				var e *PortNotFoundError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, "input", e.Direction)
			},
		},
		{
			name: "type mismatch", from: "Text", out: "TextOut", to: "Bool", in: "Flag",
			check: func(t *testing.T, err error) {
				var e *TypeMismatchError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, "Bool/Flag expects BooleanData, got TextData", e.Error())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, c.Connect(tt.from, tt.out, tt.to, tt.in))
		})
	}
}

func TestConnectFanInFromSeveralOutputs(t *testing.T) {
	c := NewContainer(nil)
	a := newTextNode("A")
	b := newTextNode("B")
	receiver := newTextNode("R")
	require.NoError(t, c.Register(a))
	require.NoError(t, c.Register(b))
	require.NoError(t, c.Register(receiver))
	require.NoError(t, c.Connect("A", "TextOut", "R", "TextIn"))
	require.NoError(t, c.Connect("B", "TextOut", "R", "TextIn"))
	require.NoError(t, c.Init(context.Background()))

	assert.True(t, a.Out.SendData(NewTextData("from a")))
	assert.True(t, b.Out.SendData(NewTextData("from b")))
	assert.Equal(t, []string{"from a", "from b"}, receiver.Received())
}

func TestConnectRejectsSecondSourceOnExclusiveInput(t *testing.T) {
	c := NewContainer(nil)
	only := NewInput("Only", func(*TextData) error { return nil }, WithExclusive())
	require.NoError(t, c.Register(newTextNode("A")))
	require.NoError(t, c.Register(newTextNode("B")))
	require.NoError(t, c.Register(NewBase("R", nil).WithInputs(only)))

	require.NoError(t, c.Connect("A", "TextOut", "R", "Only"))
	require.NoError(t, c.Connect("A", "TextOut", "R", "Only"))

	var exclusive *ExclusiveInputError
	require.ErrorAs(t, c.Connect("B", "TextOut", "R", "Only"), &exclusive)
	assert.Equal(t, "R/Only", exclusive.Input)
	assert.Equal(t, "A/TextOut", exclusive.Existing)

	// A type-matched connection resolves to the same input.
	require.ErrorAs(t, c.Connect("B", "TextOut", "R", ""), &exclusive)
}

func TestInject(t *testing.T) {
	c := NewContainer(nil)
	receiver := newTextNode("Receiver")
	require.NoError(t, c.Register(receiver))

	assert.ErrorIs(t, c.Inject("Receiver", "TextIn", NewTextData("early")), ErrNotInitialized)

	require.NoError(t, c.Init(context.Background()))
	require.NoError(t, c.Inject("Receiver", "TextIn", NewTextData("hi")))
	assert.Equal(t, []string{"hi"}, receiver.Received())

	var mismatch *TypeMismatchError
	assert.ErrorAs(t, c.Inject("Receiver", "TextIn", NewBooleanData(true)), &mismatch)

	var notFound *PortNotFoundError
	assert.ErrorAs(t, c.Inject("Receiver", "Nope", NewTextData("x")), &notFound)
}

func TestInjectRecoversPanic(t *testing.T) {
	c := NewContainer(nil)
	receiver := newTextNode("Receiver")
	receiver.setPanics(true)
	require.NoError(t, c.Register(receiver))
	require.NoError(t, c.Init(context.Background()))

	err := c.Inject("Receiver", "TextIn", NewTextData("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler exploded")
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestInitAndShutdownOrder(t *testing.T) {
	var calls []string
	c := NewContainer(nil)
	require.NoError(t, c.Register(newLifecycleNode("one", &calls)))
	require.NoError(t, c.Register(newLifecycleNode("two", &calls)))

	require.NoError(t, c.Init(context.Background()))
	require.NoError(t, c.Shutdown(context.Background()))

	assert.Equal(t, []string{"init:one", "init:two", "shutdown:two", "shutdown:one"}, calls)
	assert.Equal(t, StateShutDown, c.State())
}

func TestInitTwice(t *testing.T) {
	c := NewContainer(nil)
	require.NoError(t, c.Init(context.Background()))
	assert.ErrorIs(t, c.Init(context.Background()), ErrAlreadyInitialized)
}

func TestInitFailureResetsState(t *testing.T) {
	var calls []string
	c := NewContainer(nil)
	bad := newLifecycleNode("bad", &calls)
	bad.initErr = errors.New("no device")
	require.NoError(t, c.Register(bad))

	err := c.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init bad: no device")
	assert.Equal(t, StateUninitialized, c.State())
}

func TestInitFailureRollsBackInitializedWidgets(t *testing.T) {
	var calls []string
	c := NewContainer(nil)
	first := newLifecycleNode("A", &calls)
	second := newLifecycleNode("B", &calls)
	second.initErr = errors.New("boom")
	require.NoError(t, c.Register(first))
	require.NoError(t, c.Register(second))

	err := c.Init(context.Background())
	require.EqualError(t, err, "init B: boom")
	assert.Equal(t, []string{"init:A", "init:B", "shutdown:A"}, calls)

	second.initErr = nil
	calls = calls[:0]
	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, []string{"init:A", "init:B"}, calls)
	assert.Equal(t, StateInitialized, c.State())
}

func TestInitRollbackReportsShutdownErrors(t *testing.T) {
	var calls []string
	c := NewContainer(nil)
	first := newLifecycleNode("A", &calls)
	first.shutdownErr = errors.New("stuck")
	second := newLifecycleNode("B", &calls)
	second.initErr = errors.New("boom")
	require.NoError(t, c.Register(first))
	require.NoError(t, c.Register(second))

	err := c.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init B: boom")
	assert.Contains(t, err.Error(), "rollback A: stuck")
	assert.Equal(t, StateUninitialized, c.State())
}

func TestShutdownJoinsErrorsAndRecovers(t *testing.T) {
	var calls []string
	c := NewContainer(nil)
	failing := newLifecycleNode("failing", &calls)
	failing.shutdownErr = errors.New("close failed")
	panicky := newLifecycleNode("panicky", &calls)
	panicky.panicOnStop = true
	require.NoError(t, c.Register(failing))
	require.NoError(t, c.Register(panicky))
	require.NoError(t, c.Init(context.Background()))

	err := c.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shutdown failing: close failed")
	assert.Contains(t, err.Error(), "shutdown panicky")
	assert.Equal(t, []string{"init:failing", "init:panicky", "shutdown:panicky", "shutdown:failing"}, calls)

	assert.ErrorIs(t, c.Shutdown(context.Background()), ErrAlreadyShutdown)
	assert.ErrorIs(t, c.Init(context.Background()), ErrAlreadyShutdown)
	assert.ErrorIs(t, c.Register(newTextNode("late")), ErrAlreadyShutdown)
}

func TestShutdownMakesPortsInert(t *testing.T) {
	c := NewContainer(nil)
	sender := newTextNode("Sender")
	receiver := newTextNode("Receiver")
	require.NoError(t, c.Register(sender))
	require.NoError(t, c.Register(receiver))
	require.NoError(t, c.Connect("Sender", "TextOut", "Receiver", "TextIn"))
	require.NoError(t, c.Init(context.Background()))
	require.True(t, sender.Out.SendData(NewTextData("before")))

	require.NoError(t, c.Shutdown(context.Background()))

	assert.False(t, sender.Out.SendData(NewTextData("after")))
	assert.False(t, sender.Out.IsConnected())
	assert.ErrorIs(t, receiver.In.ReceiveData(NewTextData("direct")), ErrAlreadyShutdown)
	assert.Equal(t, []string{"before"}, receiver.Received())
	assert.ErrorIs(t, c.Inject("Receiver", "TextIn", NewTextData("x")), ErrNotInitialized)
}

func TestContainerInstallsObserverAndBus(t *testing.T) {
	obs := &recordingObserver{}
	bus := events.NewInMemoryBus(nil)
	c := NewContainer(nil, WithDispatchObserver(obs), WithEventBus(bus))
	sender := newTextNode("Sender")
	receiver := newTextNode("Receiver")
	require.NoError(t, c.Register(sender))
	require.NoError(t, c.Register(receiver))
	require.NoError(t, c.Connect("Sender", "TextOut", "Receiver", "TextIn"))
	require.NoError(t, c.Init(context.Background()))

	sender.Out.SendData(NewTextData("x"))

	assert.Same(t, bus, c.Events())
	assert.Equal(t, []string{"Sender/TextOut->Receiver/TextIn"}, obs.delivered)
}

// =============================================================================
// GRAPH
// =============================================================================

func TestGraphAndDot(t *testing.T) {
	c := NewContainer(nil)
	sender := newTextNode("Sender")
	receiver := newTextNode("Receiver")
	require.NoError(t, c.Register(sender))
	require.NoError(t, c.Register(receiver))
	require.NoError(t, c.Connect("Sender", "TextOut", "Receiver", ""))
	require.NoError(t, c.Init(context.Background()))

	edges := c.Graph()
	require.Len(t, edges, 1)
	assert.Equal(t, Edge{From: "Sender", Output: "TextOut", To: "Receiver", DataType: "TextData"}, edges[0])

	var buf bytes.Buffer
	require.NoError(t, c.WriteDot(&buf))
	assert.Contains(t, buf.String(), "digraph widgets {")
	assert.Contains(t, buf.String(), `"Sender" -> "Receiver"`)
	assert.Contains(t, buf.String(), "style=dashed")

	require.True(t, sender.Out.SendData(NewTextData("resolve")))
	edges = c.Graph()
	assert.True(t, edges[0].Resolved)
	assert.Equal(t, "TextIn", edges[0].Input)

	buf.Reset()
	require.NoError(t, c.WriteDot(&buf))
	assert.Contains(t, buf.String(), "style=solid")
}

func TestDescribe(t *testing.T) {
	sink := newBoolSink("Sink")
	info := Describe(sink)

	assert.Equal(t, "Sink", info.Name)
	assert.Equal(t, "initialized", info.State)
	require.Len(t, info.Inputs, 1)
	assert.Equal(t, PortInfo{Name: "Flag", DataType: "BooleanData"}, info.Inputs[0])
	assert.Empty(t, info.Outputs)
}
