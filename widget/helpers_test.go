package widget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// TEST WIDGETS
// =============================================================================

// textNode has one TextData input and one TextData output.
type textNode struct {
	*Base
	In  *Input[*TextData]
	Out *Output[*TextData]

	mu       sync.Mutex
	received []string
	fail     error
	panics   bool
}

func newTextNode(name string) *textNode {
	n := &textNode{}
	n.In = NewInput("TextIn", n.onText)
	n.Out = NewOutput[*TextData]("TextOut")
	n.Base = NewBase(name, nil).WithInputs(n.In).WithOutputs(n.Out)
	return n
}

func (n *textNode) onText(d *TextData) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.panics {
		panic("handler exploded")
	}
	if n.fail != nil {
		return n.fail
	}
	n.received = append(n.received, d.Text())
	return nil
}

func (n *textNode) Received() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.received...)
}

func (n *textNode) setFail(err error) {
	n.mu.Lock()
	n.fail = err
	n.mu.Unlock()
}

func (n *textNode) setPanics(p bool) {
	n.mu.Lock()
	n.panics = p
	n.mu.Unlock()
}

// boolSink only accepts BooleanData.
type boolSink struct {
	*Base
	In    *Input[*BooleanData]
	count int
}

func newBoolSink(name string) *boolSink {
	s := &boolSink{}
	s.In = NewInput("Flag", func(*BooleanData) error {
		s.count++
		return nil
	})
	s.Base = NewBase(name, nil).WithInputs(s.In)
	return s
}

// twoTextInputs has two inputs of the same payload type.
type twoTextInputs struct {
	*Base
	first, second []string
}

func newTwoTextInputs(name string) *twoTextInputs {
	w := &twoTextInputs{}
	a := NewInput("A", func(d *TextData) error { w.first = append(w.first, d.Text()); return nil })
	b := NewInput("B", func(d *TextData) error { w.second = append(w.second, d.Text()); return nil })
	w.Base = NewBase(name, nil).WithInputs(a, b)
	return w
}

// lifecycleNode records Init and Shutdown calls.
type lifecycleNode struct {
	*Base
	calls       *[]string
	initErr     error
	shutdownErr error
	panicOnStop bool
}

func newLifecycleNode(name string, calls *[]string) *lifecycleNode {
	return &lifecycleNode{Base: NewBase(name, nil), calls: calls}
}

func (n *lifecycleNode) Init(ctx context.Context) error {
	*n.calls = append(*n.calls, "init:"+n.WidgetName())
	return n.initErr
}

func (n *lifecycleNode) Shutdown(ctx context.Context) error {
	*n.calls = append(*n.calls, "shutdown:"+n.WidgetName())
	if n.panicOnStop {
		panic("shutdown exploded")
	}
	return n.shutdownErr
}

// =============================================================================
// TEST OBSERVER / LOGGER
// =============================================================================

type recordingObserver struct {
	mu         sync.Mutex
	delivered  []string
	failures   int
	unresolved []string
}

func (o *recordingObserver) Delivered(from OutputPort, to InputPort, d Data, err error, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delivered = append(o.delivered, from.FullName()+"->"+to.FullName())
	if err != nil {
		o.failures++
	}
}

func (o *recordingObserver) ResolutionFailed(from OutputPort, target, input string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unresolved = append(o.unresolved, from.FullName()+"->"+target+"/"+input)
}

type recordingLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf("%s:%s", level, msg))
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.record("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.record("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record("error", msg) }

func (l *recordingLogger) has(entry string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == entry {
			return true
		}
	}
	return false
}

var errHandler = errors.New("handler failed")
