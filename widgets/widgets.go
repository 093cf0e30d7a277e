// Package widgets holds the concrete widgets of a watsonkit application:
// audio capture and playback, the cognitive service widgets, key bindings
// and the MQTT bridge. Every widget embeds *widget.Base and is wired by a
// widget.Container.
package widgets

import (
	"context"
	"sync"
	"time"

	"github.com/watsonkit/watsonkit/events"
	"github.com/watsonkit/watsonkit/services/rest"
	"github.com/watsonkit/watsonkit/widget"
)

// DefaultCallTimeout bounds one service call made by a widget.
const DefaultCallTimeout = 30 * time.Second

// worker runs service calls off the sender's goroutine. A failed call is
// logged and published as a ServiceFailed event; it never reaches the
// widget's callers.
type worker struct {
	widget  string
	service string
	logger  widget.Logger
	bus     events.Bus
	timeout time.Duration

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newWorker(widgetName, service string, bus events.Bus, logger widget.Logger) *worker {
	if logger == nil {
		logger = widget.NopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &worker{
		widget:  widgetName,
		service: service,
		logger:  logger,
		bus:     bus,
		timeout: DefaultCallTimeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// context returns the context of the current run. It is canceled by stop.
func (w *worker) context() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctx
}

// call runs fn in its own goroutine with a bounded context.
func (w *worker) call(operation string, fn func(ctx context.Context) error) {
	parent := w.context()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(parent, w.timeout)
		defer cancel()
		err := widget.SafeExecute(w.logger, w.widget+"."+operation, func() error {
			return fn(ctx)
		})
		if err != nil {
			w.fail(operation, err)
		}
	}()
}

func (w *worker) fail(operation string, err error) {
	w.logger.Error("service_call_failed",
		"widget", w.widget,
		"service", w.service,
		"operation", operation,
		"error", err.Error(),
	)
	if w.bus == nil {
		return
	}
	_ = w.bus.Publish(context.Background(), &events.ServiceFailed{
		Widget:     w.widget,
		Service:    w.service,
		Operation:  operation,
		StatusCode: rest.StatusCode(err),
		Error:      err.Error(),
	})
}

// Wait blocks until every pending service call has returned.
func (w *worker) Wait() { w.wg.Wait() }

// stop cancels pending calls and waits for them, or for ctx. Calls made
// afterwards run under a fresh context so the widget can be initialized
// again.
func (w *worker) stop(ctx context.Context) error {
	w.mu.Lock()
	w.cancel()
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
