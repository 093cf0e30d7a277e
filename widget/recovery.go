package widget

import (
	"fmt"
	"runtime/debug"
)

// SafeExecute runs fn and converts a panic into an error. The panic and its
// stack are logged under the given operation name.
func SafeExecute(logger Logger, operation string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.Error("panic_recovered",
					"operation", operation,
					"panic", r,
					"stack", string(debug.Stack()),
				)
			}
			err = fmt.Errorf("panic in %s: %v", operation, r)
		}
	}()
	return fn()
}

// SafeGo runs fn on its own goroutine with panic recovery. onPanic, if set,
// receives the recovered value.
func SafeGo(logger Logger, operation string, fn func(), onPanic func(recovered any)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				if logger != nil {
					logger.Error("goroutine_panic_recovered",
						"operation", operation,
						"panic", r,
						"stack", string(debug.Stack()),
					)
				}
				if onPanic != nil {
					onPanic(r)
				}
			}
		}()
		fn()
	}()
}
