package widget

// Logger is the structured logger used by ports, widgets and the container.
// Messages are snake_case event names followed by key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

// loggerOf returns the owner's logger when it exposes one.
func loggerOf(owner Widget) Logger {
	if l, ok := owner.(interface{ Logger() Logger }); ok && l.Logger() != nil {
		return l.Logger()
	}
	return NopLogger{}
}
