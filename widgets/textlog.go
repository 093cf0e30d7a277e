package widgets

import (
	"sync"

	"github.com/watsonkit/watsonkit/widget"
)

// DefaultTextLogSize is the number of lines kept by a TextLog.
const DefaultTextLogSize = 100

// TextLog keeps the most recent lines of text it receives and logs each
// one. Any number of outputs may feed it.
type TextLog struct {
	*widget.Base
	TextIn *widget.Input[*widget.TextData]

	size  int
	mu    sync.RWMutex
	lines []string
}

// NewTextLog creates a log keeping size lines, DefaultTextLogSize when
// size is not positive.
func NewTextLog(name string, size int, logger widget.Logger) *TextLog {
	if size <= 0 {
		size = DefaultTextLogSize
	}
	l := &TextLog{size: size}
	l.TextIn = widget.NewInput("Text", l.onText)
	l.Base = widget.NewBase(name, logger).WithInputs(l.TextIn)
	return l
}

// Lines returns the kept lines, oldest first.
func (l *TextLog) Lines() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.lines...)
}

func (l *TextLog) onText(d *widget.TextData) error {
	l.mu.Lock()
	l.lines = append(l.lines, d.Text())
	if over := len(l.lines) - l.size; over > 0 {
		l.lines = append([]string(nil), l.lines[over:]...)
	}
	l.mu.Unlock()

	l.Logger().Info("text_received", "widget", l.WidgetName(), "text", d.Text())
	return nil
}
