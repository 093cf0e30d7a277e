package widgets

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/watsonkit/watsonkit/widget"
)

// AudioSink writes every AudioData it receives to a writer, e.g. a
// speaker process or a file.
type AudioSink struct {
	*widget.Base
	AudioIn *widget.Input[*widget.AudioData]

	mu      sync.Mutex
	out     io.Writer
	written int64
}

// NewAudioSink creates a sink writing to out.
func NewAudioSink(name string, out io.Writer, logger widget.Logger) *AudioSink {
	s := &AudioSink{out: out}
	s.AudioIn = widget.NewInput("Audio", s.onAudio)
	s.Base = widget.NewBase(name, logger).WithInputs(s.AudioIn)
	return s
}

// Written returns the number of bytes written so far.
func (s *AudioSink) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func (s *AudioSink) onAudio(d *widget.AudioData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.out.Write(d.Bytes())
	s.written += int64(n)
	if err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	return nil
}

// Shutdown closes the writer when it is an io.Closer.
func (s *AudioSink) Shutdown(ctx context.Context) error {
	if c, ok := s.out.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
