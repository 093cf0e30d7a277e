package widgets

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/watsonkit/watsonkit/events"
	"github.com/watsonkit/watsonkit/widget"
)

// MicrophoneConfig describes the PCM stream read by a Microphone. Samples
// are signed 16-bit little endian, mono.
type MicrophoneConfig struct {
	SampleRate    int
	FrameDuration time.Duration
	Active        bool
}

// DefaultMicrophoneConfig returns 16 kHz frames of 100ms, capturing.
func DefaultMicrophoneConfig() MicrophoneConfig {
	return MicrophoneConfig{
		SampleRate:    16000,
		FrameDuration: 100 * time.Millisecond,
		Active:        true,
	}
}

// Microphone reads PCM frames from a source and emits them as AudioData
// together with their RMS level. Capture is toggled through its inputs or
// the SetMicrophoneActive command.
type Microphone struct {
	*widget.Base
	Audio      *widget.Output[*widget.AudioData]
	Level      *widget.Output[*widget.LevelData]
	DisableMic *widget.Input[*widget.DisableMicData]
	Activate   *widget.Input[*widget.BooleanData]

	source     io.Reader
	cfg        MicrophoneConfig
	frameBytes int
	bus        events.Bus

	active   atomic.Bool
	wake     chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewMicrophone creates a microphone reading from source.
func NewMicrophone(name string, source io.Reader, cfg MicrophoneConfig, bus events.Bus, logger widget.Logger) *Microphone {
	def := DefaultMicrophoneConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = def.FrameDuration
	}
	m := &Microphone{
		source: source,
		cfg:    cfg,
		bus:    bus,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	m.frameBytes = int(int64(cfg.SampleRate) * 2 * int64(cfg.FrameDuration) / int64(time.Second))
	if m.frameBytes < 2 {
		m.frameBytes = 2
	}
	m.active.Store(cfg.Active)

	m.Audio = widget.NewOutput[*widget.AudioData]("Audio")
	m.Level = widget.NewOutput[*widget.LevelData]("Level")
	m.DisableMic = widget.NewInput("DisableMic", func(d *widget.DisableMicData) error {
		m.SetActive(!d.Disabled())
		return nil
	})
	m.Activate = widget.NewInput("Activate", func(d *widget.BooleanData) error {
		m.SetActive(d.Value())
		return nil
	})
	m.Base = widget.NewBase(name, logger).
		WithInputs(m.DisableMic, m.Activate).
		WithOutputs(m.Audio, m.Level)
	return m
}

// IsActive reports whether frames are being captured.
func (m *Microphone) IsActive() bool { return m.active.Load() }

// Done is closed when capture has ended, either because the source is
// exhausted or the widget was shut down.
func (m *Microphone) Done() <-chan struct{} { return m.done }

// SetActive starts or stops capture and publishes MicrophoneToggled when
// the state changes.
func (m *Microphone) SetActive(active bool) {
	if m.active.Swap(active) == active {
		return
	}
	if active {
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
	m.Logger().Info("microphone_toggled", "widget", m.WidgetName(), "active", active)
	if m.bus != nil {
		_ = m.bus.Publish(context.Background(), &events.MicrophoneToggled{
			Widget: m.WidgetName(),
			Active: active,
		})
	}
}

// Init registers the SetMicrophoneActive handler and starts capturing.
func (m *Microphone) Init(ctx context.Context) error {
	if m.bus != nil {
		err := m.bus.RegisterHandler(events.SetMicrophoneActiveType(m.WidgetName()), func(ctx context.Context, msg events.Message) error {
			if cmd, ok := msg.(*events.SetMicrophoneActive); ok {
				m.SetActive(cmd.Active)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	captureCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	widget.SafeGo(m.Logger(), m.WidgetName()+".capture", func() { m.capture(captureCtx) }, func(any) {
		m.finish()
	})
	return nil
}

// Shutdown stops capture. A source implementing io.Closer is closed to
// unblock a pending read.
func (m *Microphone) Shutdown(ctx context.Context) error {
	if m.bus != nil {
		m.bus.UnregisterHandler(events.SetMicrophoneActiveType(m.WidgetName()))
	}
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	if c, ok := m.source.(io.Closer); ok {
		_ = c.Close()
	}
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Microphone) capture(ctx context.Context) {
	defer m.finish()
	frame := make([]byte, m.frameBytes)
	for {
		if !m.active.Load() {
			select {
			case <-ctx.Done():
				return
			case <-m.wake:
				continue
			}
		}
		if ctx.Err() != nil {
			return
		}

		n, err := io.ReadFull(m.source, frame)
		if n > 0 {
			m.emit(frame[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				m.Logger().Info("microphone_source_ended", "widget", m.WidgetName())
			} else if ctx.Err() == nil {
				m.Logger().Error("microphone_read_failed", "widget", m.WidgetName(), "error", err.Error())
			}
			return
		}
	}
}

func (m *Microphone) emit(pcm []byte) {
	audio := widget.NewAudioData(pcm, m.cfg.SampleRate, 1, pcmContentType(m.cfg.SampleRate))
	m.Audio.SendData(audio)
	m.Level.SendData(widget.NewLevelData(rmsLevel(pcm)))
}

func (m *Microphone) finish() {
	m.stopOnce.Do(func() { close(m.done) })
}

// rmsLevel returns the RMS of 16-bit little endian samples in [0, 1].
func rmsLevel(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

func pcmContentType(rate int) string {
	return "audio/l16;rate=" + strconv.Itoa(rate) + ";channels=1"
}
