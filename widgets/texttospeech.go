package widgets

import (
	"context"
	"sync"

	"github.com/watsonkit/watsonkit/events"
	"github.com/watsonkit/watsonkit/services/texttospeech"
	"github.com/watsonkit/watsonkit/widget"
)

// Synthesizer turns text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice, accept string) (*texttospeech.Audio, error)
}

// TextToSpeech synthesizes every TextData it receives with the current
// voice and emits the audio.
type TextToSpeech struct {
	*widget.Base
	*worker
	TextIn  *widget.Input[*widget.TextData]
	VoiceIn *widget.Input[*widget.VoiceData]
	Audio   *widget.Output[*widget.AudioData]

	client     Synthesizer
	accept     string
	sampleRate int
	mu         sync.Mutex
	voice      string
}

// NewTextToSpeech creates the widget. Empty voice and accept use the
// service defaults.
func NewTextToSpeech(name string, client Synthesizer, voice, accept string, bus events.Bus, logger widget.Logger) *TextToSpeech {
	if voice == "" {
		voice = texttospeech.DefaultVoice
	}
	if accept == "" {
		accept = texttospeech.DefaultAccept
	}
	w := &TextToSpeech{client: client, voice: voice, accept: accept, sampleRate: 22050}
	w.TextIn = widget.NewInput("Text", w.onText)
	w.VoiceIn = widget.NewInput("Voice", w.onVoice)
	w.Audio = widget.NewOutput[*widget.AudioData]("Audio")
	w.Base = widget.NewBase(name, logger).
		WithInputs(w.TextIn, w.VoiceIn).
		WithOutputs(w.Audio)
	w.worker = newWorker(name, texttospeech.ServiceName, bus, w.Logger())
	return w
}

// Voice returns the voice used for synthesis.
func (w *TextToSpeech) Voice() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.voice
}

func (w *TextToSpeech) onVoice(d *widget.VoiceData) error {
	if d.Voice() == "" {
		return nil
	}
	w.mu.Lock()
	w.voice = d.Voice()
	w.mu.Unlock()
	return nil
}

func (w *TextToSpeech) onText(d *widget.TextData) error {
	text := d.Text()
	if text == "" {
		return nil
	}
	voice := w.Voice()
	w.call("synthesize", func(ctx context.Context) error {
		audio, err := w.client.Synthesize(ctx, text, voice, w.accept)
		if err != nil {
			return err
		}
		w.Audio.SendData(widget.NewAudioData(audio.Bytes, w.sampleRate, 1, audio.ContentType))
		return nil
	})
	return nil
}

// Shutdown cancels pending syntheses.
func (w *TextToSpeech) Shutdown(ctx context.Context) error { return w.stop(ctx) }
