package widgets

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/watsonkit/watsonkit/events"
	"github.com/watsonkit/watsonkit/services/speechtotext"
	"github.com/watsonkit/watsonkit/widget"
)

const (
	// DefaultSessionIdle is how long a recognition session waits for the
	// next audio frame before it asks the service for final results.
	DefaultSessionIdle = time.Second

	frameQueueSize = 64
)

// ErrFinalResultsTimeout is reported when a stopped session does not end
// within the call timeout.
var ErrFinalResultsTimeout = errors.New("speechtotext: no final results after stop")

// Recognizer opens streaming recognition sessions.
type Recognizer interface {
	Listen(ctx context.Context, opts speechtotext.RecognizeOptions) (*speechtotext.Listener, error)
}

// SpeechToText streams the AudioData it receives to the recognizer and
// emits every result, interim or final. Final transcripts are also emitted
// as TextData.
//
// The first frame opens a session. Frames keep flowing into it until none
// arrives for the idle period, which is what a paused Microphone looks
// like; the session is then stopped and the next frame opens a new one.
type SpeechToText struct {
	*widget.Base
	*worker
	AudioIn    *widget.Input[*widget.AudioData]
	LanguageIn *widget.Input[*widget.LanguageData]
	Result     *widget.Output[*widget.SpeechToTextData]
	Text       *widget.Output[*widget.TextData]

	client Recognizer
	mu     sync.Mutex
	opts   speechtotext.RecognizeOptions
	idle   time.Duration
	frames chan []byte // queue of the open session, nil when none
}

// NewSpeechToText creates the widget. opts.Model defaults to the service
// default model.
func NewSpeechToText(name string, client Recognizer, opts speechtotext.RecognizeOptions, bus events.Bus, logger widget.Logger) *SpeechToText {
	w := &SpeechToText{client: client, opts: opts, idle: DefaultSessionIdle}
	w.AudioIn = widget.NewInput("Audio", w.onAudio)
	w.LanguageIn = widget.NewInput("Language", w.onLanguage)
	w.Result = widget.NewOutput[*widget.SpeechToTextData]("Result")
	w.Text = widget.NewOutput[*widget.TextData]("Text")
	w.Base = widget.NewBase(name, logger).
		WithInputs(w.AudioIn, w.LanguageIn).
		WithOutputs(w.Result, w.Text)
	w.worker = newWorker(name, speechtotext.ServiceName, bus, w.Logger())
	return w
}

// WithSessionIdle sets how long a session waits for audio before it is
// stopped. Non-positive values keep the default.
func (w *SpeechToText) WithSessionIdle(d time.Duration) *SpeechToText {
	if d > 0 {
		w.mu.Lock()
		w.idle = d
		w.mu.Unlock()
	}
	return w
}

// Model returns the recognition model in use.
func (w *SpeechToText) Model() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.opts.Model == "" {
		return speechtotext.DefaultModel
	}
	return w.opts.Model
}

// SessionIdle returns the idle period that ends a session.
func (w *SpeechToText) SessionIdle() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.idle
}

// Listening reports whether a recognition session is open.
func (w *SpeechToText) Listening() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames != nil
}

// onLanguage switches the model. An open session keeps its model.
func (w *SpeechToText) onLanguage(d *widget.LanguageData) error {
	model := ModelForLanguage(d.Language())
	w.mu.Lock()
	w.opts.Model = model
	w.mu.Unlock()
	w.Logger().Info("speech_model_changed", "widget", w.WidgetName(), "model", model)
	return nil
}

func (w *SpeechToText) onAudio(d *widget.AudioData) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.frames == nil {
		opts := w.opts
		if d.ContentType() != "" {
			opts.ContentType = d.ContentType()
		}
		w.frames = make(chan []byte, frameQueueSize)
		w.listen(w.frames, opts, w.idle)
	}
	select {
	case w.frames <- d.Bytes():
	default:
		w.Logger().Warn("speech_frame_dropped", "widget", w.WidgetName(), "bytes", len(d.Bytes()))
	}
	return nil
}

// listen runs one session on its own goroutine.
func (w *SpeechToText) listen(frames chan []byte, opts speechtotext.RecognizeOptions, idle time.Duration) {
	ctx := w.context()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		err := widget.SafeExecute(w.logger, w.widget+".listen", func() error {
			return w.session(ctx, frames, opts, idle)
		})
		w.detach(frames)
		if err != nil && ctx.Err() == nil {
			w.fail("listen", err)
		}
	}()
}

func (w *SpeechToText) session(ctx context.Context, frames chan []byte, opts speechtotext.RecognizeOptions, idle time.Duration) error {
	l, err := w.client.Listen(ctx, opts)
	if err != nil {
		return err
	}
	defer l.Close()
	w.Logger().Debug("speech_session_started", "widget", w.WidgetName(), "model", opts.Model)

	timer := time.NewTimer(idle)
	defer timer.Stop()
	results := l.Results()
	stopped := false
	for {
		select {
		case pcm := <-frames:
			if err := l.SendAudio(pcm); err != nil {
				return err
			}
			timer.Reset(idle)
		case <-timer.C:
			if stopped {
				return ErrFinalResultsTimeout
			}
			// No new frames can arrive once detached; flush the queue and
			// ask for the final results.
			w.detach(frames)
			if err := drain(frames, l); err != nil {
				return err
			}
			if err := l.Stop(); err != nil {
				return err
			}
			frames = nil
			stopped = true
			timer.Reset(w.timeout)
		case res, ok := <-results:
			if !ok {
				w.Logger().Debug("speech_session_ended", "widget", w.WidgetName())
				return l.Err()
			}
			w.emit(res)
		case <-ctx.Done():
			return nil
		}
	}
}

// detach makes the next frame open a new session.
func (w *SpeechToText) detach(frames chan []byte) {
	w.mu.Lock()
	if w.frames == frames {
		w.frames = nil
	}
	w.mu.Unlock()
}

func drain(frames chan []byte, l *speechtotext.Listener) error {
	for {
		select {
		case pcm := <-frames:
			if err := l.SendAudio(pcm); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (w *SpeechToText) emit(res *speechtotext.Results) {
	data := speechData(res)
	w.Result.SendData(data)
	if data.IsFinal() {
		if text := strings.TrimSpace(data.Transcript()); text != "" {
			w.Text.SendData(widget.NewTextData(text))
		}
	}
}

// Shutdown ends the open session and waits for it.
func (w *SpeechToText) Shutdown(ctx context.Context) error { return w.stop(ctx) }

func speechData(res *speechtotext.Results) *widget.SpeechToTextData {
	results := make([]widget.SpeechResult, 0, len(res.Results))
	for _, r := range res.Results {
		sr := widget.SpeechResult{Final: r.Final}
		for _, a := range r.Alternatives {
			sr.Alternatives = append(sr.Alternatives, widget.SpeechAlternative{
				Transcript: strings.TrimSpace(a.Transcript),
				Confidence: a.Confidence,
			})
		}
		results = append(results, sr)
	}
	return widget.NewSpeechToTextData(results)
}

var broadbandRegions = map[string]string{
	"ar": "ar-AR",
	"de": "de-DE",
	"en": "en-US",
	"es": "es-ES",
	"fr": "fr-FR",
	"it": "it-IT",
	"ja": "ja-JP",
	"ko": "ko-KR",
	"pt": "pt-BR",
	"zh": "zh-CN",
}

// ModelForLanguage maps a language code such as "es" or "en-GB" to a
// broadband model name. Names that already look like a model are kept.
func ModelForLanguage(lang string) string {
	if lang == "" {
		return speechtotext.DefaultModel
	}
	if strings.Contains(lang, "_") {
		return lang
	}
	if region, ok := broadbandRegions[strings.ToLower(lang)]; ok {
		lang = region
	}
	return lang + "_BroadbandModel"
}
