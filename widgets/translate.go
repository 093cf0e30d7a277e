package widgets

import (
	"context"
	"sync"

	"github.com/watsonkit/watsonkit/events"
	"github.com/watsonkit/watsonkit/services/translator"
	"github.com/watsonkit/watsonkit/widget"
)

// Translator translates text between two languages.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (*translator.Translation, error)
}

// Translate translates incoming text to its target language and emits the
// translation followed by the target language.
type Translate struct {
	*widget.Base
	*worker
	TextIn   *widget.Input[*widget.TextData]
	TargetIn *widget.Input[*widget.LanguageData]
	Text     *widget.Output[*widget.TextData]
	Language *widget.Output[*widget.LanguageData]

	client Translator
	mu     sync.Mutex
	source string
	target string
}

// NewTranslate creates the widget. An empty source lets the service
// identify the language.
func NewTranslate(name string, client Translator, source, target string, bus events.Bus, logger widget.Logger) *Translate {
	w := &Translate{client: client, source: source, target: target}
	w.TextIn = widget.NewInput("Text", w.onText)
	w.TargetIn = widget.NewInput("Target", w.onTarget)
	w.Text = widget.NewOutput[*widget.TextData]("Text")
	w.Language = widget.NewOutput[*widget.LanguageData]("Language")
	w.Base = widget.NewBase(name, logger).
		WithInputs(w.TextIn, w.TargetIn).
		WithOutputs(w.Text, w.Language)
	w.worker = newWorker(name, translator.ServiceName, bus, w.Logger())
	return w
}

// Target returns the target language.
func (w *Translate) Target() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.target
}

func (w *Translate) onTarget(d *widget.LanguageData) error {
	w.mu.Lock()
	w.target = d.Language()
	w.mu.Unlock()
	return nil
}

func (w *Translate) onText(d *widget.TextData) error {
	w.mu.Lock()
	source, target := w.source, w.target
	w.mu.Unlock()
	text := d.Text()

	w.call("translate", func(ctx context.Context) error {
		res, err := w.client.Translate(ctx, text, source, target)
		if err != nil {
			return err
		}
		w.Text.SendData(widget.NewTextData(res.Text()))
		w.Language.SendData(widget.NewLanguageData(target))
		return nil
	})
	return nil
}

// Shutdown cancels pending translations.
func (w *Translate) Shutdown(ctx context.Context) error { return w.stop(ctx) }
