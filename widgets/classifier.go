package widgets

import (
	"context"
	"strings"

	"github.com/watsonkit/watsonkit/events"
	"github.com/watsonkit/watsonkit/services/classifier"
	"github.com/watsonkit/watsonkit/widget"
)

// TextClassifier classifies text with a trained classifier.
type TextClassifier interface {
	Classify(ctx context.Context, classifierID, text string) (*classifier.Classification, error)
}

// ClassifierConfig configures a Classifier widget.
type ClassifierConfig struct {
	ClassifierID string
	// MinConfidence is the confidence the top class needs before its
	// event is published.
	MinConfidence float64
	// Events maps class names to the NamedEvent published when that class
	// wins.
	Events map[string]string
}

// Classifier classifies text and final transcripts. When the top class is
// mapped to an event and confident enough, a NamedEvent carrying the
// result is published on the bus.
type Classifier struct {
	*widget.Base
	*worker
	TextIn   *widget.Input[*widget.TextData]
	SpeechIn *widget.Input[*widget.SpeechToTextData]
	Result   *widget.Output[*widget.ClassifyResultData]

	client TextClassifier
	cfg    ClassifierConfig
}

// NewClassifier creates the widget.
func NewClassifier(name string, client TextClassifier, cfg ClassifierConfig, bus events.Bus, logger widget.Logger) *Classifier {
	w := &Classifier{client: client, cfg: cfg}
	w.TextIn = widget.NewInput("Text", w.onText)
	w.SpeechIn = widget.NewInput("Speech", w.onSpeech)
	w.Result = widget.NewOutput[*widget.ClassifyResultData]("Result")
	w.Base = widget.NewBase(name, logger).
		WithInputs(w.TextIn, w.SpeechIn).
		WithOutputs(w.Result)
	w.worker = newWorker(name, classifier.ServiceName, bus, w.Logger())
	return w
}

func (w *Classifier) onText(d *widget.TextData) error {
	w.classify(d.Text())
	return nil
}

func (w *Classifier) onSpeech(d *widget.SpeechToTextData) error {
	if d.IsFinal() {
		w.classify(d.Transcript())
	}
	return nil
}

func (w *Classifier) classify(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	w.call("classify", func(ctx context.Context) error {
		res, err := w.client.Classify(ctx, w.cfg.ClassifierID, text)
		if err != nil {
			return err
		}
		classes := make([]widget.ClassScore, 0, len(res.Classes))
		for _, c := range res.Classes {
			classes = append(classes, widget.ClassScore{Name: c.ClassName, Confidence: c.Confidence})
		}
		result := widget.NewClassifyResultData(text, res.TopClass, classes)
		w.Result.SendData(result)
		w.dispatch(ctx, result)
		return nil
	})
}

func (w *Classifier) dispatch(ctx context.Context, result *widget.ClassifyResultData) {
	event, ok := w.cfg.Events[result.TopClass()]
	if !ok || w.bus == nil {
		return
	}
	if result.Confidence() < w.cfg.MinConfidence {
		w.Logger().Debug("classification_below_threshold",
			"widget", w.WidgetName(),
			"class", result.TopClass(),
			"confidence", result.Confidence(),
		)
		return
	}
	_ = w.bus.Publish(ctx, events.NewNamedEvent(event, result))
}

// Shutdown cancels pending classifications.
func (w *Classifier) Shutdown(ctx context.Context) error { return w.stop(ctx) }
