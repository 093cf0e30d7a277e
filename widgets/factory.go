package widgets

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/watsonkit/watsonkit/config"
	"github.com/watsonkit/watsonkit/events"
	"github.com/watsonkit/watsonkit/services/classifier"
	"github.com/watsonkit/watsonkit/services/conversation"
	"github.com/watsonkit/watsonkit/services/rest"
	"github.com/watsonkit/watsonkit/services/speechtotext"
	"github.com/watsonkit/watsonkit/services/texttospeech"
	"github.com/watsonkit/watsonkit/services/translator"
	"github.com/watsonkit/watsonkit/widget"
)

// Widget types understood by Factory.
const (
	TypeMicrophone   = "Microphone"
	TypeSpeechToText = "SpeechToText"
	TypeTextToSpeech = "TextToSpeech"
	TypeTranslate    = "Translate"
	TypeClassifier   = "Classifier"
	TypeConversation = "Conversation"
	TypeAudioSink    = "AudioSink"
	TypeTextLog      = "TextLog"
	TypeActivate     = "Activate"
	TypeMQTTBridge   = "MQTTBridge"
)

// Services holds the clients used by service widgets. A nil client means
// the service has no credentials.
type Services struct {
	SpeechToText Recognizer
	TextToSpeech Synthesizer
	Translator   Translator
	Classifier   TextClassifier
	Conversation Conversationalist
}

// NewServices creates a client for every widget service found in creds.
// Services without credentials stay nil.
func NewServices(cfg *config.SDKConfig, creds *config.Credentials, logger widget.Logger) (Services, error) {
	if logger == nil {
		logger = widget.NopLogger{}
	}
	var s Services
	options := func(label string) (rest.Options, bool) {
		sc, err := creds.Service(label)
		if err != nil {
			logger.Warn("service_credentials_missing", "service", label)
			return rest.Options{}, false
		}
		return rest.OptionsFromConfig(cfg, sc, logger), true
	}

	if opts, ok := options(speechtotext.ServiceName); ok {
		c, err := speechtotext.New(opts)
		if err != nil {
			return s, err
		}
		s.SpeechToText = c
	}
	if opts, ok := options(texttospeech.ServiceName); ok {
		c, err := texttospeech.New(opts)
		if err != nil {
			return s, err
		}
		s.TextToSpeech = c
	}
	if opts, ok := options(translator.ServiceName); ok {
		c, err := translator.New(opts)
		if err != nil {
			return s, err
		}
		s.Translator = c
	}
	if opts, ok := options(classifier.ServiceName); ok {
		c, err := classifier.New(opts)
		if err != nil {
			return s, err
		}
		s.Classifier = c
	}
	if opts, ok := options(conversation.ServiceName); ok {
		c, err := conversation.New(opts)
		if err != nil {
			return s, err
		}
		s.Conversation = c
	}
	return s, nil
}

// Factory builds widgets from scene descriptions.
type Factory struct {
	Services    Services
	Bus         events.Bus
	Logger      widget.Logger
	AudioSource io.Reader
	AudioOut    io.Writer
	MQTT        MQTTClient
}

// Types lists the widget types Build accepts.
func (f *Factory) Types() []string {
	return []string{
		TypeMicrophone, TypeSpeechToText, TypeTextToSpeech, TypeTranslate, TypeClassifier,
		TypeConversation, TypeAudioSink, TypeTextLog, TypeActivate, TypeMQTTBridge,
	}
}

// Build creates one widget. A service widget whose client is missing
// yields an error wrapping config.ErrNoCredentials.
func (f *Factory) Build(spec config.WidgetSpec) (widget.Widget, error) {
	s := spec.Settings
	switch spec.Type {
	case TypeMicrophone:
		if f.AudioSource == nil {
			return nil, fmt.Errorf("%s: no audio source", spec.Name)
		}
		cfg := MicrophoneConfig{
			SampleRate:    s.Int("sample_rate", 16000),
			FrameDuration: time.Duration(s.Int("frame_ms", 100)) * time.Millisecond,
			Active:        s.Bool("active", true),
		}
		return NewMicrophone(spec.Name, f.AudioSource, cfg, f.Bus, f.Logger), nil

	case TypeSpeechToText:
		if f.Services.SpeechToText == nil {
			return nil, missing(spec, speechtotext.ServiceName)
		}
		opts := speechtotext.RecognizeOptions{
			Model:          s.String("model", ""),
			ContentType:    s.String("content_type", ""),
			InterimResults: s.Bool("interim_results", false),
		}
		if lang := s.String("language", ""); lang != "" && opts.Model == "" {
			opts.Model = ModelForLanguage(lang)
		}
		idle := time.Duration(s.Int("session_idle_ms", 0)) * time.Millisecond
		return NewSpeechToText(spec.Name, f.Services.SpeechToText, opts, f.Bus, f.Logger).WithSessionIdle(idle), nil

	case TypeTextToSpeech:
		if f.Services.TextToSpeech == nil {
			return nil, missing(spec, texttospeech.ServiceName)
		}
		return NewTextToSpeech(spec.Name, f.Services.TextToSpeech,
			s.String("voice", ""), s.String("accept", ""), f.Bus, f.Logger), nil

	case TypeTranslate:
		if f.Services.Translator == nil {
			return nil, missing(spec, translator.ServiceName)
		}
		target := s.String("target", "")
		if target == "" {
			return nil, fmt.Errorf("%s: target language required", spec.Name)
		}
		return NewTranslate(spec.Name, f.Services.Translator, s.String("source", ""), target, f.Bus, f.Logger), nil

	case TypeClassifier:
		if f.Services.Classifier == nil {
			return nil, missing(spec, classifier.ServiceName)
		}
		cfg := ClassifierConfig{
			ClassifierID:  s.String("classifier_id", ""),
			MinConfidence: s.Float("min_confidence", 0),
			Events:        s.StringMap("events"),
		}
		if cfg.ClassifierID == "" {
			return nil, fmt.Errorf("%s: classifier_id required", spec.Name)
		}
		return NewClassifier(spec.Name, f.Services.Classifier, cfg, f.Bus, f.Logger), nil

	case TypeConversation:
		if f.Services.Conversation == nil {
			return nil, missing(spec, conversation.ServiceName)
		}
		workspace := s.String("workspace_id", "")
		if workspace == "" {
			return nil, fmt.Errorf("%s: workspace_id required", spec.Name)
		}
		return NewConversation(spec.Name, f.Services.Conversation, workspace, f.Bus, f.Logger), nil

	case TypeAudioSink:
		out := f.AudioOut
		if out == nil {
			out = io.Discard
		}
		return NewAudioSink(spec.Name, out, f.Logger), nil

	case TypeTextLog:
		return NewTextLog(spec.Name, s.Int("size", DefaultTextLogSize), f.Logger), nil

	case TypeActivate:
		return NewActivate(spec.Name, s.Bool("initial", false), s.String("key", ""), f.Bus, f.Logger), nil

	case TypeMQTTBridge:
		if f.MQTT == nil {
			return nil, fmt.Errorf("%s: no MQTT client", spec.Name)
		}
		cfg := MQTTBridgeConfig{
			PublishTopic:   s.String("publish_topic", ""),
			SubscribeTopic: s.String("subscribe_topic", ""),
			QoS:            byte(s.Int("qos", 0)),
		}
		return NewMQTTBridge(spec.Name, f.MQTT, cfg, f.Logger), nil
	}
	return nil, fmt.Errorf("%s: unknown widget type %q", spec.Name, spec.Type)
}

// BuildScene validates scene, registers its widgets in c and connects
// them. Widgets whose service has no credentials are skipped together
// with their connections.
func (f *Factory) BuildScene(c *widget.Container, scene *config.Scene) error {
	logger := f.Logger
	if logger == nil {
		logger = widget.NopLogger{}
	}
	if err := scene.Validate(f.Types()...); err != nil {
		return err
	}

	skipped := make(map[string]bool)
	for _, spec := range scene.Widgets {
		w, err := f.Build(spec)
		if errors.Is(err, config.ErrNoCredentials) {
			logger.Warn("widget_skipped", "widget", spec.Name, "type", spec.Type, "error", err.Error())
			skipped[spec.Name] = true
			continue
		}
		if err != nil {
			return err
		}
		if err := c.Register(w); err != nil {
			return err
		}
	}

	for _, link := range scene.Connections {
		from, to, err := link.Endpoints()
		if err != nil {
			return err
		}
		if skipped[from.Widget] || skipped[to.Widget] {
			logger.Warn("connection_skipped", "from", link.From, "to", link.To)
			continue
		}
		if err := c.Connect(from.Widget, from.Port, to.Widget, to.Port); err != nil {
			return err
		}
	}
	return nil
}

func missing(spec config.WidgetSpec, service string) error {
	return fmt.Errorf("%s: %s: %w", spec.Name, service, config.ErrNoCredentials)
}
