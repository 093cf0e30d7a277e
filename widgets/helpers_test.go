package widgets

import (
	"context"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/watsonkit/watsonkit/events"
	"github.com/watsonkit/watsonkit/services/classifier"
	"github.com/watsonkit/watsonkit/services/conversation"
	"github.com/watsonkit/watsonkit/services/speechtotext"
	"github.com/watsonkit/watsonkit/services/texttospeech"
	"github.com/watsonkit/watsonkit/services/translator"
	"github.com/watsonkit/watsonkit/widget"
)

// =============================================================================
// COLLECTOR WIDGET
// =============================================================================

// collector records everything sent to its inputs.
type collector struct {
	*widget.Base

	mu        sync.Mutex
	texts     []string
	audio     []*widget.AudioData
	levels    []float64
	speech    []*widget.SpeechToTextData
	classes   []*widget.ClassifyResultData
	bools     []bool
	languages []string
}

func newCollector() *collector {
	p := &collector{}
	p.Base = widget.NewBase("Collector", nil).WithInputs(
		widget.NewInput("Text", func(d *widget.TextData) error {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.texts = append(p.texts, d.Text())
			return nil
		}),
		widget.NewInput("Audio", func(d *widget.AudioData) error {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.audio = append(p.audio, d)
			return nil
		}),
		widget.NewInput("Level", func(d *widget.LevelData) error {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.levels = append(p.levels, d.Level())
			return nil
		}),
		widget.NewInput("Speech", func(d *widget.SpeechToTextData) error {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.speech = append(p.speech, d)
			return nil
		}),
		widget.NewInput("Classify", func(d *widget.ClassifyResultData) error {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.classes = append(p.classes, d)
			return nil
		}),
		widget.NewInput("Bool", func(d *widget.BooleanData) error {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.bools = append(p.bools, d.Value())
			return nil
		}),
		widget.NewInput("Language", func(d *widget.LanguageData) error {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.languages = append(p.languages, d.Language())
			return nil
		}),
	)
	return p
}

func (p *collector) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

func (p *collector) Audio() []*widget.AudioData {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*widget.AudioData(nil), p.audio...)
}

func (p *collector) Levels() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.levels...)
}

func (p *collector) Speech() []*widget.SpeechToTextData {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*widget.SpeechToTextData(nil), p.speech...)
}

func (p *collector) Classes() []*widget.ClassifyResultData {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*widget.ClassifyResultData(nil), p.classes...)
}

func (p *collector) Bools() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.bools...)
}

func (p *collector) Languages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.languages...)
}

// =============================================================================
// SCENE HELPERS
// =============================================================================

type link struct{ from, out, to, in string }

// startScene registers ws, applies links and initializes the container.
// The container is shut down when the test ends.
func startScene(t *testing.T, bus events.Bus, links []link, ws ...widget.Widget) *widget.Container {
	t.Helper()
	c := widget.NewContainer(nil, widget.WithEventBus(bus))
	for _, w := range ws {
		require.NoError(t, c.Register(w))
	}
	for _, l := range links {
		require.NoError(t, c.Connect(l.from, l.out, l.to, l.in))
	}
	require.NoError(t, c.Init(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return c
}

// failures collects ServiceFailed events.
type failures struct {
	mu     sync.Mutex
	events []*events.ServiceFailed
}

func watchFailures(bus events.Bus) *failures {
	f := &failures{}
	bus.Subscribe("ServiceFailed", func(_ context.Context, msg events.Message) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, msg.(*events.ServiceFailed))
		return nil
	})
	return f
}

func (f *failures) all() []*events.ServiceFailed {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*events.ServiceFailed(nil), f.events...)
}

// =============================================================================
// SERVICE MOCKS
// =============================================================================

type mockRecognizer struct{ mock.Mock }

func (m *mockRecognizer) Listen(ctx context.Context, opts speechtotext.RecognizeOptions) (*speechtotext.Listener, error) {
	args := m.Called(ctx, opts)
	l, _ := args.Get(0).(*speechtotext.Listener)
	return l, args.Error(1)
}

type mockSynthesizer struct{ mock.Mock }

func (m *mockSynthesizer) Synthesize(ctx context.Context, text, voice, accept string) (*texttospeech.Audio, error) {
	args := m.Called(ctx, text, voice, accept)
	res, _ := args.Get(0).(*texttospeech.Audio)
	return res, args.Error(1)
}

type mockTranslator struct{ mock.Mock }

func (m *mockTranslator) Translate(ctx context.Context, text, source, target string) (*translator.Translation, error) {
	args := m.Called(ctx, text, source, target)
	res, _ := args.Get(0).(*translator.Translation)
	return res, args.Error(1)
}

type mockClassifier struct{ mock.Mock }

func (m *mockClassifier) Classify(ctx context.Context, classifierID, text string) (*classifier.Classification, error) {
	args := m.Called(ctx, classifierID, text)
	res, _ := args.Get(0).(*classifier.Classification)
	return res, args.Error(1)
}

type mockConversation struct{ mock.Mock }

func (m *mockConversation) Message(ctx context.Context, workspaceID string, req conversation.MessageRequest) (*conversation.MessageResponse, error) {
	args := m.Called(ctx, workspaceID, req)
	res, _ := args.Get(0).(*conversation.MessageResponse)
	return res, args.Error(1)
}

// =============================================================================
// MQTT FAKES
// =============================================================================

type mockMQTT struct{ mock.Mock }

func (m *mockMQTT) Connect() mqtt.Token {
	return m.Called().Get(0).(mqtt.Token)
}

func (m *mockMQTT) Disconnect(quiesce uint) { m.Called(quiesce) }

func (m *mockMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return m.Called(topic, qos, retained, payload).Get(0).(mqtt.Token)
}

func (m *mockMQTT) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return m.Called(topic, qos, callback).Get(0).(mqtt.Token)
}

func (m *mockMQTT) Unsubscribe(topics ...string) mqtt.Token {
	return m.Called(topics).Get(0).(mqtt.Token)
}

// doneToken is a completed token.
type doneToken struct {
	err     error
	expired bool
}

func (t *doneToken) Wait() bool { return true }

func (t *doneToken) WaitTimeout(time.Duration) bool { return !t.expired }

func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *doneToken) Error() error { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}
