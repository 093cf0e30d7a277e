// Package widget provides typed input/output ports and the container that
// wires widgets together.
//
// A widget declares its ports explicitly at construction time:
//
//	w := &Echo{}
//	w.in = widget.NewInput("TextIn", w.onText)
//	w.out = widget.NewOutput[*widget.TextData]("TextOut")
//	w.Base = widget.NewBase("Echo", logger).WithInputs(w.in).WithOutputs(w.out)
//
// Outputs resolve their target input lazily on the first send, by target
// widget, optional input name and exact payload type, and deliver
// synchronously. Delivery failures are logged and reported as false; they
// never propagate to the sender.
package widget

import (
	"reflect"
	"time"
)

// =============================================================================
// DATA ENVELOPE
// =============================================================================

// Data is the envelope passed between ports. Implementations are immutable
// after construction.
type Data interface {
	// DataName returns the tag derived from the concrete envelope type.
	DataName() string
}

// TypeName returns the tag for envelope type T, e.g. "TextData" for *TextData.
func TypeName[T Data]() string {
	return typeName(reflect.TypeFor[T]())
}

// NameOf returns the tag of d, or "nil".
func NameOf(d Data) string {
	if d == nil {
		return "nil"
	}
	return typeName(reflect.TypeOf(d))
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// =============================================================================
// TEXT / CONTROL ENVELOPES
// =============================================================================

// TextData carries a piece of text.
type TextData struct {
	text string
}

// NewTextData creates a TextData.
func NewTextData(text string) *TextData { return &TextData{text: text} }

// Text returns the payload.
func (d *TextData) Text() string { return d.text }

// DataName implements Data.
func (d *TextData) DataName() string { return TypeName[*TextData]() }

// BooleanData carries a flag, typically an activation toggle.
type BooleanData struct {
	value bool
}

func NewBooleanData(value bool) *BooleanData { return &BooleanData{value: value} }

func (d *BooleanData) Value() bool { return d.value }

func (d *BooleanData) DataName() string { return TypeName[*BooleanData]() }

// DisableMicData asks a microphone to stop (true) or resume (false) capture.
type DisableMicData struct {
	disabled bool
}

func NewDisableMicData(disabled bool) *DisableMicData { return &DisableMicData{disabled: disabled} }

func (d *DisableMicData) Disabled() bool { return d.disabled }

func (d *DisableMicData) DataName() string { return TypeName[*DisableMicData]() }

// LevelData carries a normalized input level in [0,1].
type LevelData struct {
	level float64
}

func NewLevelData(level float64) *LevelData {
	switch {
	case level < 0:
		level = 0
	case level > 1:
		level = 1
	}
	return &LevelData{level: level}
}

func (d *LevelData) Level() float64 { return d.level }

func (d *LevelData) DataName() string { return TypeName[*LevelData]() }

// LanguageData carries a language code such as "en" or "es-ES".
type LanguageData struct {
	language string
}

func NewLanguageData(language string) *LanguageData { return &LanguageData{language: language} }

func (d *LanguageData) Language() string { return d.language }

func (d *LanguageData) DataName() string { return TypeName[*LanguageData]() }

// VoiceData selects a synthesis voice.
type VoiceData struct {
	voice string
}

func NewVoiceData(voice string) *VoiceData { return &VoiceData{voice: voice} }

func (d *VoiceData) Voice() string { return d.voice }

func (d *VoiceData) DataName() string { return TypeName[*VoiceData]() }

// =============================================================================
// AUDIO
// =============================================================================

// AudioData carries a block of audio. The slice returned by Bytes must not
// be modified.
type AudioData struct {
	bytes       []byte
	sampleRate  int
	channels    int
	contentType string
	capturedAt  time.Time
}

// NewAudioData copies b into a new AudioData.
func NewAudioData(b []byte, sampleRate, channels int, contentType string) *AudioData {
	buf := make([]byte, len(b))
	copy(buf, b)
	if channels <= 0 {
		channels = 1
	}
	return &AudioData{
		bytes:       buf,
		sampleRate:  sampleRate,
		channels:    channels,
		contentType: contentType,
		capturedAt:  time.Now(),
	}
}

func (d *AudioData) Bytes() []byte         { return d.bytes }
func (d *AudioData) SampleRate() int       { return d.sampleRate }
func (d *AudioData) Channels() int         { return d.channels }
func (d *AudioData) ContentType() string   { return d.contentType }
func (d *AudioData) CapturedAt() time.Time { return d.capturedAt }

// Duration is the play time of 16-bit PCM content; zero when unknown.
func (d *AudioData) Duration() time.Duration {
	if d.sampleRate <= 0 {
		return 0
	}
	frames := len(d.bytes) / (2 * d.channels)
	return time.Duration(frames) * time.Second / time.Duration(d.sampleRate)
}

func (d *AudioData) DataName() string { return TypeName[*AudioData]() }

// =============================================================================
// RECOGNITION / CLASSIFICATION RESULTS
// =============================================================================

// SpeechAlternative is one hypothesis for a recognized utterance.
type SpeechAlternative struct {
	Transcript string
	Confidence float64
}

// SpeechResult is one recognized utterance.
type SpeechResult struct {
	Final        bool
	Alternatives []SpeechAlternative
}

// SpeechToTextData carries recognition results.
type SpeechToTextData struct {
	results []SpeechResult
}

func NewSpeechToTextData(results []SpeechResult) *SpeechToTextData {
	cp := make([]SpeechResult, len(results))
	copy(cp, results)
	return &SpeechToTextData{results: cp}
}

func (d *SpeechToTextData) Results() []SpeechResult { return d.results }

// IsFinal reports whether any result is final.
func (d *SpeechToTextData) IsFinal() bool {
	for _, r := range d.results {
		if r.Final {
			return true
		}
	}
	return false
}

// Transcript joins the best alternative of every result.
func (d *SpeechToTextData) Transcript() string {
	out := ""
	for _, r := range d.results {
		if len(r.Alternatives) == 0 {
			continue
		}
		if out != "" {
			out += " "
		}
		out += r.Alternatives[0].Transcript
	}
	return out
}

func (d *SpeechToTextData) DataName() string { return TypeName[*SpeechToTextData]() }

// ClassScore is a class name and its confidence.
type ClassScore struct {
	Name       string
	Confidence float64
}

// ClassifyResultData carries the outcome of a text classification.
type ClassifyResultData struct {
	text       string
	topClass   string
	confidence float64
	classes    []ClassScore
}

func NewClassifyResultData(text, topClass string, classes []ClassScore) *ClassifyResultData {
	cp := make([]ClassScore, len(classes))
	copy(cp, classes)
	d := &ClassifyResultData{text: text, topClass: topClass, classes: cp}
	for _, c := range cp {
		if c.Name == topClass {
			d.confidence = c.Confidence
			break
		}
	}
	return d
}

func (d *ClassifyResultData) Text() string          { return d.text }
func (d *ClassifyResultData) TopClass() string      { return d.topClass }
func (d *ClassifyResultData) Confidence() float64   { return d.confidence }
func (d *ClassifyResultData) Classes() []ClassScore { return d.classes }

func (d *ClassifyResultData) DataName() string { return TypeName[*ClassifyResultData]() }
