// Package speechtotext is a client for the Speech to Text service: one-shot
// recognition over REST and streaming recognition over a WebSocket.
package speechtotext

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/watsonkit/watsonkit/config"
	"github.com/watsonkit/watsonkit/services/rest"
)

// ServiceName is the credentials label of the service.
const ServiceName = config.SpeechToText

// DefaultModel is used when RecognizeOptions.Model is empty.
const DefaultModel = "en-US_BroadbandModel"

// DefaultContentType is 16 kHz mono linear PCM.
const DefaultContentType = "audio/l16;rate=16000;channels=1"

// Client calls the Speech to Text service.
type Client struct {
	conn   *rest.Connector
	logger rest.Logger
}

// New creates a Client.
func New(opts rest.Options) (*Client, error) {
	conn, err := rest.NewConnector(ServiceName, opts)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, logger: loggerOf(opts)}, nil
}

// Connector exposes the underlying connector.
func (c *Client) Connector() *rest.Connector { return c.conn }

// =============================================================================
// TYPES
// =============================================================================

// Model is a recognition model.
type Model struct {
	Name              string            `json:"name"`
	Language          string            `json:"language"`
	Rate              int               `json:"rate"`
	URL               string            `json:"url"`
	Description       string            `json:"description"`
	SupportedFeatures SupportedFeatures `json:"supported_features"`
}

// SupportedFeatures lists optional features of a model.
type SupportedFeatures struct {
	CustomLanguageModel bool `json:"custom_language_model"`
	SpeakerLabels       bool `json:"speaker_labels"`
}

// RecognizeOptions tunes a recognition request.
type RecognizeOptions struct {
	Model             string
	ContentType       string
	InterimResults    bool
	MaxAlternatives   int
	WordConfidence    bool
	Timestamps        bool
	SmartFormatting   bool
	InactivityTimeout int
	Keywords          []string
	KeywordsThreshold float64
}

// Results is a recognition answer.
type Results struct {
	Results     []Result `json:"results"`
	ResultIndex int      `json:"result_index"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Result is one utterance.
type Result struct {
	Final          bool                       `json:"final"`
	Alternatives   []Alternative              `json:"alternatives"`
	KeywordsResult map[string][]KeywordResult `json:"keywords_result,omitempty"`
}

// Alternative is one hypothesis for an utterance.
type Alternative struct {
	Transcript     string  `json:"transcript"`
	Confidence     float64 `json:"confidence,omitempty"`
	Timestamps     [][]any `json:"timestamps,omitempty"`
	WordConfidence [][]any `json:"word_confidence,omitempty"`
}

// KeywordResult is a spotted keyword.
type KeywordResult struct {
	NormalizedText string  `json:"normalized_text"`
	StartTime      float64 `json:"start_time"`
	EndTime        float64 `json:"end_time"`
	Confidence     float64 `json:"confidence"`
}

// Final reports whether any result is final.
func (r *Results) Final() bool {
	for _, res := range r.Results {
		if res.Final {
			return true
		}
	}
	return false
}

// Transcript joins the best alternative of each result.
func (r *Results) Transcript() string {
	parts := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		if len(res.Alternatives) > 0 {
			parts = append(parts, strings.TrimSpace(res.Alternatives[0].Transcript))
		}
	}
	return strings.Join(parts, " ")
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Recognize sends a complete audio clip and returns its transcription.
func (c *Client) Recognize(ctx context.Context, audio []byte, opts RecognizeOptions) (*Results, error) {
	contentType := opts.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}
	var out Results
	err := c.conn.DoJSON(ctx, rest.Request{
		Operation:   "recognize",
		Method:      http.MethodPost,
		Path:        "/v1/recognize",
		Query:       opts.query(),
		RawBody:     audio,
		ContentType: contentType,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetModels lists the available models.
func (c *Client) GetModels(ctx context.Context) ([]Model, error) {
	var out struct {
		Models []Model `json:"models"`
	}
	if err := c.conn.DoJSON(ctx, rest.Request{Operation: "get_models", Path: "/v1/models"}, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// GetModel returns one model.
func (c *Client) GetModel(ctx context.Context, name string) (*Model, error) {
	var out Model
	err := c.conn.DoJSON(ctx, rest.Request{
		Operation: "get_model",
		Path:      "/v1/models/" + url.PathEscape(name),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (o RecognizeOptions) model() string {
	if o.Model == "" {
		return DefaultModel
	}
	return o.Model
}

// query holds parameters the REST endpoint takes in the URL.
func (o RecognizeOptions) query() url.Values {
	q := url.Values{"model": {o.model()}}
	if o.MaxAlternatives > 0 {
		q.Set("max_alternatives", strconv.Itoa(o.MaxAlternatives))
	}
	if o.WordConfidence {
		q.Set("word_confidence", "true")
	}
	if o.Timestamps {
		q.Set("timestamps", "true")
	}
	if o.SmartFormatting {
		q.Set("smart_formatting", "true")
	}
	if o.InactivityTimeout != 0 {
		q.Set("inactivity_timeout", strconv.Itoa(o.InactivityTimeout))
	}
	if len(o.Keywords) > 0 {
		q.Set("keywords", strings.Join(o.Keywords, ","))
		q.Set("keywords_threshold", strconv.FormatFloat(o.KeywordsThreshold, 'f', -1, 64))
	}
	return q
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func loggerOf(opts rest.Options) rest.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return nopLogger{}
}
