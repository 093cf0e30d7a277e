// Package toneanalyzer is a client for the Tone Analyzer service.
package toneanalyzer

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/watsonkit/watsonkit/config"
	"github.com/watsonkit/watsonkit/services/rest"
)

// ServiceName is the credentials label of the service.
const ServiceName = config.ToneAnalyzer

// DefaultVersion is the API version date sent with every request.
const DefaultVersion = "2017-09-21"

// Client calls the Tone Analyzer service.
type Client struct {
	conn    *rest.Connector
	version string
}

// New creates a Client.
func New(opts rest.Options) (*Client, error) {
	conn, err := rest.NewConnector(ServiceName, opts)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, version: DefaultVersion}, nil
}

// Tone is one detected tone.
type Tone struct {
	Score    float64 `json:"score"`
	ToneID   string  `json:"tone_id"`
	ToneName string  `json:"tone_name"`
}

// DocumentTone holds the tones of the whole text.
type DocumentTone struct {
	Tones   []Tone `json:"tones"`
	Warning string `json:"warning,omitempty"`
}

// SentenceTone holds the tones of one sentence.
type SentenceTone struct {
	SentenceID int    `json:"sentence_id"`
	Text       string `json:"text"`
	Tones      []Tone `json:"tones"`
}

// ToneAnalysis is the answer to GetTone.
type ToneAnalysis struct {
	DocumentTone  DocumentTone   `json:"document_tone"`
	SentencesTone  []SentenceTone `json:"sentences_tone,omitempty"`
}

// Strongest returns the highest scoring document tone.
func (a *ToneAnalysis) Strongest() (Tone, bool) {
	var best Tone
	found := false
	for _, t := range a.DocumentTone.Tones {
		if !found || t.Score > best.Score {
			best, found = t, true
		}
	}
	return best, found
}

// GetTone analyzes plain text. Sentence level tones are skipped unless
// sentences is true.
func (c *Client) GetTone(ctx context.Context, text string, sentences bool, tones ...string) (*ToneAnalysis, error) {
	q := url.Values{"version": {c.version}}
	if !sentences {
		q.Set("sentences", "false")
	}
	if len(tones) > 0 {
		q.Set("tones", strings.Join(tones, ","))
	}
	var out ToneAnalysis
	err := c.conn.DoJSON(ctx, rest.Request{
		Operation:   "tone",
		Method:      http.MethodPost,
		Path:        "/v3/tone",
		Query:       q,
		RawBody:     []byte(text),
		ContentType: "text/plain;charset=utf-8",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
