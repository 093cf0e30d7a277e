// Package texttospeech is a client for the Text to Speech service.
package texttospeech

import (
	"context"
	"net/http"
	"net/url"

	"github.com/watsonkit/watsonkit/config"
	"github.com/watsonkit/watsonkit/services/rest"
)

// ServiceName is the credentials label of the service.
const ServiceName = config.TextToSpeech

const (
	DefaultVoice  = "en-US_MichaelV3Voice"
	DefaultAccept = "audio/wav"
)

// Client calls the Text to Speech service.
type Client struct {
	conn *rest.Connector
}

// New creates a Client.
func New(opts rest.Options) (*Client, error) {
	conn, err := rest.NewConnector(ServiceName, opts)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Voice describes a synthesis voice.
type Voice struct {
	Name              string            `json:"name"`
	Language          string            `json:"language"`
	Gender            string            `json:"gender"`
	Description       string            `json:"description"`
	URL               string            `json:"url"`
	Customizable      bool              `json:"customizable"`
	SupportedFeatures SupportedFeatures `json:"supported_features"`
}

// SupportedFeatures lists optional features of a voice.
type SupportedFeatures struct {
	CustomPronunciation bool `json:"custom_pronunciation"`
	VoiceTransformation bool `json:"voice_transformation"`
}

// Audio is synthesized speech.
type Audio struct {
	Bytes       []byte
	ContentType string
}

// Synthesize converts text to audio. Empty voice and accept use the
// defaults.
func (c *Client) Synthesize(ctx context.Context, text, voice, accept string) (*Audio, error) {
	if voice == "" {
		voice = DefaultVoice
	}
	if accept == "" {
		accept = DefaultAccept
	}
	resp, err := c.conn.Do(ctx, rest.Request{
		Operation: "synthesize",
		Method:    http.MethodPost,
		Path:      "/v1/synthesize",
		Query:     url.Values{"voice": {voice}},
		Body:      map[string]string{"text": text},
		Accept:    accept,
	})
	if err != nil {
		return nil, err
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = accept
	}
	return &Audio{Bytes: resp.Body, ContentType: contentType}, nil
}

// GetVoices lists the available voices.
func (c *Client) GetVoices(ctx context.Context) ([]Voice, error) {
	var out struct {
		Voices []Voice `json:"voices"`
	}
	if err := c.conn.DoJSON(ctx, rest.Request{Operation: "get_voices", Path: "/v1/voices"}, &out); err != nil {
		return nil, err
	}
	return out.Voices, nil
}

// GetVoice returns one voice.
func (c *Client) GetVoice(ctx context.Context, name string) (*Voice, error) {
	var out Voice
	err := c.conn.DoJSON(ctx, rest.Request{
		Operation: "get_voice",
		Path:      "/v1/voices/" + url.PathEscape(name),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPronunciation returns how voice pronounces text, in "ipa" or "ibm"
// phoneme format.
func (c *Client) GetPronunciation(ctx context.Context, text, voice, format string) (string, error) {
	q := url.Values{"text": {text}}
	if voice != "" {
		q.Set("voice", voice)
	}
	if format != "" {
		q.Set("format", format)
	}
	var out struct {
		Pronunciation string `json:"pronunciation"`
	}
	err := c.conn.DoJSON(ctx, rest.Request{Operation: "get_pronunciation", Path: "/v1/pronunciation", Query: q}, &out)
	if err != nil {
		return "", err
	}
	return out.Pronunciation, nil
}
