// Package translator is a client for the Language Translator service.
package translator

import (
	"context"
	"net/http"
	"net/url"
	"sort"

	"github.com/watsonkit/watsonkit/config"
	"github.com/watsonkit/watsonkit/services/rest"
)

// ServiceName is the credentials label of the service.
const ServiceName = config.LanguageTranslator

// DefaultVersion is the API version date sent with every request.
const DefaultVersion = "2018-05-01"

// Client calls the Language Translator service.
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

// Translation is the answer to Translate.
type Translation struct {
	Translations   []TranslatedText `json:"translations"`
	WordCount      int              `json:"word_count"`
	CharacterCount int              `json:"character_count"`
}

// TranslatedText is one translated segment.
type TranslatedText struct {
	Translation string `json:"translation"`
}

// Text returns the first translation, or "".
func (t *Translation) Text() string {
	if len(t.Translations) == 0 {
		return ""
	}
	return t.Translations[0].Translation
}

// IdentifiedLanguage is a language guess.
type IdentifiedLanguage struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// Model is a translation model.
type Model struct {
	ModelID      string `json:"model_id"`
	Name         string `json:"name,omitempty"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	BaseModelID  string `json:"base_model_id,omitempty"`
	Domain       string `json:"domain,omitempty"`
	Customizable bool   `json:"customizable"`
	Default      bool   `json:"default_model"`
	Status       string `json:"status,omitempty"`
}

// Language is an identifiable language.
type Language struct {
	Language string `json:"language"`
	Name     string `json:"name"`
}

// Translate translates text from source to target. An empty source lets the
// service identify it.
func (c *Client) Translate(ctx context.Context, text, source, target string) (*Translation, error) {
	body := map[string]any{"text": []string{text}, "target": target}
	if source != "" {
		body["source"] = source
	}
	var out Translation
	err := c.conn.DoJSON(ctx, rest.Request{
		Operation: "translate",
		Method:    http.MethodPost,
		Path:      "/v3/translate",
		Query:     c.query(),
		Body:      body,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Identify returns candidate languages for text, most confident first.
func (c *Client) Identify(ctx context.Context, text string) ([]IdentifiedLanguage, error) {
	var out struct {
		Languages []IdentifiedLanguage `json:"languages"`
	}
	err := c.conn.DoJSON(ctx, rest.Request{
		Operation:   "identify",
		Method:      http.MethodPost,
		Path:        "/v3/identify",
		Query:       c.query(),
		RawBody:     []byte(text),
		ContentType: "text/plain",
	}, &out)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out.Languages, func(i, j int) bool {
		return out.Languages[i].Confidence > out.Languages[j].Confidence
	})
	return out.Languages, nil
}

// GetModels lists models, optionally filtered by source and target.
func (c *Client) GetModels(ctx context.Context, source, target string) ([]Model, error) {
	q := c.query()
	if source != "" {
		q.Set("source", source)
	}
	if target != "" {
		q.Set("target", target)
	}
	var out struct {
		Models []Model `json:"models"`
	}
	if err := c.conn.DoJSON(ctx, rest.Request{Operation: "get_models", Path: "/v3/models", Query: q}, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// GetLanguages lists the identifiable languages.
func (c *Client) GetLanguages(ctx context.Context) ([]Language, error) {
	var out struct {
		Languages []Language `json:"languages"`
	}
	err := c.conn.DoJSON(ctx, rest.Request{
		Operation: "get_languages",
		Path:      "/v3/identifiable_languages",
		Query:     c.query(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Languages, nil
}

func (c *Client) query() url.Values {
	return url.Values{"version": {c.version}}
}
