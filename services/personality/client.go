// Package personality is a client for the Personality Insights service.
package personality

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/watsonkit/watsonkit/config"
	"github.com/watsonkit/watsonkit/services/rest"
)

// ServiceName is the credentials label of the service.
const ServiceName = config.PersonalityInsights

// DefaultVersion is the API version date sent with every request.
const DefaultVersion = "2017-10-13"

// Client calls the Personality Insights service.
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

// ProfileOptions tunes GetProfile.
type ProfileOptions struct {
	// ContentLanguage is the language of the text, "en" when empty.
	ContentLanguage string
	// AcceptLanguage selects the language of trait names.
	AcceptLanguage   string
	RawScores        bool
	ConsumptionPrefs bool
}

// Trait is a personality, need or value characteristic.
type Trait struct {
	TraitID    string  `json:"trait_id"`
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Percentile float64 `json:"percentile"`
	RawScore   float64 `json:"raw_score,omitempty"`
	Children   []Trait `json:"children,omitempty"`
}

// Warning is returned when the input is too short for a precise profile.
type Warning struct {
	WarningID string `json:"warning_id"`
	Message   string `json:"message"`
}

// Profile is the answer to GetProfile.
type Profile struct {
	ProcessedLanguage string    `json:"processed_language"`
	WordCount         int       `json:"word_count"`
	Personality       []Trait   `json:"personality"`
	Needs             []Trait   `json:"needs"`
	Values            []Trait   `json:"values"`
	Warnings          []Warning `json:"warnings,omitempty"`
}

// Trait finds a top level trait by id across all categories.
func (p *Profile) Trait(id string) (Trait, bool) {
	for _, group := range [][]Trait{p.Personality, p.Needs, p.Values} {
		for _, t := range group {
			if t.TraitID == id {
				return t, true
			}
		}
	}
	return Trait{}, false
}

// GetProfile builds a profile from plain text.
func (c *Client) GetProfile(ctx context.Context, text string, opts ProfileOptions) (*Profile, error) {
	q := url.Values{"version": {c.version}}
	if opts.RawScores {
		q.Set("raw_scores", strconv.FormatBool(true))
	}
	if opts.ConsumptionPrefs {
		q.Set("consumption_preferences", strconv.FormatBool(true))
	}
	lang := opts.ContentLanguage
	if lang == "" {
		lang = "en"
	}
	req := rest.Request{
		Operation:   "profile",
		Method:      http.MethodPost,
		Path:        "/v3/profile",
		Query:       q,
		RawBody:     []byte(text),
		ContentType: "text/plain;charset=utf-8",
		Header:      http.Header{"Content-Language": {lang}},
	}
	if opts.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", opts.AcceptLanguage)
	}
	var out Profile
	if err := c.conn.DoJSON(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
