// Package discovery is a client for the Discovery service.
package discovery

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/watsonkit/watsonkit/config"
	"github.com/watsonkit/watsonkit/services/rest"
)

// ServiceName is the credentials label of the service.
const ServiceName = config.Discovery

// DefaultVersion is the API version date sent with every request.
const DefaultVersion = "2019-04-30"

// Client calls the Discovery service.
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

// Environment is a Discovery environment.
type Environment struct {
	EnvironmentID string `json:"environment_id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Status        string `json:"status,omitempty"`
	ReadOnly      bool   `json:"read_only"`
}

// Collection is a set of documents inside an environment.
type Collection struct {
	CollectionID string `json:"collection_id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Status       string `json:"status,omitempty"`
	Language     string `json:"language,omitempty"`
}

// QueryOptions narrows a query.
type QueryOptions struct {
	Query           string
	NaturalLanguage string
	Filter          string
	Count           int
	Offset          int
	Return          string
	PassagesEnabled bool
}

// QueryResponse is the answer to Query. Each result is the raw document.
type QueryResponse struct {
	MatchingResults int              `json:"matching_results"`
	Results         []map[string]any `json:"results"`
	Passages        []Passage        `json:"passages,omitempty"`
}

// Passage is a relevant excerpt of a document.
type Passage struct {
	DocumentID   string  `json:"document_id"`
	PassageScore float64 `json:"passage_score"`
	PassageText  string  `json:"passage_text"`
}

// GetEnvironments lists the environments.
func (c *Client) GetEnvironments(ctx context.Context) ([]Environment, error) {
	var out struct {
		Environments []Environment `json:"environments"`
	}
	err := c.conn.DoJSON(ctx, rest.Request{
		Operation: "get_environments",
		Path:      "/v1/environments",
		Query:     c.query(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Environments, nil
}

// GetCollections lists the collections of an environment.
func (c *Client) GetCollections(ctx context.Context, environmentID string) ([]Collection, error) {
	var out struct {
		Collections []Collection `json:"collections"`
	}
	err := c.conn.DoJSON(ctx, rest.Request{
		Operation: "get_collections",
		Path:      "/v1/environments/" + url.PathEscape(environmentID) + "/collections",
		Query:     c.query(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Collections, nil
}

// Query searches a collection.
func (c *Client) Query(ctx context.Context, environmentID, collectionID string, opts QueryOptions) (*QueryResponse, error) {
	q := c.query()
	if opts.Query != "" {
		q.Set("query", opts.Query)
	}
	if opts.NaturalLanguage != "" {
		q.Set("natural_language_query", opts.NaturalLanguage)
	}
	if opts.Filter != "" {
		q.Set("filter", opts.Filter)
	}
	if opts.Count > 0 {
		q.Set("count", strconv.Itoa(opts.Count))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.Return != "" {
		q.Set("return", opts.Return)
	}
	if opts.PassagesEnabled {
		q.Set("passages", "true")
	}

	var out QueryResponse
	err := c.conn.DoJSON(ctx, rest.Request{
		Operation: "query",
		Method:    http.MethodGet,
		Path: "/v1/environments/" + url.PathEscape(environmentID) +
			"/collections/" + url.PathEscape(collectionID) + "/query",
		Query: q,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) query() url.Values {
	return url.Values{"version": {c.version}}
}
