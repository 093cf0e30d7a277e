// Package conversation is a client for the Conversation (dialog) service.
package conversation

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/watsonkit/watsonkit/config"
	"github.com/watsonkit/watsonkit/services/rest"
)

// ServiceName is the credentials label of the service.
const ServiceName = config.Conversation

// DefaultVersion is the API version date sent with every request.
const DefaultVersion = "2017-05-26"

// Client calls the Conversation service.
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

// Input is the user utterance.
type Input struct {
	Text string `json:"text"`
}

// Intent is a recognized intent.
type Intent struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Entity is a recognized entity.
type Entity struct {
	Entity     string  `json:"entity"`
	Location   []int   `json:"location"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Output holds the dialog answer.
type Output struct {
	Text         []string `json:"text"`
	NodesVisited []string `json:"nodes_visited,omitempty"`
	LogMessages  []any    `json:"log_messages,omitempty"`
}

// Context is the dialog state carried between turns. It is opaque apart
// from the conversation id.
type Context map[string]any

// ConversationID returns the conversation id, or "".
func (c Context) ConversationID() string {
	id, _ := c["conversation_id"].(string)
	return id
}

// MessageRequest is one turn.
type MessageRequest struct {
	Input            Input    `json:"input"`
	Context          Context  `json:"context,omitempty"`
	AlternateIntents bool     `json:"alternate_intents,omitempty"`
	Intents          []Intent `json:"intents,omitempty"`
	Entities         []Entity `json:"entities,omitempty"`
}

// MessageResponse is the answer to one turn.
type MessageResponse struct {
	Input    Input    `json:"input"`
	Intents  []Intent `json:"intents"`
	Entities []Entity `json:"entities"`
	Output   Output   `json:"output"`
	Context  Context  `json:"context"`
}

// Text joins the answer lines.
func (r *MessageResponse) Text() string {
	return strings.Join(r.Output.Text, " ")
}

// TopIntent returns the most confident intent, or "".
func (r *MessageResponse) TopIntent() string {
	best, conf := "", -1.0
	for _, i := range r.Intents {
		if i.Confidence > conf {
			best, conf = i.Intent, i.Confidence
		}
	}
	return best
}

// Message sends one turn to a workspace. Pass the previous response's
// Context in req to continue the dialog.
func (c *Client) Message(ctx context.Context, workspaceID string, req MessageRequest) (*MessageResponse, error) {
	var out MessageResponse
	err := c.conn.DoJSON(ctx, rest.Request{
		Operation: "message",
		Method:    http.MethodPost,
		Path:      "/v1/workspaces/" + url.PathEscape(workspaceID) + "/message",
		Query:     url.Values{"version": {c.version}},
		Body:      req,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
