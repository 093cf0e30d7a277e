// Package classifier is a client for the Natural Language Classifier
// service.
package classifier

import (
	"context"
	"net/http"
	"net/url"

	"github.com/watsonkit/watsonkit/config"
	"github.com/watsonkit/watsonkit/services/rest"
)

// ServiceName is the credentials label of the service.
const ServiceName = config.NaturalLanguageClassifier

// Client calls the classifier service.
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

// Classifier is a trained classifier.
type Classifier struct {
	ClassifierID      string `json:"classifier_id"`
	URL               string `json:"url"`
	Name              string `json:"name,omitempty"`
	Language          string `json:"language,omitempty"`
	Created           string `json:"created,omitempty"`
	Status            string `json:"status,omitempty"`
	StatusDescription string `json:"status_description,omitempty"`
}

// Available reports whether the classifier accepts requests.
func (c Classifier) Available() bool { return c.Status == "Available" }

// ClassifiedClass is one class and its confidence.
type ClassifiedClass struct {
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
}

// Classification is the answer to Classify.
type Classification struct {
	ClassifierID string            `json:"classifier_id"`
	URL          string            `json:"url"`
	Text         string            `json:"text"`
	TopClass     string            `json:"top_class"`
	Classes      []ClassifiedClass `json:"classes"`
}

// TopConfidence returns the confidence of the top class.
func (c *Classification) TopConfidence() float64 {
	for _, cl := range c.Classes {
		if cl.ClassName == c.TopClass {
			return cl.Confidence
		}
	}
	return 0
}

// Classify returns the classes of text.
func (c *Client) Classify(ctx context.Context, classifierID, text string) (*Classification, error) {
	var out Classification
	err := c.conn.DoJSON(ctx, rest.Request{
		Operation: "classify",
		Method:    http.MethodPost,
		Path:      "/v1/classifiers/" + url.PathEscape(classifierID) + "/classify",
		Body:      map[string]string{"text": text},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetClassifiers lists the classifiers of the instance.
func (c *Client) GetClassifiers(ctx context.Context) ([]Classifier, error) {
	var out struct {
		Classifiers []Classifier `json:"classifiers"`
	}
	if err := c.conn.DoJSON(ctx, rest.Request{Operation: "get_classifiers", Path: "/v1/classifiers"}, &out); err != nil {
		return nil, err
	}
	return out.Classifiers, nil
}

// GetClassifier returns one classifier and its training status.
func (c *Client) GetClassifier(ctx context.Context, classifierID string) (*Classifier, error) {
	var out Classifier
	err := c.conn.DoJSON(ctx, rest.Request{
		Operation: "get_classifier",
		Path:      "/v1/classifiers/" + url.PathEscape(classifierID),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
