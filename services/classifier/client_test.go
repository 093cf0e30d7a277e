package classifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watsonkit/watsonkit/services/rest"
)

func TestClassify(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/classifiers/abc-123/classify", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = io.WriteString(w, `{
			"classifier_id": "abc-123",
			"text": "turn on the lights",
			"top_class": "lights_on",
			"classes": [
				{"class_name": "lights_on", "confidence": 0.91},
				{"class_name": "weather", "confidence": 0.09}
			]
		}`)
	}))
	defer srv.Close()

	c, err := New(rest.Options{URL: srv.URL})
	require.NoError(t, err)

	res, err := c.Classify(context.Background(), "abc-123", "turn on the lights")
	require.NoError(t, err)

	assert.Equal(t, "turn on the lights", body["text"])
	assert.Equal(t, "lights_on", res.TopClass)
	assert.Equal(t, 0.91, res.TopConfidence())
	assert.Len(t, res.Classes, 2)
}

func TestGetClassifiers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/classifiers":
			_, _ = io.WriteString(w, `{"classifiers":[{"classifier_id":"a","name":"home"},{"classifier_id":"b","name":"work"}]}`)
		case "/v1/classifiers/a":
			_, _ = io.WriteString(w, `{"classifier_id":"a","name":"home","status":"Available","language":"en"}`)
		case "/v1/classifiers/b":
			_, _ = io.WriteString(w, `{"classifier_id":"b","status":"Training","status_description":"still training"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := New(rest.Options{URL: srv.URL})
	require.NoError(t, err)
	ctx := context.Background()

	list, err := c.GetClassifiers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "work", list[1].Name)

	a, err := c.GetClassifier(ctx, "a")
	require.NoError(t, err)
	assert.True(t, a.Available())

	b, err := c.GetClassifier(ctx, "b")
	require.NoError(t, err)
	assert.False(t, b.Available())

	_, err = c.GetClassifier(ctx, "zzz")
	assert.Equal(t, 404, rest.StatusCode(err))
}
