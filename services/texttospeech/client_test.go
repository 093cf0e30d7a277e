package texttospeech

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

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(rest.Options{URL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestSynthesize(t *testing.T) {
	var body map[string]string
	var accept, voice string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/synthesize", r.URL.Path)
		accept = r.Header.Get("Accept")
		voice = r.URL.Query().Get("voice")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "audio/l16;rate=22050")
		_, _ = w.Write([]byte{1, 2, 3, 4})
	})

	audio, err := c.Synthesize(context.Background(), "Hello", "", "audio/l16;rate=22050")
	require.NoError(t, err)

	assert.Equal(t, []byte{1, 2, 3, 4}, audio.Bytes)
	assert.Equal(t, "audio/l16;rate=22050", audio.ContentType)
	assert.Equal(t, "audio/l16;rate=22050", accept)
	assert.Equal(t, DefaultVoice, voice)
	assert.Equal(t, "Hello", body["text"])
}

func TestSynthesizeError(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"code":404,"error":"Model 'xx' not found"}`)
	})

	_, err := c.Synthesize(context.Background(), "Hello", "xx", "")
	assert.Equal(t, 404, rest.StatusCode(err))
}

func TestVoicesAndPronunciation(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/voices":
			_, _ = io.WriteString(w, `{"voices":[{"name":"en-US_AllisonV3Voice","language":"en-US","gender":"female","customizable":true}]}`)
		case "/v1/voices/en-US_AllisonV3Voice":
			_, _ = io.WriteString(w, `{"name":"en-US_AllisonV3Voice","gender":"female","supported_features":{"custom_pronunciation":true}}`)
		case "/v1/pronunciation":
			assert.Equal(t, "IEEE", r.URL.Query().Get("text"))
			assert.Equal(t, "ipa", r.URL.Query().Get("format"))
			_, _ = io.WriteString(w, `{"pronunciation":".ˈaɪ .ˈtrɪ.pəl .ˈi"}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	voices, err := c.GetVoices(ctx)
	require.NoError(t, err)
	require.Len(t, voices, 1)
	assert.True(t, voices[0].Customizable)

	v, err := c.GetVoice(ctx, "en-US_AllisonV3Voice")
	require.NoError(t, err)
	assert.True(t, v.SupportedFeatures.CustomPronunciation)

	p, err := c.GetPronunciation(ctx, "IEEE", "", "ipa")
	require.NoError(t, err)
	assert.Equal(t, ".ˈaɪ .ˈtrɪ.pəl .ˈi", p)
}
