package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// SDK CONFIG
// =============================================================================

func TestDefaultSDKConfig(t *testing.T) {
	c := DefaultSDKConfig()

	assert.Equal(t, 30, c.RequestTimeout)
	assert.Equal(t, 30*time.Second, c.Timeout())
	assert.Equal(t, DefaultIAMURL, c.IAMURL)
	assert.True(t, c.BreakerEnabled)
	assert.Equal(t, 16000, c.SampleRate)
	assert.Equal(t, "INFO", c.LogLevel)
	assert.NoError(t, c.Validate())
}

func TestSDKConfigFromMap(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]any
		check func(t *testing.T, c *SDKConfig)
	}{
		{
			name:  "empty map keeps defaults",
			input: map[string]any{},
			check: func(t *testing.T, c *SDKConfig) {
				assert.Equal(t, DefaultSDKConfig(), c)
			},
		},
		{
			name:  "int values",
			input: map[string]any{"request_timeout": 5, "sample_rate": 8000},
			check: func(t *testing.T, c *SDKConfig) {
				assert.Equal(t, 5, c.RequestTimeout)
				assert.Equal(t, 8000, c.SampleRate)
			},
		},
		{
			name:  "float values from JSON",
			input: map[string]any{"breaker_failure_threshold": 3.0, "breaker_open_timeout": 10.0},
			check: func(t *testing.T, c *SDKConfig) {
				assert.Equal(t, 3, c.BreakerFailureThreshold)
				assert.Equal(t, 10*time.Second, c.BreakerTimeout())
			},
		},
		{
			name:  "strings and bools",
			input: map[string]any{"log_level": "debug", "mqtt_broker": "tcp://localhost:1883", "breaker_enabled": false},
			check: func(t *testing.T, c *SDKConfig) {
				assert.Equal(t, "DEBUG", c.LogLevel)
				assert.Equal(t, "tcp://localhost:1883", c.MQTTBroker)
				assert.False(t, c.BreakerEnabled)
			},
		},
		{
			name:  "wrong types are ignored",
			input: map[string]any{"request_timeout": "soon", "breaker_enabled": "yes"},
			check: func(t *testing.T, c *SDKConfig) {
				assert.Equal(t, 30, c.RequestTimeout)
				assert.True(t, c.BreakerEnabled)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, SDKConfigFromMap(tt.input))
		})
	}
}

func TestSDKConfigRoundTripThroughMap(t *testing.T) {
	c := DefaultSDKConfig()
	c.HTTPAddr = ":9999"
	c.OTLPEndpoint = "collector:4317"

	assert.Equal(t, c, SDKConfigFromMap(c.ToMap()))
}

func TestSDKConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *SDKConfig)
		errMsg string
	}{
		{"zero timeout", func(c *SDKConfig) { c.RequestTimeout = 0 }, "request_timeout"},
		{"breaker without threshold", func(c *SDKConfig) { c.BreakerFailureThreshold = 0 }, "breaker_failure_threshold"},
		{"bad sample rate", func(c *SDKConfig) { c.SampleRate = -1 }, "sample_rate"},
		{"bad log level", func(c *SDKConfig) { c.LogLevel = "LOUD" }, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultSDKConfig()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	c := DefaultSDKConfig()
	c.BreakerEnabled = false
	c.BreakerFailureThreshold = 0
	assert.NoError(t, c.Validate())
}

func TestLoadSDKConfig(t *testing.T) {
	doc := `
request_timeout: 12
log_level: warn
http_addr: ":8181"
`
	c, err := LoadSDKConfig(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 12, c.RequestTimeout)
	assert.Equal(t, "WARN", c.LogLevel)
	assert.Equal(t, ":8181", c.HTTPAddr)

	_, err = LoadSDKConfig(strings.NewReader("request_timeout: -1"))
	assert.Error(t, err)

	_, err = LoadSDKConfig(strings.NewReader("request_timeout: [unclosed"))
	assert.Error(t, err)
}

// =============================================================================
// CREDENTIALS
// =============================================================================

const vcapDoc = `{
  "speech_to_text": [
    {"name": "stt-main", "label": "speech_to_text", "credentials": {"url": "https://stt.example.com/api", "apikey": "k1"}},
    {"name": "stt-backup", "credentials": {"url": "https://stt2.example.com/api", "username": "u", "password": "p"}}
  ],
  "text_to_speech": [
    {"name": "tts", "credentials": {"url": "https://tts.example.com/api", "username": "user", "password": "secret"}}
  ],
  "discovery": [
    {"name": "broken", "credentials": {}}
  ]
}`

func TestLoadVCAPServices(t *testing.T) {
	creds, err := LoadVCAPServices(strings.NewReader(vcapDoc))
	require.NoError(t, err)

	stt, err := creds.Service(SpeechToText)
	require.NoError(t, err)
	assert.Equal(t, "https://stt.example.com/api", stt.URL)
	assert.Equal(t, "k1", stt.APIKey)
	assert.Equal(t, "stt-main", stt.Name)
	assert.True(t, stt.HasAuth())

	backup, err := creds.Service("stt-backup")
	require.NoError(t, err)
	assert.Equal(t, "u", backup.Username)

	tts, err := creds.Service(TextToSpeech)
	require.NoError(t, err)
	assert.Equal(t, "secret", tts.Password)

	_, err = creds.Service(Discovery)
	assert.ErrorIs(t, err, ErrNoCredentials)

	assert.Equal(t, []string{SpeechToText, TextToSpeech}, creds.Labels())
}

func TestLoadVCAPServicesInvalid(t *testing.T) {
	_, err := LoadVCAPServices(strings.NewReader("{not json"))
	assert.Error(t, err)
}

func TestLoadCredentialsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vcap.json")
	require.NoError(t, os.WriteFile(path, []byte(vcapDoc), 0o600))

	creds, err := LoadCredentialsFile(path)
	require.NoError(t, err)
	_, err = creds.Service(SpeechToText)
	assert.NoError(t, err)

	_, err = LoadCredentialsFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("VCAP_SERVICES", vcapDoc)
	t.Setenv("SPEECH_TO_TEXT_URL", "https://ignored.example.com")
	t.Setenv("TONE_ANALYZER_URL", "https://tone.example.com")
	t.Setenv("TONE_ANALYZER_APIKEY", "tone-key")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"LANGUAGE_TRANSLATOR_URL=https://lt.example.com\nLANGUAGE_TRANSLATOR_APIKEY=lt-key\nTONE_ANALYZER_APIKEY=file-key\n",
	), 0o600))

	creds, err := CredentialsFromEnv(envFile)
	require.NoError(t, err)

	// VCAP_SERVICES wins over per-service variables.
	stt, err := creds.Service(SpeechToText)
	require.NoError(t, err)
	assert.Equal(t, "https://stt.example.com/api", stt.URL)

	// Process environment wins over the .env file.
	tone, err := creds.Service(ToneAnalyzer)
	require.NoError(t, err)
	assert.Equal(t, "tone-key", tone.APIKey)

	lt, err := creds.Service(LanguageTranslator)
	require.NoError(t, err)
	assert.Equal(t, "https://lt.example.com", lt.URL)
	assert.Equal(t, "lt-key", lt.APIKey)

	_, err = creds.Service(PersonalityInsights)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestCredentialsFromEnvMissingFile(t *testing.T) {
	t.Setenv("VCAP_SERVICES", "")
	creds, err := CredentialsFromEnv(filepath.Join(t.TempDir(), "nope.env"))
	require.NoError(t, err)
	assert.NotNil(t, creds)
}

// =============================================================================
// SCENE
// =============================================================================

const sceneDoc = `
name: assistant
widgets:
  - name: Mic
    type: microphone
    settings:
      sample_rate: 22050
  - name: STT
    type: speech_to_text
    settings:
      model: en-US_NarrowbandModel
      interim: true
  - name: NLC
    type: classifier
    settings:
      threshold: 0.6
      events:
        lights_on: LightsOn
        weather: AskWeather
connections:
  - from: Mic.Audio
    to: STT.Audio
  - from: STT.Text
    to: NLC
`

func TestLoadScene(t *testing.T) {
	s, err := LoadScene(strings.NewReader(sceneDoc))
	require.NoError(t, err)
	require.NoError(t, s.Validate("microphone", "speech_to_text", "classifier"))

	assert.Equal(t, "assistant", s.Name)
	require.Len(t, s.Widgets, 3)
	assert.Equal(t, 22050, s.Widgets[0].Settings.Int("sample_rate", 16000))
	assert.Equal(t, "en-US_NarrowbandModel", s.Widgets[1].Settings.String("model", ""))
	assert.True(t, s.Widgets[1].Settings.Bool("interim", false))
	assert.Equal(t, 0.6, s.Widgets[2].Settings.Float("threshold", 0))
	assert.Equal(t, map[string]string{"lights_on": "LightsOn", "weather": "AskWeather"},
		s.Widgets[2].Settings.StringMap("events"))

	from, to, err := s.Connections[1].Endpoints()
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Widget: "STT", Port: "Text"}, from)
	assert.Equal(t, Endpoint{Widget: "NLC"}, to)
	assert.Equal(t, "STT.Text", from.String())
}

func TestSceneValidate(t *testing.T) {
	s := &Scene{
		Widgets: []WidgetSpec{
			{Name: "A", Type: "microphone"},
			{Name: "A", Type: "microphone"},
			{Name: "", Type: "x"},
			{Name: "B.C", Type: "text_log"},
			{Name: "D"},
			{Name: "E", Type: "teleporter"},
		},
		Connections: []Link{
			{From: "A", To: "D.In"},
			{From: "A.Out", To: "Ghost.In"},
			{From: "", To: "A"},
		},
	}

	err := s.Validate("microphone", "text_log")
	var sceneErr *SceneError
	require.ErrorAs(t, err, &sceneErr)

	joined := err.Error()
	for _, want := range []string{
		`widget "A" declared twice`,
		"widget 2 has no name",
		`widget "B.C": name may not contain '.'`,
		`widget "D" has no type`,
		`unknown type "teleporter"`,
		`connection 0: from: "A" has no output`,
		`connection 1: unknown widget "Ghost"`,
		"connection 2: from: empty endpoint",
	} {
		assert.Contains(t, joined, want)
	}
}

func TestSettingsDefaults(t *testing.T) {
	var s Settings
	assert.Equal(t, "def", s.String("missing", "def"))
	assert.Equal(t, 7, s.Int("missing", 7))
	assert.Equal(t, 1.5, s.Float("missing", 1.5))
	assert.True(t, s.Bool("missing", true))
	assert.Empty(t, s.StringMap("missing"))
}
