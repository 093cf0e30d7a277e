package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// ErrNoCredentials is returned when a service has no configured credentials.
// Callers skip the service instead of failing.
var ErrNoCredentials = errors.New("no credentials for service")

// Service labels as they appear in VCAP_SERVICES.
const (
	SpeechToText              = "speech_to_text"
	TextToSpeech              = "text_to_speech"
	NaturalLanguageClassifier = "natural_language_classifier"
	Conversation              = "conversation"
	LanguageTranslator        = "language_translator"
	Discovery                 = "discovery"
	ToneAnalyzer              = "tone_analyzer"
	PersonalityInsights       = "personality_insights"
)

// KnownServices lists every service label the clients understand.
var KnownServices = []string{
	SpeechToText,
	TextToSpeech,
	NaturalLanguageClassifier,
	Conversation,
	LanguageTranslator,
	Discovery,
	ToneAnalyzer,
	PersonalityInsights,
}

// ServiceCredentials is how to reach one service instance.
type ServiceCredentials struct {
	Name     string `json:"name,omitempty"`
	URL      string `json:"url"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	APIKey   string `json:"apikey,omitempty"`
}

// HasAuth reports whether the credentials carry a key or a user/password
// pair.
func (c ServiceCredentials) HasAuth() bool {
	return c.APIKey != "" || (c.Username != "" && c.Password != "")
}

// Credentials maps a service label to its configured instances.
type Credentials struct {
	services map[string][]ServiceCredentials
}

// NewCredentials creates an empty credential set.
func NewCredentials() *Credentials {
	return &Credentials{services: make(map[string][]ServiceCredentials)}
}

// Add registers credentials for label.
func (c *Credentials) Add(label string, sc ServiceCredentials) {
	c.services[label] = append(c.services[label], sc)
}

// Service returns the first instance of a service, looked up by label or by
// instance name.
func (c *Credentials) Service(name string) (ServiceCredentials, error) {
	if list := c.services[name]; len(list) > 0 {
		return list[0], nil
	}
	for _, label := range c.Labels() {
		for _, sc := range c.services[label] {
			if sc.Name == name {
				return sc, nil
			}
		}
	}
	return ServiceCredentials{}, fmt.Errorf("%w: %s", ErrNoCredentials, name)
}

// Labels returns the configured service labels, sorted.
func (c *Credentials) Labels() []string {
	out := make([]string, 0, len(c.services))
	for k := range c.services {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Merge copies services from other that c does not have yet.
func (c *Credentials) Merge(other *Credentials) {
	for label, list := range other.services {
		if _, exists := c.services[label]; !exists {
			c.services[label] = append([]ServiceCredentials(nil), list...)
		}
	}
}

// =============================================================================
// LOADERS
// =============================================================================

type vcapEntry struct {
	Name        string             `json:"name"`
	Label       string             `json:"label"`
	Credentials ServiceCredentials `json:"credentials"`
}

// LoadVCAPServices parses a VCAP_SERVICES document:
//
//	{"speech_to_text": [{"name": "stt", "credentials": {"url": "...", "apikey": "..."}}]}
//
// Entries without a URL are skipped.
func LoadVCAPServices(r io.Reader) (*Credentials, error) {
	var doc map[string][]vcapEntry
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse VCAP_SERVICES: %w", err)
	}

	creds := NewCredentials()
	for label, entries := range doc {
		for _, e := range entries {
			if e.Credentials.URL == "" {
				continue
			}
			sc := e.Credentials
			if sc.Name == "" {
				sc.Name = e.Name
			}
			key := label
			if e.Label != "" {
				key = e.Label
			}
			creds.Add(key, sc)
		}
	}
	return creds, nil
}

// LoadCredentialsFile reads a VCAP_SERVICES document from path.
func LoadCredentialsFile(path string) (*Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadVCAPServices(f)
}

// CredentialsFromEnv builds credentials from the environment. envFile, when
// set and present, supplies values the process environment does not.
//
// VCAP_SERVICES is read first; then, for every known service label, the
// variables <LABEL>_URL, <LABEL>_APIKEY, <LABEL>_USERNAME and
// <LABEL>_PASSWORD fill in services VCAP_SERVICES did not mention.
func CredentialsFromEnv(envFile string) (*Credentials, error) {
	fileVars := map[string]string{}
	if envFile != "" {
		vars, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
		if vars != nil {
			fileVars = vars
		}
	}
	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return fileVars[key]
	}

	creds := NewCredentials()
	if vcap := lookup("VCAP_SERVICES"); vcap != "" {
		parsed, err := LoadVCAPServices(strings.NewReader(vcap))
		if err != nil {
			return nil, err
		}
		creds = parsed
	}

	fromVars := NewCredentials()
	for _, label := range KnownServices {
		prefix := strings.ToUpper(label) + "_"
		sc := ServiceCredentials{
			Name:     label,
			URL:      lookup(prefix + "URL"),
			APIKey:   lookup(prefix + "APIKEY"),
			Username: lookup(prefix + "USERNAME"),
			Password: lookup(prefix + "PASSWORD"),
		}
		if sc.URL != "" {
			fromVars.Add(label, sc)
		}
	}
	creds.Merge(fromVars)
	return creds, nil
}
