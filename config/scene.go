package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// Scene describes a set of widgets and the connections between them.
//
//	name: assistant
//	widgets:
//	  - name: Mic
//	    type: Microphone
//	  - name: STT
//	    type: SpeechToText
//	    settings:
//	      model: en-US_BroadbandModel
//	connections:
//	  - from: Mic.Audio
//	    to: STT.Audio
type Scene struct {
	Name        string       `yaml:"name" json:"name"`
	Widgets     []WidgetSpec `yaml:"widgets" json:"widgets"`
	Connections []Link       `yaml:"connections" json:"connections"`
}

// WidgetSpec is one widget in a scene.
type WidgetSpec struct {
	Name     string   `yaml:"name" json:"name"`
	Type     string   `yaml:"type" json:"type"`
	Settings Settings `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// Link connects "widget.output" to "widget.input". The input part may be
// omitted to match by payload type.
type Link struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// Endpoint is a parsed side of a Link.
type Endpoint struct {
	Widget string
	Port   string
}

func (e Endpoint) String() string {
	if e.Port == "" {
		return e.Widget
	}
	return e.Widget + "." + e.Port
}

// ParseEndpoint splits "widget.port". Widget names may not contain dots.
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Endpoint{}, fmt.Errorf("empty endpoint")
	}
	widget, port, _ := strings.Cut(s, ".")
	if widget == "" {
		return Endpoint{}, fmt.Errorf("endpoint %q has no widget", s)
	}
	return Endpoint{Widget: widget, Port: port}, nil
}

// Endpoints parses both sides of the link. The source port is required.
func (l Link) Endpoints() (from, to Endpoint, err error) {
	if from, err = ParseEndpoint(l.From); err != nil {
		return from, to, fmt.Errorf("from: %w", err)
	}
	if from.Port == "" {
		return from, to, fmt.Errorf("from: %q has no output", l.From)
	}
	if to, err = ParseEndpoint(l.To); err != nil {
		return from, to, fmt.Errorf("to: %w", err)
	}
	return from, to, nil
}

// LoadScene reads a scene YAML document.
func LoadScene(r io.Reader) (*Scene, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	var s Scene
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	return &s, nil
}

// LoadSceneFile reads a scene YAML file.
func LoadSceneFile(path string) (*Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadScene(f)
}

// Validate checks names, references and, when knownTypes is not empty,
// widget types. All problems are reported together.
func (s *Scene) Validate(knownTypes ...string) error {
	var problems []string
	types := make(map[string]bool, len(knownTypes))
	for _, t := range knownTypes {
		types[t] = true
	}

	names := make(map[string]bool, len(s.Widgets))
	for i, w := range s.Widgets {
		switch {
		case w.Name == "":
			problems = append(problems, fmt.Sprintf("widget %d has no name", i))
			continue
		case strings.Contains(w.Name, "."):
			problems = append(problems, fmt.Sprintf("widget %q: name may not contain '.'", w.Name))
		case names[w.Name]:
			problems = append(problems, fmt.Sprintf("widget %q declared twice", w.Name))
		}
		names[w.Name] = true
		if w.Type == "" {
			problems = append(problems, fmt.Sprintf("widget %q has no type", w.Name))
		} else if len(types) > 0 && !types[w.Type] {
			problems = append(problems, fmt.Sprintf("widget %q has unknown type %q", w.Name, w.Type))
		}
	}

	for i, l := range s.Connections {
		from, to, err := l.Endpoints()
		if err != nil {
			problems = append(problems, fmt.Sprintf("connection %d: %v", i, err))
			continue
		}
		if !names[from.Widget] {
			problems = append(problems, fmt.Sprintf("connection %d: unknown widget %q", i, from.Widget))
		}
		if !names[to.Widget] {
			problems = append(problems, fmt.Sprintf("connection %d: unknown widget %q", i, to.Widget))
		}
	}

	if len(problems) > 0 {
		return &SceneError{Problems: problems}
	}
	return nil
}

// SceneError lists every problem found in a scene.
type SceneError struct {
	Problems []string
}

func (e *SceneError) Error() string {
	return "invalid scene: " + strings.Join(e.Problems, "; ")
}

// =============================================================================
// SETTINGS
// =============================================================================

// Settings holds free-form widget settings.
type Settings map[string]any

// String returns the string at key, or def.
func (s Settings) String(key, def string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return def
}

// Int returns the integer at key, or def.
func (s Settings) Int(key string, def int) int {
	if v, ok := intValue(s[key]); ok {
		return v
	}
	return def
}

// Float returns the number at key, or def.
func (s Settings) Float(key string, def float64) float64 {
	switch v := s[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// Bool returns the boolean at key, or def.
func (s Settings) Bool(key string, def bool) bool {
	if v, ok := s[key].(bool); ok {
		return v
	}
	return def
}

// StringMap returns the nested string map at key. YAML decodes nested maps
// with interface keys; both forms are accepted.
func (s Settings) StringMap(key string) map[string]string {
	out := map[string]string{}
	switch m := s[key].(type) {
	case map[any]any:
		for k, v := range m {
			out[fmt.Sprint(k)] = fmt.Sprint(v)
		}
	case map[string]any:
		for k, v := range m {
			out[k] = fmt.Sprint(v)
		}
	case map[string]string:
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
