// Package config provides runtime configuration, service credentials and
// scene descriptions.
//
// Nothing in this package reads global state on its own: the process root
// loads configuration once and passes it to the components that need it.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// SDKConfig holds runtime settings shared by service clients, widgets and
// the control servers.
type SDKConfig struct {
	// Service calls
	RequestTimeout int    `json:"request_timeout" yaml:"request_timeout"` // seconds
	IAMURL         string `json:"iam_url" yaml:"iam_url"`
	UserAgent      string `json:"user_agent" yaml:"user_agent"`

	// Circuit breaker (per service connector)
	BreakerEnabled          bool `json:"breaker_enabled" yaml:"breaker_enabled"`
	BreakerFailureThreshold int  `json:"breaker_failure_threshold" yaml:"breaker_failure_threshold"`
	BreakerOpenTimeout      int  `json:"breaker_open_timeout" yaml:"breaker_open_timeout"` // seconds

	// Audio
	SampleRate int `json:"sample_rate" yaml:"sample_rate"`

	// Serving
	GRPCAddr     string `json:"grpc_addr" yaml:"grpc_addr"`
	HTTPAddr     string `json:"http_addr" yaml:"http_addr"`
	OTLPEndpoint string `json:"otlp_endpoint,omitempty" yaml:"otlp_endpoint,omitempty"`

	// Messaging
	MQTTBroker   string `json:"mqtt_broker,omitempty" yaml:"mqtt_broker,omitempty"`
	MQTTClientID string `json:"mqtt_client_id" yaml:"mqtt_client_id"`

	// Logging
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// DefaultIAMURL is the IBM Cloud token endpoint.
const DefaultIAMURL = "https://iam.cloud.ibm.com/identity/token"

// DefaultSDKConfig returns an SDKConfig with default values.
func DefaultSDKConfig() *SDKConfig {
	return &SDKConfig{
		RequestTimeout: 30,
		IAMURL:         DefaultIAMURL,
		UserAgent:      "watsonkit/1.0",

		BreakerEnabled:          true,
		BreakerFailureThreshold: 5,
		BreakerOpenTimeout:      30,

		SampleRate: 16000,

		GRPCAddr: ":50051",
		HTTPAddr: ":8080",

		MQTTClientID: "watsonkit",

		LogLevel: "INFO",
	}
}

// SDKConfigFromMap creates SDKConfig from a map. Unknown keys are ignored.
func SDKConfigFromMap(m map[string]any) *SDKConfig {
	c := DefaultSDKConfig()

	if v, ok := intValue(m["request_timeout"]); ok {
		c.RequestTimeout = v
	}
	if v, ok := m["iam_url"].(string); ok {
		c.IAMURL = v
	}
	if v, ok := m["user_agent"].(string); ok {
		c.UserAgent = v
	}
	if v, ok := m["breaker_enabled"].(bool); ok {
		c.BreakerEnabled = v
	}
	if v, ok := intValue(m["breaker_failure_threshold"]); ok {
		c.BreakerFailureThreshold = v
	}
	if v, ok := intValue(m["breaker_open_timeout"]); ok {
		c.BreakerOpenTimeout = v
	}
	if v, ok := intValue(m["sample_rate"]); ok {
		c.SampleRate = v
	}
	if v, ok := m["grpc_addr"].(string); ok {
		c.GRPCAddr = v
	}
	if v, ok := m["http_addr"].(string); ok {
		c.HTTPAddr = v
	}
	if v, ok := m["otlp_endpoint"].(string); ok {
		c.OTLPEndpoint = v
	}
	if v, ok := m["mqtt_broker"].(string); ok {
		c.MQTTBroker = v
	}
	if v, ok := m["mqtt_client_id"].(string); ok {
		c.MQTTClientID = v
	}
	if v, ok := m["log_level"].(string); ok {
		c.LogLevel = strings.ToUpper(v)
	}

	return c
}

// LoadSDKConfig reads a YAML settings document. Missing keys keep their
// defaults.
func LoadSDKConfig(r io.Reader) (*SDKConfig, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c := SDKConfigFromMap(m)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadSDKConfigFile reads a YAML settings file.
func LoadSDKConfigFile(path string) (*SDKConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadSDKConfig(f)
}

// Validate checks the configuration.
func (c *SDKConfig) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %d", c.RequestTimeout)
	}
	if c.BreakerEnabled && c.BreakerFailureThreshold <= 0 {
		return fmt.Errorf("breaker_failure_threshold must be positive when the breaker is enabled")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	switch c.LogLevel {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// Timeout returns RequestTimeout as a duration.
func (c *SDKConfig) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// BreakerTimeout returns BreakerOpenTimeout as a duration.
func (c *SDKConfig) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerOpenTimeout) * time.Second
}

// ToMap converts config to a map.
func (c *SDKConfig) ToMap() map[string]any {
	return map[string]any{
		"request_timeout":           c.RequestTimeout,
		"iam_url":                   c.IAMURL,
		"user_agent":                c.UserAgent,
		"breaker_enabled":           c.BreakerEnabled,
		"breaker_failure_threshold": c.BreakerFailureThreshold,
		"breaker_open_timeout":      c.BreakerOpenTimeout,
		"sample_rate":               c.SampleRate,
		"grpc_addr":                 c.GRPCAddr,
		"http_addr":                 c.HTTPAddr,
		"otlp_endpoint":             c.OTLPEndpoint,
		"mqtt_broker":               c.MQTTBroker,
		"mqtt_client_id":            c.MQTTClientID,
		"log_level":                 c.LogLevel,
	}
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
