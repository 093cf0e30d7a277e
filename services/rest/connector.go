// Package rest is the HTTP and WebSocket transport shared by the service
// clients. A Connector owns the base URL, authentication, timeouts and an
// optional circuit breaker for one service instance.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/watsonkit/watsonkit/config"
	"github.com/watsonkit/watsonkit/observability"
)

// Logger is the structured logger used by connectors.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-Id"

// Options configures a Connector.
type Options struct {
	URL        string
	Auth       Authenticator
	HTTPClient *http.Client
	Timeout    time.Duration
	UserAgent  string
	// OptOut asks the service not to log request data.
	OptOut  bool
	Breaker *BreakerSettings
	Logger  Logger
}

// BreakerSettings enables a circuit breaker on the connector. Only transport
// failures and 5xx answers count against it.
type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// OptionsFromConfig builds Options for one service from runtime settings and
// its credentials.
func OptionsFromConfig(cfg *config.SDKConfig, creds config.ServiceCredentials, logger Logger) Options {
	opts := Options{
		URL:       creds.URL,
		Timeout:   cfg.Timeout(),
		UserAgent: cfg.UserAgent,
		Logger:    logger,
	}
	opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	opts.Auth = AuthFromCredentials(creds, cfg.IAMURL, opts.HTTPClient)
	if cfg.BreakerEnabled {
		opts.Breaker = &BreakerSettings{
			FailureThreshold: uint32(cfg.BreakerFailureThreshold),
			OpenTimeout:      cfg.BreakerTimeout(),
		}
	}
	return opts
}

// Connector sends requests to one service.
type Connector struct {
	service string
	base    string
	opts    Options
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  Logger
}

// NewConnector creates a connector for service at opts.URL.
func NewConnector(service string, opts Options) (*Connector, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid url: %w", service, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%s: url %q must be http or https", service, opts.URL)
	}

	c := &Connector{
		service: service,
		base:    strings.TrimRight(opts.URL, "/"),
		opts:    opts,
		client:  opts.HTTPClient,
		logger:  opts.Logger,
	}
	if c.client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		c.client = &http.Client{Timeout: timeout}
	}
	if c.logger == nil {
		c.logger = nopLogger{}
	}
	if opts.Breaker != nil {
		c.breaker = c.newBreaker(*opts.Breaker)
	}
	return c, nil
}

func (c *Connector) newBreaker(s BreakerSettings) *gobreaker.CircuitBreaker {
	threshold := s.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        c.service,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			code := StatusCode(err)
			return code > 0 && code < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("service_breaker_state_changed",
				"service", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

// Service returns the service label.
func (c *Connector) Service() string { return c.service }

// URL returns the base URL.
func (c *Connector) URL() string { return c.base }

// BreakerState returns "closed", "half-open" or "open"; "disabled" without a
// breaker.
func (c *Connector) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

// =============================================================================
// REQUESTS
// =============================================================================

// Request is one call to the service.
type Request struct {
	Operation string
	Method    string
	Path      string
	Query     url.Values
	// Body is sent as JSON when set; RawBody is sent as is with ContentType.
	Body        any
	RawBody     []byte
	ContentType string
	Accept      string
	// Header carries extra request headers.
	Header http.Header
}

// Response is a successful answer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
}

// Do sends req and returns the response. Non-2xx answers are returned as
// *ServiceError; an open breaker yields ErrServiceUnavailable.
func (c *Connector) Do(ctx context.Context, req Request) (*Response, error) {
	ctx, span := observability.Tracer().Start(ctx, c.service+"."+req.Operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("watsonkit.service", c.service),
			attribute.String("http.method", req.Method),
			attribute.String("url.path", req.Path),
		),
	)
	defer span.End()

	start := time.Now()
	var resp *Response
	var err error
	if c.breaker != nil {
		var out any
		out, err = c.breaker.Execute(func() (any, error) {
			return c.send(ctx, req)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %s (%v)", ErrServiceUnavailable, c.service, err)
		}
		if r, ok := out.(*Response); ok {
			resp = r
		}
	} else {
		resp, err = c.send(ctx, req)
	}
	elapsed := time.Since(start)

	status := "success"
	switch {
	case errors.Is(err, ErrServiceUnavailable):
		status = "unavailable"
	case err != nil:
		status = "error"
	}
	observability.RecordServiceRequest(c.service, req.Operation, status, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if code := StatusCode(err); code > 0 {
			span.SetAttributes(attribute.Int("http.status_code", code))
		}
		c.logger.Warn("service_request_failed",
			"service", c.service,
			"operation", req.Operation,
			"duration_ms", elapsed.Milliseconds(),
			"error", err.Error(),
		)
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.logger.Debug("service_request",
		"service", c.service,
		"operation", req.Operation,
		"status", resp.StatusCode,
		"request_id", resp.RequestID,
		"duration_ms", elapsed.Milliseconds(),
	)
	return resp, nil
}

// DoJSON sends req and decodes the JSON answer into out.
func (c *Connector) DoJSON(ctx context.Context, req Request, out any) error {
	if req.Accept == "" {
		req.Accept = "application/json"
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", c.service, req.Operation, err)
	}
	return nil
}

func (c *Connector) send(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	contentType := req.ContentType
	switch {
	case req.Body != nil:
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%s %s: encode body: %w", c.service, req.Operation, err)
		}
		body = bytes.NewReader(raw)
		if contentType == "" {
			contentType = "application/json"
		}
	case req.RawBody != nil:
		body = bytes.NewReader(req.RawBody)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.endpoint(req.Path, req.Query), body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: create request: %w", c.service, req.Operation, err)
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	requestID := uuid.NewString()
	if err := c.decorate(ctx, httpReq); err != nil {
		return nil, err
	}
	httpReq.Header.Set(RequestIDHeader, requestID)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.Accept != "" {
		httpReq.Header.Set("Accept", req.Accept)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: request failed: %w", c.service, req.Operation, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w", c.service, req.Operation, err)
	}
	if httpResp.StatusCode >= 400 {
		se := parseServiceError(c.service, req.Operation, httpResp.StatusCode, respBody)
		se.RequestID = requestID
		return nil, se
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
		RequestID:  requestID,
	}, nil
}

// decorate adds the headers every request carries. req may be a throwaway
// request used only to collect handshake headers.
func (c *Connector) decorate(ctx context.Context, req *http.Request) error {
	h := req.Header
	if c.opts.UserAgent != "" {
		h.Set("User-Agent", c.opts.UserAgent)
	}
	if c.opts.OptOut {
		h.Set("X-Watson-Learning-Opt-Out", "true")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
	if c.opts.Auth != nil {
		if err := c.opts.Auth.Authenticate(ctx, req); err != nil {
			return fmt.Errorf("%s: authenticate: %w", c.service, err)
		}
	}
	return nil
}

func (c *Connector) endpoint(path string, query url.Values) string {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// =============================================================================
// WEBSOCKETS
// =============================================================================

// WebSocketURL converts the base URL to ws/wss and appends path and query.
func (c *Connector) WebSocketURL(path string, query url.Values) string {
	u := c.endpoint(path, query)
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// Dial opens an authenticated WebSocket to path.
func (c *Connector) Dial(ctx context.Context, operation, path string, query url.Values) (*websocket.Conn, error) {
	start := time.Now()
	target := c.WebSocketURL(path, query)

	handshake, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return nil, fmt.Errorf("%s %s: create request: %w", c.service, operation, err)
	}
	if err := c.decorate(ctx, handshake); err != nil {
		return nil, err
	}
	handshake.Header.Set(RequestIDHeader, uuid.NewString())

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.client.Timeout,
	}
	conn, resp, err := dialer.DialContext(ctx, target, handshake.Header)
	if err != nil {
		observability.RecordServiceRequest(c.service, operation, "error", time.Since(start))
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			se := parseServiceError(c.service, operation, resp.StatusCode, body)
			se.RequestID = handshake.Header.Get(RequestIDHeader)
			return nil, se
		}
		return nil, fmt.Errorf("%s %s: dial: %w", c.service, operation, err)
	}
	observability.RecordServiceRequest(c.service, operation, "success", time.Since(start))
	c.logger.Debug("service_websocket_opened", "service", c.service, "operation", operation)
	return conn, nil
}
