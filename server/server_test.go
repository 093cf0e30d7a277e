package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/watsonkit/watsonkit/events"
	"github.com/watsonkit/watsonkit/widget"
	"github.com/watsonkit/watsonkit/widgets"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testScene struct {
	container *widget.Container
	log       *widgets.TextLog
	toggle    *widgets.Activate
	router    *gin.Engine
}

func newTestScene(t *testing.T, initialize bool) *testScene {
	t.Helper()
	bus := events.NewInMemoryBus(nil)
	s := &testScene{
		container: widget.NewContainer(nil, widget.WithEventBus(bus)),
		log:       widgets.NewTextLog("Log", 10, nil),
		toggle:    widgets.NewActivate("Toggle", false, "ctrl+m", bus, nil),
	}
	require.NoError(t, s.container.Register(s.toggle))
	require.NoError(t, s.container.Register(s.log))
	if initialize {
		require.NoError(t, s.container.Init(context.Background()))
		t.Cleanup(func() { _ = s.container.Shutdown(context.Background()) })
	}
	s.router = NewHandler(s.container, &TestLogger{}).Router()
	return s
}

func (s *testScene) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// HTTP
// =============================================================================

func TestHealthz(t *testing.T) {
	cold := newTestScene(t, false)
	rec := cold.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"uninitialized"`)

	warm := newTestScene(t, true)
	rec = warm.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"initialized","widgets":2}`, rec.Body.String())
}

func TestListAndGetWidgets(t *testing.T) {
	s := newTestScene(t, true)

	rec := s.do(http.MethodGet, "/widgets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Widgets []widget.WidgetInfo `json:"widgets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Widgets, 2)
	assert.Equal(t, "Toggle", list.Widgets[0].Name)

	rec = s.do(http.MethodGet, "/widgets/Log", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info widget.WidgetInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "TextData", info.Inputs[0].DataType)

	rec = s.do(http.MethodGet, "/widgets/Nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInject(t *testing.T) {
	s := newTestScene(t, true)

	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"text", "/widgets/Log/inputs/Text", `{"type":"TextData","value":"hello"}`, http.StatusAccepted},
		{"wrong payload", "/widgets/Log/inputs/Text", `{"type":"BooleanData","value":true}`, http.StatusUnprocessableEntity},
		{"unknown input", "/widgets/Log/inputs/Audio", `{"type":"TextData","value":"x"}`, http.StatusNotFound},
		{"unknown widget", "/widgets/Nope/inputs/Text", `{"type":"TextData","value":"x"}`, http.StatusNotFound},
		{"bad value", "/widgets/Log/inputs/Text", `{"type":"TextData","value":3}`, http.StatusBadRequest},
		{"missing type", "/widgets/Log/inputs/Text", `{"value":"x"}`, http.StatusBadRequest},
		{"not injectable", "/widgets/Log/inputs/Text", `{"type":"AudioData","value":"x"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, []string{"hello"}, s.log.Lines())
}

func TestInjectBeforeInit(t *testing.T) {
	s := newTestScene(t, false)
	rec := s.do(http.MethodPost, "/widgets/Log/inputs/Text", `{"type":"TextData","value":"early"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDecodeData(t *testing.T) {
	d, err := DecodeData("LevelData", 0.4)
	require.NoError(t, err)
	assert.Equal(t, 0.4, d.(*widget.LevelData).Level())

	d, err = DecodeData("DisableMicData", true)
	require.NoError(t, err)
	assert.True(t, d.(*widget.DisableMicData).Disabled())

	d, err = DecodeData("VoiceData", "en-US_AllisonV3Voice")
	require.NoError(t, err)
	assert.Equal(t, "VoiceData", d.DataName())

	d, err = DecodeData("LanguageData", "fr")
	require.NoError(t, err)
	assert.Equal(t, "fr", d.(*widget.LanguageData).Language())

	_, err = DecodeData("LevelData", "loud")
	assert.Error(t, err)
}

func TestGraph(t *testing.T) {
	s := newTestScene(t, false)
	require.NoError(t, s.container.Connect("Toggle", "Active", "Log", ""))

	rec := s.do(http.MethodGet, "/graph", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/vnd.graphviz")
	assert.Contains(t, rec.Body.String(), `"Toggle" -> "Log"`)

	rec = s.do(http.MethodGet, "/graph?format=json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Edges []widget.Edge `json:"edges"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Edges, 1)
	assert.Equal(t, "BooleanData", body.Edges[0].DataType)
}

func TestPressKeyTogglesBinding(t *testing.T) {
	s := newTestScene(t, true)

	rec := s.do(http.MethodPost, "/keys", `{"key":"m","ctrl":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "key:ctrl+m")
	assert.True(t, s.toggle.Value())

	rec = s.do(http.MethodPost, "/keys", `{"ctrl":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPressKeyWithoutBus(t *testing.T) {
	c := widget.NewContainer(nil)
	router := NewHandler(c, &TestLogger{}).Router()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/keys", strings.NewReader(`{"key":"m"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestScene(t, true)
	s.do(http.MethodGet, "/healthz", "")

	rec := s.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "watsonkit_http_requests_total")
}

// =============================================================================
// GRPC HEALTH
// =============================================================================

func TestGRPCHealthFollowsContainer(t *testing.T) {
	s := newTestScene(t, false)
	srv := NewGRPCServer(s.container, "127.0.0.1:0", &TestLogger{})
	_, err := srv.StartBackground()
	require.NoError(t, err)
	defer srv.GracefulStop()

	conn, err := grpc.NewClient(srv.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	require.NoError(t, s.container.Init(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, srv.SyncHealth())

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	require.NoError(t, s.container.Shutdown(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, srv.SyncHealth())
}

func TestGRPCHealthCallsPassThroughInterceptors(t *testing.T) {
	s := newTestScene(t, true)
	logger := &TestLogger{}
	srv := NewGRPCServer(s.container, "127.0.0.1:0", logger)
	_, err := srv.StartBackground()
	require.NoError(t, err)
	defer srv.GracefulStop()

	conn, err := grpc.NewClient(srv.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: "unknown"})
	require.Error(t, err)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	var started, failed bool
	for _, call := range logger.debugCalls {
		if call["msg"] == "grpc_request_started" && call["method"] == "/grpc.health.v1.Health/Check" {
			started = true
		}
	}
	for _, call := range logger.errorCalls {
		if call["msg"] == "grpc_request_failed" && call["method"] == "/grpc.health.v1.Health/Check" {
			failed = true
		}
	}
	assert.True(t, started)
	assert.True(t, failed)
}

func TestGRPCServerStartStopsOnCancel(t *testing.T) {
	s := newTestScene(t, true)
	srv := NewGRPCServer(s.container, "127.0.0.1:0", &TestLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	srv.GracefulStop()
}

func TestGRPCServerListenError(t *testing.T) {
	s := newTestScene(t, false)
	srv := NewGRPCServer(s.container, "256.0.0.1:bad", &TestLogger{})
	_, err := srv.StartBackground()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}
