package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/watsonkit/watsonkit/events"
	"github.com/watsonkit/watsonkit/observability"
	"github.com/watsonkit/watsonkit/widget"
)

// InjectRequest is the body of POST /widgets/:name/inputs/:input. Type
// names the payload; Value holds it.
type InjectRequest struct {
	Type  string `json:"type" binding:"required"`
	Value any    `json:"value"`
}

// KeyRequest is the body of POST /keys.
type KeyRequest struct {
	Key   string `json:"key" binding:"required"`
	Ctrl  bool   `json:"ctrl"`
	Alt   bool   `json:"alt"`
	Shift bool   `json:"shift"`
}

// Handler serves the HTTP control surface of a container.
type Handler struct {
	container *widget.Container
	logger    Logger
}

// NewHandler creates the handler.
func NewHandler(container *widget.Container, logger Logger) *Handler {
	return &Handler{container: container, logger: logger}
}

// Router builds the gin engine with every route registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog())

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/graph", h.Graph)
	r.GET("/widgets", h.ListWidgets)
	r.GET("/widgets/:name", h.GetWidget)
	r.POST("/widgets/:name/inputs/:input", h.Inject)
	r.POST("/keys", h.PressKey)
	return r
}

// NewHTTPServer wraps the router in an http.Server on address.
func (h *Handler) NewHTTPServer(address string) *http.Server {
	return &http.Server{
		Addr:              address,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		code := c.Writer.Status()
		observability.RecordHTTPRequest(route, c.Request.Method, strconv.Itoa(code))
		h.logger.Debug("http_request",
			"method", c.Request.Method,
			"route", route,
			"code", code,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Health handles GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	state := h.container.State()
	code := http.StatusOK
	if state != widget.StateInitialized {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"state": state.String(), "widgets": len(h.container.Widgets())})
}

// Graph handles GET /graph. The default answer is Graphviz dot;
// ?format=json lists the edges.
func (h *Handler) Graph(c *gin.Context) {
	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, gin.H{"edges": h.container.Graph()})
		return
	}
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/vnd.graphviz; charset=utf-8")
	if err := h.container.WriteDot(c.Writer); err != nil {
		h.logger.Error("graph_write_failed", "error", err.Error())
	}
}

// ListWidgets handles GET /widgets.
func (h *Handler) ListWidgets(c *gin.Context) {
	ws := h.container.Widgets()
	out := make([]widget.WidgetInfo, 0, len(ws))
	for _, w := range ws {
		out = append(out, widget.Describe(w))
	}
	c.JSON(http.StatusOK, gin.H{"widgets": out})
}

// GetWidget handles GET /widgets/:name.
func (h *Handler) GetWidget(c *gin.Context) {
	w, ok := h.container.Widget(c.Param("name"))
	if !ok {
		respondError(c, widget.NewWidgetNotFoundError(c.Param("name")))
		return
	}
	c.JSON(http.StatusOK, widget.Describe(w))
}

// Inject handles POST /widgets/:name/inputs/:input.
func (h *Handler) Inject(c *gin.Context) {
	var req InjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := DecodeData(req.Type, req.Value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name, input := c.Param("name"), c.Param("input")
	if err := h.container.Inject(name, input, d); err != nil {
		respondError(c, err)
		return
	}
	h.logger.Info("data_injected", "widget", name, "input", input, "type", d.DataName())
	c.JSON(http.StatusAccepted, gin.H{"widget": name, "input": input, "type": d.DataName()})
}

// PressKey handles POST /keys by publishing a KeyEvent on the container
// bus.
func (h *Handler) PressKey(c *gin.Context) {
	var req KeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bus := h.container.Events()
	if bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no event bus"})
		return
	}
	var mods events.Modifier
	if req.Ctrl {
		mods |= events.ModControl
	}
	if req.Alt {
		mods |= events.ModAlt
	}
	if req.Shift {
		mods |= events.ModShift
	}
	ev := &events.KeyEvent{Key: req.Key, Modifiers: mods}
	if err := bus.Publish(context.WithoutCancel(c.Request.Context()), ev); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"event": ev.MessageType()})
}

// DecodeData builds a payload from its type name and a JSON value.
func DecodeData(typeName string, value any) (widget.Data, error) {
	switch typeName {
	case "TextData":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%s needs a string value", typeName)
		}
		return widget.NewTextData(s), nil
	case "LanguageData":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%s needs a string value", typeName)
		}
		return widget.NewLanguageData(s), nil
	case "VoiceData":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%s needs a string value", typeName)
		}
		return widget.NewVoiceData(s), nil
	case "BooleanData":
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%s needs a boolean value", typeName)
		}
		return widget.NewBooleanData(b), nil
	case "DisableMicData":
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%s needs a boolean value", typeName)
		}
		return widget.NewDisableMicData(b), nil
	case "LevelData":
		f, ok := value.(float64)
		if !ok {
			return nil, fmt.Errorf("%s needs a number value", typeName)
		}
		return widget.NewLevelData(f), nil
	}
	return nil, fmt.Errorf("cannot inject %q", typeName)
}

// respondError maps container errors to status codes.
func respondError(c *gin.Context, err error) {
	var (
		notFound *widget.WidgetNotFoundError
		noPort   *widget.PortNotFoundError
		mismatch *widget.TypeMismatchError
	)
	code := http.StatusInternalServerError
	switch {
	case errors.As(err, &notFound), errors.As(err, &noPort):
		code = http.StatusNotFound
	case errors.As(err, &mismatch):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, widget.ErrNotInitialized):
		code = http.StatusConflict
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
