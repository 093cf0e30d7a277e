// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for widgets, service clients and the control servers.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/watsonkit/watsonkit/widget"
)

// =============================================================================
// PORT METRICS
// =============================================================================

var (
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watsonkit_port_deliveries_total",
			Help: "Total number of envelopes delivered from an output to an input",
		},
		[]string{"output", "input", "data_type", "status"}, // status: success, error
	)

	deliveryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watsonkit_port_delivery_duration_seconds",
			Help:    "Input handler duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"input"},
	)

	resolutionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watsonkit_port_resolution_failures_total",
			Help: "Total number of sends whose target input could not be resolved",
		},
		[]string{"output", "target"},
	)
)

// =============================================================================
// SERVICE METRICS
// =============================================================================

var (
	serviceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watsonkit_service_requests_total",
			Help: "Total number of cognitive service requests",
		},
		[]string{"service", "operation", "status"}, // status: success, error, unavailable
	)

	serviceDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watsonkit_service_request_duration_seconds",
			Help:    "Cognitive service request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"service", "operation"},
	)
)

// =============================================================================
// SERVER METRICS
// =============================================================================

var (
	grpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watsonkit_grpc_requests_total",
			Help: "Total gRPC requests",
		},
		[]string{"method", "status"}, // status: OK, InvalidArgument, Internal, etc.
	)

	grpcRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watsonkit_grpc_request_duration_seconds",
			Help:    "gRPC request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watsonkit_http_requests_total",
			Help: "Total control-surface HTTP requests",
		},
		[]string{"route", "method", "code"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordDelivery records one delivery attempt from an output to an input.
func RecordDelivery(output, input, dataType string, err error, elapsed time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	deliveriesTotal.WithLabelValues(output, input, dataType, status).Inc()
	deliveryDurationSeconds.WithLabelValues(input).Observe(elapsed.Seconds())
}

// RecordResolutionFailure records a send whose target could not be resolved.
func RecordResolutionFailure(output, target string) {
	resolutionFailuresTotal.WithLabelValues(output, target).Inc()
}

// RecordServiceRequest records a REST or WebSocket call to a cognitive
// service.
func RecordServiceRequest(service, operation, status string, elapsed time.Duration) {
	serviceRequestsTotal.WithLabelValues(service, operation, status).Inc()
	serviceDurationSeconds.WithLabelValues(service, operation).Observe(elapsed.Seconds())
}

// RecordGRPCRequest records gRPC request metrics.
// This should be called from gRPC interceptors.
func RecordGRPCRequest(method string, status string, durationMS int) {
	grpcRequestsTotal.WithLabelValues(method, status).Inc()
	grpcRequestDurationSeconds.WithLabelValues(method).Observe(float64(durationMS) / 1000.0)
}

// RecordHTTPRequest records a control-surface HTTP request.
func RecordHTTPRequest(route, method, code string) {
	httpRequestsTotal.WithLabelValues(route, method, code).Inc()
}

// =============================================================================
// DISPATCH OBSERVER
// =============================================================================

// DispatchMetrics feeds port activity into the port metrics. Install it with
// widget.WithDispatchObserver.
type DispatchMetrics struct{}

// NewDispatchMetrics creates a DispatchMetrics.
func NewDispatchMetrics() *DispatchMetrics { return &DispatchMetrics{} }

// Delivered implements widget.DispatchObserver.
func (DispatchMetrics) Delivered(from widget.OutputPort, to widget.InputPort, d widget.Data, err error, elapsed time.Duration) {
	RecordDelivery(from.FullName(), to.FullName(), widget.NameOf(d), err, elapsed)
}

// ResolutionFailed implements widget.DispatchObserver.
func (DispatchMetrics) ResolutionFailed(from widget.OutputPort, target, input string) {
	RecordResolutionFailure(from.FullName(), target)
}

var _ widget.DispatchObserver = (*DispatchMetrics)(nil)
