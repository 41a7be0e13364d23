package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for statecraft.
type Metrics struct {
	config MetricsConfig

	applyRuns        *prometheus.CounterVec
	applyRunDuration *prometheus.HistogramVec

	resourceOperations *prometheus.CounterVec
	resourceDuration   *prometheus.HistogramVec
	resourcesManaged   *prometheus.GaugeVec

	transportCalls    *prometheus.CounterVec
	transportDuration *prometheus.HistogramVec
	transportErrors   *prometheus.CounterVec

	errorsByClass *prometheus.CounterVec

	driftDetections *prometheus.CounterVec
	triggersFired   *prometheus.CounterVec
	policyDenials   *prometheus.CounterVec

	activeApplies prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector. When cfg.Enabled is false every
// recording method becomes a no-op, matching the ambient pattern used
// elsewhere in statecraft of an inert collector rather than conditional
// calls at every call site.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		applyRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "apply_runs_total", Help: "Total number of apply runs.",
		}, []string{"status"}),
		applyRunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "apply_run_duration_seconds", Help: "Duration of an apply run.", Buckets: buckets,
		}, []string{"status"}),

		resourceOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "resource_operations_total", Help: "Total check/plan/apply operations.",
		}, []string{"operation", "resource_type", "status"}),
		resourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "resource_operation_duration_seconds", Help: "Duration of a resource operation.", Buckets: buckets,
		}, []string{"operation", "resource_type"}),
		resourcesManaged: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "resources_managed", Help: "Number of resources registered with the executor.",
		}, []string{"resource_type"}),

		transportCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "transport_calls_total", Help: "Total transport calls.",
		}, []string{"transport", "op"}),
		transportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "transport_call_duration_seconds", Help: "Duration of a transport call.", Buckets: buckets,
		}, []string{"transport", "op"}),
		transportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "transport_errors_total", Help: "Total transport errors.",
		}, []string{"transport", "op"}),

		errorsByClass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_by_class_total", Help: "Total errors by EngineError class.",
		}, []string{"class"}),

		driftDetections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "drift_detections_total", Help: "Total drift checks by outcome.",
		}, []string{"resource_type", "status"}),
		triggersFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "triggers_fired_total", Help: "Total reload/restart triggers fired.",
		}, []string{"kind", "status"}),
		policyDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "policy_denials_total", Help: "Total policy violations by severity.",
		}, []string{"policy", "severity"}),

		activeApplies: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_applies", Help: "Number of apply runs currently executing.",
		}),
	}

	registry.MustRegister(
		m.applyRuns, m.applyRunDuration,
		m.resourceOperations, m.resourceDuration, m.resourcesManaged,
		m.transportCalls, m.transportDuration, m.transportErrors,
		m.errorsByClass, m.driftDetections, m.triggersFired, m.policyDenials,
		m.activeApplies,
	)

	return m, nil
}

func (m *Metrics) RecordApplyStarted() {
	if m.applyRuns == nil {
		return
	}
	m.activeApplies.Inc()
}

func (m *Metrics) RecordApplyCompleted(status string, duration time.Duration) {
	if m.applyRuns == nil {
		return
	}
	m.applyRuns.WithLabelValues(status).Inc()
	m.applyRunDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeApplies.Dec()
}

func (m *Metrics) RecordResourceOperation(operation, resourceType, status string, duration time.Duration) {
	if m.resourceOperations == nil {
		return
	}
	m.resourceOperations.WithLabelValues(operation, resourceType, status).Inc()
	m.resourceDuration.WithLabelValues(operation, resourceType).Observe(duration.Seconds())
}

func (m *Metrics) SetResourcesManaged(resourceType string, count float64) {
	if m.resourcesManaged == nil {
		return
	}
	m.resourcesManaged.WithLabelValues(resourceType).Set(count)
}

func (m *Metrics) RecordTransportCall(transport, op string, duration time.Duration) {
	if m.transportCalls == nil {
		return
	}
	m.transportCalls.WithLabelValues(transport, op).Inc()
	m.transportDuration.WithLabelValues(transport, op).Observe(duration.Seconds())
}

func (m *Metrics) RecordTransportError(transport, op string) {
	if m.transportErrors == nil {
		return
	}
	m.transportErrors.WithLabelValues(transport, op).Inc()
}

func (m *Metrics) RecordError(errorClass string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
}

func (m *Metrics) RecordDriftDetection(resourceType, status string) {
	if m.driftDetections == nil {
		return
	}
	m.driftDetections.WithLabelValues(resourceType, status).Inc()
}

func (m *Metrics) RecordTriggerFired(kind, status string) {
	if m.triggersFired == nil {
		return
	}
	m.triggersFired.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) RecordPolicyDenial(policy, severity string) {
	if m.policyDenials == nil {
		return
	}
	m.policyDenials.WithLabelValues(policy, severity).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer { return &Timer{start: time.Now()} }

func (t *Timer) Duration() time.Duration { return time.Since(t.start) }

func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// StartMetricsServer starts an HTTP server exposing the metrics endpoint.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
