// Package metrics holds the ambient Prometheus metrics shared by the
// load balancer, worker, and client-generator processes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the counters, histograms, and gauges the three
// services populate over the lifetime of a process.
type Metrics struct {
	// Dispatch (LB) metrics
	DispatchTotal         *prometheus.CounterVec
	DispatchLatency       *prometheus.HistogramVec
	WorkerEffectiveWeight *prometheus.GaugeVec
	WorkerOnline          *prometheus.GaugeVec
	WorkerDisabled        *prometheus.GaugeVec

	// Worker handler metrics
	HandleTotal      *prometheus.CounterVec
	HandleLatency    *prometheus.HistogramVec
	InflightRequests prometheus.Gauge
	FaultFirings     *prometheus.CounterVec

	// Client generator metrics
	GeneratedRequestsTotal *prometheus.CounterVec

	// Ambient HTTP metrics, shared by every service's router
	ActiveConnections prometheus.Gauge
}

var AppMetrics *Metrics

// InitMetrics registers every metric exactly once and stores the
// resulting handle in AppMetrics for package-level helpers to use.
func InitMetrics() *Metrics {
	m := &Metrics{
		DispatchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficshape_lb_dispatch_total",
			Help: "Total number of dispatch attempts by worker and outcome",
		}, []string{"worker_id", "outcome"}),

		DispatchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trafficshape_lb_dispatch_latency_seconds",
			Help:    "Latency of forwarded requests as observed by the LB",
			Buckets: prometheus.DefBuckets,
		}, []string{"worker_id"}),

		WorkerEffectiveWeight: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trafficshape_lb_worker_effective_weight",
			Help: "Current effective weight used by the smooth WRR selector",
		}, []string{"worker_id"}),

		WorkerOnline: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trafficshape_lb_worker_online",
			Help: "Worker health as last observed by the probe (1=online, 0=offline)",
		}, []string{"worker_id"}),

		WorkerDisabled: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trafficshape_lb_worker_disabled",
			Help: "Whether a worker is currently inside its disable window (1=disabled)",
		}, []string{"worker_id"}),

		HandleTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficshape_worker_handle_total",
			Help: "Total number of handled requests by outcome",
		}, []string{"outcome"}),

		HandleLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trafficshape_worker_handle_latency_seconds",
			Help:    "Simulated handling latency including injected delay",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),

		InflightRequests: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "trafficshape_worker_inflight_requests",
			Help: "Number of requests currently occupying the worker's capacity",
		}),

		FaultFirings: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficshape_worker_fault_firings_total",
			Help: "Total number of times a fault actually triggered",
		}, []string{"kind"}),

		GeneratedRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficshape_clientgen_requests_total",
			Help: "Total number of requests issued by the client generator",
		}, []string{"outcome"}),

		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "trafficshape_active_connections",
			Help: "Number of in-flight HTTP requests on this service's router",
		}),
	}
	AppMetrics = m
	return m
}

// RecordDispatch records one LB dispatch attempt's outcome and latency.
func (m *Metrics) RecordDispatch(workerID, outcome string, latency time.Duration) {
	m.DispatchTotal.WithLabelValues(workerID, outcome).Inc()
	m.DispatchLatency.WithLabelValues(workerID).Observe(latency.Seconds())
}

// RecordHandle records one worker-side /handle outcome and latency.
func (m *Metrics) RecordHandle(outcome string, latency time.Duration) {
	m.HandleTotal.WithLabelValues(outcome).Inc()
	m.HandleLatency.WithLabelValues(outcome).Observe(latency.Seconds())
}

// RecordFaultFiring records that a fault of the given kind actually
// triggered (post should_trigger(p)).
func (m *Metrics) RecordFaultFiring(kind string) {
	m.FaultFirings.WithLabelValues(kind).Inc()
}

// RecordGeneratedRequest records one client-generator request outcome.
func (m *Metrics) RecordGeneratedRequest(outcome string) {
	m.GeneratedRequestsTotal.WithLabelValues(outcome).Inc()
}

// UpdateWorkerGauges reflects a worker's current selector-facing state
// into the LB's per-worker gauges.
func (m *Metrics) UpdateWorkerGauges(workerID string, effectiveWeight int, online, disabled bool) {
	m.WorkerEffectiveWeight.WithLabelValues(workerID).Set(float64(effectiveWeight))
	m.WorkerOnline.WithLabelValues(workerID).Set(boolToFloat(online))
	m.WorkerDisabled.WithLabelValues(workerID).Set(boolToFloat(disabled))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
