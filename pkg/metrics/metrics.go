package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics (C2)
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hodei_queue_depth",
			Help: "Number of jobs currently queued by status",
		},
		[]string{"status"},
	)

	JobsEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hodei_jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
	)

	JobsDequeuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hodei_jobs_dequeued_total",
			Help: "Total number of jobs dequeued for placement",
		},
	)

	JobQueueWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hodei_job_queue_wait_seconds",
			Help:    "Time a job spent queued before being dequeued",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Resource pool metrics (C3)
	PoolsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hodei_resource_pools_total",
			Help: "Total number of resource pools by status",
		},
		[]string{"status"},
	)

	PoolUtilizationRatio = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hodei_pool_utilization_ratio",
			Help: "Fraction of a pool's capacity currently committed, by pool",
		},
		[]string{"pool_id"},
	)

	// Placement scheduler metrics (C4)
	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hodei_scheduling_latency_seconds",
			Help:    "Time taken to place a job onto a worker",
			Buckets: prometheus.DefBuckets,
		},
	)

	PlacementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hodei_placements_total",
			Help: "Total number of placement decisions by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	// Instance manager metrics (C5)
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hodei_workers_total",
			Help: "Total number of worker instances by type and status",
		},
		[]string{"instance_type", "status"},
	)

	ProvisioningDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hodei_provisioning_duration_seconds",
			Help:    "Time taken to provision a worker instance by driver",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"driver"},
	)

	ProvisioningFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hodei_provisioning_failures_total",
			Help: "Total number of provisioning failures by driver and subkind",
		},
		[]string{"driver", "subkind"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hodei_circuit_breaker_state",
			Help: "Circuit breaker state by breaker name (0=closed, 1=half-open, 2=open)",
		},
		[]string{"driver"},
	)

	// Worker session metrics (C7)
	SessionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hodei_worker_sessions_total",
			Help: "Total number of worker sessions by connection state",
		},
		[]string{"state"},
	)

	HeartbeatsMissedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hodei_heartbeats_missed_total",
			Help: "Total number of missed worker heartbeats",
		},
	)

	// Artifact cache metrics (C8)
	ArtifactCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hodei_artifact_cache_hits_total",
			Help: "Total number of artifact cache hits",
		},
	)

	ArtifactCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hodei_artifact_cache_misses_total",
			Help: "Total number of artifact cache misses",
		},
	)

	ArtifactTransferBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hodei_artifact_transfer_bytes_total",
			Help: "Total bytes transferred for artifacts by direction and compression",
		},
		[]string{"direction", "compression"},
	)

	ArtifactTransferDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hodei_artifact_transfer_duration_seconds",
			Help:    "Time taken to transfer an artifact end to end",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Execution coordinator metrics (C9)
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hodei_executions_total",
			Help: "Total number of job executions by terminal status",
		},
		[]string{"status"},
	)

	ExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hodei_execution_duration_seconds",
			Help:    "Time taken from dispatch to terminal execution status",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	RetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hodei_retries_total",
			Help: "Total number of job retries issued by the coordinator",
		},
	)

	// Ingress metrics (admin API)
	IngressRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hodei_ingress_requests_total",
			Help: "Total number of admin API requests by route and status",
		},
		[]string{"route", "status"},
	)

	IngressRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hodei_ingress_request_duration_seconds",
			Help:    "Admin API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(
		QueueDepth,
		JobsEnqueuedTotal,
		JobsDequeuedTotal,
		JobQueueWaitDuration,
		PoolsTotal,
		PoolUtilizationRatio,
		SchedulingLatency,
		PlacementsTotal,
		WorkersTotal,
		ProvisioningDuration,
		ProvisioningFailuresTotal,
		CircuitBreakerState,
		SessionsTotal,
		HeartbeatsMissedTotal,
		ArtifactCacheHitsTotal,
		ArtifactCacheMissesTotal,
		ArtifactTransferBytesTotal,
		ArtifactTransferDuration,
		ExecutionsTotal,
		ExecutionDuration,
		RetriesTotal,
		IngressRequestsTotal,
		IngressRequestDuration,
	)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
