// ============================================================================
// Testbed Metrics - Prometheus collectors
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Count what the partitioner, the launcher and the task runtime did
//          and export it in Prometheus text format.
//
// Metric groups:
//
//   1. Partitioning (Gauge):
//      - fedsched_partition_status: 0 found, 1 heuristic used, 2 invalid
//      - fedsched_partition_required_cores: sum of ceil((C-L)/(D-L))
//      - fedsched_partition_min_cores: sum of floor(C/D) (heuristic only)
//      - fedsched_partition_system_cores: cores available to the task set
//
//   2. Launcher (Counter):
//      - fedsched_tasks_launched_total
//      - fedsched_children_exited_total{outcome="normal|abnormal|signaled"}
//      - fedsched_launch_aborts_total
//
//   3. Task runtime (Counter / Histogram / Gauge):
//      - fedtask_jobs_total
//      - fedtask_deadline_misses_total
//      - fedtask_response_time_seconds
//      - fedtask_max_response_time_seconds
//
// Export:
//   Nothing in the testbed listens on the network, so every collector owns a
//   private registry that is written to a node_exporter textfile with
//   WriteTextfile. Each child task writes its own file; the launcher writes
//   one for the whole run.
//
// ============================================================================

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Outcome labels for fedsched_children_exited_total.
const (
	OutcomeNormal   = "normal"
	OutcomeAbnormal = "abnormal"
	OutcomeSignaled = "signaled"
)

// EnvTextfile is the environment variable through which the launcher tells a
// child task where to write its metrics.
const EnvTextfile = "FEDSCHED_METRICS_FILE"

// Collector holds every testbed metric on a private registry.
type Collector struct {
	registry *prometheus.Registry

	// partitioning
	partitionStatus      prometheus.Gauge
	partitionRequired    prometheus.Gauge
	partitionMin         prometheus.Gauge
	partitionSystemCores prometheus.Gauge

	// launcher
	tasksLaunched  prometheus.Counter
	childrenExited *prometheus.CounterVec
	launchAborts   prometheus.Counter

	// task runtime
	jobs           prometheus.Counter
	deadlineMisses prometheus.Counter
	responseTime   prometheus.Histogram
	maxResponse    prometheus.Gauge
}

// NewCollector creates a collector whose series carry the given constant
// labels (for example the task name).
func NewCollector(labels prometheus.Labels) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		partitionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "fedsched_partition_status",
			Help:        "Partition outcome: 0 found, 1 heuristic used, 2 invalid",
			ConstLabels: labels,
		}),
		partitionRequired: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "fedsched_partition_required_cores",
			Help:        "Total cores the task set needs under federated scheduling",
			ConstLabels: labels,
		}),
		partitionMin: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "fedsched_partition_min_cores",
			Help:        "Total per-task core floors used by the heuristic",
			ConstLabels: labels,
		}),
		partitionSystemCores: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "fedsched_partition_system_cores",
			Help:        "Cores available to the task set",
			ConstLabels: labels,
		}),
		tasksLaunched: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "fedsched_tasks_launched_total",
			Help:        "Task processes started by the launcher",
			ConstLabels: labels,
		}),
		childrenExited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fedsched_children_exited_total",
			Help:        "Task processes reaped by the launcher, by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		launchAborts: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "fedsched_launch_aborts_total",
			Help:        "Launches that terminated the process group",
			ConstLabels: labels,
		}),
		jobs: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "fedtask_jobs_total",
			Help:        "Jobs executed by the task",
			ConstLabels: labels,
		}),
		deadlineMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "fedtask_deadline_misses_total",
			Help:        "Jobs whose running time exceeded the relative deadline",
			ConstLabels: labels,
		}),
		responseTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "fedtask_response_time_seconds",
			Help:        "Job running time from its actual start to its finish",
			Buckets:     prometheus.ExponentialBuckets(0.0001, 2, 16),
			ConstLabels: labels,
		}),
		maxResponse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "fedtask_max_response_time_seconds",
			Help:        "Largest job response time observed",
			ConstLabels: labels,
		}),
	}

	c.registry.MustRegister(
		c.partitionStatus,
		c.partitionRequired,
		c.partitionMin,
		c.partitionSystemCores,
		c.tasksLaunched,
		c.childrenExited,
		c.launchAborts,
		c.jobs,
		c.deadlineMisses,
		c.responseTime,
		c.maxResponse,
	)

	return c
}

// WithProcessMetrics adds the standard process and Go runtime collectors.
func (c *Collector) WithProcessMetrics() *Collector {
	c.registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordPartition stores the outcome of one partitioning run.
func (c *Collector) RecordPartition(status, required, minCores, systemCores int) {
	c.partitionStatus.Set(float64(status))
	c.partitionRequired.Set(float64(required))
	c.partitionMin.Set(float64(minCores))
	c.partitionSystemCores.Set(float64(systemCores))
}

// RecordLaunch counts one started task process.
func (c *Collector) RecordLaunch() {
	c.tasksLaunched.Inc()
}

// RecordChildExit counts one reaped task process.
func (c *Collector) RecordChildExit(outcome string) {
	c.childrenExited.WithLabelValues(outcome).Inc()
}

// RecordAbort counts one process-group termination.
func (c *Collector) RecordAbort() {
	c.launchAborts.Inc()
}

// RecordJob counts one finished job.
func (c *Collector) RecordJob(response time.Duration, missed bool) {
	c.jobs.Inc()
	if missed {
		c.deadlineMisses.Inc()
	}
	c.responseTime.Observe(response.Seconds())
}

// SetMaxResponse stores the largest response time seen so far.
func (c *Collector) SetMaxResponse(longest time.Duration) {
	c.maxResponse.Set(longest.Seconds())
}

// WriteTextfile writes every metric to path in Prometheus text format. The
// file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
