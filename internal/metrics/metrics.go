package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flowexec_tasks_total",
			Help: "Total number of tasks by status",
		},
		[]string{"status"},
	)

	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowexec_scan_duration_seconds",
			Help:    "Time taken for one scanner pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowexec_scans_total",
			Help: "Total number of scanner passes by outcome",
		},
		[]string{"outcome"},
	)

	TasksScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flowexec_tasks_scheduled_total",
			Help: "Total number of tasks handed off to a runner",
		},
	)

	TasksFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowexec_tasks_failed_total",
			Help: "Total number of tasks that ended in ERROR, by step",
		},
		[]string{"step"},
	)

	SandboxBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowexec_sandbox_build_duration_seconds",
			Help:    "Time taken to prepare a task's sandbox in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowexec_control_bus_commands_total",
			Help: "Total number of control-bus commands handled, by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	BarrierWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowexec_barrier_wait_duration_seconds",
			Help:    "Time spent spin-waiting for sync_semaphore to drain on barrier exit",
			Buckets: prometheus.DefBuckets,
		},
	)

	SyncSemaphore = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "flowexec_sync_semaphore",
			Help: "Current value of the sync_semaphore shared counter, sampled on read",
		},
		func() float64 { return float64(syncSemaphoreGauge.Load()) },
	)

	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowexec_raft_is_leader",
			Help: "Whether this node is the Raft leader for shared state (1 = leader, 0 = follower)",
		},
	)
)

func init() {
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(ScanDuration)
	prometheus.MustRegister(ScansTotal)
	prometheus.MustRegister(TasksScheduledTotal)
	prometheus.MustRegister(TasksFailedTotal)
	prometheus.MustRegister(SandboxBuildDuration)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(BarrierWaitDuration)
	prometheus.MustRegister(SyncSemaphore)
	prometheus.MustRegister(RaftLeader)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
