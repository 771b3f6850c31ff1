package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry metrics
	DesiredReplicas = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "elbscaler_desired_replicas",
			Help: "Desired number of web server tasks",
		},
	)

	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "elbscaler_tasks_total",
			Help: "Number of tracked tasks by state",
		},
		[]string{"state"},
	)

	PendingKillTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "elbscaler_pending_kill_tasks",
			Help: "Tasks with a kill request that has not been confirmed by a terminal status",
		},
	)

	// Offer metrics
	OffersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elbscaler_offers_total",
			Help: "Resource offers evaluated by decision and rejection reason",
		},
		[]string{"decision", "reason"},
	)

	TasksLaunched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "elbscaler_tasks_launched_total",
			Help: "Total number of tasks launched",
		},
	)

	// Status metrics
	StatusUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elbscaler_status_updates_total",
			Help: "Task status updates by reported state and whether the task was known",
		},
		[]string{"state", "known"},
	)

	// Autoscale metrics
	KillRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "elbscaler_kill_requests_total",
			Help: "Total number of task kill requests issued",
		},
	)

	ControlLoopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "elbscaler_control_loop_duration_seconds",
			Help:    "Time taken by one autoscale cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ControlLoopCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elbscaler_control_loop_cycles_total",
			Help: "Autoscale cycles by result",
		},
		[]string{"result"},
	)

	RequestCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "elbscaler_observed_request_count",
			Help: "Most recent request count sum seen by the control loop",
		},
	)

	// External call metrics
	MembershipOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elbscaler_membership_operations_total",
			Help: "Load balancer membership calls by operation and result",
		},
		[]string{"operation", "result"},
	)

	ResolutionMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "elbscaler_host_resolution_misses_total",
			Help: "Running tasks whose host had no backend identifier",
		},
	)

	DriverCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elbscaler_driver_calls_total",
			Help: "Calls to the cluster manager by type and result",
		},
		[]string{"call", "result"},
	)

	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elbscaler_events_dropped_total",
			Help: "Lifecycle events dropped by the broker, by stage",
		},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(DesiredReplicas)
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(PendingKillTasks)
	prometheus.MustRegister(OffersTotal)
	prometheus.MustRegister(TasksLaunched)
	prometheus.MustRegister(StatusUpdatesTotal)
	prometheus.MustRegister(KillRequestsTotal)
	prometheus.MustRegister(ControlLoopDuration)
	prometheus.MustRegister(ControlLoopCyclesTotal)
	prometheus.MustRegister(RequestCount)
	prometheus.MustRegister(MembershipOpsTotal)
	prometheus.MustRegister(ResolutionMissesTotal)
	prometheus.MustRegister(DriverCallsTotal)
	prometheus.MustRegister(EventsDroppedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
