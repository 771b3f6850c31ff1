/*
Package metrics exposes Prometheus metrics and component health for elbscaler.

All collectors are package-level variables registered with the default
registry at init, so any package can record into them directly:

	metrics.KillRequestsTotal.Inc()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ControlLoopDuration)

# Metric Families

Scheduler state (refreshed by Collector from a registry snapshot):

	elbscaler_desired_replicas            gauge
	elbscaler_tasks_total{state}          gauge
	elbscaler_pending_kill_tasks          gauge

Offer and status handling:

	elbscaler_offers_total{decision,reason}     counter
	elbscaler_tasks_launched_total              counter
	elbscaler_status_updates_total{state,known} counter
	elbscaler_kill_requests_total               counter

Control loop:

	elbscaler_control_loop_duration_seconds     histogram
	elbscaler_control_loop_cycles_total{result} counter
	elbscaler_observed_request_count            gauge

External systems:

	elbscaler_membership_operations_total{operation,result} counter
	elbscaler_host_resolution_misses_total                  counter
	elbscaler_driver_calls_total{call,result}               counter
	elbscaler_events_dropped_total{stage}                   counter

A pending kill gauge that stays above zero means kill confirmations are not
arriving from the cluster manager.

# Health

HealthChecker tracks the mesos, cloudwatch and elb components. Only the
mesos subscription is critical: readiness fails while the framework is not
subscribed, while a failing CloudWatch query or ELB call only shows up as
an unhealthy component in /health.
*/
package metrics
