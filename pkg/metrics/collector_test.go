package metrics

import (
	"testing"
	"time"

	"github.com/cuemby/elbscaler/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

type staticSnapshot types.Snapshot

func (s staticSnapshot) Snapshot() types.Snapshot { return types.Snapshot(s) }

func TestCollectorCollect(t *testing.T) {
	snap := staticSnapshot{
		Desired: 3,
		Tasks: []*types.Task{
			{ID: 0, Host: "h1", State: types.TaskStateRunning},
			{ID: 1, Host: "h2", State: types.TaskStateRunning},
			{ID: 2, Host: "h3", State: types.TaskStatePending},
		},
		PendingKill: []int{1},
	}

	NewCollector(snap, 0).Collect()

	assert.Equal(t, 3.0, gaugeValue(t, DesiredReplicas))
	assert.Equal(t, 1.0, gaugeValue(t, PendingKillTasks))
	assert.Equal(t, 2.0, gaugeValue(t, TasksTotal.WithLabelValues("running")))
	assert.Equal(t, 1.0, gaugeValue(t, TasksTotal.WithLabelValues("pending")))
	assert.Equal(t, 0.0, gaugeValue(t, TasksTotal.WithLabelValues("starting")))
}

// States that disappear from the registry reset to zero on the next pass
func TestCollectorResetsEmptyStates(t *testing.T) {
	NewCollector(staticSnapshot{
		Desired: 1,
		Tasks:   []*types.Task{{ID: 0, State: types.TaskStateStarting}},
	}, 0).Collect()
	assert.Equal(t, 1.0, gaugeValue(t, TasksTotal.WithLabelValues("starting")))

	NewCollector(staticSnapshot{Desired: 1}, 0).Collect()
	assert.Equal(t, 0.0, gaugeValue(t, TasksTotal.WithLabelValues("starting")))
}

func TestCollectorStartStop(t *testing.T) {
	c := NewCollector(staticSnapshot{Desired: 4}, time.Hour)
	c.Start()

	require.Eventually(t, func() bool {
		return gaugeValue(t, DesiredReplicas) == 4
	}, time.Second, 5*time.Millisecond, "first collection runs on start")

	c.Stop()
	c.Stop()
}
