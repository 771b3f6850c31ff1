package metrics

import (
	"sync"
	"time"

	"github.com/cuemby/elbscaler/pkg/types"
)

// Snapshotter provides a consistent copy of scheduler state
type Snapshotter interface {
	Snapshot() types.Snapshot
}

// reportedStates are always written so a state that empties reads zero
var reportedStates = []types.TaskState{
	types.TaskStatePending,
	types.TaskStateStarting,
	types.TaskStateRunning,
}

// Collector refreshes the registry gauges from periodic snapshots
type Collector struct {
	source   Snapshotter
	interval time.Duration

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewCollector(source Snapshotter, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start collects once immediately and then every interval
func (c *Collector) Start() {
	go c.loop()
}

// Stop ends collection and waits for the loop to exit
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		<-c.done
	})
}

func (c *Collector) loop() {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()
	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-c.stopCh:
			return
		}
	}
}

// Collect takes one snapshot and updates the gauges
func (c *Collector) Collect() {
	snap := c.source.Snapshot()

	DesiredReplicas.Set(float64(snap.Desired))
	PendingKillTasks.Set(float64(len(snap.PendingKill)))

	counts := make(map[types.TaskState]int, len(reportedStates))
	for _, task := range snap.Tasks {
		counts[task.State]++
	}
	for _, state := range reportedStates {
		TasksTotal.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}
