package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/elbscaler/pkg/events"
	"github.com/cuemby/elbscaler/pkg/metrics"
	"github.com/cuemby/elbscaler/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	mu       sync.Mutex
	replies  [][]*types.LaunchRequest
	kills    []int
	replyErr error
	killErr  error
}

func (d *fakeDriver) ReplyToOffers(ctx context.Context, batch *types.OfferBatch, accepted []*types.LaunchRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replies = append(d.replies, accepted)
	return d.replyErr
}

func (d *fakeDriver) KillTask(ctx context.Context, taskID int, agentID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kills = append(d.kills, taskID)
	return d.killErr
}

func (d *fakeDriver) killed() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.kills...)
}

type fakeMembership struct {
	mu           sync.Mutex
	registered   []string
	deregistered []string
}

func (m *fakeMembership) Register(ctx context.Context, ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = append(m.registered, ids...)
}

func (m *fakeMembership) Deregister(ctx context.Context, ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deregistered = append(m.deregistered, ids...)
}

// gatedMembership applies calls to an in-memory load balancer and blocks
// Register for one backend until the gate is opened
type gatedMembership struct {
	mu       sync.Mutex
	backends map[string]bool
	calls    []string

	gated   string
	entered chan struct{}
	gate    chan struct{}
}

func newGatedMembership(gated string) *gatedMembership {
	return &gatedMembership{
		backends: make(map[string]bool),
		gated:    gated,
		entered:  make(chan struct{}),
		gate:     make(chan struct{}),
	}
}

func (m *gatedMembership) Register(ctx context.Context, ids []string) {
	for _, id := range ids {
		if id == m.gated {
			close(m.entered)
			<-m.gate
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.backends[id] = true
		m.calls = append(m.calls, "register "+id)
	}
}

func (m *gatedMembership) Deregister(ctx context.Context, ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.backends, id)
		m.calls = append(m.calls, "deregister "+id)
	}
}

func (m *gatedMembership) state() (map[string]bool, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	backends := make(map[string]bool, len(m.backends))
	for id := range m.backends {
		backends[id] = true
	}
	return backends, append([]string(nil), m.calls...)
}

type fakeSource struct {
	mu      sync.Mutex
	samples []types.Sample
	err     error
	calls   int
}

func (s *fakeSource) Query(ctx context.Context, start, end time.Time) ([]types.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.samples, s.err
}

func (s *fakeSource) set(samples []types.Sample, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = samples
	s.err = err
}

type harness struct {
	sched   *Scheduler
	driver  *fakeDriver
	members *fakeMembership
	source  *fakeSource
	health  *metrics.HealthChecker
}

func newHarness(broker *events.Broker) *harness {
	h := &harness{
		driver:  &fakeDriver{},
		members: &fakeMembership{},
		source:  &fakeSource{},
		health:  metrics.NewHealthChecker("test"),
	}
	h.sched = NewScheduler(Options{
		Registry:   newTestRegistry(),
		Driver:     h.driver,
		Membership: h.members,
		Source:     h.source,
		Broker:     broker,
		Health:     h.health,
		Config:     Config{Interval: 10 * time.Millisecond, Window: time.Minute},
	})
	return h
}

func sum(n float64) []types.Sample {
	return []types.Sample{{Timestamp: time.Now(), Sum: n}}
}

func TestSchedulerEndToEnd(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()

	// Traffic for three backends
	h.source.set(sum(4500), nil)
	decision, err := h.sched.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, decision.Desired)

	h.sched.ResourceOffers(ctx, batchOf(offer("h1", 2, 2048), offer("h2", 2, 2048), offer("h3", 2, 2048), offer("h4", 2, 2048)))
	require.Len(t, h.driver.replies, 1)
	assert.Len(t, h.driver.replies[0], 3)

	for id := 0; id < 3; id++ {
		h.sched.StatusUpdate(ctx, types.StatusUpdate{TaskID: id, State: types.TaskStateRunning})
	}
	assert.Equal(t, []string{"i-1", "i-2", "i-3"}, h.members.registered)

	// Traffic drops to one backend
	h.source.set(sum(1500), nil)
	decision, err = h.sched.Tick(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, decision.Desired)
	assert.Equal(t, []int{0, 1}, h.driver.killed())
	assert.Equal(t, []string{"i-1", "i-2"}, h.members.deregistered)
	assert.Equal(t, []int{0, 1}, h.sched.Snapshot().PendingKill)

	// Kills are confirmed
	h.sched.StatusUpdate(ctx, types.StatusUpdate{TaskID: 0, State: types.TaskStateKilled})
	h.sched.StatusUpdate(ctx, types.StatusUpdate{TaskID: 1, State: types.TaskStateKilled})
	snap := h.sched.Snapshot()
	assert.Empty(t, snap.PendingKill)
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, 2, snap.Tasks[0].ID)
	// Terminal removal repeats the idempotent deregistration
	assert.Equal(t, []string{"i-1", "i-2", "i-1", "i-2"}, h.members.deregistered)
}

// A register still in flight when the control loop picks its task as a
// victim must not land after the deregistration
func TestSlowRegisterDoesNotOutliveKill(t *testing.T) {
	ctx := context.Background()
	members := newGatedMembership("i-1")
	source := &fakeSource{}
	driver := &fakeDriver{}
	sched := NewScheduler(Options{
		Registry:   newTestRegistry(),
		Driver:     driver,
		Membership: members,
		Source:     source,
		Config:     Config{Interval: time.Second, Window: time.Minute},
	})

	source.set(sum(3000), nil)
	_, err := sched.Tick(ctx)
	require.NoError(t, err)
	sched.ResourceOffers(ctx, batchOf(offer("h1", 1, 1024), offer("h2", 1, 1024)))
	sched.StatusUpdate(ctx, types.StatusUpdate{TaskID: 1, State: types.TaskStateRunning})

	statusDone := make(chan struct{})
	go func() {
		defer close(statusDone)
		sched.StatusUpdate(ctx, types.StatusUpdate{TaskID: 0, State: types.TaskStateRunning})
	}()
	<-members.entered

	source.set(sum(1500), nil)
	tickDone := make(chan struct{})
	go func() {
		defer close(tickDone)
		_, _ = sched.Tick(ctx)
	}()

	select {
	case <-tickDone:
		t.Fatal("rescale finished while a register was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(members.gate)
	<-statusDone
	<-tickDone

	assert.Equal(t, []int{0}, driver.killed())
	sched.StatusUpdate(ctx, types.StatusUpdate{TaskID: 0, State: types.TaskStateKilled})

	backends, calls := members.state()
	assert.Equal(t, map[string]bool{"i-2": true}, backends)
	assert.Equal(t, []string{
		"register i-2",
		"register i-1",
		"deregister i-1",
		"deregister i-1",
	}, calls)
}

func TestTickQueryErrorKeepsDesired(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()

	h.source.set(sum(3000), nil)
	_, err := h.sched.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, h.sched.Registry().Desired())

	h.source.set(nil, errors.New("cloudwatch unavailable"))
	_, err = h.sched.Tick(ctx)
	require.Error(t, err)

	assert.Equal(t, 2, h.sched.Registry().Desired())
	assert.Empty(t, h.driver.killed())

	comp, ok := h.health.Component(metrics.ComponentCloudWatch)
	require.True(t, ok)
	assert.False(t, comp.Healthy)
}

func TestTickEmptyWindowSetsFloor(t *testing.T) {
	h := newHarness(nil)
	h.source.set(sum(6000), nil)
	_, err := h.sched.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, h.sched.Registry().Desired())

	h.source.set(nil, nil)
	decision, err := h.sched.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, decision.Desired)
}

func TestReplyFailureDropsLaunches(t *testing.T) {
	h := newHarness(nil)
	h.driver.replyErr = errors.New("connection refused")

	h.sched.ResourceOffers(context.Background(), batchOf(offer("h1", 1, 1024)))

	assert.Empty(t, h.sched.Snapshot().Tasks)

	// The host can be offered again
	h.driver.replyErr = nil
	h.sched.ResourceOffers(context.Background(), batchOf(offer("h1", 1, 1024)))
	assert.Len(t, h.sched.Snapshot().Tasks, 1)
}

func TestPartialReplyFailureDropsOnlyFailedLaunches(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	h.source.set(sum(3000), nil)
	_, err := h.sched.Tick(ctx)
	require.NoError(t, err)

	h.driver.replyErr = &types.LaunchError{TaskIDs: []int{1}, Err: errors.New("agent gone")}
	h.sched.ResourceOffers(ctx, batchOf(offer("h1", 1, 1024), offer("h2", 1, 1024)))

	snap := h.sched.Snapshot()
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, 0, snap.Tasks[0].ID)
	assert.Equal(t, "h1", snap.Tasks[0].Host)
}

// A failed kill request leaves the task pending kill so it is not selected again
func TestKillFailureStaysPendingKill(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	h.source.set(sum(3000), nil)
	_, _ = h.sched.Tick(ctx)
	h.sched.ResourceOffers(ctx, batchOf(offer("h1", 1, 1024), offer("h2", 1, 1024)))

	h.driver.killErr = errors.New("stream closed")
	h.source.set(sum(1500), nil)
	_, err := h.sched.Tick(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int{0}, h.sched.Snapshot().PendingKill)

	_, err = h.sched.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, h.driver.killed(), "no duplicate kill")
}

func TestSchedulerPublishesEvents(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	h := newHarness(broker)
	ctx := context.Background()
	h.sched.ResourceOffers(ctx, batchOf(offer("h1", 1, 1024)))
	h.sched.StatusUpdate(ctx, types.StatusUpdate{TaskID: 0, State: types.TaskStateRunning})

	var seen []events.EventType
	timeout := time.After(time.Second)
	for len(seen) < 3 {
		select {
		case ev := <-sub:
			seen = append(seen, ev.Type)
		case <-timeout:
			t.Fatalf("timed out, saw %v", seen)
		}
	}
	assert.Equal(t, []events.EventType{
		events.EventTaskLaunched,
		events.EventBackendRegistered,
		events.EventTaskRunning,
	}, seen)
}

func TestControlLoopStartStop(t *testing.T) {
	h := newHarness(nil)
	h.source.set(sum(3000), nil)

	h.sched.Start()
	require.Eventually(t, func() bool {
		return h.sched.Registry().Desired() == 2
	}, time.Second, 5*time.Millisecond)

	h.sched.Stop()
	h.sched.Stop()

	h.source.mu.Lock()
	calls := h.source.calls
	h.source.mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	h.source.mu.Lock()
	defer h.source.mu.Unlock()
	assert.Equal(t, calls, h.source.calls, "no cycles after Stop")
}

// Offer, status and control loop goroutines racing on one registry
func TestConcurrentOperations(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()
	hosts := []string{"h1", "h2", "h3", "h4", "h5"}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			h.sched.ResourceOffers(ctx, batchOf(offer(hosts[i%len(hosts)], 1, 1024)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			state := types.TaskStateRunning
			if i%3 == 0 {
				state = types.TaskStateFinished
			}
			h.sched.StatusUpdate(ctx, types.StatusUpdate{TaskID: i % 20, State: state})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			h.source.set(sum(float64(i%5)*1500), nil)
			_, _ = h.sched.Tick(ctx)
		}
	}()
	wg.Wait()

	snap := h.sched.Snapshot()
	seen := make(map[string]bool)
	for _, task := range snap.Tasks {
		assert.False(t, seen[task.Host], "host %s carries two tasks", task.Host)
		seen[task.Host] = true
	}
}
