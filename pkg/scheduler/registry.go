package scheduler

import (
	"sort"
	"sync"

	"github.com/cuemby/elbscaler/pkg/log"
	"github.com/cuemby/elbscaler/pkg/membership"
	"github.com/cuemby/elbscaler/pkg/types"
	"github.com/rs/zerolog"
)

// Policy holds the fixed thresholds the registry decides with
type Policy struct {
	// Reservation is what every launched task asks for
	Reservation types.Resources

	// Offers below these are rejected
	MinCPUs  float64
	MinMemMB float64

	// MinReplicas is the floor for the desired count, never below 1
	MinReplicas int

	// TargetPerBackend is the request count one backend should serve per period
	TargetPerBackend float64
}

// DefaultPolicy returns the thresholds of the original elb+apache framework
func DefaultPolicy() Policy {
	return Policy{
		Reservation:      types.Resources{CPUs: 1, MemMB: 1024},
		MinCPUs:          1,
		MinMemMB:         1024,
		MinReplicas:      1,
		TargetPerBackend: 25 * 60,
	}
}

func (p Policy) floor() int {
	if p.MinReplicas < 1 {
		return 1
	}
	return p.MinReplicas
}

// Registry is the scheduler state: tracked tasks, the desired replica
// count and the pending-kill set. One mutex guards all three because the
// host uniqueness and pending-kill invariants span them.
//
// Every exported operation takes the lock for its whole critical section
// and returns the external effects to perform after it is released.
type Registry struct {
	mu          sync.Mutex
	tasks       map[int]*types.Task
	nextID      int
	desired     int
	pendingKill map[int]struct{}

	policy   Policy
	resolver membership.Resolver
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry with the desired count at the floor
func NewRegistry(policy Policy, resolver membership.Resolver) *Registry {
	if resolver == nil {
		resolver = membership.StaticResolver{}
	}
	return &Registry{
		tasks:       make(map[int]*types.Task),
		desired:     policy.floor(),
		pendingKill: make(map[int]struct{}),
		policy:      policy,
		resolver:    resolver,
		logger:      log.WithComponent("registry"),
	}
}

// Desired returns the current desired replica count
func (r *Registry) Desired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.desired
}

// Task returns a copy of a tracked task
func (r *Registry) Task(id int) (types.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return types.Task{}, false
	}
	return *task, true
}

// IsPendingKill reports whether a kill has been requested for the task
func (r *Registry) IsPendingKill(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pendingKill[id]
	return ok
}

// Snapshot returns a consistent copy of the registry, tasks ordered by id
func (r *Registry) Snapshot() types.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := types.Snapshot{
		Desired:     r.desired,
		Tasks:       make([]*types.Task, 0, len(r.tasks)),
		PendingKill: make([]int, 0, len(r.pendingKill)),
		NextID:      r.nextID,
	}
	for _, id := range r.sortedIDsLocked() {
		task := *r.tasks[id]
		snap.Tasks = append(snap.Tasks, &task)
	}
	for id := range r.pendingKill {
		snap.PendingKill = append(snap.PendingKill, id)
	}
	sort.Ints(snap.PendingKill)
	return snap
}

// AbandonLaunches drops tasks whose launch never reached the cluster
// manager. Only tasks still pending are dropped; ids that have since
// reported any status are kept. It returns the dropped ids.
func (r *Registry) AbandonLaunches(ids []int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var dropped []int
	for _, id := range ids {
		task, ok := r.tasks[id]
		if !ok || task.State != types.TaskStatePending {
			continue
		}
		r.removeLocked(id)
		dropped = append(dropped, id)
	}
	return dropped
}

// hostOccupiedLocked reports whether a live task is placed on host
func (r *Registry) hostOccupiedLocked(host string) bool {
	for _, task := range r.tasks {
		if task.Host == host {
			return true
		}
	}
	return false
}

// countedLocked returns the live tasks not pending kill, lowest id first
func (r *Registry) countedLocked() []*types.Task {
	var counted []*types.Task
	for _, id := range r.sortedIDsLocked() {
		if _, killing := r.pendingKill[id]; killing {
			continue
		}
		counted = append(counted, r.tasks[id])
	}
	return counted
}

func (r *Registry) sortedIDsLocked() []int {
	ids := make([]int, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// removeLocked drops a task and its pending-kill membership together
func (r *Registry) removeLocked(id int) {
	delete(r.tasks, id)
	delete(r.pendingKill, id)
}
