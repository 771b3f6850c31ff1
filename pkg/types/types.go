package types

import (
	"fmt"
	"time"
)

// TaskState represents the lifecycle state of a task
type TaskState string

const (
	TaskStatePending  TaskState = "pending"
	TaskStateStarting TaskState = "starting"
	TaskStateRunning  TaskState = "running"
	TaskStateFinished TaskState = "finished"
	TaskStateFailed   TaskState = "failed"
	TaskStateKilled   TaskState = "killed"
	TaskStateLost     TaskState = "lost"
)

// IsTerminal reports whether a task in this state is no longer tracked
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateFinished, TaskStateFailed, TaskStateKilled, TaskStateLost:
		return true
	}
	return false
}

// Valid reports whether s is one of the known states
func (s TaskState) Valid() bool {
	switch s {
	case TaskStatePending, TaskStateStarting, TaskStateRunning:
		return true
	}
	return s.IsTerminal()
}

// Task is one web server instance placed on a host
type Task struct {
	ID         int       `json:"id"`
	Name       string    `json:"name"`
	Host       string    `json:"host"`
	AgentID    string    `json:"agent_id,omitempty"`
	State      TaskState `json:"state"`
	BackendID  string    `json:"backend_id,omitempty"` // Load balancer backend, set once registered
	Registered bool      `json:"registered"`
	CreatedAt  time.Time `json:"created_at"`
}

// Offer is a single slot of capacity proposed by the cluster manager
type Offer struct {
	ID      string  `json:"id"`
	AgentID string  `json:"agent_id"`
	Host    string  `json:"host"`
	CPUs    float64 `json:"cpus"`
	MemMB   float64 `json:"mem_mb"`
}

// OfferBatch is the set of offers delivered in one notification
type OfferBatch struct {
	ID     string   `json:"id"`
	Offers []*Offer `json:"offers"`
}

// Resources is a CPU and memory reservation
type Resources struct {
	CPUs  float64 `json:"cpus"`
	MemMB float64 `json:"mem_mb"`
}

// LaunchRequest asks the cluster manager to start a task on an accepted offer
type LaunchRequest struct {
	TaskID    int       `json:"task_id"`
	Name      string    `json:"name"`
	OfferID   string    `json:"offer_id"`
	AgentID   string    `json:"agent_id"`
	Host      string    `json:"host"`
	Resources Resources `json:"resources"`
	Payload   []byte    `json:"payload,omitempty"`
}

// StatusUpdate is a task state notification from the cluster manager
type StatusUpdate struct {
	TaskID  int       `json:"task_id"`
	State   TaskState `json:"state"`
	AgentID string    `json:"agent_id,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Sample is one datapoint of the request count metric
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Sum       float64   `json:"sum"`
}

// ScaleDecision records the outcome of one control loop cycle
type ScaleDecision struct {
	Time        time.Time `json:"time"`
	Samples     int       `json:"samples"`
	RequestSum  float64   `json:"request_sum"`
	Previous    int       `json:"previous"`
	Desired     int       `json:"desired"`
	Counted     int       `json:"counted"`
	PendingKill int       `json:"pending_kill"`
	Victims     []int     `json:"victims,omitempty"`
}

// Snapshot is a point-in-time copy of the scheduler state
type Snapshot struct {
	Desired     int     `json:"desired"`
	Tasks       []*Task `json:"tasks"`
	PendingKill []int   `json:"pending_kill"`
	NextID      int     `json:"next_id"`
}

// LaunchError reports the launches a reply to offers failed to deliver.
// Launches not listed reached the cluster manager.
type LaunchError struct {
	TaskIDs []int
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch tasks %v: %v", e.TaskIDs, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
