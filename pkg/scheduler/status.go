package scheduler

import (
	"github.com/cuemby/elbscaler/pkg/log"
	"github.com/cuemby/elbscaler/pkg/metrics"
	"github.com/cuemby/elbscaler/pkg/types"
)

// StatusResult describes what a status update did to the registry
type StatusResult struct {
	Known bool
	Task  types.Task // Copy of the task after the transition
	// Removed is true when the update was terminal and dropped the task
	Removed bool
}

// HandleStatus applies one task status notification.
//
// Unknown ids are ignored, which makes duplicate and out-of-order updates
// safe. Terminal states drop the task and its pending-kill membership in the
// same critical section that decides whether to deregister its backend.
func (r *Registry) HandleStatus(update types.StatusUpdate) (StatusResult, []Effect) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger := r.logger.With().Int("task_id", update.TaskID).Str("state", string(update.State)).Logger()

	task, ok := r.tasks[update.TaskID]
	if !ok {
		metrics.StatusUpdatesTotal.WithLabelValues(string(update.State), "false").Inc()
		logger.Info().Msg("Ignoring status update for untracked task")
		return StatusResult{}, nil
	}
	metrics.StatusUpdatesTotal.WithLabelValues(string(update.State), "true").Inc()

	var effects []Effect

	switch {
	case update.State == types.TaskStateStarting:
		// Annotation only, the host stays occupied
		if task.State == types.TaskStatePending {
			task.State = types.TaskStateStarting
		}
		logger.Info().Str("host", task.Host).Msg("Task is starting")

	case update.State == types.TaskStateRunning:
		task.State = types.TaskStateRunning
		effects = r.registerLocked(task)

	case update.State.IsTerminal():
		task.State = update.State
		// A scale-down victim was already deregistered; removal is idempotent
		// and repeating it covers a register that landed after that
		if task.BackendID != "" {
			effects = append(effects, deregisterEffect(task.BackendID))
			task.Registered = false
		}
		_, killed := r.pendingKill[task.ID]
		r.removeLocked(task.ID)
		logger.Info().
			Str("host", task.Host).
			Bool("requested_kill", killed).
			Str("message", update.Message).
			Int("tracked", len(r.tasks)).
			Msg("Task terminated")
		return StatusResult{Known: true, Task: *task, Removed: true}, effects

	default:
		logger.Info().Msg("Ignoring unexpected task state")
	}

	return StatusResult{Known: true, Task: *task}, effects
}

// registerLocked resolves the task host and asks for load balancer
// registration. A resolution miss keeps the task tracked and counted.
func (r *Registry) registerLocked(task *types.Task) []Effect {
	logger := log.ForTask(r.logger, task.ID, task.Host)

	if task.Registered {
		return nil
	}
	if _, killing := r.pendingKill[task.ID]; killing {
		logger.Info().Msg("Task is running but a kill is pending, not registering")
		return nil
	}

	backendID, ok := r.resolver.Resolve(task.Host)
	if !ok {
		metrics.ResolutionMissesTotal.Inc()
		logger.Error().Msg("No backend identifier for host, task will not receive traffic")
		return nil
	}

	task.BackendID = backendID
	task.Registered = true
	logger.Info().Str("backend_id", backendID).Msg("Task is running, adding backend to load balancer")
	return []Effect{registerEffect(backendID)}
}
