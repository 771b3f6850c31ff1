package scheduler

import (
	"math"
	"time"

	"github.com/cuemby/elbscaler/pkg/types"
)

// ComputeDesired derives the desired replica count from request samples.
// An empty window yields the floor; otherwise the latest sample's sum is
// divided by the per-backend target and floored, never below the floor.
func ComputeDesired(samples []types.Sample, targetPerBackend float64, floor int) int {
	if floor < 1 {
		floor = 1
	}
	latest, ok := latestSample(samples)
	if !ok || targetPerBackend <= 0 {
		return floor
	}

	n := math.Floor(latest.Sum / targetPerBackend)
	if math.IsNaN(n) || n < float64(floor) {
		return floor
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

// latestSample returns the sample with the newest timestamp. Ties keep the
// first one seen.
func latestSample(samples []types.Sample) (types.Sample, bool) {
	if len(samples) == 0 {
		return types.Sample{}, false
	}
	latest := samples[0]
	for _, s := range samples[1:] {
		if s.Timestamp.After(latest.Timestamp) {
			latest = s
		}
	}
	return latest, true
}

// Rescale sets the desired count from samples and, if more tasks are
// counted than desired, marks the excess as pending kill. Victims are the
// lowest task ids. Registered victims are deregistered before the kill.
func (r *Registry) Rescale(samples []types.Sample) (types.ScaleDecision, []Effect) {
	desired := ComputeDesired(samples, r.policy.TargetPerBackend, r.policy.floor())

	r.mu.Lock()
	defer r.mu.Unlock()

	decision := types.ScaleDecision{
		Time:     time.Now(),
		Samples:  len(samples),
		Previous: r.desired,
		Desired:  desired,
	}
	if latest, ok := latestSample(samples); ok {
		decision.RequestSum = latest.Sum
	}

	if desired != r.desired {
		r.logger.Info().
			Int("previous", r.desired).
			Int("desired", desired).
			Float64("request_sum", decision.RequestSum).
			Msg("Desired replica count changed")
	}
	r.desired = desired

	counted := r.countedLocked()
	decision.Counted = len(counted)

	var effects []Effect
	if excess := len(counted) - desired; excess > 0 {
		victims := counted[:excess]

		var backends []string
		for _, task := range victims {
			if task.Registered {
				backends = append(backends, task.BackendID)
				task.Registered = false
			}
		}
		if len(backends) > 0 {
			effects = append(effects, deregisterEffect(backends...))
		}

		for _, task := range victims {
			r.pendingKill[task.ID] = struct{}{}
			decision.Victims = append(decision.Victims, task.ID)
			effects = append(effects, killEffect(task))
			r.logger.Info().
				Int("task_id", task.ID).
				Str("host", task.Host).
				Msg("Scaling down, killing task")
		}
	}

	decision.PendingKill = len(r.pendingKill)
	return decision, effects
}
