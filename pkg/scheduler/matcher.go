package scheduler

import (
	"fmt"
	"time"

	"github.com/cuemby/elbscaler/pkg/metrics"
	"github.com/cuemby/elbscaler/pkg/types"
)

// Offer rejection reasons, checked in this order
const (
	ReasonHostOccupied       = "host already occupied"
	ReasonQuotaSatisfied     = "quota satisfied"
	ReasonInsufficientMemory = "insufficient memory"
	ReasonInsufficientCPU    = "insufficient CPU"
)

// OfferDecision is the outcome for one offer in a batch
type OfferDecision struct {
	OfferID  string
	Host     string
	Accepted bool
	Reason   string // Empty when accepted
	TaskID   int    // Valid when accepted
}

// HandleOffers evaluates a batch of offers under one lock acquisition, so
// every offer in the batch sees the tasks accepted from earlier offers in
// the same batch. It always yields exactly one EffectReplyToOffers.
func (r *Registry) HandleOffers(batch *types.OfferBatch) ([]OfferDecision, []Effect) {
	r.mu.Lock()
	defer r.mu.Unlock()

	decisions := make([]OfferDecision, 0, len(batch.Offers))
	accepted := make([]*types.LaunchRequest, 0)

	for _, offer := range batch.Offers {
		reason := r.rejectReasonLocked(offer)
		if reason != "" {
			r.logger.Debug().
				Str("offer_id", offer.ID).
				Str("host", offer.Host).
				Float64("cpus", offer.CPUs).
				Float64("mem_mb", offer.MemMB).
				Str("reason", reason).
				Msg("Rejecting offer")
			metrics.OffersTotal.WithLabelValues("rejected", reason).Inc()
			decisions = append(decisions, OfferDecision{OfferID: offer.ID, Host: offer.Host, Reason: reason})
			continue
		}

		task := &types.Task{
			ID:        r.nextID,
			Name:      fmt.Sprintf("server %d", r.nextID),
			Host:      offer.Host,
			AgentID:   offer.AgentID,
			State:     types.TaskStatePending,
			CreatedAt: time.Now(),
		}
		r.tasks[task.ID] = task
		r.nextID++

		accepted = append(accepted, &types.LaunchRequest{
			TaskID:    task.ID,
			Name:      task.Name,
			OfferID:   offer.ID,
			AgentID:   offer.AgentID,
			Host:      offer.Host,
			Resources: r.policy.Reservation,
		})

		r.logger.Info().
			Int("task_id", task.ID).
			Str("host", offer.Host).
			Float64("cpus", r.policy.Reservation.CPUs).
			Float64("mem_mb", r.policy.Reservation.MemMB).
			Int("tracked", len(r.tasks)).
			Int("desired", r.desired).
			Msg("Accepting offer")
		metrics.OffersTotal.WithLabelValues("accepted", "").Inc()
		decisions = append(decisions, OfferDecision{OfferID: offer.ID, Host: offer.Host, Accepted: true, TaskID: task.ID})
	}

	return decisions, []Effect{replyEffect(batch, accepted)}
}

// rejectReasonLocked applies the rejection rules in order, first match wins
func (r *Registry) rejectReasonLocked(offer *types.Offer) string {
	if r.hostOccupiedLocked(offer.Host) {
		return ReasonHostOccupied
	}

	// Pending-kill tasks are still live here. Skipped on an empty registry
	// so the first offer is always eligible.
	live := len(r.tasks)
	if live >= r.desired && live > 0 {
		return ReasonQuotaSatisfied
	}

	if offer.MemMB < r.policy.MinMemMB {
		return ReasonInsufficientMemory
	}
	if offer.CPUs < r.policy.MinCPUs {
		return ReasonInsufficientCPU
	}
	return ""
}
