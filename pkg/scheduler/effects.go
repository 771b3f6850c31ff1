package scheduler

import (
	"github.com/cuemby/elbscaler/pkg/types"
)

// EffectKind identifies an external action requested by the core
type EffectKind string

const (
	EffectReplyToOffers EffectKind = "reply_to_offers"
	EffectKill          EffectKind = "kill"
	EffectRegister      EffectKind = "register"
	EffectDeregister    EffectKind = "deregister"
)

// Effect is a side effect the registry asks the executor to perform once
// the registry lock has been released
type Effect struct {
	Kind EffectKind

	// Set for EffectReplyToOffers
	Batch    *types.OfferBatch
	Accepted []*types.LaunchRequest

	// Set for EffectKill
	TaskID  int
	AgentID string

	// Set for EffectRegister and EffectDeregister
	BackendIDs []string
}

func replyEffect(batch *types.OfferBatch, accepted []*types.LaunchRequest) Effect {
	return Effect{Kind: EffectReplyToOffers, Batch: batch, Accepted: accepted}
}

func killEffect(task *types.Task) Effect {
	return Effect{Kind: EffectKill, TaskID: task.ID, AgentID: task.AgentID}
}

func registerEffect(ids ...string) Effect {
	return Effect{Kind: EffectRegister, BackendIDs: ids}
}

func deregisterEffect(ids ...string) Effect {
	return Effect{Kind: EffectDeregister, BackendIDs: ids}
}

// filterEffects returns the effects of the given kind, used by tests and logging
func filterEffects(effects []Effect, kind EffectKind) []Effect {
	var out []Effect
	for _, e := range effects {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
