/*
Package types defines the value types shared by the elbscaler packages.

None of these types carry behavior beyond small helpers. The scheduler owns
Task records exclusively; other packages only ever see copies (Snapshot) or
the messages that cross the driver boundary. Keeping the types in a leaf
package lets the scheduler core, the Mesos driver, the journal and the
HTTP API agree on one vocabulary without importing each other.

# Type Overview

	cluster manager ──► OfferBatch{Offer...} ──► scheduler
	                                                │
	cluster manager ◄── LaunchRequest ◄─────────────┤
	                                                │
	cluster manager ──► StatusUpdate ──────────────►│ Task (owned)
	                                                │
	metrics source  ──► Sample... ─────────────────►│
	                                                │
	journal, API    ◄── ScaleDecision, Snapshot ◄───┘

Cluster manager inputs:
  - Offer: one slot of capacity on one host
  - OfferBatch: the offers delivered in one notification
  - StatusUpdate: a task state notification

Scheduler outputs:
  - LaunchRequest: an accepted offer turned into a task launch
  - LaunchError: the launches a reply failed to deliver

Autoscaling:
  - Sample: one request count datapoint from the metrics source
  - ScaleDecision: the outcome of one control loop cycle

Observation:
  - Task: one web server instance and its placement
  - Snapshot: a point in time copy of the whole registry

# Task lifecycle

	pending ──► starting ──► running ──► finished | failed | killed | lost
	   │                        ▲
	   └────────────────────────┘

A task enters pending when its offer is accepted and leaves the registry on
any terminal state. The starting state is an annotation only; it does not
release the host. The driver folds staging into starting and every lost,
error, dropped or gone state into lost. States with no equivalent here,
such as killing or unreachable, never reach the scheduler.

IsTerminal reports the four states that remove a task. Valid additionally
accepts the three live states and is used when decoding states from
configuration or the wire.

# Task

	ID          dense integer, assigned from a counter starting at 0
	Name        "server <id>"
	Host        the host of the accepted offer
	AgentID     the cluster manager agent, needed to kill the task
	State       the last state reported
	BackendID   the load balancer backend, set once the host resolves
	Registered  whether the backend is currently in the load balancer
	CreatedAt   when the offer was accepted

BackendID outlives Registered. A scale-down victim is deregistered first,
which clears Registered, and keeps its BackendID so that its terminal
status can deregister it again.

# Offers and Launches

Offer resources are the sums of every "cpus" and "mem" scalar the cluster
manager attached to the offer. A LaunchRequest reserves the configured
Resources, not the whole offer, and names exactly one offer.

LaunchError lists the task ids whose launch never reached the cluster
manager. Launches not listed were delivered, so callers must only abandon
the listed ones:

	var launchErr *types.LaunchError
	if errors.As(err, &launchErr) {
		registry.AbandonLaunches(launchErr.TaskIDs)
	}

# Scale Decisions

A ScaleDecision is produced by every successful control loop cycle,
including cycles that change nothing:

	Samples      datapoints returned by the metrics query
	RequestSum   the sum of the most recent sample
	Previous     the desired count before this cycle
	Desired      the desired count after this cycle
	Counted      live tasks not pending kill
	PendingKill  tasks waiting for a terminal status after a kill
	Victims      tasks killed by this cycle, lowest id first

A failed metrics query produces no decision.

# Serialization

Every type carries json tags. They are the stored form in the decision
journal and the response form of the HTTP API, so renaming a tag breaks
journals written by older versions. Payload on LaunchRequest is opaque to
the scheduler and omitted when empty.
*/
package types
