/*
Package events carries scheduler lifecycle events to asynchronous consumers.

The scheduler publishes an event for every side effect it executes: a task
launched, a backend registered or removed, a kill requested, a scale
decision made. Consumers observe what the scheduler did without being able
to slow it down. The decision journal in package history is the main
consumer; tests subscribe to assert on the exact sequence of side effects.

# Architecture

One broker, one delivery goroutine, many buffered subscriber channels:

	Scheduler (offer, status and control loop goroutines)
	       │ Publish (never blocks)
	       ▼
	┌──────────────────────────────┐
	│ queue (buffer: 100)          │── full ──► dropped{stage="queue"}
	└──────────────┬───────────────┘
	               │ single delivery goroutine
	               ▼
	┌──────────────────────────────┐
	│ fan out, filtered by type    │
	└───┬──────────────┬───────────┘
	    ▼              ▼
	subscriber     subscriber        ── full ──► dropped{stage="subscriber"}
	(buffer: 50)   (buffer: 50)

The delivery goroutine is the only writer to subscriber channels. Because
it takes events off the queue one at a time, every subscriber observes
events in the order they were published, even when several scheduler
goroutines publish concurrently.

# Event Types

Task lifecycle:
  - task.launched: an accepted offer was sent to the cluster manager
  - task.running: a task reported TASK_RUNNING
  - task.terminated: a task reached a terminal state and left the registry
  - task.kill_requested: a scale-down kill reached the cluster manager

Load balancer membership:
  - backend.registered: a backend was added to the load balancer
  - backend.deregistered: a backend was removed from the load balancer

Autoscaling:
  - scale.decided: one control loop cycle finished

Events are published only after the side effect was attempted. A launch
the cluster manager rejected produces no task.launched event, and a kill
call that failed produces no task.kill_requested event.

# Event

Each event carries:
  - ID: a random UUID assigned by Publish when unset
  - Type: one of the types above
  - Timestamp: assigned by Publish when unset
  - Message: a short human readable description
  - Metadata: task_id and host when the event concerns a task
  - Payload: the typed value the event describes

Payload types by event:

	task.launched          *types.LaunchRequest
	task.running           types.Task
	task.terminated        types.Task
	task.kill_requested    int (task id)
	backend.registered     []string (backend ids)
	backend.deregistered   []string (backend ids)
	scale.decided          types.ScaleDecision

Payloads are shared between subscribers and must be treated as read-only.
They are never serialized by the journal; only the other fields are stored.

# Subscriptions

A subscriber is a buffered channel of *Event. Subscribe with no arguments
receives every event. Passing types restricts delivery to those types; the
filter is applied on the delivery goroutine, so filtered events never
occupy the subscriber buffer.

Unsubscribe removes the subscriber and closes its channel, which ends a
range loop over it. Unsubscribing twice, or unsubscribing a channel the
broker never created, is a no-op.

# Delivery Guarantees

Publish never blocks the caller. The scheduler publishes while holding its
membership ordering lock, so a blocking publish would stall the status
handler and the control loop behind a slow consumer.

The cost is that delivery is best effort:
  - A full queue drops the event before any subscriber sees it
  - A full subscriber buffer drops the event for that subscriber only
  - Stop discards queued events that were not yet delivered
  - Publish after Stop is ignored

Every drop increments elbscaler_events_dropped_total with a stage label of
"queue" or "subscriber". Events are an observation channel and never a
source of truth for scheduler state; the registry snapshot is.

# Usage

Creating and starting a broker:

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

Sizing the buffers for a bursty consumer:

	broker := events.NewBroker(
		events.WithQueueSize(1000),
		events.WithSubscriberBuffer(500),
	)

Following scale decisions only:

	decisions := broker.Subscribe(events.EventScaleDecided)
	defer broker.Unsubscribe(decisions)

	go func() {
		for event := range decisions {
			decision := event.Payload.(types.ScaleDecision)
			fmt.Printf("%s desired=%d counted=%d\n",
				event.Timestamp.Format(time.RFC3339), decision.Desired, decision.Counted)
		}
	}()

Watching load balancer membership:

	sub := broker.Subscribe(events.EventBackendRegistered, events.EventBackendRemoved)
	for event := range sub {
		ids := event.Payload.([]string)
		log.Logger.Info().Str("event_type", string(event.Type)).Strs("backends", ids).Msg("Membership changed")
	}

# Testing

Tests that assert on event order start a broker, subscribe before driving
the scheduler and read with a timeout:

	sub := broker.Subscribe()
	sched.ResourceOffers(ctx, batch)

	select {
	case ev := <-sub:
		assert.Equal(t, events.EventTaskLaunched, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}

Passing a nil broker to the scheduler disables publishing entirely.

# Troubleshooting

Events missing from the journal:
  - Check elbscaler_events_dropped_total for the stage that dropped them
  - A "subscriber" stage count means the journal writes are slower than
    the event rate; raise the subscriber buffer
  - A "queue" stage count means the delivery goroutine is behind

No events at all:
  - Start was never called on the broker
  - The subscriber filter names a type that is never published
*/
package events
