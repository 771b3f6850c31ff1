package history

import (
	"sync"

	"github.com/cuemby/elbscaler/pkg/events"
	"github.com/cuemby/elbscaler/pkg/log"
	"github.com/cuemby/elbscaler/pkg/types"
	"github.com/rs/zerolog"
)

// Recorder journals every event published on a broker
type Recorder struct {
	store  *Store
	broker *events.Broker
	logger zerolog.Logger

	sub      events.Subscriber
	done     chan struct{}
	stopOnce sync.Once
}

// NewRecorder creates a recorder writing to store
func NewRecorder(store *Store, broker *events.Broker) *Recorder {
	return &Recorder{
		store:  store,
		broker: broker,
		logger: log.WithComponent("history"),
		done:   make(chan struct{}),
	}
}

// Start subscribes to the broker and begins recording
func (r *Recorder) Start() {
	r.sub = r.broker.Subscribe()
	go r.run()
}

// Stop unsubscribes and waits for queued events to be written
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		r.broker.Unsubscribe(r.sub)
		<-r.done
	})
}

func (r *Recorder) run() {
	defer close(r.done)

	for event := range r.sub {
		r.record(event)
	}
}

func (r *Recorder) record(event *events.Event) {
	if decision, ok := event.Payload.(types.ScaleDecision); ok {
		if err := r.store.AppendDecision(decision); err != nil {
			r.logger.Error().Err(err).Msg("Failed to journal scale decision")
		}
	}
	if err := r.store.AppendEvent(event); err != nil {
		r.logger.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to journal event")
	}
}
