package events

import (
	"sync"
	"time"

	"github.com/cuemby/elbscaler/pkg/metrics"
	"github.com/google/uuid"
)

// EventType names a scheduler lifecycle event
type EventType string

const (
	EventTaskLaunched      EventType = "task.launched"
	EventTaskRunning       EventType = "task.running"
	EventTaskTerminated    EventType = "task.terminated"
	EventTaskKillRequested EventType = "task.kill_requested"
	EventBackendRegistered EventType = "backend.registered"
	EventBackendRemoved    EventType = "backend.deregistered"
	EventScaleDecided      EventType = "scale.decided"
)

const (
	defaultQueueSize      = 100
	defaultSubscriberSize = 50
)

// Event is one observation of a scheduler side effect
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// Payload carries the typed value the event describes, if any
	Payload interface{} `json:"payload,omitempty"`
}

// Subscriber receives events. The broker closes it on Unsubscribe.
type Subscriber chan *Event

// filter is the set of types a subscriber wants; nil means all
type filter map[EventType]struct{}

func (f filter) accepts(t EventType) bool {
	if f == nil {
		return true
	}
	_, ok := f[t]
	return ok
}

// Broker fans published events out to subscribers from a single goroutine,
// so every subscriber sees events in publish order.
type Broker struct {
	mu             sync.RWMutex
	subs           map[Subscriber]filter
	subscriberSize int

	queue    chan *Event
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option configures a Broker
type Option func(*Broker)

// WithQueueSize sets how many events Publish buffers before dropping
func WithQueueSize(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.queue = make(chan *Event, n)
		}
	}
}

// WithSubscriberBuffer sets the channel buffer of new subscriptions
func WithSubscriberBuffer(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.subscriberSize = n
		}
	}
}

// NewBroker creates a broker. Call Start to begin delivery.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		subs:           make(map[Subscriber]filter),
		subscriberSize: defaultSubscriberSize,
		queue:          make(chan *Event, defaultQueueSize),
		stopCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start runs the delivery loop in a goroutine
func (b *Broker) Start() {
	go b.deliver()
}

// Stop ends delivery. Events still queued are discarded. Safe to call twice.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe registers a new subscriber. With no types it receives every
// event; otherwise only the listed types.
func (b *Broker) Subscribe(types ...EventType) Subscriber {
	var f filter
	if len(types) > 0 {
		f = make(filter, len(types))
		for _, t := range types {
			f[t] = struct{}{}
		}
	}

	sub := make(Subscriber, b.subscriberSize)
	b.mu.Lock()
	b.subs[sub] = f
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes and closes sub. Unknown subscribers are ignored.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub)
}

// Publish stamps the event with an id and time when unset and queues it.
// It never blocks; a full queue drops the event.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-b.stopCh:
		return
	default:
	}

	select {
	case b.queue <- event:
	default:
		metrics.EventsDroppedTotal.WithLabelValues("queue").Inc()
	}
}

func (b *Broker) deliver() {
	for {
		select {
		case <-b.stopCh:
			return
		case event := <-b.queue:
			b.fanOut(event)
		}
	}
}

func (b *Broker) fanOut(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, f := range b.subs {
		if !f.accepts(event.Type) {
			continue
		}
		select {
		case sub <- event:
		default:
			metrics.EventsDroppedTotal.WithLabelValues("subscriber").Inc()
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
