package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer measures one operation for a histogram
type Timer struct {
	start time.Time
	now   func() time.Time
}

// NewTimer starts a timer on the wall clock
func NewTimer() *Timer {
	return newTimerWithClock(time.Now)
}

func newTimerWithClock(now func() time.Time) *Timer {
	return &Timer{start: now(), now: now}
}

// Duration returns the time elapsed since the timer started
func (t *Timer) Duration() time.Duration {
	return t.now().Sub(t.start)
}

// ObserveDuration records the elapsed time in seconds on h
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}
