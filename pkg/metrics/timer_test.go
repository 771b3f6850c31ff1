package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type recordingObserver struct{ values []float64 }

func (o *recordingObserver) Observe(v float64) { o.values = append(o.values, v) }

func TestTimerDuration(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	timer := newTimerWithClock(clock.now)

	assert.Zero(t, timer.Duration())
	clock.advance(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, timer.Duration())
}

func TestTimerObserveDuration(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	timer := newTimerWithClock(clock.now)
	obs := &recordingObserver{}

	clock.advance(250 * time.Millisecond)
	timer.ObserveDuration(obs)
	clock.advance(250 * time.Millisecond)
	timer.ObserveDuration(obs)

	assert.Equal(t, []float64{0.25, 0.5}, obs.values)
}

func TestNewTimerUsesWallClock(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), 5*time.Millisecond)
}
