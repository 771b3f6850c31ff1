package history

import (
	"testing"
	"time"

	"github.com/cuemby/elbscaler/pkg/events"
	"github.com/cuemby/elbscaler/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, retain int) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), retain)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenDisabled(t *testing.T) {
	_, err := Open("", 0)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestDecisionsNewestFirst(t *testing.T) {
	store := openTestStore(t, 0)

	for desired := 1; desired <= 3; desired++ {
		require.NoError(t, store.AppendDecision(types.ScaleDecision{Desired: desired, Victims: []int{desired}}))
	}

	decisions, err := store.RecentDecisions(2)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, 3, decisions[0].Desired)
	assert.Equal(t, 2, decisions[1].Desired)
	assert.Equal(t, []int{2}, decisions[1].Victims)

	all, err := store.RecentDecisions(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRetention(t *testing.T) {
	store := openTestStore(t, 2)

	for desired := 1; desired <= 5; desired++ {
		require.NoError(t, store.AppendDecision(types.ScaleDecision{Desired: desired}))
	}

	decisions, err := store.RecentDecisions(0)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, 5, decisions[0].Desired)
	assert.Equal(t, 4, decisions[1].Desired)
}

func TestReopenKeepsRecords(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir, 0)
	require.NoError(t, err)
	require.NoError(t, store.AppendDecision(types.ScaleDecision{Desired: 7}))
	require.NoError(t, store.Close())

	store, err = Open(dir, 0)
	require.NoError(t, err)
	defer store.Close()

	decisions, err := store.RecentDecisions(1)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, 7, decisions[0].Desired)
}

func TestEventsDropPayload(t *testing.T) {
	store := openTestStore(t, 0)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendEvent(&events.Event{
		ID:        "e1",
		Type:      events.EventTaskKillRequested,
		Timestamp: ts,
		Message:   "kill requested for task 3",
		Metadata:  map[string]string{"task_id": "3"},
		Payload:   3,
	}))

	records, err := store.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, EventRecord{
		ID:        "e1",
		Type:      events.EventTaskKillRequested,
		Timestamp: ts,
		Message:   "kill requested for task 3",
		Metadata:  map[string]string{"task_id": "3"},
	}, records[0])
}

func TestRecorder(t *testing.T) {
	store := openTestStore(t, 0)
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	rec := NewRecorder(store, broker)
	rec.Start()

	broker.Publish(&events.Event{Type: events.EventTaskLaunched, Message: "task 0 launched on h1"})
	broker.Publish(&events.Event{Type: events.EventScaleDecided, Payload: types.ScaleDecision{Desired: 2, Counted: 1}})

	require.Eventually(t, func() bool {
		records, err := store.RecentEvents(0)
		return err == nil && len(records) == 2
	}, time.Second, 10*time.Millisecond)

	rec.Stop()
	rec.Stop()

	decisions, err := store.RecentDecisions(0)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, 2, decisions[0].Desired)

	records, err := store.RecentEvents(0)
	require.NoError(t, err)
	assert.Equal(t, events.EventScaleDecided, records[0].Type)
	assert.Equal(t, events.EventTaskLaunched, records[1].Type)
	assert.Equal(t, 0, broker.SubscriberCount())
}
