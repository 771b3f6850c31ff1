/*
Package history journals scale decisions and task lifecycle events to a
local BoltDB file for later inspection with `elbscaler history`.

The journal answers questions the live metrics cannot: why the scheduler
killed two backends at 03:10, which host a failed task ran on, how the
request count moved across the last hundred cycles. It is write-only at
runtime. Nothing is restored from it on start, because the registry is
rebuilt from the cluster manager and a replayed desired count would be
stale the moment the next metrics sample arrives.

# Architecture

	Scheduler ──Publish──► events.Broker
	                            │ Subscribe (all types)
	                            ▼
	                     ┌─────────────┐
	                     │  Recorder   │ one goroutine
	                     └──────┬──────┘
	                            │ AppendDecision / AppendEvent
	                            ▼
	           ┌──────────────────────────────────┐
	           │ <data_dir>/elbscaler.db (BoltDB) │
	           │                                  │
	           │  decisions   seq → ScaleDecision │
	           │  events      seq → EventRecord   │
	           └──────────────────────────────────┘
	                            ▲
	                            │ RecentDecisions / RecentEvents
	                     elbscaler history

# Core Components

Store:
  - Opens or creates elbscaler.db under the configured data directory
  - Holds two buckets, decisions and events
  - Keys are big-endian BoltDB sequence numbers, so a cursor walks
    records in append order and Last/Prev walks them newest first
  - Values are JSON

Recorder:
  - Subscribes to every event type on the broker
  - Writes each event to the events bucket
  - Additionally writes the decision of a scale.decided event to the
    decisions bucket
  - Logs and skips records that fail to write

EventRecord:
  - The stored form of an events.Event
  - Drops the Payload, which is an in-memory value with no stable encoding

# Retention

Each bucket keeps only its newest Retain records (default 10000). Because
sequence numbers are dense, every append past the limit deletes exactly
the key Retain positions behind it inside the same transaction, so a
bucket never exceeds its limit and no background compaction runs.

BoltDB does not shrink its file when keys are deleted; freed pages are
reused by later appends. A journal therefore grows to the size of its
retention window and stays there.

# Configuration

The journal is disabled unless a data directory is set:

	history:
	  data_dir: /var/lib/elbscaler
	  retain: 10000

or on the command line with --data-dir. Open returns ErrDisabled for an
empty directory, which the run command treats as "journal off" rather
than as a failure.

# Locking

BoltDB takes an exclusive file lock. A second process opening the same
file waits one second and then fails. `elbscaler history` therefore
cannot read the journal of a running scheduler on the same data
directory; copy the file or point the command at a stopped instance.

# Usage

Recording a running scheduler:

	store, err := history.Open(cfg.History.DataDir, cfg.History.Retain)
	switch {
	case errors.Is(err, history.ErrDisabled):
		// journal off
	case err != nil:
		return err
	default:
		defer store.Close()
		recorder := history.NewRecorder(store, broker)
		recorder.Start()
		defer recorder.Stop()
	}

Reading the newest decisions:

	decisions, err := store.RecentDecisions(20)
	if err != nil {
		return err
	}
	for _, d := range decisions {
		fmt.Printf("%s sum=%.0f desired=%d victims=%v\n",
			d.Time.Format(time.RFC3339), d.RequestSum, d.Desired, d.Victims)
	}

From the command line:

	elbscaler history --data-dir /var/lib/elbscaler -n 50
	elbscaler history --data-dir /var/lib/elbscaler --events

# Shutdown

Recorder.Stop unsubscribes from the broker, which closes the subscriber
channel, and waits until every event already buffered on it is written.
Stop the recorder before closing the store.

# Limitations

The journal sees only what the broker delivers. Events dropped by a full
broker queue or subscriber buffer are never written; the drop shows up in
elbscaler_events_dropped_total instead.
*/
package history
