package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/elbscaler/pkg/events"
	"github.com/cuemby/elbscaler/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// ErrDisabled is returned by Open when no data directory is configured
var ErrDisabled = errors.New("history journal disabled")

var (
	// Bucket names
	bucketDecisions = []byte("decisions")
	bucketEvents    = []byte("events")
)

// DefaultRetain is the number of records kept per bucket when Open is given zero
const DefaultRetain = 10000

// EventRecord is the stored form of a lifecycle event
type EventRecord struct {
	ID        string            `json:"id"`
	Type      events.EventType  `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Store is an append-only journal of scale decisions and lifecycle
// events backed by BoltDB. Keys are big-endian sequence numbers so a
// cursor walks records in append order. Only the newest Retain records
// of each bucket are kept.
type Store struct {
	db     *bolt.DB
	retain uint64
}

// Open opens or creates the journal in dataDir
func Open(dataDir string, retain int) (*Store, error) {
	if dataDir == "" {
		return nil, ErrDisabled
	}
	if retain <= 0 {
		retain = DefaultRetain
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "elbscaler.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketDecisions, bucketEvents} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, retain: uint64(retain)}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendDecision journals one control loop decision
func (s *Store) AppendDecision(decision types.ScaleDecision) error {
	return s.append(bucketDecisions, decision)
}

// AppendEvent journals a lifecycle event. The payload is not stored.
func (s *Store) AppendEvent(event *events.Event) error {
	return s.append(bucketEvents, EventRecord{
		ID:        event.ID,
		Type:      event.Type,
		Timestamp: event.Timestamp,
		Message:   event.Message,
		Metadata:  event.Metadata,
	})
}

// RecentDecisions returns up to n decisions, newest first. n <= 0 returns all.
func (s *Store) RecentDecisions(n int) ([]types.ScaleDecision, error) {
	var decisions []types.ScaleDecision
	err := s.recent(bucketDecisions, n, func(v []byte) error {
		var d types.ScaleDecision
		if err := json.Unmarshal(v, &d); err != nil {
			return err
		}
		decisions = append(decisions, d)
		return nil
	})
	return decisions, err
}

// RecentEvents returns up to n events, newest first. n <= 0 returns all.
func (s *Store) RecentEvents(n int) ([]EventRecord, error) {
	var records []EventRecord
	err := s.recent(bucketEvents, n, func(v []byte) error {
		var r EventRecord
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		records = append(records, r)
		return nil
	})
	return records, err
}

func (s *Store) append(bucket []byte, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(itob(seq), data); err != nil {
			return err
		}
		// Sequences are dense, so dropping one key per append holds the bucket at retain
		if seq > s.retain {
			return b.Delete(itob(seq - s.retain))
		}
		return nil
	})
}

func (s *Store) recent(bucket []byte, n int, fn func(v []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		count := 0
		for k, v := c.Last(); k != nil && (n <= 0 || count < n); k, v = c.Prev() {
			if err := fn(v); err != nil {
				return err
			}
			count++
		}
		return nil
	})
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
