// Package sendlog persists per-unit dispatch outcomes so they survive
// restarts. The job registry itself stays in-memory; this is the durable
// audit trail next to it.
package sendlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Entry is one recorded dispatch outcome.
type Entry struct {
	Ref       string    `json:"ref"` // recipient email or batch reference
	Provider  string    `json:"provider"`
	Status    string    `json:"status"` // sent, failed
	MessageID string    `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Log is a bbolt-backed send log, one bucket per job id.
type Log struct {
	db *bolt.DB
}

// Open opens (or creates) the send log database at path.
func Open(path string) (*Log, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sendlog directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sendlog database: %w", err)
	}

	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}

// Record appends an entry under the job's bucket. A nil log is a no-op so
// callers need no enabled checks.
func (l *Log) Record(jobID string, e Entry) error {
	if l == nil {
		return nil
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	return l.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(jobID))
		if err != nil {
			return fmt.Errorf("failed to create job bucket: %w", err)
		}

		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}

		// Sequence-prefixed keys keep entries in append order even when
		// several refs collide within the same job.
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := []byte(fmt.Sprintf("%08d:%s", seq, e.Ref))
		return b.Put(key, data)
	})
}

// Entries returns all entries for a job in append order. Unknown jobs get an
// empty slice.
func (l *Log) Entries(jobID string) ([]Entry, error) {
	if l == nil {
		return nil, nil
	}

	var out []Entry
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(jobID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("failed to unmarshal entry: %w", err)
			}
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
