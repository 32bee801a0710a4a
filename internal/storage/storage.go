// Package storage persists feature tables and pipeline run reports in a
// single BoltDB file.
//
// Tables live in one nested bucket each, with rows keyed by their position
// so that load order matches save order. Runs are keyed by start time, which
// makes time-range listing a cursor seek.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	tablesBucket = "tables" // Parent bucket of one bucket per feature table
	runsBucket   = "runs"   // Bucket name for storing run reports
)

// Store provides persistent storage using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// RunRecord is one stored pipeline run. Report holds the run's JSON
// report verbatim.
type RunRecord struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Input     string          `json:"input"`
	Report    json.RawMessage `json:"report"`
}

// New opens or creates the database file at path, creating parent
// directories as needed.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(tablesBucket)); err != nil {
			return fmt.Errorf("create tables bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return fmt.Errorf("create runs bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. Closing twice is harmless.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func runKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", ts.UnixNano(), id))
}

// SaveRun stores a run record. Records with the same ID and timestamp are
// overwritten.
func (s *Store) SaveRun(record RunRecord) error {
	if record.ID == "" {
		return fmt.Errorf("run record needs an id")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal run record: %w", err)
		}
		return b.Put(runKey(record.Timestamp, record.ID), data)
	})
}

// ListRuns returns the runs started within [start, end], oldest first.
// Malformed records are skipped.
func (s *Store) ListRuns(start, end time.Time) ([]RunRecord, error) {
	var runs []RunRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()

		if start.Before(time.Unix(0, 0)) {
			start = time.Unix(0, 0)
		}
		startKey := []byte(fmt.Sprintf("%020d", start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%020d`", end.UnixNano())) // '`' sorts after '_'

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			var run RunRecord
			if err := json.Unmarshal(v, &run); err != nil {
				continue
			}
			runs = append(runs, run)
		}
		return nil
	})

	return runs, err
}

// GetRun returns the run with the given id.
func (s *Store) GetRun(id string) (RunRecord, error) {
	var run RunRecord
	found := false
	suffix := []byte("_" + id)

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).ForEach(func(k, v []byte) error {
			if found || !bytes.HasSuffix(k, suffix) {
				return nil
			}
			found = true
			return json.Unmarshal(v, &run)
		})
	})
	if err != nil {
		return RunRecord{}, err
	}
	if !found {
		return RunRecord{}, fmt.Errorf("run %s not found", id)
	}
	return run, nil
}
