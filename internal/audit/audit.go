// Package audit records merge-engine operations to an append-only bbolt
// log: operation name, caller, success flag, duration, and the structured
// parameters needed to reproduce the request.
package audit

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRecords = []byte("audit_records")

// Record is one audited operation.
type Record struct {
	Seq        uint64                 `json:"seq,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Operation  string                 `json:"operation"`
	Caller     string                 `json:"caller,omitempty"`
	Success    bool                   `json:"success"`
	DurationMS int64                  `json:"duration_ms"`
	Error      string                 `json:"error,omitempty"`
	Params     map[string]interface{} `json:"params,omitempty"`
}

// Sink receives audit records. Implementations must tolerate concurrent
// writers.
type Sink interface {
	Write(rec *Record) error
	Close() error
}

// BoltSink is the bbolt-backed audit sink.
type BoltSink struct {
	db *bolt.DB
}

// NewBoltSink opens or creates the audit database at the given path.
func NewBoltSink(dbPath string) (*BoltSink, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create audit directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit bucket: %w", err)
	}

	return &BoltSink{db: db}, nil
}

// Write appends one record. The sequence number is assigned here.
func (s *BoltSink) Write(rec *Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRecords)
		if bucket == nil {
			return fmt.Errorf("audit bucket not found")
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		rec.Seq = seq

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}

		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		return bucket.Put(key[:], data)
	})
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (s *BoltSink) List(limit int) ([]*Record, error) {
	var records []*Record

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRecords)
		if bucket == nil {
			return nil
		}

		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal record: %w", err)
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the audit database.
func (s *BoltSink) Close() error {
	return s.db.Close()
}

// NopSink discards records. Used where auditing is not configured.
type NopSink struct{}

func (NopSink) Write(*Record) error { return nil }
func (NopSink) Close() error        { return nil }
