package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/eubucco/slurm-pipeline/pkg/state"
)

var bucketRuns = []byte("runs")

// DefaultFile is the registry filename inside the operator's home
// directory.
const DefaultFile = ".slurm-pipeline.db"

// RunRecord is one pipeline run as tracked in the registry. Dir points
// at the run directory holding the full queue snapshots.
type RunRecord struct {
	Job        string     `json:"job"`
	Dir        string     `json:"dir"`
	Config     string     `json:"config"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Total      int        `json:"total"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
}

// Key returns the registry key, <job>/<start timestamp>. Timestamps
// use the run directory layout, so keys of one job sort
// chronologically.
func (r *RunRecord) Key() string {
	return r.Job + "/" + r.StartedAt.Format(state.TimestampFormat)
}

// RunStore is a BoltDB-backed registry of pipeline runs.
type RunStore struct {
	db *bolt.DB
}

// DefaultPath returns ~/.slurm-pipeline.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, DefaultFile), nil
}

// Open opens the registry read-write, creating file and bucket as
// needed. The control plane holds this handle for the whole run; a
// second writer fails after the lock timeout instead of blocking.
func Open(path string) (*RunStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open run registry: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create runs bucket: %w", err)
	}

	return &RunStore{db: db}, nil
}

// OpenReadOnly opens the registry for inspection. It fails fast when a
// running control plane holds the write lock so callers can fall back
// to filesystem discovery.
func OpenReadOnly(path string) (*RunStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open run registry: %w", err)
	}
	return &RunStore{db: db}, nil
}

// Close closes the registry.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// SaveRun upserts a run record. The scheduler writes one at run start
// and again with counts and finish time at completion.
func (s *RunStore) SaveRun(rec *RunRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.Key()), data)
	})
}

// GetRun retrieves a run record by its <job>/<timestamp> key.
func (s *RunStore) GetRun(key string) (*RunRecord, error) {
	var rec RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return fmt.Errorf("run not found: %s", key)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("run not found: %s", key)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRuns returns the runs of one job in chronological order, or all
// runs when job is empty.
func (s *RunStore) ListRuns(job string) ([]*RunRecord, error) {
	var runs []*RunRecord
	prefix := []byte(job + "/")

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return nil
		}
		c := b.Cursor()

		if job == "" {
			for k, v := c.First(); k != nil; k, v = c.Next() {
				rec, err := decodeRun(v)
				if err != nil {
					return err
				}
				runs = append(runs, rec)
			}
			return nil
		}

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			rec, err := decodeRun(v)
			if err != nil {
				return err
			}
			runs = append(runs, rec)
		}
		return nil
	})
	return runs, err
}

// LatestRun returns the most recent run of a job.
func (s *RunStore) LatestRun(job string) (*RunRecord, error) {
	runs, err := s.ListRuns(job)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs recorded for job %s", job)
	}
	return runs[len(runs)-1], nil
}

func decodeRun(data []byte) (*RunRecord, error) {
	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode run record: %w", err)
	}
	return &rec, nil
}
