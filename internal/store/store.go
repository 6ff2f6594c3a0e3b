package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alx/artbot-for-stable-diffusion/internal/database"
	"github.com/alx/artbot-for-stable-diffusion/internal/models"

	log "github.com/sirupsen/logrus"
)

// Key prefixes separating the two record families inside the single
// bitcask keyspace. Writes are keyed by job id, so concurrent writes
// for different ids never conflict.
const (
	pendingPrefix   = "pending_"
	completedPrefix = "completed_"
)

var (
	// ErrNotFound is returned when no record exists for a job id.
	ErrNotFound = errors.New("job record not found")
	// ErrWrite wraps storage failures during Add/Update.
	ErrWrite = errors.New("job record write failed")
)

// JobStore persists pending and completed job records, keyed by job id.
// It is the single source of truth; the in-memory registry is a
// rebuildable cache over it.
type JobStore struct {
	db *database.DB
}

// New wraps an open database in a JobStore.
func New(db *database.DB) *JobStore {
	return &JobStore{db: db}
}

func pendingKey(jobID string) []byte {
	return []byte(pendingPrefix + jobID)
}

func completedKey(jobID string) []byte {
	return []byte(completedPrefix + jobID)
}

// Add stores a new pending job record.
func (s *JobStore) Add(job models.PendingJob) error {
	if job.JobID == "" {
		return fmt.Errorf("%w: missing job id", ErrWrite)
	}
	return s.put(pendingKey(job.JobID), job)
}

// Get retrieves a pending job record by id.
func (s *JobStore) Get(jobID string) (models.PendingJob, error) {
	raw, err := s.db.Get(pendingKey(jobID))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return models.PendingJob{}, ErrNotFound
		}
		return models.PendingJob{}, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}

	var job models.PendingJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return models.PendingJob{}, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	return job, nil
}

// Update persists the full merged record for an existing pending job.
func (s *JobStore) Update(job models.PendingJob) error {
	return s.put(pendingKey(job.JobID), job)
}

// Delete removes a pending job record. Deleting a missing record is
// not an error.
func (s *JobStore) Delete(jobID string) error {
	err := s.db.Delete(pendingKey(jobID))
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("failed to delete job %s: %w", jobID, err)
	}
	return nil
}

// ListPending returns every pending job record.
func (s *JobStore) ListPending() ([]models.PendingJob, error) {
	return s.list(pendingPrefix)
}

// ListCompleted returns every completed job record.
func (s *JobStore) ListCompleted() ([]models.PendingJob, error) {
	return s.list(completedPrefix)
}

// MarkCompleted moves a job record from the pending keyspace to the
// completed one. The completed write happens first so a crash between
// the two leaves a duplicate rather than a lost record.
func (s *JobStore) MarkCompleted(job models.PendingJob) error {
	if err := s.put(completedKey(job.JobID), job); err != nil {
		return err
	}
	if err := s.Delete(job.JobID); err != nil {
		log.WithError(err).Warnf("Completed job %s left behind in pending keyspace", job.JobID)
	}
	return nil
}

// DeleteCompleted removes a completed job record.
func (s *JobStore) DeleteCompleted(jobID string) error {
	err := s.db.Delete(completedKey(jobID))
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("failed to delete completed job %s: %w", jobID, err)
	}
	return nil
}

func (s *JobStore) put(key []byte, job models.PendingJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("%w: marshalling job %s: %v", ErrWrite, job.JobID, err)
	}
	if err := s.db.Put(key, raw); err != nil {
		return fmt.Errorf("%w: storing job %s: %v", ErrWrite, job.JobID, err)
	}
	return nil
}

func (s *JobStore) list(prefix string) ([]models.PendingJob, error) {
	var jobs []models.PendingJob
	err := s.db.Fold(func(key []byte, value []byte) error {
		if !strings.HasPrefix(string(key), prefix) {
			return nil
		}
		var job models.PendingJob
		if err := json.Unmarshal(value, &job); err != nil {
			log.WithError(err).Warnf("Skipping unreadable job record %s", string(key))
			return nil
		}
		jobs = append(jobs, job)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list job records: %w", err)
	}
	return jobs, nil
}
