package pending

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/alx/artbot-for-stable-diffusion/internal/models"

	log "github.com/sirupsen/logrus"
)

// ErrJobNotTracked is returned when a job id is not in the registry.
// Callers must have created the record through the expansion engine
// (or a store load) first.
var ErrJobNotTracked = errors.New("job is not tracked by the registry")

// Registry is the in-memory index of jobs awaiting completion. It is a
// rebuildable cache over the durable store: non-terminal records are
// loaded at startup and every update is written through.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]models.PendingJob
	store JobStore
}

// NewRegistry loads all non-terminal records from the store.
func NewRegistry(store JobStore) (*Registry, error) {
	records, err := store.ListPending()
	if err != nil {
		return nil, fmt.Errorf("failed to load pending jobs: %w", err)
	}

	r := &Registry{
		jobs:  make(map[string]models.PendingJob, len(records)),
		store: store,
	}
	for _, job := range records {
		if job.JobStatus.Terminal() {
			continue
		}
		r.jobs[job.JobID] = job
	}
	log.Debugf("Registry loaded %d pending job(s)", len(r.jobs))
	return r, nil
}

// Get returns the tracked job for an id.
func (r *Registry) Get(jobID string) (models.PendingJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return models.PendingJob{}, ErrJobNotTracked
	}
	return job, nil
}

// Update merges a full job record into the registry and writes it
// through to the store. The registry itself never decides transitions;
// the reconciler does.
func (r *Registry) Update(job models.PendingJob) error {
	r.mu.Lock()
	r.jobs[job.JobID] = job
	r.mu.Unlock()

	if err := r.store.Update(job); err != nil {
		return fmt.Errorf("failed to persist job %s: %w", job.JobID, err)
	}
	return nil
}

// Track adds a job to the in-memory index without touching the store.
// Used when a freshly expanded record is already persisted.
func (r *Registry) Track(job models.PendingJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.JobID] = job
}

// Remove drops a job from the in-memory index. The durable record is
// left alone; deleting it is the store owner's call.
func (r *Registry) Remove(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, jobID)
}

// Snapshot returns the tracked jobs sorted by creation time, oldest
// first. Safe for rendering while reconciliation is running.
func (r *Registry) Snapshot() []models.PendingJob {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]models.PendingJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].Timestamp < jobs[j].Timestamp
	})
	return jobs
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
