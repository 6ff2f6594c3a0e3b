package pending

import (
	"context"
	"errors"
	"sync"

	"github.com/alx/artbot-for-stable-diffusion/internal/horde"
	"github.com/alx/artbot-for-stable-diffusion/internal/models"

	log "github.com/sirupsen/logrus"
)

// User-facing messages written into terminal job records.
const (
	staleJobMessage = "Job has gone stale and has been removed from the horde backend. Retry?"
	faultedMessage  = "An unknown error occurred while checking the pending image job."
)

// StatusClient is the backend surface the reconciler needs: one status
// check per job id, plus the generations fetch once a job is done.
// Implemented by internal/horde.
type StatusClient interface {
	Check(ctx context.Context, jobID string) (models.CheckResponse, error)
	Status(ctx context.Context, jobID string) (models.StatusResponse, error)
}

// Reconciler drives one status check per tracked job and applies the
// resulting state transition. Scheduling cadence is the caller's
// concern; Reconcile defines what happens per tick.
type Reconciler struct {
	registry *Registry
	store    JobStore
	client   StatusClient
	guard    *StaleJobGuard

	mu       sync.Mutex
	inflight map[string]bool

	// OnCompleted, if set, runs after a job reaches Done and its record
	// has moved to the completed keyspace. Used to download images and
	// index the finished prompt.
	OnCompleted func(job models.PendingJob, generations []models.Generation)
}

// NewReconciler wires the reconciler to its collaborators. The guard
// is injected rather than ambient so it can be scoped per run.
func NewReconciler(registry *Registry, store JobStore, client StatusClient, guard *StaleJobGuard) *Reconciler {
	return &Reconciler{
		registry: registry,
		store:    store,
		client:   client,
		guard:    guard,
		inflight: make(map[string]bool),
	}
}

// Reconcile performs one status check for a job and merges the result.
// It never returns an error: every failure state resolves into a
// persisted job record field, or is left for the next tick.
func (r *Reconciler) Reconcile(ctx context.Context, jobID string) {
	if r.guard.Known(jobID) {
		return
	}
	if !r.begin(jobID) {
		// A check for this id is already in flight.
		return
	}
	defer r.end(jobID)

	job, err := r.registry.Get(jobID)
	if err != nil {
		log.Debugf("Skipping reconcile for untracked job %s", jobID)
		return
	}
	if job.JobStatus.Terminal() {
		return
	}

	check, err := r.client.Check(ctx, jobID)
	if err != nil {
		if errors.Is(err, horde.ErrNotFound) {
			r.markStale(job)
			return
		}
		// Transport and server errors are not retried here; the job
		// stays pending and the next tick naturally retries it.
		log.WithError(err).Debugf("Check failed for job %s", jobID)
		return
	}

	r.merge(ctx, job, check)
}

// merge folds a successful check response into the job record and
// persists it.
func (r *Reconciler) merge(ctx context.Context, job models.PendingJob, check models.CheckResponse) {
	job.Done = check.Done
	job.Finished = check.Finished
	job.IsPossible = check.IsPossible
	job.Processing = check.Processing
	job.QueuePosition = check.QueuePosition
	job.WaitTime = check.WaitTime
	job.Waiting = check.Waiting

	// The first observed estimate is sticky for the life of the job.
	// The live estimate jitters too much to be a progress baseline.
	if job.InitWaitTime == nil {
		initWait := check.WaitTime
		job.InitWaitTime = &initWait
	}

	if check.Processing > 0 {
		job.JobStatus = models.StatusProcessing
	}

	// A fault is terminal regardless of any other field in the same
	// response.
	if check.Faulted {
		job.JobStatus = models.StatusError
		job.ErrorMessage = faultedMessage
		if err := r.registry.Update(job); err != nil {
			log.WithError(err).Errorf("Failed to persist faulted job %s", job.JobID)
		}
		// The registry only tracks jobs awaiting completion; a terminal
		// record would keep the poll loop alive forever.
		r.registry.Remove(job.JobID)
		return
	}

	if check.Done {
		r.finish(ctx, job)
		return
	}

	if err := r.registry.Update(job); err != nil {
		log.WithError(err).Errorf("Failed to persist job %s", job.JobID)
	}
}

// finish moves a done job into the completed keyspace and hands its
// generations to the completion hook.
func (r *Reconciler) finish(ctx context.Context, job models.PendingJob) {
	status, err := r.client.Status(ctx, job.JobID)
	if err != nil {
		// Leave the job pending so the next tick retries the fetch.
		// Completing it now would lose the generations for good.
		log.WithError(err).Warnf("Failed to fetch generations for finished job %s, retrying next tick", job.JobID)
		return
	}

	job.JobStatus = models.StatusDone

	if err := r.store.MarkCompleted(job); err != nil {
		// Keep the terminal state in the pending record so the UI still
		// agrees the job is done.
		log.WithError(err).Errorf("Failed to move job %s to completed", job.JobID)
		if err := r.registry.Update(job); err != nil {
			log.WithError(err).Errorf("Failed to persist done job %s", job.JobID)
		}
		r.registry.Remove(job.JobID)
		return
	}
	r.registry.Remove(job.JobID)

	log.WithFields(log.Fields{
		"jobId":    job.JobID,
		"model":    job.Model,
		"finished": job.Finished,
	}).Info("Job finished")

	if r.OnCompleted != nil {
		r.OnCompleted(job, status.Generations)
	}
}

// markStale records a 404 as a permanent loss. The guard entry and the
// terminal record are set together so the UI and the poller agree.
func (r *Reconciler) markStale(job models.PendingJob) {
	r.guard.Mark(job.JobID)

	job.JobStatus = models.StatusError
	job.ErrorMessage = staleJobMessage
	job.ErrorStatus = "NOT_FOUND"
	if err := r.registry.Update(job); err != nil {
		log.WithError(err).Errorf("Failed to persist stale job %s", job.JobID)
	}
	r.registry.Remove(job.JobID)
	log.Warnf("Job %s is gone from the horde backend, polling stopped", job.JobID)
}

// begin claims the per-id in-flight slot. Overlapping polls of the same
// id would risk duplicate terminal-state writes.
func (r *Reconciler) begin(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight[jobID] {
		return false
	}
	r.inflight[jobID] = true
	return true
}

func (r *Reconciler) end(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, jobID)
}
