package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/conductio-api/internal/conductio"
)

// JobStore keeps generation jobs in process memory. Jobs are lost on restart.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]conductio.Job
	clock conductio.Clock
}

// NewJobStore constructs a JobStore. A nil clock uses time.Now in UTC.
func NewJobStore(clock conductio.Clock) *JobStore {
	return &JobStore{
		jobs:  make(map[string]conductio.Job),
		clock: clock,
	}
}

// CreateJob registers a new job. The ID must be unused.
func (s *JobStore) CreateJob(_ context.Context, job conductio.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", conductio.ErrJobExists, job.ID)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// FinishJob moves a job to a terminal status exactly once.
func (s *JobStore) FinishJob(
	_ context.Context,
	jobID string,
	status conductio.JobStatus,
	result *conductio.Result,
	errText string,
) error {
	if !status.Terminal() {
		return fmt.Errorf("finish job %s: status %q is not terminal", jobID, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", conductio.ErrJobNotFound, jobID)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: %s is already %s", conductio.ErrJobFinalized, jobID, job.Status)
	}
	job.Status = status
	job.Result = cloneResult(result)
	job.Error = errText
	job.FinishedAt = pointerTime(s.now())
	s.jobs[jobID] = job
	return nil
}

// GetJob returns a snapshot of the job.
func (s *JobStore) GetJob(_ context.Context, jobID string) (conductio.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return conductio.Job{}, fmt.Errorf("%w: %s", conductio.ErrJobNotFound, jobID)
	}
	return cloneJob(job), nil
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *JobStore) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

func cloneJob(job conductio.Job) conductio.Job {
	job.Result = cloneResult(job.Result)
	if job.FinishedAt != nil {
		job.FinishedAt = pointerTime(*job.FinishedAt)
	}
	return job
}

func cloneResult(result *conductio.Result) *conductio.Result {
	if result == nil {
		return nil
	}
	out := *result
	if result.AudioFile != nil {
		audio := *result.AudioFile
		out.AudioFile = &audio
	}
	if result.Archive != nil {
		links := *result.Archive
		out.Archive = &links
	}
	return &out
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
