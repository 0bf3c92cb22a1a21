// Package jobs keeps per-file compression jobs in an explicit keyed store.
// A job is created on submission, mutated only by the goroutine running
// it, read by status queries, and evicted a TTL after it finishes.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/vidshrink/pkg/pipeline"
)

// Status is a job's lifecycle position.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

var (
	ErrNotFound          = errors.New("jobs: not found")
	ErrInvalidTransition = errors.New("jobs: invalid transition")
)

// Job is a snapshot of one compression job.
type Job struct {
	ID     string
	Input  string
	Status Status

	// Progress while running
	Attempt int
	Method  pipeline.Method

	Result *Result
	Error  string

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Result is what a finished job keeps about its output. The encoded bytes
// are not retained; they belong to whoever wrote them out.
type Result struct {
	Output           string
	MIMEType         string
	OutputBytes      int
	Method           pipeline.Method
	QualityScore     int
	OriginalSizeMB   float64
	CompressedSizeMB float64
	CompressionRatio float64
	Width            int
	Height           int
	AudioPreserved   bool
	Thumbnail        string // Poster MIME type, "" without a poster
	Attempts         int
}

// Summarize reduces a compression result written to output.
func Summarize(output string, r pipeline.CompressionResult) Result {
	res := Result{
		Output:           output,
		MIMEType:         r.File.MIMEType,
		OutputBytes:      len(r.File.Data),
		Method:           r.Method,
		QualityScore:     r.QualityScore,
		OriginalSizeMB:   r.OriginalSizeMB,
		CompressedSizeMB: r.CompressedSizeMB,
		CompressionRatio: r.CompressionRatio,
		Width:            r.Width,
		Height:           r.Height,
		AudioPreserved:   r.AudioPreserved,
		Attempts:         len(r.Attempts),
	}
	if r.Thumbnail != nil {
		res.Thumbnail = r.Thumbnail.MIMEType
	}
	return res
}

// Store is a concurrency-safe job map.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	ttl  time.Duration
	now  func() time.Time
}

// NewStore creates a store that evicts finished jobs after ttl. A ttl of
// 0 keeps them until removed.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		jobs: make(map[string]*Job),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Create registers a queued job for input.
func (s *Store) Create(input string) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &Job{
		ID:        uuid.NewString(),
		Input:     input,
		Status:    StatusQueued,
		CreatedAt: s.now(),
	}
	s.jobs[job.ID] = job
	return *job
}

// Get returns a snapshot of the job.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns snapshots of all jobs in creation order.
func (s *Store) List() []Job {
	s.mu.RLock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Counts returns the number of jobs per status.
func (s *Store) Counts() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[Status]int)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts
}

// Start moves a queued job to running.
func (s *Store) Start(id string) error {
	return s.update(id, func(job *Job) error {
		if job.Status != StatusQueued {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, StatusRunning)
		}
		job.Status = StatusRunning
		job.StartedAt = s.now()
		return nil
	})
}

// Progress records the rung a running job is attempting.
func (s *Store) Progress(id string, attempt int, method pipeline.Method) error {
	return s.update(id, func(job *Job) error {
		if job.Status != StatusRunning {
			return fmt.Errorf("%w: progress on %s job", ErrInvalidTransition, job.Status)
		}
		job.Attempt = attempt
		job.Method = method
		return nil
	})
}

// Complete marks a running job succeeded.
func (s *Store) Complete(id string, result Result) error {
	return s.update(id, func(job *Job) error {
		if job.Status != StatusRunning {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, StatusSucceeded)
		}
		job.Status = StatusSucceeded
		job.Method = result.Method
		job.Result = &result
		job.FinishedAt = s.now()
		return nil
	})
}

// Fail marks a queued or running job failed, or canceled when err is a
// context cancellation.
func (s *Store) Fail(id string, err error) error {
	return s.update(id, func(job *Job) error {
		if job.Status.Terminal() {
			return fmt.Errorf("%w: %s job cannot fail", ErrInvalidTransition, job.Status)
		}
		job.Status = StatusFailed
		if errors.Is(err, context.Canceled) {
			job.Status = StatusCanceled
		}
		if err != nil {
			job.Error = err.Error()
		}
		job.FinishedAt = s.now()
		return nil
	})
}

// Remove deletes a job regardless of status.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.jobs[id]
	delete(s.jobs, id)
	return ok
}

// Sweep evicts finished jobs older than the TTL and returns how many were
// removed.
func (s *Store) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	count := 0
	for id, job := range s.jobs {
		if job.Status.Terminal() && job.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
			count++
		}
	}
	return count
}

// RunJanitor sweeps every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Store) update(id string, fn func(*Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fn(job)
}
