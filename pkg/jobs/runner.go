package jobs

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/user/vidshrink/pkg/pipeline"
)

// ProgressFunc reports the rung a job is attempting.
type ProgressFunc func(attempt int, method pipeline.Method)

// Func compresses one job.
type Func func(ctx context.Context, job Job, progress ProgressFunc) (Result, error)

// RunAll runs the given jobs with at most workers in flight. A failing job
// is recorded in the store and does not stop the others; the returned error
// is non-nil only when ctx ends first.
func (s *Store) RunAll(ctx context.Context, workers int, ids []string, fn Func) error {
	if workers < 1 {
		workers = 1
	}

	g := new(errgroup.Group)
	g.SetLimit(workers)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			s.runOne(ctx, id, fn)
			return nil
		})
	}
	_ = g.Wait()

	// Jobs never started because of cancellation are marked canceled.
	if err := ctx.Err(); err != nil {
		for _, id := range ids {
			if job, ok := s.Get(id); ok && job.Status == StatusQueued {
				_ = s.Fail(id, err)
			}
		}
		return err
	}
	return nil
}

func (s *Store) runOne(ctx context.Context, id string, fn Func) {
	if err := ctx.Err(); err != nil {
		_ = s.Fail(id, err)
		return
	}
	if err := s.Start(id); err != nil {
		return
	}
	job, _ := s.Get(id)

	result, err := fn(ctx, job, func(attempt int, method pipeline.Method) {
		_ = s.Progress(id, attempt, method)
	})
	if err != nil {
		_ = s.Fail(id, err)
		return
	}
	_ = s.Complete(id, result)
}
