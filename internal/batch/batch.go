// Package batch implements the batch orchestrator (C10): a thin
// semaphore-bounded wrapper over N internal/runner.Runner.Run calls,
// summing their outcomes into one aggregate.
package batch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/velocitycollector/velocitycollector/internal/executor"
	"github.com/velocitycollector/velocitycollector/internal/runner"
)

// Runner is the subset of *runner.Runner a batch needs.
type Runner interface {
	Run(ctx context.Context, ref runner.JobRef, opts runner.Options, progress executor.ProgressFunc) (*runner.JobResult, error)
}

// Summary aggregates the outcome of every job in a batch.
type Summary struct {
	JobsTotal       int
	JobsSucceeded   int
	JobsFailed      int
	DevicesTotal    int
	DevicesSuccess  int
	DevicesFailed   int
	DevicesSkipped  int
	CapturesWritten int
	Elapsed         time.Duration
}

// JobProgressFunc is invoked once per completed job with its result (or
// nil and the error if the job itself could not run).
type JobProgressFunc func(ref runner.JobRef, result *runner.JobResult, err error)

// Batch drives N jobs with bounded concurrency.
type Batch struct {
	Runner      Runner
	Concurrency int
}

// Run executes every ref in refs, bounded by b.Concurrency in-flight
// job runs at once, and returns the per-job results alongside the
// aggregate summary.
func (b *Batch) Run(ctx context.Context, refs []runner.JobRef, progress JobProgressFunc) ([]*runner.JobResult, Summary) {
	start := time.Now()
	n := len(refs)
	results := make([]*runner.JobResult, n)

	concurrency := b.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(int64(concurrency))

	var wg sync.WaitGroup
	for i, ref := range refs {
		i, ref := i, ref

		if ctx.Err() != nil {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			res, err := b.Runner.Run(ctx, ref, runner.Options{}, nil)
			results[i] = res
			if progress != nil {
				progress(ref, res, err)
			}
		}()
	}
	wg.Wait()

	return results, summarize(results, time.Since(start))
}

func summarize(results []*runner.JobResult, elapsed time.Duration) Summary {
	s := Summary{Elapsed: elapsed}
	for _, r := range results {
		s.JobsTotal++
		if r == nil {
			s.JobsFailed++
			continue
		}
		if r.Error != "" {
			s.JobsFailed++
		} else {
			s.JobsSucceeded++
		}
		s.DevicesTotal += r.Success + r.Failed + r.ValidationSkipped
		s.DevicesSuccess += r.Success
		s.DevicesFailed += r.Failed
		s.DevicesSkipped += r.ValidationSkipped
		s.CapturesWritten += len(r.SavedFiles)
	}
	return s
}
