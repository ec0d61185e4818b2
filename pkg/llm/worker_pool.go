package llm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultMaxConcurrent = 4

// WorkerPoolConfig configures the LLM worker pool.
type WorkerPoolConfig struct {
	MaxConcurrent int // Maximum concurrent LLM calls (default: 4)
}

// WorkerPool bounds how many LLM calls a batch job keeps in flight.
type WorkerPool struct {
	maxConcurrent int
	logger        *zap.Logger
}

// NewWorkerPool creates a pool. MaxConcurrent below 1 falls back to 4.
func NewWorkerPool(config WorkerPoolConfig, logger *zap.Logger) *WorkerPool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = defaultMaxConcurrent
	}
	return &WorkerPool{
		maxConcurrent: config.MaxConcurrent,
		logger:        logger.Named("llm-worker-pool"),
	}
}

// MaxConcurrent returns the configured parallelism.
func (p *WorkerPool) MaxConcurrent() int {
	return p.maxConcurrent
}

// Job is one unit of LLM work, usually one catalog table.
type Job[T any] struct {
	Key string
	Run func(ctx context.Context) (T, error)
}

// JobResult is the outcome of a Job.
type JobResult[T any] struct {
	Key   string
	Value T
	Err   error
}

// RunJobs runs jobs on at most MaxConcurrent workers and returns one result per job,
// in the order the jobs were given. A failing job does not stop the others. Once ctx
// is done, jobs that have not started are reported with ctx.Err() and never run.
// onDone, when set, is called serially after each job that ran.
func RunJobs[T any](ctx context.Context, pool *WorkerPool, jobs []Job[T], onDone func(done, total int)) []JobResult[T] {
	if len(jobs) == 0 {
		return nil
	}

	results := make([]JobResult[T], len(jobs))
	feed := make(chan int)

	go func() {
		defer close(feed)
		for i := range jobs {
			if ctx.Err() == nil {
				select {
				case feed <- i:
					continue
				case <-ctx.Done():
				}
			}
			for j := i; j < len(jobs); j++ {
				results[j] = JobResult[T]{Key: jobs[j].Key, Err: ctx.Err()}
			}
			return
		}
	}()

	var (
		progressMu sync.Mutex
		done       int
		wg         sync.WaitGroup
	)
	start := time.Now()

	for w := 0; w < min(pool.maxConcurrent, len(jobs)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range feed {
				value, err := jobs[i].Run(ctx)
				results[i] = JobResult[T]{Key: jobs[i].Key, Value: value, Err: err}

				progressMu.Lock()
				done++
				if onDone != nil {
					onDone(done, len(jobs))
				}
				progressMu.Unlock()
			}
		}()
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	pool.logger.Debug("Worker pool finished",
		zap.Int("jobs", len(jobs)),
		zap.Int("failed", failed),
		zap.Int("max_concurrent", pool.maxConcurrent),
		zap.Duration("elapsed", time.Since(start)))

	return results
}
