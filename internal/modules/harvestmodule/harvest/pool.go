package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mantonx/harvester/internal/extractor"
)

// PoolOptions configures one batch run
type PoolOptions struct {
	Workers   int
	Timeout   time.Duration
	Criteria  FilterCriteria
	Relocator *Relocator

	// OnProcessed, when set, receives the running count of resolved tasks
	// after each task finishes. Called from worker goroutines.
	OnProcessed func(done int)
}

// WorkerPool runs extraction tasks with bounded concurrency. One task's
// failure never aborts its siblings; Run returns only after every dispatched
// task has resolved.
type WorkerPool struct {
	extractor extractor.Extractor
	filter    *FilterEngine
}

func NewWorkerPool(ext extractor.Extractor, filter *FilterEngine) *WorkerPool {
	return &WorkerPool{extractor: ext, filter: filter}
}

// Run processes the batch and returns one TaskResult per source, in source
// order. Dispatch is greedy: a worker picks up the next queued task as soon
// as its current one resolves.
func (p *WorkerPool) Run(ctx context.Context, sources []Source, opts PoolOptions) []TaskResult {
	results := make([]TaskResult, len(sources))
	if len(sources) == 0 {
		return results
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(sources) {
		workers = len(sources)
	}

	type task struct {
		index  int
		source Source
	}

	tasks := make(chan task)
	var done int64
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				results[t.index] = p.runTask(ctx, t.source, opts)
				if opts.OnProcessed != nil {
					opts.OnProcessed(int(atomic.AddInt64(&done, 1)))
				}
			}
		}()
	}

	for i, src := range sources {
		tasks <- task{index: i, source: src}
	}
	close(tasks)

	wg.Wait()
	return results
}

// runTask extracts one source under the per-task timeout, evaluates the
// filter, and relocates the asset when it passes.
func (p *WorkerPool) runTask(ctx context.Context, src Source, opts PoolOptions) TaskResult {
	result := TaskResult{Source: src}

	taskCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	record, err := p.extract(taskCtx, src)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			result.ErrKind = ErrKindTimeout
			result.Err = fmt.Errorf("task timed out after %s: %w", opts.Timeout, err)
		} else {
			result.ErrKind = ErrKindExtraction
			result.Err = err
		}
		return result
	}

	result.Record = record
	result.PassedFilter = p.filter.Evaluate(record, opts.Criteria)
	if !result.PassedFilter {
		return result
	}

	if opts.Relocator != nil && opts.Relocator.Enabled() {
		if err := opts.Relocator.Relocate(taskCtx, src); err != nil {
			result.ErrKind = ErrKindRelocation
			result.Err = fmt.Errorf("relocation failed for %s: %w", src.Locator, err)
			return result
		}
		result.Relocated = true
	}

	return result
}

// extract runs the collaborator behind a goroutine so a hung extraction
// cannot outlive the task deadline from the pool's perspective.
func (p *WorkerPool) extract(ctx context.Context, src Source) (*extractor.Record, error) {
	type outcome struct {
		record *extractor.Record
		err    error
	}

	ch := make(chan outcome, 1)
	go func() {
		record, err := p.extractor.Extract(ctx, src.Locator, src.Remote())
		ch <- outcome{record: record, err: err}
	}()

	select {
	case out := <-ch:
		return out.record, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
