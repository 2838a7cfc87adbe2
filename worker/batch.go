// Package worker runs validation over many resources concurrently while
// preserving input order in the collected results.
package worker

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"time"

	fv "github.com/reason-healthcare/rh-sub009"
)

// ValidateFunc validates a single encoded resource.
type ValidateFunc func(ctx context.Context, resource []byte) (*fv.Result, error)

// JobResult holds the outcome for one resource in a batch.
type JobResult struct {
	// ID identifies the job, the zero-based input index by default.
	ID string

	// Result is the validation outcome, nil when Err is set.
	Result *fv.Result

	// Err reports a failure to run validation at all, as opposed to a
	// resource that validated with issues.
	Err error

	// Duration is the wall time spent validating this resource.
	Duration time.Duration
}

// BatchResult aggregates the outcomes of a batch run. Results holds one
// entry per input resource, in input order; entries are nil only when the
// run was cancelled before the job started.
type BatchResult struct {
	Results   []*JobResult
	Total     int
	Completed int
	Failed    int
}

// HasErrors reports whether any job failed or produced validation errors.
func (br *BatchResult) HasErrors() bool {
	for _, jr := range br.Results {
		if jr == nil {
			continue
		}
		if jr.Err != nil {
			return true
		}
		if jr.Result != nil && jr.Result.HasErrors() {
			return true
		}
	}
	return false
}

// ErrorCount returns the total number of error issues across all results.
func (br *BatchResult) ErrorCount() int {
	n := 0
	for _, jr := range br.Results {
		if jr != nil && jr.Result != nil {
			n += jr.Result.ErrorCount()
		}
	}
	return n
}

// BatchValidator fans resources out to a fixed number of workers.
type BatchValidator struct {
	validate ValidateFunc
	workers  int
}

// NewBatchValidator builds a batch validator around validate. A workers
// value of zero or less selects runtime.NumCPU.
func NewBatchValidator(validate ValidateFunc, workers int) *BatchValidator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &BatchValidator{validate: validate, workers: workers}
}

// ValidateBatch validates every resource and returns the collected results
// in input order. Small batches run on the calling goroutine.
func (bv *BatchValidator) ValidateBatch(ctx context.Context, resources [][]byte) *BatchResult {
	if len(resources) == 0 {
		return &BatchResult{Results: []*JobResult{}}
	}
	if len(resources) <= 2 || bv.workers == 1 {
		return bv.runSequential(ctx, resources)
	}
	return bv.runParallel(ctx, resources)
}

func (bv *BatchValidator) runSequential(ctx context.Context, resources [][]byte) *BatchResult {
	br := &BatchResult{
		Results: make([]*JobResult, 0, len(resources)),
		Total:   len(resources),
	}
	for i, resource := range resources {
		if ctx.Err() != nil {
			return br
		}
		br.Results = append(br.Results, bv.runOne(ctx, i, resource))
		br.Completed++
		if br.Results[i].Err != nil {
			br.Failed++
		}
	}
	return br
}

func (bv *BatchValidator) runParallel(ctx context.Context, resources [][]byte) *BatchResult {
	workers := bv.workers
	if workers > len(resources) {
		workers = len(resources)
	}

	jobs := make(chan int)
	results := make([]*JobResult, len(resources))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				results[i] = bv.runOne(ctx, i, resources[i])
			}
		}()
	}

	for i := range resources {
		select {
		case <-ctx.Done():
		case jobs <- i:
			continue
		}
		break
	}
	close(jobs)
	wg.Wait()

	br := &BatchResult{Results: results, Total: len(resources)}
	for _, jr := range results {
		if jr == nil {
			continue
		}
		br.Completed++
		if jr.Err != nil {
			br.Failed++
		}
	}
	return br
}

func (bv *BatchValidator) runOne(ctx context.Context, index int, resource []byte) *JobResult {
	start := time.Now()
	result, err := bv.validate(ctx, resource)
	return &JobResult{
		ID:       strconv.Itoa(index),
		Result:   result,
		Err:      err,
		Duration: time.Since(start),
	}
}

// ValidateBatch runs a one-shot batch with the default worker count.
func ValidateBatch(ctx context.Context, validate ValidateFunc, resources [][]byte) *BatchResult {
	return NewBatchValidator(validate, 0).ValidateBatch(ctx, resources)
}
