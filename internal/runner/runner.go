package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Options controls how a batch is scheduled.
type Options struct {
	// Workers bounds parallelism. Zero or less uses DefaultWorkers.
	Workers int
	// Sequential runs items one at a time in sorted key order.
	Sequential bool
}

// DefaultWorkers reserves one CPU for the orchestrator, never returning less
// than one.
func DefaultWorkers() int {
	return max(1, runtime.NumCPU()-1)
}

// Result is the outcome of one item.
type Result struct {
	Key string
	Err error
}

// Report collects every item's outcome in sorted key order.
type Report struct {
	Results []Result
}

// Succeeded returns the keys of items that completed without error.
func (r Report) Succeeded() []string {
	out := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Err == nil {
			out = append(out, res.Key)
		}
	}
	return out
}

// Failed returns the results of items that returned an error.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Err summarizes the failures, or returns nil when every item succeeded.
func (r Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failed))
	keys := make([]string, 0, len(failed))
	for _, res := range failed {
		errs = append(errs, fmt.Errorf("%s: %w", res.Key, res.Err))
		keys = append(keys, res.Key)
	}
	return &BatchError{Keys: keys, Total: len(r.Results), err: errors.Join(errs...)}
}

// BatchError reports which items of a batch failed.
type BatchError struct {
	Keys  []string
	Total int
	err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d of %d items failed (%s): %v", len(e.Keys), e.Total, strings.Join(e.Keys, ", "), e.err)
}

func (e *BatchError) Unwrap() error { return e.err }

// Run executes fn once per key and waits for every item before returning.
// A failing item never cancels the others; the context passed to fn is the
// caller's, not a group context. Duplicate keys run once.
func Run(ctx context.Context, keys []string, opts Options, fn func(context.Context, string) error) Report {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	results := make([]Result, len(sorted))
	call := func(i int) {
		key := sorted[i]
		results[i] = Result{Key: key, Err: safeCall(ctx, key, fn)}
	}

	if opts.Sequential || len(sorted) <= 1 {
		for i := range sorted {
			call(i)
		}
		return Report{Results: results}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range sorted {
		g.Go(func() error {
			call(i)
			return nil
		})
	}
	_ = g.Wait()
	return Report{Results: results}
}

func safeCall(ctx context.Context, key string, fn func(context.Context, string) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing %s: %v", key, r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, key)
}
