// Package executor runs independent units of work with bounded concurrency
// and per-unit retry.
//
// Exactly Concurrency workers pull units from a shared queue, so a slow unit
// never holds back the rest. Once the context is done no new unit starts;
// units already running are allowed to finish because actions receive a
// context that is detached from the caller's cancellation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Unit is one independent piece of work.
type Unit[T any] struct {
	ID     string
	Action func(ctx context.Context) (T, error)
}

// Result is the terminal outcome of a unit.
type Result[T any] struct {
	ID       string
	Value    T
	Err      error
	Attempts int
	Duration time.Duration
}

func (r Result[T]) Succeeded() bool {
	return r.Err == nil
}

// ProgressFunc receives the number of settled units, the total, and the ids still running.
type ProgressFunc func(completed, total int, running []string)

type Options[T any] struct {
	Concurrency int
	// Retries is the number of additional attempts after the first failure.
	Retries int
	// RetryDelay scales the wait before each retry: the k-th retry waits RetryDelay*k.
	RetryDelay time.Duration

	OnUnitComplete func(Result[T])
	OnProgress     ProgressFunc
}

func (o Options[T]) validate() error {
	if o.Concurrency <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidConcurrency, o.Concurrency)
	}
	if o.Retries < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidRetries, o.Retries)
	}
	return nil
}

type run[T any] struct {
	units   []Unit[T]
	opts    Options[T]
	results []Result[T]

	mu        sync.Mutex
	running   map[string]struct{}
	completed int

	// notifyMu keeps callbacks serialized and in settlement order.
	notifyMu    sync.Mutex
	callbackErr error
}

// Run executes units with at most opts.Concurrency in flight and returns one
// result per unit, in submission order. It returns only after every unit has
// settled. It returns option validation errors before running anything, and
// ErrCallbackPanicked after every unit has settled if a callback panicked.
func Run[T any](ctx context.Context, units []Unit[T], opts Options[T]) ([]Result[T], error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return []Result[T]{}, nil
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}

	r := &run[T]{
		units:   units,
		opts:    opts,
		results: make([]Result[T], len(units)),
		running: make(map[string]struct{}, opts.Concurrency),
	}

	queue := make(chan int, len(units))
	for i := range units {
		queue <- i
	}
	close(queue)

	workers := min(opts.Concurrency, len(units))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range queue {
				r.process(ctx, i)
			}
		}()
	}
	wg.Wait()

	return r.results, r.callbackErr
}

func (r *run[T]) process(ctx context.Context, i int) {
	unit := r.units[i]

	if err := ctx.Err(); err != nil {
		r.settle(i, Result[T]{
			ID:  unit.ID,
			Err: fmt.Errorf("%w: %w", ErrNotStarted, err),
		})
		return
	}

	r.mu.Lock()
	r.running[unit.ID] = struct{}{}
	r.mu.Unlock()

	r.settle(i, r.attempt(ctx, unit))
}

func (r *run[T]) attempt(ctx context.Context, unit Unit[T]) Result[T] {
	start := time.Now()
	actionCtx := context.WithoutCancel(ctx)

	result := Result[T]{ID: unit.ID}
	maxAttempts := r.opts.Retries + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := r.opts.RetryDelay * time.Duration(attempt-1)

			select {
			case <-ctx.Done():
				result.Err = errors.Join(result.Err, ctx.Err())
				result.Duration = time.Since(start)
				return result
			case <-time.After(backoff):
			}
		}

		result.Attempts = attempt
		value, err := invoke(actionCtx, unit.Action)
		if err == nil {
			result.Value = value
			result.Err = nil
			result.Duration = time.Since(start)
			return result
		}
		result.Err = err
	}

	result.Duration = time.Since(start)
	return result
}

func invoke[T any](ctx context.Context, action func(context.Context) (T, error)) (value T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrActionPanicked, rec)
		}
	}()
	return action(ctx)
}

func (r *run[T]) settle(i int, result Result[T]) {
	r.mu.Lock()
	delete(r.running, result.ID)
	r.results[i] = result
	r.completed++
	completed := r.completed
	running := make([]string, 0, len(r.running))
	for id := range r.running {
		running = append(running, id)
	}
	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()

	sort.Strings(running)

	if r.opts.OnUnitComplete != nil {
		r.notify(func() { r.opts.OnUnitComplete(result) })
	}
	if r.opts.OnProgress != nil {
		r.notify(func() { r.opts.OnProgress(completed, len(r.units), running) })
	}
}

// notify must be called with notifyMu held. The first callback panic is kept
// for Run to return; later callbacks still run.
func (r *run[T]) notify(fn func()) {
	defer func() {
		if rec := recover(); rec != nil && r.callbackErr == nil {
			r.callbackErr = fmt.Errorf("%w: %v", ErrCallbackPanicked, rec)
		}
	}()
	fn()
}
