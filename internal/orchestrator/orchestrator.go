// Package orchestrator runs a list of units of work either on a bounded pool
// of goroutines or sequentially in the caller's goroutine, and hands every
// result to a merge callback on the orchestrating goroutine.
//
// Both backends share the same delivery path, so a calculation run with
// distribution disabled behaves exactly like a parallel one except for the
// order in which results arrive. The first failing unit cancels the
// remaining ones and is returned as a *UnitError naming the unit.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/rewired-gh/quakedisagg/internal/logger"
	"github.com/rewired-gh/quakedisagg/internal/progress"
)

// Unit is one independently executable piece of work
type Unit[R any] interface {
	// ID identifies the unit in errors and logs, e.g. a source group or a key
	ID() string
	Run(ctx context.Context) (R, error)
}

// Outcome carries a unit's value or its error from a worker to the orchestrating goroutine
type Outcome[R any] struct {
	UnitID string
	Value  R
	Err    error
}

// UnitError reports the unit that aborted a Run
type UnitError struct {
	Task   string
	UnitID string
	Err    error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("%s: unit %s failed: %v", e.Task, e.UnitID, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

// Orchestrator holds the dispatch settings. It keeps no per-run state, so
// one instance can serve consecutive or nested Run calls.
type Orchestrator struct {
	distribute  bool
	concurrency int
	sink        progress.Sink
}

// New creates an Orchestrator. With distribute false, units run one after
// the other in the caller's goroutine.
func New(distribute bool, concurrency int, sink progress.Sink) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		distribute:  distribute,
		concurrency: concurrency,
		sink:        sink,
	}
}

// Sequential returns an Orchestrator without distribution, mostly for tests
func Sequential() *Orchestrator {
	return New(false, 1, nil)
}

// Distributed reports whether units are dispatched to a worker pool
func (o *Orchestrator) Distributed() bool {
	return o.distribute
}

// Run executes every unit and calls onResult once per completed unit, always
// from the calling goroutine, in completion order. The unit slice is fixed up
// front so progress is reported against a known total.
func Run[R any](ctx context.Context, o *Orchestrator, task string, units []Unit[R], onResult func(R) error) error {
	logger.Info("spawning %d tasks of kind %s", len(units), task)
	if len(units) == 0 {
		return nil
	}

	counter := progress.NewCounter(task, len(units), o.sink)
	deliver := func(out Outcome[R]) error {
		if out.Err != nil {
			return &UnitError{Task: task, UnitID: out.UnitID, Err: out.Err}
		}
		if onResult != nil {
			if err := onResult(out.Value); err != nil {
				return fmt.Errorf("%s: merge result of unit %s: %w", task, out.UnitID, err)
			}
		}
		counter.Step()
		return nil
	}

	if !o.distribute {
		return runSequential(ctx, units, deliver)
	}
	return runPool(ctx, o.concurrency, units, deliver)
}

func runSequential[R any](ctx context.Context, units []Unit[R], deliver func(Outcome[R]) error) error {
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := deliver(execute(ctx, u)); err != nil {
			return err
		}
	}
	return nil
}

func runPool[R any](parent context.Context, workers int, units []Unit[R], deliver func(Outcome[R]) error) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	outcomes := make(chan Outcome[R])
	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx)

	go func() {
		defer close(outcomes)
		for _, u := range units {
			p.Go(func(ctx context.Context) error {
				// Aborted runs skip the units that have not started yet
				if ctx.Err() != nil {
					return nil
				}
				out := execute(ctx, u)
				select {
				case outcomes <- out:
				case <-ctx.Done():
				}
				return nil
			})
		}
		_ = p.Wait()
	}()

	var firstErr error
	for out := range outcomes {
		if firstErr != nil {
			continue // drain
		}
		if err := deliver(out); err != nil {
			firstErr = err
			cancel()
		}
	}
	if firstErr != nil {
		return firstErr
	}
	return parent.Err()
}

// execute runs a unit, turning a panic into an error so one bad unit cannot
// take the worker pool down with it
func execute[R any](ctx context.Context, u Unit[R]) (out Outcome[R]) {
	out.UnitID = u.ID()
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("panic: %v", r)
		}
	}()
	out.Value, out.Err = u.Run(ctx)
	return out
}
