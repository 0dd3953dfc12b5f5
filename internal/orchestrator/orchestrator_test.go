package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"
)

type squareUnit struct {
	n     int
	delay time.Duration
	err   error
	runs  *atomic.Int32
}

func (u squareUnit) ID() string { return fmt.Sprintf("n=%d", u.n) }

func (u squareUnit) Run(ctx context.Context) (int, error) {
	if u.runs != nil {
		u.runs.Add(1)
	}
	if u.delay > 0 {
		select {
		case <-time.After(u.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if u.err != nil {
		return 0, u.err
	}
	return u.n * u.n, nil
}

type panicUnit struct{}

func (panicUnit) ID() string                      { return "boom" }
func (panicUnit) Run(context.Context) (int, error) { panic("kaboom") }

func makeUnits(n int) []Unit[int] {
	units := make([]Unit[int], n)
	for i := range units {
		// Later units finish first to shuffle arrival order
		units[i] = squareUnit{n: i, delay: time.Duration(n-i) * time.Millisecond}
	}
	return units
}

type percentRecorder struct {
	percents []int
}

func (r *percentRecorder) Progress(_ string, percent int) {
	r.percents = append(r.percents, percent)
}

func TestRunBackendsAgree(t *testing.T) {
	for _, o := range []*Orchestrator{Sequential(), New(true, 4, nil)} {
		t.Run(fmt.Sprintf("distribute=%v", o.Distributed()), func(t *testing.T) {
			var got []int
			err := Run(context.Background(), o, "square", makeUnits(20), func(v int) error {
				got = append(got, v)
				return nil
			})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}

			sort.Ints(got)
			if len(got) != 20 {
				t.Fatalf("Expected 20 results, got %d", len(got))
			}
			for i, v := range got {
				if v != i*i {
					t.Errorf("result %d = %d, expected %d", i, v, i*i)
				}
			}
		})
	}
}

func TestRunMergeIsNeverConcurrent(t *testing.T) {
	var active atomic.Int32
	var overlap atomic.Bool

	err := Run(context.Background(), New(true, 8, nil), "square", makeUnits(50), func(int) error {
		if active.Add(1) > 1 {
			overlap.Store(true)
		}
		time.Sleep(100 * time.Microsecond)
		active.Add(-1)
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if overlap.Load() {
		t.Error("onResult must not be called concurrently")
	}
}

func TestRunReportsProgress(t *testing.T) {
	rec := &percentRecorder{}
	o := New(true, 3, rec)

	if err := Run(context.Background(), o, "square", makeUnits(4), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []int{25, 50, 75, 100}
	if len(rec.percents) != len(want) {
		t.Fatalf("Expected %v, got %v", want, rec.percents)
	}
	for i := range want {
		if rec.percents[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, rec.percents)
			break
		}
	}
}

func TestRunFailureNamesUnit(t *testing.T) {
	cause := errors.New("bad source geometry")

	for _, o := range []*Orchestrator{Sequential(), New(true, 2, nil)} {
		t.Run(fmt.Sprintf("distribute=%v", o.Distributed()), func(t *testing.T) {
			units := makeUnits(5)
			units[2] = squareUnit{n: 2, err: cause}

			err := Run(context.Background(), o, "square", units, func(int) error { return nil })
			if err == nil {
				t.Fatal("Expected error")
			}

			var unitErr *UnitError
			if !errors.As(err, &unitErr) {
				t.Fatalf("Expected *UnitError, got %T: %v", err, err)
			}
			if unitErr.UnitID != "n=2" || unitErr.Task != "square" {
				t.Errorf("Unexpected unit error: %+v", unitErr)
			}
			if !errors.Is(err, cause) {
				t.Error("Expected the cause to be preserved")
			}
		})
	}
}

func TestRunSequentialStopsAtFirstFailure(t *testing.T) {
	var runs atomic.Int32
	units := []Unit[int]{
		squareUnit{n: 1, runs: &runs},
		squareUnit{n: 2, runs: &runs, err: errors.New("fail")},
		squareUnit{n: 3, runs: &runs},
		squareUnit{n: 4, runs: &runs},
	}

	var merged int
	err := Run(context.Background(), Sequential(), "square", units, func(int) error {
		merged++
		return nil
	})
	if err == nil {
		t.Fatal("Expected error")
	}
	if runs.Load() != 2 {
		t.Errorf("Expected 2 units to run, got %d", runs.Load())
	}
	if merged != 1 {
		t.Errorf("Expected 1 merged result, got %d", merged)
	}
}

func TestRunPoolAbortsRemainingUnits(t *testing.T) {
	var runs atomic.Int32
	units := []Unit[int]{squareUnit{n: 0, runs: &runs, err: errors.New("fail")}}
	for i := 1; i < 100; i++ {
		units = append(units, squareUnit{n: i, runs: &runs, delay: 5 * time.Millisecond})
	}

	err := Run(context.Background(), New(true, 1, nil), "square", units, nil)
	if err == nil {
		t.Fatal("Expected error")
	}
	if runs.Load() >= 100 {
		t.Errorf("Expected remaining units to be skipped, %d ran", runs.Load())
	}
}

func TestRunMergeErrorAborts(t *testing.T) {
	mergeErr := errors.New("accumulator full")
	err := Run(context.Background(), New(true, 2, nil), "square", makeUnits(10), func(int) error {
		return mergeErr
	})
	if !errors.Is(err, mergeErr) {
		t.Errorf("Expected merge error, got %v", err)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	err := Run(context.Background(), New(true, 2, nil), "square", []Unit[int]{panicUnit{}}, nil)

	var unitErr *UnitError
	if !errors.As(err, &unitErr) || unitErr.UnitID != "boom" {
		t.Fatalf("Expected unit error for panicking unit, got %v", err)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, o := range []*Orchestrator{Sequential(), New(true, 2, nil)} {
		err := Run(ctx, o, "square", makeUnits(3), nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("distribute=%v: expected context.Canceled, got %v", o.Distributed(), err)
		}
	}
}

func TestRunNoUnits(t *testing.T) {
	called := false
	err := Run(context.Background(), New(true, 2, nil), "square", nil, func(int) error {
		called = true
		return nil
	})
	if err != nil || called {
		t.Errorf("Expected no-op, got err=%v called=%v", err, called)
	}
}
