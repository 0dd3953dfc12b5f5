package disagg

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
	"testing"

	"github.com/rewired-gh/quakedisagg/internal/models"
	"github.com/rewired-gh/quakedisagg/internal/orchestrator"
)

// memoryStore keeps saved records in memory
type memoryStore struct {
	mu      sync.Mutex
	records map[models.Key]Record
	saved   int
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[models.Key]Record)}
}

func (s *memoryStore) Save(_ context.Context, rec Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.saved++
	s.records[rec.Key] = rec
	return fmt.Sprintf("result-%d", s.saved), nil
}

func TestCalculatorRun(t *testing.T) {
	job := testJob(t, testGMPE())
	store := newMemoryStore()

	sum, err := NewCalculator(job, orchestrator.Sequential(), store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.Sites != 2 || sum.SkippedSites != 1 {
		t.Errorf("Expected 2 sites with 1 skipped, got %+v", sum)
	}
	if sum.Matrices != 4 || len(sum.ArtifactIDs) != 4 {
		t.Errorf("Expected 4 matrices, got %+v", sum)
	}

	for key, rec := range store.records {
		if key.SiteID != 1 {
			t.Errorf("Unexpected result for site %d", key.SiteID)
		}
		if err := rec.Matrix.Validate(); err != nil {
			t.Errorf("%v: %v", key, err)
		}
		if rec.Matrix.Shape != rec.Edges.Shape(2) {
			t.Errorf("%v: matrix shape %v does not match edges", key, rec.Matrix.Shape)
		}
		if len(rec.Marginals) != len(PMFNames()) {
			t.Errorf("%v: expected %d marginals, got %d", key, len(PMFNames()), len(rec.Marginals))
		}
		if rec.Name != DisplayName(key, job.Sites[0].Location) {
			t.Errorf("Unexpected name %q", rec.Name)
		}
		if rec.InvestigationTime != 50 || !reflect.DeepEqual(rec.TRTNames, job.TRTNames) {
			t.Errorf("%v: unexpected metadata %v %v", key, rec.InvestigationTime, rec.TRTNames)
		}
	}
}

func TestCalculatorBackendsAgree(t *testing.T) {
	run := func(o *orchestrator.Orchestrator) map[models.Key]Record {
		t.Helper()
		job := testJob(t, testGMPE())
		job.Params.SourcesPerTask = 1
		store := newMemoryStore()
		if _, err := NewCalculator(job, o, store).Run(context.Background()); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		return store.records
	}

	sequential := run(orchestrator.Sequential())
	distributed := run(orchestrator.New(true, 4, nil))

	if len(sequential) != len(distributed) {
		t.Fatalf("Sequential run saved %d results, distributed %d", len(sequential), len(distributed))
	}
	for key, want := range sequential {
		got, ok := distributed[key]
		if !ok {
			t.Errorf("Distributed run is missing %v", key)
			continue
		}
		if !reflect.DeepEqual(got.Edges, want.Edges) {
			t.Errorf("%v: edges differ", key)
		}
		for i := range want.Matrix.Data {
			if math.Abs(got.Matrix.Data[i]-want.Matrix.Data[i]) > 1e-12 {
				t.Errorf("%v: cell %d = %v, expected %v", key, i, got.Matrix.Data[i], want.Matrix.Data[i])
				break
			}
		}
	}
}

func TestCalculatorFailFast(t *testing.T) {
	boom := errors.New("disk full")

	for _, o := range []*orchestrator.Orchestrator{orchestrator.Sequential(), orchestrator.New(true, 2, nil)} {
		t.Run(fmt.Sprintf("distribute=%v", o.Distributed()), func(t *testing.T) {
			store := newMemoryStore()
			store.err = boom

			_, err := NewCalculator(testJob(t, testGMPE()), o, store).Run(context.Background())
			if !errors.Is(err, boom) {
				t.Fatalf("Expected store error, got %v", err)
			}
			var unitErr *orchestrator.UnitError
			if !errors.As(err, &unitErr) {
				t.Fatalf("Expected UnitError, got %T", err)
			}
			if unitErr.Task != TaskArrange {
				t.Errorf("Expected task %s, got %s", TaskArrange, unitErr.Task)
			}
		})
	}
}

func TestCalculatorSourceFailure(t *testing.T) {
	boom := errors.New("bad rupture")
	job := testJob(t, fixedOracle{err: boom})

	_, err := NewCalculator(job, orchestrator.New(true, 2, nil), newMemoryStore()).Run(context.Background())
	var srcErr *SourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("Expected SourceError, got %v", err)
	}
	var unitErr *orchestrator.UnitError
	if !errors.As(err, &unitErr) || unitErr.Task != TaskCollect {
		t.Errorf("Expected a %s unit failure, got %v", TaskCollect, err)
	}
}

func TestCalculatorInvalidJob(t *testing.T) {
	job := testJob(t, testGMPE())
	job.Params.Bins.MagWidth = 0

	if _, err := NewCalculator(job, orchestrator.Sequential(), newMemoryStore()).Run(context.Background()); err == nil {
		t.Error("Expected error for invalid job")
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		key  models.Key
		loc  models.Point
		want string
	}{
		{
			key:  models.NewKey(3, 0.1, 0.25, models.IMT{Name: "SA", Period: 0.2, Damping: 5}, 1),
			loc:  models.Point{Lon: 10.5, Lat: 45.1},
			want: "disagg(0.1)-rlz-3-SA(0.2)-POINT(10.5 45.1)",
		},
		{
			key:  models.NewKey(1, 0.02, 0.4, models.IMT{Name: "PGA"}, 7),
			loc:  models.Point{Lon: -122, Lat: 37.75},
			want: "disagg(0.02)-rlz-1-PGA-POINT(-122 37.75)",
		},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.key, tt.loc); got != tt.want {
			t.Errorf("DisplayName() = %q, expected %q", got, tt.want)
		}
	}
}
