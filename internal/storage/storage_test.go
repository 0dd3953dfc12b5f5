package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewired-gh/quakedisagg/internal/disagg"
	"github.com/rewired-gh/quakedisagg/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecord(t *testing.T, siteID, rlzID int, imt models.IMT, poe float64) disagg.Record {
	t.Helper()
	edges := models.BinEdges{
		Mag:  []float64{5, 5.5, 6},
		Dist: []float64{0, 10},
		Lon:  []float64{179.5, 180, -179.5},
		Lat:  []float64{0, 0.5},
		Eps:  []float64{-3, 0, 3},
	}
	trts := []string{"Active Shallow Crust"}
	m := models.NewMatrix(edges.Shape(len(trts)))
	for i := range m.Data {
		m.Data[i] = float64(i) / float64(len(m.Data))
	}
	marginals, err := disagg.PMFs(m)
	if err != nil {
		t.Fatal(err)
	}

	key := models.NewKey(rlzID, poe, 0.25, imt, siteID)
	loc := models.Point{Lon: 179.9, Lat: 0.2}
	return disagg.Record{
		Name:              disagg.DisplayName(key, loc),
		Key:               key,
		Location:          loc,
		InvestigationTime: 50,
		Edges:             edges,
		TRTNames:          trts,
		Matrix:            m,
		Marginals:         marginals,
		CreatedAt:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sa := models.IMT{Name: "SA", Period: 0.2, Damping: 5}
	rec := testRecord(t, 1, 3, sa, 0.1)

	id, err := s.Save(ctx, rec)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected an artifact id")
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != id || got.Name != rec.Name {
		t.Errorf("Expected %s %q, got %s %q", id, rec.Name, got.ID, got.Name)
	}
	if got.Key != rec.Key {
		t.Errorf("Expected key %v, got %v", rec.Key, got.Key)
	}
	if got.Location != rec.Location || got.InvestigationTime != 50 {
		t.Errorf("Unexpected location or investigation time: %+v", got.Record)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("Expected created_at %v, got %v", rec.CreatedAt, got.CreatedAt)
	}
	if got.Matrix.Shape != rec.Matrix.Shape || len(got.Matrix.Data) != len(rec.Matrix.Data) {
		t.Fatalf("Matrix shape changed: %v", got.Matrix.Shape)
	}
	for i := range rec.Matrix.Data {
		if got.Matrix.Data[i] != rec.Matrix.Data[i] {
			t.Fatalf("Matrix cell %d = %v, expected %v", i, got.Matrix.Data[i], rec.Matrix.Data[i])
		}
	}
	if len(got.Edges.Lon) != 3 || got.Edges.Lon[2] != -179.5 {
		t.Errorf("Unexpected longitude edges %v", got.Edges.Lon)
	}
	if len(got.Marginals) != len(rec.Marginals) {
		t.Fatalf("Expected %d marginals, got %d", len(rec.Marginals), len(got.Marginals))
	}
	for i, p := range got.Marginals {
		if p.Name != rec.Marginals[i].Name || len(p.Axes) != len(rec.Marginals[i].Axes) {
			t.Errorf("Marginal %d = %s %v, expected %s %v", i, p.Name, p.Axes, rec.Marginals[i].Name, rec.Marginals[i].Axes)
		}
	}
}

func TestStore_GetNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStore_SaveRejectsInvalidMatrix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := testRecord(t, 1, 1, models.IMT{Name: "PGA"}, 0.1)
	rec.Matrix.Data[0] = 1.5
	if _, err := s.Save(ctx, rec); err == nil {
		t.Error("Expected error for cell outside [0, 1]")
	}

	rec = testRecord(t, 1, 1, models.IMT{Name: "PGA"}, 0.1)
	rec.TRTNames = append(rec.TRTNames, "Stable Continental")
	if _, err := s.Save(ctx, rec); err == nil {
		t.Error("Expected error for shape not matching TRTs")
	}

	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("Expected nothing stored, got %d", n)
	}
}

func TestStore_List(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	pga := models.IMT{Name: "PGA"}
	sa := models.IMT{Name: "SA", Period: 1, Damping: 5}

	for _, rec := range []disagg.Record{
		testRecord(t, 1, 1, pga, 0.1),
		testRecord(t, 1, 1, pga, 0.02),
		testRecord(t, 1, 2, sa, 0.1),
		testRecord(t, 2, 1, pga, 0.1),
	} {
		if _, err := s.Save(ctx, rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	site1, rlz1 := 1, 1
	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"by site", Filter{SiteID: &site1}, 3},
		{"by site and realization", Filter{SiteID: &site1, RealizationID: &rlz1}, 2},
		{"by IMT", Filter{IMT: "SA(1)"}, 1},
		{"limit", Filter{Limit: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := s.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(entries) != tt.want {
				t.Errorf("Expected %d entries, got %d", tt.want, len(entries))
			}
		})
	}

	entries, _ := s.List(ctx, Filter{IMT: "SA(1)"})
	if len(entries) == 1 && (entries[0].Key.IMT != "SA" || entries[0].Key.SAPeriod != 1) {
		t.Errorf("Unexpected SA key %v", entries[0].Key)
	}
}

func TestStore_FilePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	id, err := s.Save(ctx, testRecord(t, 1, 1, models.IMT{Name: "PGA"}, 0.1))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.Get(ctx, id); err != nil {
		t.Errorf("Expected result to survive reopening: %v", err)
	}
}

func TestStore_CancelledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Save(ctx, testRecord(t, 1, 1, models.IMT{Name: "PGA"}, 0.1)); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Error("Expected error for empty path")
	}
}
