package models

import (
	"encoding/json"
	"testing"
)

func TestParseIMT(t *testing.T) {
	tests := []struct {
		input   string
		want    IMT
		wantErr bool
	}{
		{input: "PGA", want: IMT{Name: "PGA"}},
		{input: "SA(0.2)", want: IMT{Name: "SA", Period: 0.2, Damping: DefaultSADamping}},
		{input: " SA(1) ", want: IMT{Name: "SA", Period: 1, Damping: DefaultSADamping}},
		{input: "SA(x)", wantErr: true},
		{input: "SA(-1)", wantErr: true},
		{input: "", wantErr: true},
		{input: "PG A", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseIMT(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseIMT(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseIMT(%q) = %+v, expected %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIMTString(t *testing.T) {
	imt, err := ParseIMT("SA(0.1)")
	if err != nil {
		t.Fatal(err)
	}
	if imt.String() != "SA(0.1)" {
		t.Errorf("Expected SA(0.1), got %s", imt.String())
	}
	if (IMT{Name: "PGA"}).String() != "PGA" {
		t.Errorf("Expected PGA")
	}
}

func TestKeyRoundTripsIMT(t *testing.T) {
	imt := IMT{Name: "SA", Period: 0.5, Damping: 5}
	k := NewKey(3, 0.1, 0.25, imt, 9)
	if k.IntensityMeasure() != imt {
		t.Errorf("Expected %+v, got %+v", imt, k.IntensityMeasure())
	}

	// Keys must work as map keys
	m := map[Key]int{k: 1}
	if m[NewKey(3, 0.1, 0.25, imt, 9)] != 1 {
		t.Error("Equal keys should address the same map entry")
	}
}

func TestCompareKeys(t *testing.T) {
	a := Key{SiteID: 1, RealizationID: 1, IMT: "PGA", PoE: 0.1}
	b := Key{SiteID: 1, RealizationID: 1, IMT: "PGA", PoE: 0.02}
	c := Key{SiteID: 1, RealizationID: 2, IMT: "PGA", PoE: 0.01}

	if CompareKeys(b, a) >= 0 {
		t.Error("Expected lower PoE to sort first within a realization")
	}
	if CompareKeys(a, c) >= 0 {
		t.Error("Expected realization to take precedence over PoE")
	}
	if CompareKeys(a, a) != 0 {
		t.Error("Expected equal keys to compare equal")
	}
}

func TestBinDataAppendExtend(t *testing.T) {
	var a, b BinData
	a.Append(RuptureRecord{Mag: 5, Dist: 10, Lon: 1, Lat: 2, TRT: 0, NoExceed: []float64{0.9, 0.8}})
	b.Append(RuptureRecord{Mag: 6, Dist: 20, Lon: 3, Lat: 4, TRT: 1, NoExceed: []float64{0.7, 0.6}})
	b.Append(RuptureRecord{Mag: 7, Dist: 30, Lon: 5, Lat: 6, TRT: 1, NoExceed: []float64{0.5, 0.4}})

	a.Extend(&b)
	a.Extend(nil)

	if a.Len() != 3 {
		t.Fatalf("Expected 3 records, got %d", a.Len())
	}
	if err := a.Validate(2); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	r := a.Record(2)
	if r.Mag != 7 || r.TRT != 1 || r.NoExceed[1] != 0.4 {
		t.Errorf("Unexpected record: %+v", r)
	}
}

func TestBinDataValidate(t *testing.T) {
	tests := []struct {
		name    string
		data    BinData
		wantErr bool
	}{
		{
			name:    "empty",
			data:    BinData{},
			wantErr: false,
		},
		{
			name:    "length mismatch",
			data:    BinData{Mags: []float64{5}},
			wantErr: true,
		},
		{
			name: "wrong epsilon count",
			data: BinData{
				Mags: []float64{5}, Dists: []float64{1}, Lons: []float64{0}, Lats: []float64{0},
				TRTs: []int{0}, NoExceed: [][]float64{{0.5}},
			},
			wantErr: true,
		},
		{
			name: "probability out of range",
			data: BinData{
				Mags: []float64{5}, Dists: []float64{1}, Lons: []float64{0}, Lats: []float64{0},
				TRTs: []int{0}, NoExceed: [][]float64{{0.5, 1.2}},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.data.Validate(2)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMatrixIndexing(t *testing.T) {
	m := NewMatrix([NumAxes]int{2, 3, 1, 1, 2, 2})
	if m.Size() != 24 {
		t.Fatalf("Expected 24 cells, got %d", m.Size())
	}

	idx := [NumAxes]int{1, 2, 0, 0, 1, 1}
	m.Set(idx, 0.5)
	if m.At(idx) != 0.5 {
		t.Errorf("Expected 0.5, got %v", m.At(idx))
	}
	// Last cell in row-major order
	if m.Index(idx) != 23 {
		t.Errorf("Expected offset 23, got %d", m.Index(idx))
	}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}

	m.Data[0] = 1.5
	if err := m.Validate(); err == nil {
		t.Error("Expected error for cell above 1")
	}
}

func TestBinEdgesValidate(t *testing.T) {
	good := BinEdges{
		Mag:  []float64{5, 5.5},
		Dist: []float64{0, 10, 20},
		Lon:  []float64{179, 180, -179},
		Lat:  []float64{0, 1},
		Eps:  []float64{-3, 0, 3},
	}
	if err := good.Validate(); err != nil {
		t.Errorf("Validate failed on wrapped longitudes: %v", err)
	}
	if shape := good.Shape(2); shape != [NumAxes]int{1, 2, 2, 1, 2, 2} {
		t.Errorf("Unexpected shape %v", shape)
	}

	bad := good
	bad.Dist = []float64{0, 20, 10}
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for decreasing distance edges")
	}
}

func TestCurve(t *testing.T) {
	c, err := NewCurve([]float64{0.1, 0.2, 0.3}, []float64{0, 0, 0})
	if err != nil {
		t.Fatalf("NewCurve failed: %v", err)
	}
	if !c.AllZero() {
		t.Error("Expected all-zero curve")
	}

	c, err = NewCurve([]float64{0.1, 0.2}, []float64{0.5, 0.1})
	if err != nil {
		t.Fatalf("NewCurve failed: %v", err)
	}
	if c.AllZero() {
		t.Error("Curve with positive probabilities is not all zero")
	}

	if _, err := NewCurve([]float64{0.2, 0.1}, []float64{0.5, 0.1}); err == nil {
		t.Error("Expected error for decreasing levels")
	}
}

func TestAxisJSON(t *testing.T) {
	data, err := json.Marshal([]Axis{AxisMag, AxisTRT})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `["Mag","TRT"]` {
		t.Errorf("Unexpected encoding %s", data)
	}

	var axes []Axis
	if err := json.Unmarshal(data, &axes); err != nil {
		t.Fatal(err)
	}
	if len(axes) != 2 || axes[1] != AxisTRT {
		t.Errorf("Unexpected decoding %v", axes)
	}
}

func TestSiteValidate(t *testing.T) {
	s := Site{ID: 1, Location: Point{Lon: 200, Lat: 0}}
	if err := s.Validate(); err == nil {
		t.Error("Expected error for longitude out of range")
	}
	s.Location.Lon = 10.5
	if err := s.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
	if s.Location.WKT() != "POINT(10.5 0)" {
		t.Errorf("Unexpected WKT %s", s.Location.WKT())
	}
}
