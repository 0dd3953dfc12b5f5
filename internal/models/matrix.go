package models

import (
	"errors"
	"fmt"
)

// Axis identifies one dimension of a disaggregation matrix
type Axis int

// Matrix axes in storage order
const (
	AxisMag Axis = iota
	AxisDist
	AxisLon
	AxisLat
	AxisEps
	AxisTRT
	NumAxes
)

var axisNames = [NumAxes]string{"Mag", "Dist", "Lon", "Lat", "Eps", "TRT"}

func (a Axis) String() string {
	if a < 0 || a >= NumAxes {
		return fmt.Sprintf("Axis(%d)", int(a))
	}
	return axisNames[a]
}

// MarshalText encodes the axis by name
func (a Axis) MarshalText() ([]byte, error) {
	if a < 0 || a >= NumAxes {
		return nil, fmt.Errorf("invalid axis %d", int(a))
	}
	return []byte(axisNames[a]), nil
}

// UnmarshalText decodes an axis name
func (a *Axis) UnmarshalText(text []byte) error {
	parsed, err := ParseAxis(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAxis resolves an axis from its name
func ParseAxis(name string) (Axis, error) {
	for i, n := range axisNames {
		if n == name {
			return Axis(i), nil
		}
	}
	return 0, fmt.Errorf("unknown axis %q", name)
}

// BinEdges holds the histogram edges of the five binned dimensions.
// A sequence of k+1 edges defines k bins.
type BinEdges struct {
	Mag  []float64 `json:"mag"`
	Dist []float64 `json:"dist"`
	Lon  []float64 `json:"lon"` // Geodesic points; may wrap across the antimeridian
	Lat  []float64 `json:"lat"`
	Eps  []float64 `json:"eps"`
}

// Shape returns the matrix shape implied by the edges and nTRT categories
func (e BinEdges) Shape(nTRT int) [NumAxes]int {
	return [NumAxes]int{
		bins(e.Mag), bins(e.Dist), bins(e.Lon), bins(e.Lat), bins(e.Eps), nTRT,
	}
}

func bins(edges []float64) int {
	if len(edges) < 2 {
		return 0
	}
	return len(edges) - 1
}

// Validate checks that every dimension has at least one bin and that all
// sequences except longitude are strictly increasing
func (e BinEdges) Validate() error {
	seqs := []struct {
		name  string
		edges []float64
	}{
		{"mag", e.Mag}, {"dist", e.Dist}, {"lat", e.Lat}, {"eps", e.Eps},
	}
	for _, s := range seqs {
		if len(s.edges) < 2 {
			return fmt.Errorf("%s edges need at least 2 values, got %d", s.name, len(s.edges))
		}
		for i := 1; i < len(s.edges); i++ {
			if s.edges[i] <= s.edges[i-1] {
				return fmt.Errorf("%s edges must be strictly increasing at index %d", s.name, i)
			}
		}
	}
	if len(e.Lon) < 2 {
		return fmt.Errorf("lon edges need at least 2 values, got %d", len(e.Lon))
	}
	return nil
}

// Matrix is a dense row-major 6-D array of probabilities of exceedance with
// axes (mag, dist, lon, lat, eps, trt)
type Matrix struct {
	Shape [NumAxes]int `json:"shape"`
	Data  []float64    `json:"data"`
}

// NewMatrix allocates a zero-filled matrix
func NewMatrix(shape [NumAxes]int) *Matrix {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Matrix{Shape: shape, Data: make([]float64, n)}
}

// Size returns the number of cells
func (m *Matrix) Size() int {
	return len(m.Data)
}

// Strides returns the row-major stride of every axis
func (m *Matrix) Strides() [NumAxes]int {
	var strides [NumAxes]int
	s := 1
	for a := NumAxes - 1; a >= 0; a-- {
		strides[a] = s
		s *= m.Shape[a]
	}
	return strides
}

// Index converts a cell coordinate to an offset in Data
func (m *Matrix) Index(idx [NumAxes]int) int {
	strides := m.Strides()
	off := 0
	for a, i := range idx {
		off += i * strides[a]
	}
	return off
}

// At returns the value of a cell
func (m *Matrix) At(idx [NumAxes]int) float64 {
	return m.Data[m.Index(idx)]
}

// Set assigns the value of a cell
func (m *Matrix) Set(idx [NumAxes]int, v float64) {
	m.Data[m.Index(idx)] = v
}

// Validate checks the data length and that every cell is a probability
func (m *Matrix) Validate() error {
	if m == nil {
		return errors.New("matrix must not be nil")
	}
	n := 1
	for _, d := range m.Shape {
		n *= d
	}
	if len(m.Data) != n {
		return fmt.Errorf("matrix data has %d cells, shape %v needs %d", len(m.Data), m.Shape, n)
	}
	for i, v := range m.Data {
		if v < 0 || v > 1 {
			return fmt.Errorf("matrix cell %d has value %v outside [0, 1]", i, v)
		}
	}
	return nil
}

// Marginal is a lower-dimensional projection of a matrix onto a subset of its axes
type Marginal struct {
	Name   string    `json:"name"`
	Axes   []Axis    `json:"axes"`
	Shape  []int     `json:"shape"`
	Values []float64 `json:"values"`
}

// At returns the value at the given coordinates, one per projected axis
func (p *Marginal) At(idx ...int) float64 {
	off := 0
	for i, v := range idx {
		off = off*p.Shape[i] + v
	}
	return p.Values[off]
}
