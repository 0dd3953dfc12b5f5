package disagg

import (
	"fmt"
	"strings"

	"github.com/rewired-gh/quakedisagg/internal/models"
)

// pmfAxes lists the named marginal distributions in output order
var pmfAxes = []struct {
	name string
	axes []models.Axis
}{
	{"Mag", []models.Axis{models.AxisMag}},
	{"Dist", []models.Axis{models.AxisDist}},
	{"TRT", []models.Axis{models.AxisTRT}},
	{"Mag,Dist", []models.Axis{models.AxisMag, models.AxisDist}},
	{"Mag,Dist,Eps", []models.Axis{models.AxisMag, models.AxisDist, models.AxisEps}},
	{"Lon,Lat", []models.Axis{models.AxisLon, models.AxisLat}},
	{"Mag,Lon,Lat", []models.Axis{models.AxisMag, models.AxisLon, models.AxisLat}},
	{"Mag,Lon,Lat,Eps", []models.Axis{models.AxisMag, models.AxisLon, models.AxisLat, models.AxisEps}},
	{"Mag,TRT", []models.Axis{models.AxisMag, models.AxisTRT}},
	{"Lon,Lat,TRT", []models.Axis{models.AxisLon, models.AxisLat, models.AxisTRT}},
}

// PMFNames returns the names of the marginals computed by PMFs
func PMFNames() []string {
	names := make([]string, len(pmfAxes))
	for i, p := range pmfAxes {
		names[i] = p.name
	}
	return names
}

// Lookup returns the axes of a named marginal
func Lookup(name string) ([]models.Axis, bool) {
	for _, p := range pmfAxes {
		if p.name == name {
			return append([]models.Axis(nil), p.axes...), true
		}
	}
	return nil, false
}

// PMFs computes every named marginal of m, in PMFNames order
func PMFs(m *models.Matrix) ([]models.Marginal, error) {
	out := make([]models.Marginal, 0, len(pmfAxes))
	for _, p := range pmfAxes {
		marginal, err := Project(m, p.axes...)
		if err != nil {
			return nil, err
		}
		out = append(out, marginal)
	}
	return out, nil
}

// Project aggregates m over every axis not listed. Contributions are
// combined as independent events, 1 - ∏(1 - p), which is how cells combine
// ruptures: projecting onto an axis gives the same values as binning the
// ruptures along that axis alone. The result keeps the axes in the order
// given.
func Project(m *models.Matrix, axes ...models.Axis) (models.Marginal, error) {
	if len(axes) == 0 {
		return models.Marginal{}, fmt.Errorf("projection needs at least one axis")
	}
	var seen [models.NumAxes]bool
	names := make([]string, len(axes))
	shape := make([]int, len(axes))
	size := 1
	for i, a := range axes {
		if a < 0 || a >= models.NumAxes {
			return models.Marginal{}, fmt.Errorf("invalid axis %d", int(a))
		}
		if seen[a] {
			return models.Marginal{}, fmt.Errorf("axis %s listed twice", a)
		}
		seen[a] = true
		names[i] = a.String()
		shape[i] = m.Shape[a]
		size *= shape[i]
	}
	if len(m.Data) != shapeSize(m.Shape) {
		return models.Marginal{}, fmt.Errorf("matrix data does not match shape %v", m.Shape)
	}

	// Accumulate the probability that nothing exceeds, then complement
	values := make([]float64, size)
	for i := range values {
		values[i] = 1
	}
	strides := m.Strides()
	for off, p := range m.Data {
		target := 0
		for i, a := range axes {
			coord := (off / strides[a]) % m.Shape[a]
			target = target*shape[i] + coord
		}
		values[target] *= 1 - p
	}
	for i := range values {
		values[i] = 1 - values[i]
	}

	return models.Marginal{
		Name:   strings.Join(names, ","),
		Axes:   append([]models.Axis(nil), axes...),
		Shape:  shape,
		Values: values,
	}, nil
}

func shapeSize(shape [models.NumAxes]int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
