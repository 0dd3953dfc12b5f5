package disagg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/rewired-gh/quakedisagg/internal/geo"
	"github.com/rewired-gh/quakedisagg/internal/models"
)

// BinParams are the requested bin sizes
type BinParams struct {
	MagWidth   float64
	DistWidth  float64 // km
	CoordWidth float64 // Degrees, for both longitude and latitude
	Truncation float64 // Epsilon bins span [-Truncation, Truncation]
	NEps       int
}

// Validate checks that widths and the truncation level are positive and that there is at least one epsilon bin
func (p BinParams) Validate() error {
	if p.MagWidth <= 0 || p.DistWidth <= 0 || p.CoordWidth <= 0 {
		return fmt.Errorf("bin widths must be positive (mag=%v dist=%v coord=%v)", p.MagWidth, p.DistWidth, p.CoordWidth)
	}
	if p.Truncation <= 0 {
		return fmt.Errorf("truncation level must be positive, got %v", p.Truncation)
	}
	if p.NEps < 1 {
		return fmt.Errorf("number of epsilon bins must be at least 1, got %d", p.NEps)
	}
	return nil
}

// DefineBins derives histogram edges from the extent of the data. Magnitude,
// distance and latitude edges are multiples of the bin width enclosing the
// data. Longitude edges are evenly spaced along the shortest arc between the
// snapped west and east bounds of the data's spherical bounding box, and may
// therefore wrap across the antimeridian.
func DefineBins(data *models.BinData, p BinParams) (models.BinEdges, error) {
	if err := p.Validate(); err != nil {
		return models.BinEdges{}, err
	}
	if data.Len() == 0 {
		return models.BinEdges{}, errors.New("cannot define bins without rupture data")
	}

	bbox, err := geo.SphericalBoundingBox(data.Lons, data.Lats)
	if err != nil {
		return models.BinEdges{}, fmt.Errorf("bounding box of closest points: %w", err)
	}

	return models.BinEdges{
		Mag:  linearEdges(floats.Min(data.Mags), floats.Max(data.Mags), p.MagWidth),
		Dist: linearEdges(floats.Min(data.Dists), floats.Max(data.Dists), p.DistWidth),
		Lon:  lonEdges(bbox.West, bbox.East, p.CoordWidth),
		Lat:  linearEdges(bbox.South, bbox.North, p.CoordWidth),
		Eps:  floats.Span(make([]float64, p.NEps+1), -p.Truncation, p.Truncation),
	}, nil
}

// linearEdges returns width·k for k from floor(lo/width) to ceil(hi/width).
// A range collapsing on a single edge gets one extra bin above it.
func linearEdges(lo, hi, width float64) []float64 {
	first := int(math.Floor(lo / width))
	last := int(math.Ceil(hi / width))
	// Rounding may land an edge just inside the data
	if float64(first)*width > lo {
		first--
	}
	if float64(last)*width < hi {
		last++
	}
	if last <= first {
		last = first + 1
	}

	edges := make([]float64, 0, last-first+1)
	for k := first; k <= last; k++ {
		edges = append(edges, float64(k)*width)
	}
	return edges
}

func lonEdges(west, east, width float64) []float64 {
	west = math.Floor(west/width) * width
	east = math.Ceil(east/width) * width
	extent := geo.LongitudinalExtent(west, east)
	n := int(math.Round(extent/width)) + 1
	if n < 2 {
		east = west + width
		n = 2
	}
	return geo.EquatorPoints(west, east, n)
}
