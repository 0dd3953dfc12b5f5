package hazard

import (
	"fmt"
	"math"

	"github.com/rewired-gh/quakedisagg/internal/geo"
	"github.com/rewired-gh/quakedisagg/internal/models"
)

// PointSurface is a rupture collapsed to a single point
type PointSurface struct {
	Location models.Point
}

// JoynerBooreDistance implements Surface
func (s PointSurface) JoynerBooreDistance(site models.Point) float64 {
	return geo.Distance(site.Lon, site.Lat, s.Location.Lon, s.Location.Lat)
}

// ClosestPoint implements Surface
func (s PointSurface) ClosestPoint(models.Point) models.Point {
	return s.Location
}

// MeshSurface approximates a rupture surface by a mesh of points. Distances
// are measured to the nearest mesh node, so accuracy is bounded by the mesh
// spacing.
type MeshSurface struct {
	Mesh []models.Point
}

// JoynerBooreDistance implements Surface
func (s MeshSurface) JoynerBooreDistance(site models.Point) float64 {
	_, d := s.nearest(site)
	return d
}

// ClosestPoint implements Surface
func (s MeshSurface) ClosestPoint(site models.Point) models.Point {
	p, _ := s.nearest(site)
	return p
}

func (s MeshSurface) nearest(site models.Point) (models.Point, float64) {
	best := math.Inf(1)
	var closest models.Point
	for _, p := range s.Mesh {
		if d := geo.Distance(site.Lon, site.Lat, p.Lon, p.Lat); d < best {
			best = d
			closest = p
		}
	}
	return closest, best
}

// NewTraceSurface discretizes a surface trace into a mesh with nodes at most
// spacing km apart along each segment
func NewTraceSurface(trace []models.Point, spacing float64) (MeshSurface, error) {
	if len(trace) == 0 {
		return MeshSurface{}, fmt.Errorf("surface trace must have at least one point")
	}
	if spacing <= 0 {
		return MeshSurface{}, fmt.Errorf("mesh spacing must be positive, got %v", spacing)
	}

	mesh := []models.Point{trace[0]}
	for i := 1; i < len(trace); i++ {
		a, b := trace[i-1], trace[i]
		length := geo.Distance(a.Lon, a.Lat, b.Lon, b.Lat)
		n := int(math.Ceil(length / spacing))
		if n < 1 {
			n = 1
		}
		dlon := geo.LongitudinalExtent(a.Lon, b.Lon)
		for j := 1; j <= n; j++ {
			f := float64(j) / float64(n)
			mesh = append(mesh, models.Point{
				Lon:   geo.NormalizeLon(a.Lon + f*dlon),
				Lat:   a.Lat + f*(b.Lat-a.Lat),
				Depth: a.Depth + f*(b.Depth-a.Depth),
			})
		}
	}
	return MeshSurface{Mesh: mesh}, nil
}
