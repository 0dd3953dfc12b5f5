// Package geo implements the spherical-earth helpers used to bin rupture
// locations: great-circle distance, signed longitudinal extents that stay
// correct across the antimeridian, spherical bounding boxes and evenly
// spaced geodesic points along the equator.
package geo

import (
	"fmt"
	"math"
)

// EarthRadius is the mean earth radius in km.
const EarthRadius = 6371.0

// Distance returns the great-circle distance in km between two points given
// in decimal degrees, using the haversine formula.
func Distance(lon1, lat1, lon2, lat2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dphi := phi2 - phi1
	dlambda := radians(lon2 - lon1)

	a := math.Pow(math.Sin(dphi/2), 2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Pow(math.Sin(dlambda/2), 2)
	return 2 * EarthRadius * math.Asin(math.Min(1, math.Sqrt(a)))
}

// LongitudinalExtent returns the signed shortest angular distance from lon1
// to lon2, in (-180, 180]. Positive means lon2 lies east of lon1.
func LongitudinalExtent(lon1, lon2 float64) float64 {
	extent := math.Mod(lon2-lon1+180, 360)
	if extent < 0 {
		extent += 360
	}
	extent -= 180
	if extent == -180 {
		return 180
	}
	return extent
}

// NormalizeLon maps a longitude into (-180, 180].
func NormalizeLon(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon > 180 {
		lon -= 360
	} else if lon <= -180 {
		lon += 360
	}
	return lon
}

// BoundingBox is the smallest lon/lat rectangle on the sphere containing a
// set of points. West may be numerically greater than East when the box
// crosses the antimeridian.
type BoundingBox struct {
	West, East, North, South float64
}

// SphericalBoundingBox computes the bounding box of the given points. Points
// lying on both sides of the antimeridian yield West as the lowest positive
// longitude and East as the highest negative one. A point set whose
// longitudinal extent is wider than 180 degrees is rejected.
func SphericalBoundingBox(lons, lats []float64) (BoundingBox, error) {
	if len(lons) == 0 || len(lons) != len(lats) {
		return BoundingBox{}, fmt.Errorf("bounding box needs matching non-empty coordinates (got %d lons, %d lats)", len(lons), len(lats))
	}

	west, east := lons[0], lons[0]
	north, south := lats[0], lats[0]
	for i := range lons {
		west = math.Min(west, lons[i])
		east = math.Max(east, lons[i])
		north = math.Max(north, lats[i])
		south = math.Min(south, lats[i])
	}
	if west < -180 || east > 180 {
		return BoundingBox{}, fmt.Errorf("longitudes must be within [-180, 180], got [%v, %v]", west, east)
	}

	if LongitudinalExtent(west, east) < 0 {
		// Points lie on both sides of the antimeridian
		west, east = math.Inf(1), math.Inf(-1)
		for _, lon := range lons {
			if lon > 0 && lon < west {
				west = lon
			}
			if lon < 0 && lon > east {
				east = lon
			}
		}
		for _, lon := range lons {
			if LongitudinalExtent(west, lon) < 0 || LongitudinalExtent(lon, east) < 0 {
				return BoundingBox{}, fmt.Errorf("points collection has longitudinal extent wider than 180 deg")
			}
		}
	}

	return BoundingBox{West: west, East: east, North: north, South: south}, nil
}

// EquatorPoints returns n longitudes evenly spaced along the shortest great
// circle arc of the equator from west to east, endpoints included. Values
// are normalized into (-180, 180], so the sequence wraps when the arc
// crosses the antimeridian.
func EquatorPoints(west, east float64, n int) []float64 {
	if n < 1 {
		return nil
	}
	if n == 1 {
		return []float64{NormalizeLon(west)}
	}
	extent := LongitudinalExtent(west, east)
	step := extent / float64(n-1)

	lons := make([]float64, n)
	for i := range lons {
		lons[i] = NormalizeLon(west + float64(i)*step)
	}
	// Pin the final point to avoid accumulated rounding
	lons[n-1] = NormalizeLon(east)
	return lons
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
