// Package models defines the core domain entities of a disaggregation calculation.
// These models represent sites, intensity measures, raw rupture bin data, bin edges,
// disaggregation keys and matrices. Most models include built-in validation to
// ensure data integrity between the pipeline stages.
//
// Terminology:
//   - Rupture record: magnitude, distance, closest point, TRT index and the
//     per-epsilon probabilities of not exceeding the target level for one rupture.
//   - Key: identifies one output matrix (realization, PoE, IML, IMT, site).
//   - Matrix: the dense 6-D array mag × dist × lon × lat × eps × trt.
package models

import (
	"errors"
	"fmt"
	"strconv"
)

// Point is a geographic location in decimal degrees with depth in km
type Point struct {
	Lon   float64 `json:"lon" yaml:"lon"`
	Lat   float64 `json:"lat" yaml:"lat"`
	Depth float64 `json:"depth,omitempty" yaml:"depth,omitempty"`
}

// WKT renders the point as a 2-D well-known-text POINT
func (p Point) WKT() string {
	return "POINT(" + strconv.FormatFloat(p.Lon, 'f', -1, 64) + " " + strconv.FormatFloat(p.Lat, 'f', -1, 64) + ")"
}

// Validate checks that the coordinates are on the globe
func (p Point) Validate() error {
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", p.Lon)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", p.Lat)
	}
	return nil
}

// Site is a location for which hazard is disaggregated
type Site struct {
	ID       int     `json:"id" yaml:"id"`
	Location Point   `json:"location" yaml:"location"`
	Vs30     float64 `json:"vs30" yaml:"vs30"` // Average shear-wave velocity of the top 30 m, m/s
}

// Validate checks that all site fields are valid
func (s *Site) Validate() error {
	if err := s.Location.Validate(); err != nil {
		return fmt.Errorf("site %d: %w", s.ID, err)
	}
	if s.Vs30 < 0 {
		return errors.New("vs30 must not be negative")
	}
	return nil
}

func (s Site) String() string {
	return fmt.Sprintf("<Site %d %s>", s.ID, s.Location.WKT())
}
