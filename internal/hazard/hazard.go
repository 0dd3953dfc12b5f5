// Package hazard defines the collaborators a disaggregation depends on but
// does not own: rupture sources and their filtering around a site, ground
// motion models, and hazard curves. Simple reference implementations of each
// are provided so that a calculation can run end to end from a job file.
package hazard

import (
	"context"

	"github.com/rewired-gh/quakedisagg/internal/models"
)

// Surface is the geometry of a rupture as seen from a site
type Surface interface {
	// JoynerBooreDistance is the horizontal distance in km from the site to
	// the surface projection of the rupture
	JoynerBooreDistance(site models.Point) float64
	// ClosestPoint is the point of the surface closest to the site
	ClosestPoint(site models.Point) models.Point
}

// Rupture is one candidate earthquake generated from a source
type Rupture struct {
	Mag        float64
	Rake       float64
	Rate       float64 // Annual occurrence rate
	Hypocenter models.Point
	Surface    Surface
}

// Source is a seismic source with its pre-generated ruptures
type Source struct {
	ID       string
	TRT      string // Tectonic region type
	Ruptures []*Rupture
}

// SourceRuptures pairs a source with the ruptures that matter for a site
type SourceRuptures struct {
	Source   *Source
	Ruptures []*Rupture
}

// RuptureProvider selects, per source, the ruptures contributing to a site
type RuptureProvider interface {
	RupturesNear(ctx context.Context, site models.Site, sources []*Source) ([]SourceRuptures, error)
}

// Context carries what a ground motion model needs about a site/rupture pair
type Context struct {
	Site    models.Site
	Rupture *Rupture
	RJB     float64
}

// Oracle is a ground motion model for one tectonic region type
type Oracle interface {
	ContextFor(site models.Site, rup *Rupture) (Context, error)
	// ExceedanceGivenEpsilon returns, for each of nEps epsilon bins spanning
	// [-truncation, truncation], the probability that the ground motion
	// exceeds iml with epsilon in that bin
	ExceedanceGivenEpsilon(c Context, imt models.IMT, iml, truncation float64, nEps int) ([]float64, error)
	// NonExceedance converts exceedance probabilities given the rupture into
	// probabilities of no exceedance over the investigation time
	NonExceedance(c Context, poes []float64) []float64
}

// Realization is one logic-tree branch: a ground motion model per tectonic region type
type Realization struct {
	ID      int
	Weight  float64
	Oracles map[string]Oracle
}

// CurveProvider looks up precomputed hazard curves
type CurveProvider interface {
	// CurveFor returns the curve of a realization at a site. An all-zero
	// curve is returned as is; a missing curve is an error.
	CurveFor(ctx context.Context, rlzID int, site models.Site, imt models.IMT) (models.Curve, error)
}
