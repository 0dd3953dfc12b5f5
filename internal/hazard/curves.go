package hazard

import (
	"context"
	"fmt"

	"github.com/rewired-gh/quakedisagg/internal/models"
)

type curveKey struct {
	rlzID  int
	siteID int
	imt    string
}

// StaticCurves is an in-memory CurveProvider
type StaticCurves struct {
	curves map[curveKey]models.Curve
}

// NewStaticCurves creates an empty provider
func NewStaticCurves() *StaticCurves {
	return &StaticCurves{curves: make(map[curveKey]models.Curve)}
}

// Add registers the curve of a realization at a site
func (s *StaticCurves) Add(rlzID, siteID int, imt models.IMT, curve models.Curve) error {
	if err := curve.Validate(); err != nil {
		return fmt.Errorf("curve rlz=%d site=%d imt=%s: %w", rlzID, siteID, imt, err)
	}
	s.curves[curveKey{rlzID, siteID, imt.String()}] = curve
	return nil
}

// CurveFor implements CurveProvider
func (s *StaticCurves) CurveFor(ctx context.Context, rlzID int, site models.Site, imt models.IMT) (models.Curve, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, ok := s.curves[curveKey{rlzID, site.ID, imt.String()}]
	if !ok {
		return nil, fmt.Errorf("no hazard curve for rlz=%d site=%d imt=%s", rlzID, site.ID, imt)
	}
	return c, nil
}

// InterpolateIML returns the intensity level at which the curve reaches poe,
// interpolating linearly over the curve points ordered by increasing
// probability and clamping outside the curve's range. ok is false when every
// probability of the curve is zero.
func InterpolateIML(curve models.Curve, poe float64) (iml float64, ok bool) {
	if len(curve) == 0 || curve.AllZero() {
		return 0, false
	}

	// Reverse so that probabilities increase
	n := len(curve)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, p := range curve {
		xs[n-1-i] = p.PoE
		ys[n-1-i] = p.IML
	}

	if poe <= xs[0] {
		return ys[0], true
	}
	if poe >= xs[n-1] {
		return ys[n-1], true
	}
	for j := 1; j < n; j++ {
		if poe < xs[j] {
			x0, x1 := xs[j-1], xs[j]
			f := (poe - x0) / (x1 - x0)
			return ys[j-1] + f*(ys[j]-ys[j-1]), true
		}
	}
	return ys[n-1], true
}
