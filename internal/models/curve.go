package models

import (
	"errors"
	"fmt"
)

// CurvePoint is one (intensity level, probability of exceedance) pair of a hazard curve
type CurvePoint struct {
	IML float64 `json:"iml" yaml:"iml"`
	PoE float64 `json:"poe" yaml:"poe"`
}

// Curve is a hazard curve ordered by increasing IML, hence non-increasing PoE
type Curve []CurvePoint

// NewCurve pairs levels with their probabilities of exceedance
func NewCurve(imls, poes []float64) (Curve, error) {
	if len(imls) != len(poes) {
		return nil, fmt.Errorf("curve has %d levels but %d probabilities", len(imls), len(poes))
	}
	c := make(Curve, len(imls))
	for i := range imls {
		c[i] = CurvePoint{IML: imls[i], PoE: poes[i]}
	}
	return c, c.Validate()
}

// AllZero reports whether every probability of the curve is exactly zero
func (c Curve) AllZero() bool {
	for _, p := range c {
		if p.PoE != 0 {
			return false
		}
	}
	return true
}

// Validate checks that the curve is non-empty with increasing levels and probabilities in [0, 1]
func (c Curve) Validate() error {
	if len(c) == 0 {
		return errors.New("hazard curve must not be empty")
	}
	for i, p := range c {
		if p.PoE < 0 || p.PoE > 1 {
			return fmt.Errorf("hazard curve poe %v at index %d outside [0, 1]", p.PoE, i)
		}
		if i > 0 && p.IML <= c[i-1].IML {
			return fmt.Errorf("hazard curve levels must be strictly increasing at index %d", i)
		}
	}
	return nil
}
