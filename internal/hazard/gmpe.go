package hazard

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/rewired-gh/quakedisagg/internal/models"
)

// referenceVs30 is the rock velocity at which the site term vanishes
const referenceVs30 = 760.0

// Coeffs are the coefficients of LognormalGMPE for one intensity measure type
type Coeffs struct {
	C0    float64 `yaml:"c0"`
	C1    float64 `yaml:"c1"` // Magnitude scaling
	C2    float64 `yaml:"c2"` // Geometric spreading, multiplies ln(sqrt(R² + H²))
	C3    float64 `yaml:"c3"` // Site term, multiplies ln(vs30 / 760)
	H     float64 `yaml:"h"`  // Pseudo-depth, km
	Sigma float64 `yaml:"sigma"`
}

// LognormalGMPE is a generic ground motion model with a lognormally
// distributed intensity:
//
//	ln Y = c0 + c1·M + c2·ln(√(Rjb² + h²)) + c3·ln(vs30/760),  σ = sigma
//
// Rupture occurrence is Poissonian over TimeSpan years.
type LognormalGMPE struct {
	Name     string
	Coeffs   map[string]Coeffs // Keyed by IMT string, e.g. "PGA", "SA(0.2)"
	TimeSpan float64
}

// ContextFor implements Oracle
func (g *LognormalGMPE) ContextFor(site models.Site, rup *Rupture) (Context, error) {
	if rup == nil || rup.Surface == nil {
		return Context{}, fmt.Errorf("%s: rupture without surface", g.Name)
	}
	return Context{
		Site:    site,
		Rupture: rup,
		RJB:     rup.Surface.JoynerBooreDistance(site.Location),
	}, nil
}

// MeanAndStddev returns the mean of ln Y and its standard deviation
func (g *LognormalGMPE) MeanAndStddev(c Context, imt models.IMT) (float64, float64, error) {
	co, ok := g.Coeffs[imt.String()]
	if !ok {
		return 0, 0, fmt.Errorf("%s does not support IMT %s", g.Name, imt)
	}
	if co.Sigma <= 0 {
		return 0, 0, fmt.Errorf("%s: sigma for %s must be positive", g.Name, imt)
	}

	r := math.Sqrt(c.RJB*c.RJB + co.H*co.H)
	if r == 0 {
		r = 1e-3
	}
	mean := co.C0 + co.C1*c.Rupture.Mag + co.C2*math.Log(r)
	if c.Site.Vs30 > 0 {
		mean += co.C3 * math.Log(c.Site.Vs30/referenceVs30)
	}
	return mean, co.Sigma, nil
}

// ExceedanceGivenEpsilon implements Oracle. Epsilon follows a standard
// normal distribution truncated at ±truncation, so the returned values sum
// to the total probability of exceedance given the rupture.
func (g *LognormalGMPE) ExceedanceGivenEpsilon(c Context, imt models.IMT, iml, truncation float64, nEps int) ([]float64, error) {
	if iml <= 0 {
		return nil, fmt.Errorf("%s: intensity level must be positive, got %v", g.Name, iml)
	}
	if truncation <= 0 || nEps < 1 {
		return nil, fmt.Errorf("%s: invalid truncation %v or epsilon bins %d", g.Name, truncation, nEps)
	}
	mean, sigma, err := g.MeanAndStddev(c, imt)
	if err != nil {
		return nil, err
	}

	// Standardized level: epsilon above which the ground motion exceeds iml
	z := (math.Log(iml) - mean) / sigma

	norm := distuv.UnitNormal
	lo := norm.CDF(-truncation)
	span := norm.CDF(truncation) - lo
	truncCDF := func(e float64) float64 {
		return (norm.CDF(e) - lo) / span
	}

	edges := floats.Span(make([]float64, nEps+1), -truncation, truncation)
	poes := make([]float64, nEps)
	for i := range poes {
		upper := edges[i+1]
		if z >= upper {
			continue
		}
		lower := math.Max(edges[i], z)
		poes[i] = math.Max(0, truncCDF(upper)-truncCDF(lower))
	}
	return poes, nil
}

// NonExceedance implements Oracle using the Poisson relation exp(-rate·T·poe)
func (g *LognormalGMPE) NonExceedance(c Context, poes []float64) []float64 {
	out := make([]float64, len(poes))
	for i, p := range poes {
		out[i] = math.Exp(-c.Rupture.Rate * g.TimeSpan * p)
	}
	return out
}
