// Package disagg implements the two-stage disaggregation pipeline.
//
// Stage one collects, for every source group of a site, the magnitude,
// distance, closest point, tectonic region type and per-epsilon
// non-exceedance probability of every nearby rupture, keyed by
// (realization, PoE, IML, IMT, site). The results of all groups are folded by
// key on the orchestrating goroutine. Stage two turns each key's raw bins
// into a 6-D matrix:
//
//	cell = 1 - ∏ P(no exceedance | rupture, epsilon bin)
//
// over the ruptures falling in the cell, projects it onto the named marginal
// distributions and saves the result.
package disagg

import (
	"errors"
	"fmt"

	"github.com/rewired-gh/quakedisagg/internal/hazard"
	"github.com/rewired-gh/quakedisagg/internal/models"
)

// Params are the numerical settings of a disaggregation
type Params struct {
	InvestigationTime float64
	Bins              BinParams
	PoEs              []float64
	IMTs              []models.IMT // Processed in this order
	SourcesPerTask    int
}

// Job is everything a Calculator needs: sites, sources, realizations and the
// collaborators that produce ruptures and hazard curves
type Job struct {
	Params       Params
	Sites        []models.Site
	Sources      []*hazard.Source
	Realizations []hazard.Realization
	TRTNames     []string // Index in this slice is the TRT index stored in bin data
	Ruptures     hazard.RuptureProvider
	Curves       hazard.CurveProvider
}

// Validate checks the job is complete and consistent
func (j *Job) Validate() error {
	if err := j.Params.Bins.Validate(); err != nil {
		return err
	}
	if j.Params.InvestigationTime <= 0 {
		return fmt.Errorf("investigation time must be positive, got %v", j.Params.InvestigationTime)
	}
	if len(j.Params.PoEs) == 0 {
		return errors.New("at least one PoE is required")
	}
	for _, poe := range j.Params.PoEs {
		if poe <= 0 || poe > 1 {
			return fmt.Errorf("PoE %v must be in (0, 1]", poe)
		}
	}
	if len(j.Params.IMTs) == 0 {
		return errors.New("at least one intensity measure type is required")
	}
	if j.Params.SourcesPerTask < 1 {
		return fmt.Errorf("sources per task must be at least 1, got %d", j.Params.SourcesPerTask)
	}
	if j.Ruptures == nil || j.Curves == nil {
		return errors.New("rupture and curve providers are required")
	}
	if len(j.TRTNames) == 0 {
		return errors.New("at least one tectonic region type is required")
	}

	trts := j.trtIndex()
	if len(trts) != len(j.TRTNames) {
		return errors.New("tectonic region type names must be unique")
	}
	for _, src := range j.Sources {
		if _, ok := trts[src.TRT]; !ok {
			return fmt.Errorf("source %s has unknown tectonic region type %q", src.ID, src.TRT)
		}
	}
	for _, rlz := range j.Realizations {
		for _, trt := range j.TRTNames {
			if rlz.Oracles[trt] == nil {
				return fmt.Errorf("realization %d has no ground motion model for %q", rlz.ID, trt)
			}
		}
	}
	for i := range j.Sites {
		if err := j.Sites[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (j *Job) trtIndex() map[string]int {
	idx := make(map[string]int, len(j.TRTNames))
	for i, name := range j.TRTNames {
		idx[name] = i
	}
	return idx
}

// sourceGroups splits the sources in consecutive groups of at most n
func sourceGroups(sources []*hazard.Source, n int) [][]*hazard.Source {
	var groups [][]*hazard.Source
	for start := 0; start < len(sources); start += n {
		end := min(start+n, len(sources))
		groups = append(groups, sources[start:end])
	}
	return groups
}
