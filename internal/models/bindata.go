package models

import (
	"errors"
	"fmt"
)

// RuptureRecord holds the attributes of one rupture relevant to disaggregation
type RuptureRecord struct {
	Mag      float64
	Dist     float64 // Joyner-Boore distance to the site, km
	Lon      float64 // Closest point of the rupture surface to the site
	Lat      float64
	TRT      int       // Index of the tectonic region type
	NoExceed []float64 // Probability of not exceeding the IML, one value per epsilon bin
}

// BinData is the raw-bin collection for one disaggregation key, stored as
// parallel slices. Record i is (Mags[i], Dists[i], Lons[i], Lats[i], TRTs[i], NoExceed[i]).
type BinData struct {
	Mags     []float64   `json:"mags"`
	Dists    []float64   `json:"dists"`
	Lons     []float64   `json:"lons"`
	Lats     []float64   `json:"lats"`
	TRTs     []int       `json:"trts"`
	NoExceed [][]float64 `json:"no_exceed"`
}

// Len returns the number of rupture records
func (b *BinData) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Mags)
}

// Append adds one rupture record
func (b *BinData) Append(r RuptureRecord) {
	b.Mags = append(b.Mags, r.Mag)
	b.Dists = append(b.Dists, r.Dist)
	b.Lons = append(b.Lons, r.Lon)
	b.Lats = append(b.Lats, r.Lat)
	b.TRTs = append(b.TRTs, r.TRT)
	b.NoExceed = append(b.NoExceed, r.NoExceed)
}

// Extend concatenates the records of other onto b
func (b *BinData) Extend(other *BinData) {
	if other == nil {
		return
	}
	b.Mags = append(b.Mags, other.Mags...)
	b.Dists = append(b.Dists, other.Dists...)
	b.Lons = append(b.Lons, other.Lons...)
	b.Lats = append(b.Lats, other.Lats...)
	b.TRTs = append(b.TRTs, other.TRTs...)
	b.NoExceed = append(b.NoExceed, other.NoExceed...)
}

// Record returns record i
func (b *BinData) Record(i int) RuptureRecord {
	return RuptureRecord{
		Mag:      b.Mags[i],
		Dist:     b.Dists[i],
		Lon:      b.Lons[i],
		Lat:      b.Lats[i],
		TRT:      b.TRTs[i],
		NoExceed: b.NoExceed[i],
	}
}

// Validate checks that the parallel slices agree in length, that every
// record carries nEps probabilities and that probabilities lie in [0, 1]
func (b *BinData) Validate(nEps int) error {
	if b == nil {
		return errors.New("bin data must not be nil")
	}
	n := len(b.Mags)
	if len(b.Dists) != n || len(b.Lons) != n || len(b.Lats) != n || len(b.TRTs) != n || len(b.NoExceed) != n {
		return fmt.Errorf("bin data slices have inconsistent lengths (mags=%d dists=%d lons=%d lats=%d trts=%d probs=%d)",
			n, len(b.Dists), len(b.Lons), len(b.Lats), len(b.TRTs), len(b.NoExceed))
	}
	for i, probs := range b.NoExceed {
		if len(probs) != nEps {
			return fmt.Errorf("record %d has %d epsilon probabilities, expected %d", i, len(probs), nEps)
		}
		for _, p := range probs {
			if p < 0 || p > 1 {
				return fmt.Errorf("record %d has non-exceedance probability %v outside [0, 1]", i, p)
			}
		}
		if b.TRTs[i] < 0 {
			return fmt.Errorf("record %d has negative TRT index %d", i, b.TRTs[i])
		}
	}
	return nil
}
