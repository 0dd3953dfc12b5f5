package disagg

import (
	"context"
	"fmt"

	"github.com/rewired-gh/quakedisagg/internal/geo"
	"github.com/rewired-gh/quakedisagg/internal/logger"
	"github.com/rewired-gh/quakedisagg/internal/models"
	"github.com/rewired-gh/quakedisagg/internal/progress"
)

// ArrangeBins distributes the records of data over the bins defined by edges
// and returns the disaggregation matrix. Each cell holds the probability that
// at least one rupture of the cell causes an exceedance, 1 - ∏ P(no exceedance),
// and is exactly 0 when no rupture falls in it.
//
// Bin i of a dimension holds the values v with lower < v ≤ upper; the first
// bin holds every v ≤ upper. Longitudes are compared through their signed
// longitudinal extent so that bins spanning the antimeridian work.
//
// counter, if not nil, is stepped once per cell.
func ArrangeBins(ctx context.Context, data *models.BinData, edges models.BinEdges, nTRT int, counter *progress.Counter) (*models.Matrix, error) {
	if err := edges.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bin edges: %w", err)
	}
	nEps := len(edges.Eps) - 1
	if err := data.Validate(nEps); err != nil {
		return nil, fmt.Errorf("invalid bin data: %w", err)
	}
	if nTRT < 1 {
		return nil, fmt.Errorf("number of tectonic region types must be at least 1, got %d", nTRT)
	}
	for i, trt := range data.TRTs {
		if trt >= nTRT {
			return nil, fmt.Errorf("record %d has TRT index %d, only %d types defined", i, trt, nTRT)
		}
	}

	shape := edges.Shape(nTRT)
	m := models.NewMatrix(shape)
	logger.Info("Populating disaggregation matrix of size %d, %v", m.Size(), shape)

	all := make([]int, data.Len())
	for i := range all {
		all[i] = i
	}

	var idx [models.NumAxes]int
	for iMag := range shape[models.AxisMag] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		byMag := selectRecords(all, func(r int) bool { return inBin(data.Mags[r], edges.Mag, iMag) })

		for iDist := range shape[models.AxisDist] {
			byDist := selectRecords(byMag, func(r int) bool { return inBin(data.Dists[r], edges.Dist, iDist) })

			for iLon := range shape[models.AxisLon] {
				byLon := selectRecords(byDist, func(r int) bool { return inLonBin(data.Lons[r], edges.Lon, iLon) })

				for iLat := range shape[models.AxisLat] {
					byLat := selectRecords(byLon, func(r int) bool { return inBin(data.Lats[r], edges.Lat, iLat) })

					for iEps := range shape[models.AxisEps] {
						for iTRT := range shape[models.AxisTRT] {
							noExceed := 1.0
							for _, r := range byLat {
								if data.TRTs[r] == iTRT {
									noExceed *= data.NoExceed[r][iEps]
								}
							}
							idx = [models.NumAxes]int{iMag, iDist, iLon, iLat, iEps, iTRT}
							m.Set(idx, 1-noExceed)
							counter.Step()
						}
					}
				}
			}
		}
	}
	return m, nil
}

func selectRecords(from []int, keep func(int) bool) []int {
	var out []int
	for _, r := range from {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func inBin(v float64, edges []float64, i int) bool {
	if v > edges[i+1] {
		return false
	}
	return i == 0 || v > edges[i]
}

func inLonBin(lon float64, edges []float64, i int) bool {
	if geo.LongitudinalExtent(lon, edges[i+1]) < 0 {
		return false
	}
	return i == 0 || geo.LongitudinalExtent(edges[i], lon) > 0
}
