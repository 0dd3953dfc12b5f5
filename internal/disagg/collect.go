package disagg

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rewired-gh/quakedisagg/internal/hazard"
	"github.com/rewired-gh/quakedisagg/internal/logger"
	"github.com/rewired-gh/quakedisagg/internal/models"
)

// SourceError reports the source whose ruptures could not be processed
type SourceError struct {
	SourceID string
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("an error occurred with source id=%s: %v", e.SourceID, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// geometry is the site-dependent, key-independent part of a rupture record
type geometry struct {
	dist    float64
	closest models.Point
}

// CollectBins gathers the raw bin data of one source group at one site, for
// every IMT, realization and PoE of the job. Keys whose hazard curve is all
// zero are skipped with a warning. A site with no nearby rupture yields an
// empty map.
func CollectBins(ctx context.Context, job *Job, sources []*hazard.Source, site models.Site, tracer trace.Tracer) (map[models.Key]*models.BinData, error) {
	result := make(map[models.Key]*models.BinData)

	near, err := job.Ruptures.RupturesNear(ctx, site, sources)
	if err != nil {
		return nil, fmt.Errorf("select ruptures near %s: %w", site, err)
	}
	total := 0
	for _, sr := range near {
		total += len(sr.Ruptures)
	}
	if total == 0 {
		return result, nil
	}
	logger.Info("Considering %d ruptures close to %s", total, site)

	geoms, err := computeGeometries(ctx, tracer, near, site)
	if err != nil {
		return nil, err
	}

	trts := job.trtIndex()
	contexts := make(map[int][][]hazard.Context, len(job.Realizations))

	for _, imt := range job.Params.IMTs {
		for i, rlz := range job.Realizations {
			curve, err := job.Curves.CurveFor(ctx, rlz.ID, site, imt)
			if err != nil {
				return nil, fmt.Errorf("hazard curve rlz=%d imt=%s site=%d: %w", rlz.ID, imt, site.ID, err)
			}

			for _, poe := range job.Params.PoEs {
				iml, ok := hazard.InterpolateIML(curve, poe)
				if !ok {
					logger.Warn("hazard curve contained all 0 probability values; skipping rlz=%d, IMT=%s", rlz.ID, imt)
					continue
				}

				ctxs, ok := contexts[i]
				if !ok {
					ctxs, err = makeContexts(ctx, tracer, near, rlz, site)
					if err != nil {
						return nil, err
					}
					contexts[i] = ctxs
				}

				data, err := disaggregatePoE(ctx, tracer, job, near, geoms, ctxs, rlz, trts, imt, iml)
				if err != nil {
					return nil, err
				}
				result[models.NewKey(rlz.ID, poe, iml, imt, site.ID)] = data
			}
		}
	}
	return result, nil
}

func computeGeometries(ctx context.Context, tracer trace.Tracer, near []hazard.SourceRuptures, site models.Site) ([][]geometry, error) {
	_, span := tracer.Start(ctx, "calc distances")
	defer span.End()

	geoms := make([][]geometry, len(near))
	for i, sr := range near {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		geoms[i] = make([]geometry, len(sr.Ruptures))
		for j, rup := range sr.Ruptures {
			if rup.Surface == nil {
				return nil, &SourceError{SourceID: sr.Source.ID, Err: fmt.Errorf("rupture %d has no surface", j)}
			}
			geoms[i][j] = geometry{
				dist:    rup.Surface.JoynerBooreDistance(site.Location),
				closest: rup.Surface.ClosestPoint(site.Location),
			}
		}
	}
	return geoms, nil
}

func makeContexts(ctx context.Context, tracer trace.Tracer, near []hazard.SourceRuptures, rlz hazard.Realization, site models.Site) ([][]hazard.Context, error) {
	_, span := tracer.Start(ctx, "making contexts", trace.WithAttributes(attribute.Int("rlz", rlz.ID)))
	defer span.End()

	ctxs := make([][]hazard.Context, len(near))
	for i, sr := range near {
		oracle := rlz.Oracles[sr.Source.TRT]
		if oracle == nil {
			return nil, &SourceError{SourceID: sr.Source.ID, Err: fmt.Errorf("realization %d has no ground motion model for %q", rlz.ID, sr.Source.TRT)}
		}
		ctxs[i] = make([]hazard.Context, len(sr.Ruptures))
		for j, rup := range sr.Ruptures {
			c, err := oracle.ContextFor(site, rup)
			if err != nil {
				return nil, &SourceError{SourceID: sr.Source.ID, Err: err}
			}
			ctxs[i][j] = c
		}
	}
	return ctxs, nil
}

func disaggregatePoE(
	ctx context.Context,
	tracer trace.Tracer,
	job *Job,
	near []hazard.SourceRuptures,
	geoms [][]geometry,
	ctxs [][]hazard.Context,
	rlz hazard.Realization,
	trts map[string]int,
	imt models.IMT,
	iml float64,
) (*models.BinData, error) {
	_, span := tracer.Start(ctx, "disaggregate poe", trace.WithAttributes(
		attribute.Int("rlz", rlz.ID),
		attribute.String("imt", imt.String()),
		attribute.Float64("iml", iml),
	))
	defer span.End()

	bins := job.Params.Bins
	data := &models.BinData{}
	for i, sr := range near {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		trt, ok := trts[sr.Source.TRT]
		if !ok {
			return nil, &SourceError{SourceID: sr.Source.ID, Err: fmt.Errorf("unknown tectonic region type %q", sr.Source.TRT)}
		}
		oracle := rlz.Oracles[sr.Source.TRT]

		for j, rup := range sr.Ruptures {
			poes, err := oracle.ExceedanceGivenEpsilon(ctxs[i][j], imt, iml, bins.Truncation, bins.NEps)
			if err != nil {
				return nil, &SourceError{SourceID: sr.Source.ID, Err: err}
			}
			if len(poes) != bins.NEps {
				return nil, &SourceError{SourceID: sr.Source.ID, Err: fmt.Errorf("ground motion model returned %d epsilon bins, expected %d", len(poes), bins.NEps)}
			}
			g := geoms[i][j]
			data.Append(models.RuptureRecord{
				Mag:      rup.Mag,
				Dist:     g.dist,
				Lon:      g.closest.Lon,
				Lat:      g.closest.Lat,
				TRT:      trt,
				NoExceed: oracle.NonExceedance(ctxs[i][j], poes),
			})
		}
	}
	return data, nil
}
