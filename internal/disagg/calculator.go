package disagg

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rewired-gh/quakedisagg/internal/hazard"
	"github.com/rewired-gh/quakedisagg/internal/logger"
	"github.com/rewired-gh/quakedisagg/internal/models"
	"github.com/rewired-gh/quakedisagg/internal/orchestrator"
	"github.com/rewired-gh/quakedisagg/internal/progress"
)

const tracerName = "github.com/rewired-gh/quakedisagg/internal/disagg"

// Task names reported to the orchestrator and progress sinks
const (
	TaskCollect = "collect_bins"
	TaskArrange = "arrange_and_save_disagg_matrix"
)

// Record is one saved disaggregation result
type Record struct {
	Name              string            `json:"name"`
	Key               models.Key        `json:"key"`
	Location          models.Point      `json:"location"`
	InvestigationTime float64           `json:"investigation_time"`
	Edges             models.BinEdges   `json:"edges"`
	TRTNames          []string          `json:"trt_names"`
	Matrix            *models.Matrix    `json:"matrix"`
	Marginals         []models.Marginal `json:"marginals"`
	CreatedAt         time.Time         `json:"created_at"`
}

// ResultStore persists disaggregation results. Save must be safe for
// concurrent use.
type ResultStore interface {
	Save(ctx context.Context, rec Record) (artifactID string, err error)
}

// DisplayName renders the conventional output name of a result, e.g.
// disagg(0.1)-rlz-3-SA(0.2)-POINT(10.5 45.1)
func DisplayName(key models.Key, location models.Point) string {
	return fmt.Sprintf("disagg(%s)-rlz-%d-%s-%s",
		strconv.FormatFloat(key.PoE, 'g', -1, 64),
		key.RealizationID,
		key.IntensityMeasure(),
		location.WKT(),
	)
}

// Summary describes a completed run
type Summary struct {
	Sites        int
	SkippedSites int
	Matrices     int
	ArtifactIDs  []string
}

// Calculator drives a disaggregation job site by site
type Calculator struct {
	job      *Job
	orch     *orchestrator.Orchestrator
	store    ResultStore
	tracer   trace.Tracer
	cellSink progress.Sink
	now      func() time.Time
}

// NewCalculator creates a Calculator. Matrix assembly progress is written to
// the log; unit progress goes to the orchestrator's sink.
func NewCalculator(job *Job, orch *orchestrator.Orchestrator, store ResultStore) *Calculator {
	return &Calculator{
		job:      job,
		orch:     orch,
		store:    store,
		tracer:   otel.Tracer(tracerName),
		cellSink: progress.LogSink{},
		now:      time.Now,
	}
}

// Run disaggregates every site of the job in turn. The first failing unit
// aborts the run; results saved before the failure are kept and listed in
// the returned summary.
func (c *Calculator) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	if err := c.job.Validate(); err != nil {
		return sum, fmt.Errorf("invalid job: %w", err)
	}

	merger := NewMerger()
	for i, site := range c.job.Sites {
		logger.Info("Disaggregating %s (%d of %d)", site, i+1, len(c.job.Sites))

		ids, skipped, err := c.runSite(ctx, site, merger)
		merger.Reset()
		sum.ArtifactIDs = append(sum.ArtifactIDs, ids...)
		sum.Matrices += len(ids)
		if err != nil {
			return sum, fmt.Errorf("site %d: %w", site.ID, err)
		}
		if skipped {
			sum.SkippedSites++
		}
		sum.Sites++
	}
	return sum, nil
}

// runSite reports skipped when no key was collected for the site
func (c *Calculator) runSite(ctx context.Context, site models.Site, merger *Merger) (ids []string, skipped bool, err error) {
	ctx, span := c.tracer.Start(ctx, "disaggregate site", trace.WithAttributes(attribute.Int("site", site.ID)))
	defer span.End()

	groups := sourceGroups(c.job.Sources, c.job.Params.SourcesPerTask)
	collect := make([]orchestrator.Unit[map[models.Key]*models.BinData], len(groups))
	for i, g := range groups {
		collect[i] = &collectUnit{calc: c, site: site, group: i, sources: g}
	}
	err = orchestrator.Run(ctx, c.orch, TaskCollect, collect, func(result map[models.Key]*models.BinData) error {
		merger.Add(result)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}

	log := logger.With("site_id", site.ID)
	if merger.Len() == 0 {
		log.Info("No ruptures contribute to %s, skipping", site)
		return nil, true, nil
	}
	log.Debug("Collected %d disaggregation keys", merger.Len())

	keys := merger.Keys()
	arrange := make([]orchestrator.Unit[string], len(keys))
	for i, key := range keys {
		arrange[i] = &arrangeUnit{calc: c, site: site, key: key, data: merger.Get(key)}
	}
	ids = make([]string, 0, len(keys))
	err = orchestrator.Run(ctx, c.orch, TaskArrange, arrange, func(id string) error {
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return ids, false, err
}

// collectUnit gathers the bin data of one source group
type collectUnit struct {
	calc    *Calculator
	site    models.Site
	group   int
	sources []*hazard.Source
}

func (u *collectUnit) ID() string {
	return fmt.Sprintf("site=%d group=%d (%d sources from %s)", u.site.ID, u.group, len(u.sources), u.sources[0].ID)
}

func (u *collectUnit) Run(ctx context.Context) (map[models.Key]*models.BinData, error) {
	return CollectBins(ctx, u.calc.job, u.sources, u.site, u.calc.tracer)
}

// arrangeUnit builds, projects and saves the matrix of one key
type arrangeUnit struct {
	calc *Calculator
	site models.Site
	key  models.Key
	data *models.BinData
}

func (u *arrangeUnit) ID() string {
	return u.key.String()
}

func (u *arrangeUnit) Run(ctx context.Context) (string, error) {
	c := u.calc
	nTRT := len(c.job.TRTNames)

	arrangeCtx, span := c.tracer.Start(ctx, "arrange data", trace.WithAttributes(attribute.Int("records", u.data.Len())))
	edges, err := DefineBins(u.data, c.job.Params.Bins)
	if err != nil {
		span.End()
		return "", fmt.Errorf("define bins: %w", err)
	}
	shape := edges.Shape(nTRT)
	counter := progress.NewCounter("arrange data", shapeSize(shape), c.cellSink)
	matrix, err := ArrangeBins(arrangeCtx, u.data, edges, nTRT, counter)
	span.End()
	if err != nil {
		return "", fmt.Errorf("arrange bins: %w", err)
	}

	marginals, err := PMFs(matrix)
	if err != nil {
		return "", fmt.Errorf("marginals: %w", err)
	}

	saveCtx, saveSpan := c.tracer.Start(ctx, "saving disaggregation")
	defer saveSpan.End()
	id, err := c.store.Save(saveCtx, Record{
		Name:              DisplayName(u.key, u.site.Location),
		Key:               u.key,
		Location:          u.site.Location,
		InvestigationTime: c.job.Params.InvestigationTime,
		Edges:             edges,
		TRTNames:          append([]string(nil), c.job.TRTNames...),
		Matrix:            matrix,
		Marginals:         marginals,
		CreatedAt:         c.now().UTC(),
	})
	if err != nil {
		saveSpan.RecordError(err)
		return "", fmt.Errorf("save result: %w", err)
	}
	return id, nil
}
