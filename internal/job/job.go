// Package job reads the YAML description of a disaggregation job (sites,
// sources with their ruptures, ground motion models, realizations and the
// precomputed hazard curves) and assembles it, together with the
// calculation settings, into a disagg.Job.
package job

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rewired-gh/quakedisagg/internal/config"
	"github.com/rewired-gh/quakedisagg/internal/disagg"
	"github.com/rewired-gh/quakedisagg/internal/hazard"
	"github.com/rewired-gh/quakedisagg/internal/models"
)

// DefaultMeshSpacing is the spacing, in km, of meshes built from surface traces
const DefaultMeshSpacing = 5.0

// File is the YAML job document
type File struct {
	Sites        []models.Site `yaml:"sites"`
	TRTs         []string      `yaml:"tectonic_region_types"` // Optional; defaults to the order of first use by sources
	Sources      []Source      `yaml:"sources"`
	GSIMs        []GSIM        `yaml:"gsims"`
	Realizations []Realization `yaml:"realizations"`
	Curves       []Curve       `yaml:"hazard_curves"`
}

// Source is a seismic source and its ruptures
type Source struct {
	ID       string    `yaml:"id"`
	TRT      string    `yaml:"trt"`
	Ruptures []Rupture `yaml:"ruptures"`
}

// Rupture is one rupture of a source. Exactly one of Surface.Point and
// Surface.Trace must be set.
type Rupture struct {
	Mag        float64      `yaml:"mag"`
	Rake       float64      `yaml:"rake"`
	Rate       float64      `yaml:"rate"`
	Hypocenter models.Point `yaml:"hypocenter"`
	Surface    Surface      `yaml:"surface"`
}

// Surface describes rupture geometry
type Surface struct {
	Point       *models.Point  `yaml:"point,omitempty"`
	Trace       []models.Point `yaml:"trace,omitempty"`
	MeshSpacing float64        `yaml:"mesh_spacing,omitempty"`
}

// GSIM is a named lognormal ground motion model
type GSIM struct {
	Name         string                   `yaml:"name"`
	TimeSpan     float64                  `yaml:"time_span"` // Defaults to the investigation time
	Coefficients map[string]hazard.Coeffs `yaml:"coefficients"`
}

// Realization maps every tectonic region type to a GSIM name
type Realization struct {
	ID     int               `yaml:"id"`
	Weight float64           `yaml:"weight"`
	GSIMs  map[string]string `yaml:"gsims"`
}

// Curve is the hazard curve of a realization at a site. IMLs default to the
// levels configured for the IMT.
type Curve struct {
	Realization int       `yaml:"rlz"`
	Site        int       `yaml:"site"`
	IMT         string    `yaml:"imt"`
	IMLs        []float64 `yaml:"imls,omitempty"`
	PoEs        []float64 `yaml:"poes"`
}

// Load reads a job file
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes a job document, rejecting unknown fields
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("job file is empty")
		}
		return nil, fmt.Errorf("failed to parse job file: %w", err)
	}
	return &f, nil
}

// Validate checks the structure of the document. Cross references are
// resolved, and checked, by Build.
func (f *File) Validate() error {
	if len(f.Sites) == 0 {
		return errors.New("job needs at least one site")
	}
	siteIDs := make(map[int]bool, len(f.Sites))
	for i := range f.Sites {
		if err := f.Sites[i].Validate(); err != nil {
			return err
		}
		if siteIDs[f.Sites[i].ID] {
			return fmt.Errorf("duplicate site id %d", f.Sites[i].ID)
		}
		siteIDs[f.Sites[i].ID] = true
	}

	srcIDs := make(map[string]bool, len(f.Sources))
	for _, src := range f.Sources {
		if src.ID == "" {
			return errors.New("source id is required")
		}
		if srcIDs[src.ID] {
			return fmt.Errorf("duplicate source id %s", src.ID)
		}
		srcIDs[src.ID] = true
		if src.TRT == "" {
			return fmt.Errorf("source %s: trt is required", src.ID)
		}
		for i, rup := range src.Ruptures {
			if rup.Rate < 0 {
				return fmt.Errorf("source %s rupture %d: rate must not be negative", src.ID, i)
			}
			if (rup.Surface.Point == nil) == (len(rup.Surface.Trace) == 0) {
				return fmt.Errorf("source %s rupture %d: surface needs exactly one of point or trace", src.ID, i)
			}
		}
	}

	if len(f.Realizations) == 0 {
		return errors.New("job needs at least one realization")
	}
	for _, g := range f.GSIMs {
		if g.Name == "" {
			return errors.New("gsim name is required")
		}
		if len(g.Coefficients) == 0 {
			return fmt.Errorf("gsim %s has no coefficients", g.Name)
		}
	}
	return nil
}

// Build assembles a disagg.Job from the document and the calculation settings
func (f *File) Build(calc config.CalculationConfig) (*disagg.Job, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	imts := make([]models.IMT, 0, len(calc.IntensityMeasures))
	levels := make(map[string][]float64, len(calc.IntensityMeasures))
	for _, im := range calc.IntensityMeasures {
		imt, err := models.ParseIMT(im.IMT)
		if err != nil {
			return nil, err
		}
		imts = append(imts, imt)
		levels[imt.String()] = im.Levels
	}

	trts := f.TRTs
	if len(trts) == 0 {
		seen := make(map[string]bool)
		for _, src := range f.Sources {
			if !seen[src.TRT] {
				seen[src.TRT] = true
				trts = append(trts, src.TRT)
			}
		}
	}

	sources, err := f.buildSources()
	if err != nil {
		return nil, err
	}
	realizations, err := f.buildRealizations(trts, calc.InvestigationTime)
	if err != nil {
		return nil, err
	}
	curves, err := f.buildCurves(levels)
	if err != nil {
		return nil, err
	}

	j := &disagg.Job{
		Params: disagg.Params{
			InvestigationTime: calc.InvestigationTime,
			Bins: disagg.BinParams{
				MagWidth:   calc.MagBinWidth,
				DistWidth:  calc.DistanceBinWidth,
				CoordWidth: calc.CoordinateBinWidth,
				Truncation: calc.TruncationLevel,
				NEps:       calc.NumEpsilonBins,
			},
			PoEs:           calc.PoEsDisagg,
			IMTs:           imts,
			SourcesPerTask: calc.SourcesPerTask,
		},
		Sites:        f.Sites,
		Sources:      sources,
		Realizations: realizations,
		TRTNames:     trts,
		Ruptures:     hazard.DistanceFilter{MaxDistance: calc.MaximumDistance},
		Curves:       curves,
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return j, nil
}

func (f *File) buildSources() ([]*hazard.Source, error) {
	sources := make([]*hazard.Source, 0, len(f.Sources))
	for _, src := range f.Sources {
		out := &hazard.Source{ID: src.ID, TRT: src.TRT, Ruptures: make([]*hazard.Rupture, 0, len(src.Ruptures))}
		for i, rup := range src.Ruptures {
			surface, err := rup.Surface.build()
			if err != nil {
				return nil, fmt.Errorf("source %s rupture %d: %w", src.ID, i, err)
			}
			out.Ruptures = append(out.Ruptures, &hazard.Rupture{
				Mag:        rup.Mag,
				Rake:       rup.Rake,
				Rate:       rup.Rate,
				Hypocenter: rup.Hypocenter,
				Surface:    surface,
			})
		}
		sources = append(sources, out)
	}
	return sources, nil
}

func (s Surface) build() (hazard.Surface, error) {
	if s.Point != nil {
		return hazard.PointSurface{Location: *s.Point}, nil
	}
	spacing := s.MeshSpacing
	if spacing == 0 {
		spacing = DefaultMeshSpacing
	}
	return hazard.NewTraceSurface(s.Trace, spacing)
}

func (f *File) buildRealizations(trts []string, investigationTime float64) ([]hazard.Realization, error) {
	gsims := make(map[string]*hazard.LognormalGMPE, len(f.GSIMs))
	for _, g := range f.GSIMs {
		if _, dup := gsims[g.Name]; dup {
			return nil, fmt.Errorf("duplicate gsim %s", g.Name)
		}
		timeSpan := g.TimeSpan
		if timeSpan == 0 {
			timeSpan = investigationTime
		}
		gsims[g.Name] = &hazard.LognormalGMPE{Name: g.Name, Coeffs: g.Coefficients, TimeSpan: timeSpan}
	}

	out := make([]hazard.Realization, 0, len(f.Realizations))
	for _, rlz := range f.Realizations {
		oracles := make(map[string]hazard.Oracle, len(trts))
		for _, trt := range trts {
			name, ok := rlz.GSIMs[trt]
			if !ok {
				return nil, fmt.Errorf("realization %d has no gsim for %q", rlz.ID, trt)
			}
			g, ok := gsims[name]
			if !ok {
				return nil, fmt.Errorf("realization %d uses unknown gsim %s", rlz.ID, name)
			}
			oracles[trt] = g
		}
		out = append(out, hazard.Realization{ID: rlz.ID, Weight: rlz.Weight, Oracles: oracles})
	}
	return out, nil
}

func (f *File) buildCurves(levels map[string][]float64) (*hazard.StaticCurves, error) {
	curves := hazard.NewStaticCurves()
	for _, c := range f.Curves {
		imt, err := models.ParseIMT(c.IMT)
		if err != nil {
			return nil, fmt.Errorf("hazard curve rlz=%d site=%d: %w", c.Realization, c.Site, err)
		}
		imls := c.IMLs
		if len(imls) == 0 {
			imls = levels[imt.String()]
		}
		curve, err := models.NewCurve(imls, c.PoEs)
		if err != nil {
			return nil, fmt.Errorf("hazard curve rlz=%d site=%d imt=%s: %w", c.Realization, c.Site, imt, err)
		}
		if err := curves.Add(c.Realization, c.Site, imt, curve); err != nil {
			return nil, err
		}
	}
	return curves, nil
}
