package hazard

import (
	"context"
	"fmt"

	"github.com/rewired-gh/quakedisagg/internal/models"
)

// DistanceFilter keeps the ruptures whose Joyner-Boore distance to the site
// is within MaxDistance km. Sources left without ruptures are dropped.
type DistanceFilter struct {
	MaxDistance float64
}

// RupturesNear implements RuptureProvider
func (f DistanceFilter) RupturesNear(ctx context.Context, site models.Site, sources []*Source) ([]SourceRuptures, error) {
	var out []SourceRuptures
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var near []*Rupture
		for i, rup := range src.Ruptures {
			if rup == nil || rup.Surface == nil {
				return nil, fmt.Errorf("source %s: rupture %d has no surface", src.ID, i)
			}
			if rup.Surface.JoynerBooreDistance(site.Location) <= f.MaxDistance {
				near = append(near, rup)
			}
		}
		if len(near) > 0 {
			out = append(out, SourceRuptures{Source: src, Ruptures: near})
		}
	}
	return out, nil
}
