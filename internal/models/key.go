package models

import (
	"cmp"
	"fmt"
)

// Key uniquely identifies one disaggregation matrix. It is comparable and is
// used as a map key when folding bin data collected for a site.
type Key struct {
	RealizationID int     `json:"realization_id"`
	PoE           float64 `json:"poe"`
	IML           float64 `json:"iml"` // Interpolated from the hazard curve at PoE
	IMT           string  `json:"imt"` // IMT name without period, e.g. "SA"
	SAPeriod      float64 `json:"sa_period"`
	SADamping     float64 `json:"sa_damping"`
	SiteID        int     `json:"site_id"`
}

// NewKey builds a key from its parts
func NewKey(rlzID int, poe, iml float64, imt IMT, siteID int) Key {
	return Key{
		RealizationID: rlzID,
		PoE:           poe,
		IML:           iml,
		IMT:           imt.Name,
		SAPeriod:      imt.Period,
		SADamping:     imt.Damping,
		SiteID:        siteID,
	}
}

// IntensityMeasure reassembles the key's IMT
func (k Key) IntensityMeasure() IMT {
	return IMT{Name: k.IMT, Period: k.SAPeriod, Damping: k.SADamping}
}

func (k Key) String() string {
	return fmt.Sprintf("rlz=%d poe=%g iml=%g imt=%s site=%d", k.RealizationID, k.PoE, k.IML, k.IntensityMeasure(), k.SiteID)
}

// CompareKeys orders keys by site, realization, IMT, PoE and IML
func CompareKeys(a, b Key) int {
	return cmp.Or(
		cmp.Compare(a.SiteID, b.SiteID),
		cmp.Compare(a.RealizationID, b.RealizationID),
		cmp.Compare(a.IMT, b.IMT),
		cmp.Compare(a.SAPeriod, b.SAPeriod),
		cmp.Compare(a.SADamping, b.SADamping),
		cmp.Compare(a.PoE, b.PoE),
		cmp.Compare(a.IML, b.IML),
	)
}
