package disagg

import (
	"slices"

	"github.com/rewired-gh/quakedisagg/internal/models"
)

// Merger folds the bin data collected by many units into one collection per
// key. It is not safe for concurrent use and is meant to be driven from the
// orchestrator's result callback.
type Merger struct {
	bins map[models.Key]*models.BinData
}

// NewMerger creates an empty Merger
func NewMerger() *Merger {
	return &Merger{bins: make(map[models.Key]*models.BinData)}
}

// Add concatenates every key's records onto the accumulated ones. The
// argument is never retained.
func (m *Merger) Add(result map[models.Key]*models.BinData) {
	for key, data := range result {
		acc, ok := m.bins[key]
		if !ok {
			acc = &models.BinData{}
			m.bins[key] = acc
		}
		acc.Extend(data)
	}
}

// Keys returns the accumulated keys in a deterministic order
func (m *Merger) Keys() []models.Key {
	keys := make([]models.Key, 0, len(m.bins))
	for k := range m.bins {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, models.CompareKeys)
	return keys
}

// Get returns the bin data of a key, or nil
func (m *Merger) Get(key models.Key) *models.BinData {
	return m.bins[key]
}

// Len returns the number of keys
func (m *Merger) Len() int {
	return len(m.bins)
}

// Reset drops all accumulated data
func (m *Merger) Reset() {
	m.bins = make(map[models.Key]*models.BinData)
}
