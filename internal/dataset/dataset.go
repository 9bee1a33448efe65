package dataset

import (
	"errors"
	"fmt"
)

// ErrIndex is returned for a sample index outside [0, Len()).
var ErrIndex = errors.New("sample index out of range")

// Dataset is a finite, indexable collection of samples. Get must be safe
// for concurrent use.
type Dataset interface {
	Len() int
	Get(i int) (Sample, error)
}

// MemoryDataset serves samples held in memory.
type MemoryDataset struct {
	samples []Sample
}

// NewMemoryDataset wraps samples without copying them.
func NewMemoryDataset(samples ...Sample) *MemoryDataset {
	return &MemoryDataset{samples: samples}
}

// Len implements Dataset.
func (d *MemoryDataset) Len() int {
	return len(d.samples)
}

// Get implements Dataset.
func (d *MemoryDataset) Get(i int) (Sample, error) {
	if i < 0 || i >= len(d.samples) {
		return Sample{}, fmt.Errorf("%w: %d of %d", ErrIndex, i, len(d.samples))
	}
	return d.samples[i], nil
}
