// Package dataset supplies evaluation batches: a Dataset of samples and a
// Loader that groups them into shuffled, fixed-size batches.
package dataset

import (
	"errors"
	"fmt"

	"gorgonia.org/tensor"

	"github.com/ironsheep/craft-eval/internal/heatmap"
)

// ErrEmptyBatch is returned when collating no samples.
var ErrEmptyBatch = errors.New("empty batch")

// Sample is one image with its two ground-truth heatmaps.
type Sample struct {
	// Image is [C, H, W] with values in [0,1].
	Image *tensor.Dense
	// Character and Affinity are [H', W'].
	Character *tensor.Dense
	Affinity  *tensor.Dense
}

// NewSample wraps a channel-first image and two heatmap planes.
func NewSample(image []float32, channels, height, width int, char, aff heatmap.Plane) (Sample, error) {
	if len(image) != channels*height*width {
		return Sample{}, fmt.Errorf("%w: %d image values for %dx%dx%d", heatmap.ErrShape, len(image), channels, height, width)
	}
	if err := char.Validate(); err != nil {
		return Sample{}, fmt.Errorf("character heatmap: %w", err)
	}
	if err := aff.Validate(); err != nil {
		return Sample{}, fmt.Errorf("affinity heatmap: %w", err)
	}
	if char.Width != aff.Width || char.Height != aff.Height {
		return Sample{}, fmt.Errorf("%w: character %dx%d, affinity %dx%d",
			heatmap.ErrShape, char.Width, char.Height, aff.Width, aff.Height)
	}
	return Sample{
		Image:     heatmap.NewTensor(image, channels, height, width),
		Character: heatmap.NewTensor(char.Data, char.Height, char.Width),
		Affinity:  heatmap.NewTensor(aff.Data, aff.Height, aff.Width),
	}, nil
}

// Batch is N samples stacked along a leading batch axis.
type Batch struct {
	// Image is [N, C, H, W].
	Image *tensor.Dense
	// Character and Affinity are [N, H', W'].
	Character *tensor.Dense
	Affinity  *tensor.Dense
}

// Len returns N.
func (b Batch) Len() int {
	return heatmap.BatchSize(b.Image)
}

// Collate stacks samples into a batch. Every sample must have the same
// shapes as the first.
func Collate(samples []Sample) (Batch, error) {
	if len(samples) == 0 {
		return Batch{}, ErrEmptyBatch
	}
	first := samples[0]
	for i, s := range samples[1:] {
		if !s.Image.Shape().Eq(first.Image.Shape()) ||
			!s.Character.Shape().Eq(first.Character.Shape()) ||
			!s.Affinity.Shape().Eq(first.Affinity.Shape()) {
			return Batch{}, fmt.Errorf("%w: sample %d shapes %v/%v/%v differ from %v/%v/%v", heatmap.ErrShape, i+1,
				s.Image.Shape(), s.Character.Shape(), s.Affinity.Shape(),
				first.Image.Shape(), first.Character.Shape(), first.Affinity.Shape())
		}
	}
	return Batch{
		Image:     stack(samples, func(s Sample) *tensor.Dense { return s.Image }),
		Character: stack(samples, func(s Sample) *tensor.Dense { return s.Character }),
		Affinity:  stack(samples, func(s Sample) *tensor.Dense { return s.Affinity }),
	}, nil
}

func stack(samples []Sample, field func(Sample) *tensor.Dense) *tensor.Dense {
	first := field(samples[0])
	size := len(heatmap.Float32s(first))
	data := make([]float32, 0, size*len(samples))
	for _, s := range samples {
		data = append(data, heatmap.Float32s(field(s))...)
	}
	dims := append([]int{len(samples)}, first.Shape()...)
	return heatmap.NewTensor(data, dims...)
}
