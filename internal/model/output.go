package model

import (
	"errors"
	"fmt"

	"gorgonia.org/tensor"

	"github.com/ironsheep/craft-eval/internal/heatmap"
)

// ErrEmptyOutput is returned when an Output holds no tensor.
var ErrEmptyOutput = errors.New("model output holds no tensor")

// Output is what a model returns for one batch: either a single
// [N, 2, H, W] tensor or one tensor per device shard, in shard order.
type Output struct {
	single  *tensor.Dense
	sharded []*tensor.Dense
}

// Single wraps an unsharded prediction.
func Single(t *tensor.Dense) Output {
	return Output{single: t}
}

// Sharded wraps per-device predictions. Shards must be given in batch order.
func Sharded(shards []*tensor.Dense) Output {
	return Output{sharded: shards}
}

// IsSharded reports whether the output still needs concatenation.
func (o Output) IsSharded() bool {
	return o.single == nil && o.sharded != nil
}

// Shards returns the per-device tensors. A single output is one shard.
func (o Output) Shards() []*tensor.Dense {
	if o.IsSharded() {
		return o.sharded
	}
	if o.single == nil {
		return nil
	}
	return []*tensor.Dense{o.single}
}

// Normalize returns the output as one tensor, concatenating shards along
// the batch axis when needed.
func (o Output) Normalize() (*tensor.Dense, error) {
	if o.single != nil {
		return o.single, nil
	}
	switch len(o.sharded) {
	case 0:
		return nil, ErrEmptyOutput
	case 1:
		return o.sharded[0], nil
	}
	first := o.sharded[0]
	for i, s := range o.sharded {
		if s == nil {
			return nil, fmt.Errorf("%w: shard %d is nil", ErrEmptyOutput, i)
		}
		if s.Dims() != first.Dims() {
			return nil, fmt.Errorf("%w: shard %d has shape %v, shard 0 has %v", heatmap.ErrShape, i, s.Shape(), first.Shape())
		}
	}
	joined, err := first.Concat(0, o.sharded[1:]...)
	if err != nil {
		return nil, fmt.Errorf("concatenate %d shards: %w", len(o.sharded), err)
	}
	return joined, nil
}
