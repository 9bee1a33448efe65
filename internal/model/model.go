// Package model defines the collaborators the evaluation loop drives: a
// heatmap-predicting model and a loss function, plus the device and
// sharding plumbing around them.
//
// Models are read-only during evaluation. None of the implementations here
// expose a training mode or mutate weights, so evaluation mode with
// gradients disabled holds for the whole run by construction.
package model

import (
	"context"

	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"
)

// Model predicts character/affinity heatmaps for a batch of images.
//
// image is [N, C, H, W]; the result has batch dimension N in total (across
// shards) and two channels: 0 = character, 1 = affinity. Calls block until
// every shard has finished.
type Model interface {
	Predict(ctx context.Context, dev DeviceContext, image *tensor.Dense) (Output, error)
}

// Loss scores a prediction against the two ground-truth heatmaps
// ([N, H, W] each). It returns one value per shard it computed; callers
// reduce them with Reduce.
type Loss interface {
	Score(ctx context.Context, out Output, char, aff *tensor.Dense) ([]float64, error)
}

// Reduce averages partial losses into one scalar. An empty slice reduces to 0.
func Reduce(partials []float64) float64 {
	if len(partials) == 0 {
		return 0
	}
	return stat.Mean(partials, nil)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, dev DeviceContext, image *tensor.Dense) (Output, error)

// Predict calls f.
func (f ModelFunc) Predict(ctx context.Context, dev DeviceContext, image *tensor.Dense) (Output, error) {
	return f(ctx, dev, image)
}
