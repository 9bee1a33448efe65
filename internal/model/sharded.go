package model

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gorgonia.org/tensor"

	"github.com/ironsheep/craft-eval/internal/heatmap"
)

// ShardedModel runs one replica per device on contiguous slices of the
// batch and gathers their outputs in batch order.
//
// With a single replica or a host context the batch is passed through
// unchanged and a Single output is returned.
type ShardedModel struct {
	replicas []Model
}

// NewShardedModel wraps replicas; replica i serves device i of the context.
func NewShardedModel(replicas ...Model) *ShardedModel {
	return &ShardedModel{replicas: replicas}
}

// Predict splits image across the replicas, runs them concurrently and
// waits for all of them. The first error cancels the remaining shards.
func (m *ShardedModel) Predict(ctx context.Context, dev DeviceContext, image *tensor.Dense) (Output, error) {
	if len(m.replicas) == 0 {
		return Output{}, fmt.Errorf("sharded model has no replicas")
	}
	k := dev.Shards()
	if k > len(m.replicas) {
		return Output{}, fmt.Errorf("%d devices configured but only %d replicas", k, len(m.replicas))
	}
	if k == 1 {
		out, err := m.replicas[0].Predict(ctx, dev.For(0), image)
		if err != nil {
			return Output{}, err
		}
		t, err := out.Normalize()
		if err != nil {
			return Output{}, err
		}
		return Single(t), nil
	}

	chunks, err := splitBatch(image, chunkSizes(heatmap.BatchSize(image), k))
	if err != nil {
		return Output{}, err
	}

	results := make([]*tensor.Dense, k)
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		if chunk == nil {
			continue
		}
		g.Go(func() error {
			out, err := m.replicas[i].Predict(gctx, dev.For(i), dev.For(i).Place(chunk))
			if err != nil {
				return fmt.Errorf("shard %d (%s): %w", i, dev.For(i), err)
			}
			t, err := out.Normalize()
			if err != nil {
				return fmt.Errorf("shard %d: %w", i, err)
			}
			results[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Output{}, err
	}

	shards := make([]*tensor.Dense, 0, k)
	for _, t := range results {
		if t != nil {
			shards = append(shards, t)
		}
	}
	return Sharded(shards), nil
}

// ShardedLoss computes a loss per output shard concurrently, pairing each
// shard with the matching slice of the targets.
type ShardedLoss struct {
	loss Loss
}

// NewShardedLoss wraps loss so it follows the shards of a ShardedModel.
func NewShardedLoss(loss Loss) *ShardedLoss {
	return &ShardedLoss{loss: loss}
}

// Score returns one partial loss per shard, in shard order.
func (l *ShardedLoss) Score(ctx context.Context, out Output, char, aff *tensor.Dense) ([]float64, error) {
	shards := out.Shards()
	if len(shards) <= 1 {
		return l.loss.Score(ctx, out, char, aff)
	}

	sizes := make([]int, len(shards))
	for i, s := range shards {
		sizes[i] = heatmap.BatchSize(s)
	}
	chars, err := splitBatch(char, sizes)
	if err != nil {
		return nil, fmt.Errorf("split character targets: %w", err)
	}
	affs, err := splitBatch(aff, sizes)
	if err != nil {
		return nil, fmt.Errorf("split affinity targets: %w", err)
	}

	partials := make([][]float64, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	for i := range shards {
		g.Go(func() error {
			p, err := l.loss.Score(gctx, Single(shards[i]), chars[i], affs[i])
			if err != nil {
				return fmt.Errorf("shard %d loss: %w", i, err)
			}
			partials[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []float64
	for _, p := range partials {
		all = append(all, p...)
	}
	return all, nil
}
