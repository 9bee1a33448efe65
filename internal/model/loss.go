package model

import (
	"context"
	"fmt"
	"sort"

	"gorgonia.org/tensor"

	"github.com/ironsheep/craft-eval/internal/heatmap"
)

const (
	// positiveLevel separates positive from negative target pixels.
	positiveLevel = 0.1
	// negativeRatio is how many hard negatives are kept per positive pixel.
	negativeRatio = 3
	// minNegatives is used when a map has no positive pixel at all.
	minNegatives = 500
)

// HardNegativeMSE is a mean-squared-error loss with online hard negative
// mining. For every sample and map (character, affinity) it averages the
// error over positive pixels and over the 3*positives largest errors among
// negative pixels, then adds the two terms. Character and affinity terms are
// summed and the result is averaged over the batch.
//
// A prediction equal to its target scores exactly 0.
type HardNegativeMSE struct{}

// Score implements Loss. Sharded outputs are concatenated first and scored
// as one value; wrap in ShardedLoss to score per shard.
func (HardNegativeMSE) Score(ctx context.Context, out Output, char, aff *tensor.Dense) ([]float64, error) {
	pred, err := out.Normalize()
	if err != nil {
		return nil, err
	}
	predChars, err := heatmap.ChannelBatch(pred, 0)
	if err != nil {
		return nil, fmt.Errorf("character prediction: %w", err)
	}
	predAffs, err := heatmap.ChannelBatch(pred, 1)
	if err != nil {
		return nil, fmt.Errorf("affinity prediction: %w", err)
	}
	targetChars, err := heatmap.SampleBatch(char)
	if err != nil {
		return nil, fmt.Errorf("character target: %w", err)
	}
	targetAffs, err := heatmap.SampleBatch(aff)
	if err != nil {
		return nil, fmt.Errorf("affinity target: %w", err)
	}
	n := len(predChars)
	if n == 0 || len(targetChars) != n || len(targetAffs) != n {
		return nil, fmt.Errorf("%w: prediction batch %d, targets %d/%d",
			heatmap.ErrShape, n, len(targetChars), len(targetAffs))
	}

	var total float64
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := hardNegativeTerm(predChars[i], targetChars[i])
		if err != nil {
			return nil, fmt.Errorf("sample %d character: %w", i, err)
		}
		a, err := hardNegativeTerm(predAffs[i], targetAffs[i])
		if err != nil {
			return nil, fmt.Errorf("sample %d affinity: %w", i, err)
		}
		total += c + a
	}
	return []float64{total / float64(n)}, nil
}

// hardNegativeTerm returns the mined MSE of one map.
func hardNegativeTerm(pred, target heatmap.Plane) (float64, error) {
	if pred.Width != target.Width || pred.Height != target.Height {
		return 0, fmt.Errorf("%w: prediction %dx%d, target %dx%d",
			heatmap.ErrShape, pred.Width, pred.Height, target.Width, target.Height)
	}

	var posSum float64
	positives := 0
	negatives := make([]float64, 0, len(target.Data))
	for i, t := range target.Data {
		d := float64(pred.Data[i]) - float64(t)
		sq := d * d
		if t > positiveLevel {
			posSum += sq
			positives++
		} else {
			negatives = append(negatives, sq)
		}
	}

	var loss float64
	if positives > 0 {
		loss += posSum / float64(positives)
	}

	k := negativeRatio * positives
	if positives == 0 {
		k = minNegatives
	}
	if k > len(negatives) {
		k = len(negatives)
	}
	if k > 0 {
		sort.Sort(sort.Reverse(sort.Float64Slice(negatives)))
		var negSum float64
		for _, v := range negatives[:k] {
			negSum += v
		}
		loss += negSum / float64(k)
	}
	return loss, nil
}
