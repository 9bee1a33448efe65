// Package score matches predicted word polygons against ground truth and
// reports precision, recall and F-score.
package score

import (
	"errors"
	"fmt"

	"github.com/ironsheep/craft-eval/internal/detection"
)

// ErrBatchMismatch is returned when predicted and target batches differ in length.
var ErrBatchMismatch = errors.New("predicted and target batch sizes differ")

// Counts holds the outcome of matching one image's predictions.
type Counts struct {
	TruePositives  int
	FalsePositives int
	FalseNegatives int
}

// Precision returns TP / (TP + FP), or 0 when nothing was predicted.
func (c Counts) Precision() float64 {
	if c.TruePositives+c.FalsePositives == 0 {
		return 0
	}
	return float64(c.TruePositives) / float64(c.TruePositives+c.FalsePositives)
}

// Recall returns TP / (TP + FN), or 0 when there was nothing to find.
func (c Counts) Recall() float64 {
	if c.TruePositives+c.FalseNegatives == 0 {
		return 0
	}
	return float64(c.TruePositives) / float64(c.TruePositives+c.FalseNegatives)
}

// F1 returns the harmonic mean of precision and recall.
//
// An image with no predictions and no targets is a perfect result (1.0);
// any image without a true positive otherwise scores 0.
func (c Counts) F1() float64 {
	if c.TruePositives+c.FalsePositives+c.FalseNegatives == 0 {
		return 1
	}
	if c.TruePositives == 0 {
		return 0
	}
	p, r := c.Precision(), c.Recall()
	return 2 * p * r / (p + r)
}

// Match greedily pairs predictions with targets.
//
// Each prediction, in order, takes the first unmatched target whose IoU
// exceeds threshold. Predictions left without a target are false positives;
// targets never taken are false negatives.
func Match(pred, target []detection.Polygon, threshold float64) Counts {
	taken := make([]bool, len(target))
	var c Counts
	for _, p := range pred {
		found := false
		for j, t := range target {
			if taken[j] {
				continue
			}
			if detection.IoU(p, t) > threshold {
				taken[j] = true
				found = true
				break
			}
		}
		if found {
			c.TruePositives++
		} else {
			c.FalsePositives++
		}
	}
	c.FalseNegatives = len(target) - c.TruePositives
	return c
}

// FScore returns the F-score of one image's predictions.
func FScore(pred, target []detection.Polygon, threshold float64) float64 {
	return Match(pred, target, threshold).F1()
}

// BatchFScore returns the mean per-image F-score of a batch. The result is
// always in [0, 1].
func BatchFScore(pred, target detection.BoxSet, threshold float64) (float64, error) {
	if len(pred) != len(target) {
		return 0, fmt.Errorf("%w: %d predicted, %d target", ErrBatchMismatch, len(pred), len(target))
	}
	if len(target) == 0 {
		return 0, fmt.Errorf("%w: empty batch", ErrBatchMismatch)
	}
	var sum float64
	for i := range target {
		sum += FScore(pred[i], target[i], threshold)
	}
	return sum / float64(len(target)), nil
}
