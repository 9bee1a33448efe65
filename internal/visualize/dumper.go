// Package visualize writes batches to disk as PNG files for qualitative
// inspection of predictions against ground truth.
//
// Layout, one directory per dumped iteration and sample:
//
//	<dir>/<no>/<i>/image.png
//	<dir>/<no>/<i>/target_characters.png
//	<dir>/<no>/<i>/target_affinity.png
//	<dir>/<no>/<i>/pred_characters.png
//	<dir>/<no>/<i>/pred_affinity.png
//	<dir>/<no>/<i>/pred_characters_thresh.png
//	<dir>/<no>/<i>/pred_affinity_thresh.png
//	<dir>/<no>/<i>/pred_words.png            (overlay only)
//
// Heatmaps are grayscale, scaled from their own minimum to maximum.
// Existing files are overwritten.
package visualize

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"

	"github.com/anthonynsimon/bild/imgio"
	"gorgonia.org/tensor"

	"github.com/ironsheep/craft-eval/internal/detection"
	"github.com/ironsheep/craft-eval/internal/heatmap"
	"github.com/ironsheep/craft-eval/internal/imaging"
)

// Dumper writes batches under a root directory.
type Dumper struct {
	dir     string
	th      heatmap.Thresholds
	overlay bool
	words   detection.Options
}

// Option customizes a Dumper.
type Option func(*Dumper)

// WithOverlay also writes pred_words.png: the input image with every
// predicted word polygon outlined in its own color and numbered.
func WithOverlay(words detection.Options) Option {
	return func(d *Dumper) {
		d.overlay = true
		d.words = words
	}
}

// NewDumper creates a dumper rooted at dir. th must be the thresholds used
// for scoring so the thresholded images show what was scored.
func NewDumper(dir string, th heatmap.Thresholds, opts ...Option) *Dumper {
	d := &Dumper{dir: dir, th: th}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dump writes every sample of a batch under <dir>/<no>/<i>/.
//
// image is [N, C, H, W] with C = 1 or 3, output the normalized
// [N, 2, H', W'] prediction and char/aff the [N, H', W'] targets. The first
// filesystem error stops the dump and is returned.
func (d *Dumper) Dump(no int, image, output, char, aff *tensor.Dense) error {
	shape := image.Shape()
	if len(shape) != 4 {
		return fmt.Errorf("%w: image batch must be [N,C,H,W], got %v", heatmap.ErrShape, shape)
	}
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]
	if got := heatmap.BatchSize(output); got != n {
		return fmt.Errorf("%w: %d images but %d predictions", heatmap.ErrShape, n, got)
	}
	pixels := heatmap.Float32s(image)
	stride := c * h * w

	base := filepath.Join(d.dir, strconv.Itoa(no))
	for i := 0; i < n; i++ {
		sampleDir := filepath.Join(base, strconv.Itoa(i))
		if err := os.MkdirAll(sampleDir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", sampleDir, err)
		}

		img, err := imaging.CHWToNRGBA(pixels[i*stride:(i+1)*stride], c, h, w)
		if err != nil {
			return fmt.Errorf("sample %d image: %w", i, err)
		}
		if err := save(sampleDir, "image", img); err != nil {
			return err
		}

		targetChar, err := heatmap.Sample(char, i)
		if err != nil {
			return fmt.Errorf("sample %d character target: %w", i, err)
		}
		targetAff, err := heatmap.Sample(aff, i)
		if err != nil {
			return fmt.Errorf("sample %d affinity target: %w", i, err)
		}
		predChar, err := heatmap.Channel(output, i, 0)
		if err != nil {
			return fmt.Errorf("sample %d character prediction: %w", i, err)
		}
		predAff, err := heatmap.Channel(output, i, 1)
		if err != nil {
			return fmt.Errorf("sample %d affinity prediction: %w", i, err)
		}

		planes := []struct {
			name  string
			plane heatmap.Plane
		}{
			{"target_characters", targetChar},
			{"target_affinity", targetAff},
			{"pred_characters", predChar},
			{"pred_affinity", predAff},
			{"pred_characters_thresh", heatmap.Threshold(predChar, d.th.Character)},
			{"pred_affinity_thresh", heatmap.Threshold(predAff, d.th.Affinity)},
		}
		for _, p := range planes {
			if err := save(sampleDir, p.name, imaging.PlaneToGray(p.plane)); err != nil {
				return err
			}
		}

		if d.overlay {
			words, err := detection.GenerateWordBoxes(predChar, predAff, d.th, d.words)
			if err != nil {
				return fmt.Errorf("sample %d words: %w", i, err)
			}
			sx := float64(w) / float64(predChar.Width)
			sy := float64(h) / float64(predChar.Height)
			if err := save(sampleDir, "pred_words", Overlay(img, words, sx, sy)); err != nil {
				return err
			}
		}
	}
	return nil
}

func save(dir, name string, img image.Image) error {
	path := filepath.Join(dir, name+".png")
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
