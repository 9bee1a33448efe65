package detection

import (
	"errors"
	"fmt"
	"math"

	"github.com/ironsheep/craft-eval/internal/heatmap"
)

// ErrBatchMismatch is returned when paired batch inputs differ in length.
var ErrBatchMismatch = errors.New("batch length mismatch")

// DefaultMinArea is the smallest component, in pixels, that can become a word.
const DefaultMinArea = 10

// squareRatioTolerance decides when a fitted rectangle is close enough to a
// square that its rotation is meaningless.
const squareRatioTolerance = 0.1

// Options tunes word box generation.
type Options struct {
	// MinArea drops components with fewer pixels than this.
	MinArea int
}

// DefaultOptions returns the options used by the evaluator.
func DefaultOptions() Options {
	return Options{MinArea: DefaultMinArea}
}

// BoxSet holds the word polygons of every image in a batch, indexed like
// the batch.
type BoxSet [][]Polygon

// Count returns the total number of polygons in the set.
func (b BoxSet) Count() int {
	n := 0
	for _, words := range b {
		n += len(words)
	}
	return n
}

// GenerateWordBoxes converts one character heatmap and one affinity heatmap
// into word polygons.
//
// Parameters:
//   - char: Raw character heatmap.
//   - aff: Raw affinity heatmap of the same size.
//   - th: Binarization thresholds; the same values the visualizer uses.
//   - opts: Filtering options. A non-positive MinArea uses DefaultMinArea.
//
// Returns:
//   - []Polygon: One clockwise quadrilateral per detected word, in
//     row-major discovery order. Empty (not nil) when nothing is found.
//   - error: Non-nil if the heatmaps are malformed or differ in size.
func GenerateWordBoxes(char, aff heatmap.Plane, th heatmap.Thresholds, opts Options) ([]Polygon, error) {
	if err := char.Validate(); err != nil {
		return nil, fmt.Errorf("character heatmap: %w", err)
	}
	if err := aff.Validate(); err != nil {
		return nil, fmt.Errorf("affinity heatmap: %w", err)
	}
	if char.Width != aff.Width || char.Height != aff.Height {
		return nil, fmt.Errorf("%w: character %dx%d, affinity %dx%d",
			heatmap.ErrShape, char.Width, char.Height, aff.Width, aff.Height)
	}
	if opts.MinArea <= 0 {
		opts.MinArea = DefaultMinArea
	}

	width, height := char.Width, char.Height
	text := heatmap.Mask(char, th.Character)
	link := heatmap.Mask(aff, th.Affinity)

	combined := make([][]bool, height)
	for y := 0; y < height; y++ {
		combined[y] = make([]bool, width)
		for x := 0; x < width; x++ {
			combined[y][x] = text[y][x] || link[y][x]
		}
	}

	words := make([]Polygon, 0)
	for _, c := range findComponents(combined, width, height) {
		if len(c.Pixels) < opts.MinArea {
			continue
		}
		poly, ok := fitWord(c, text, width, height)
		if !ok {
			continue
		}
		words = append(words, poly)
	}
	return words, nil
}

// GenerateWordBoxesBatch runs GenerateWordBoxes over a batch of heatmaps.
func GenerateWordBoxesBatch(chars, affs []heatmap.Plane, th heatmap.Thresholds, opts Options) (BoxSet, error) {
	if len(chars) != len(affs) {
		return nil, fmt.Errorf("%w: %d character maps, %d affinity maps", ErrBatchMismatch, len(chars), len(affs))
	}
	boxes := make(BoxSet, len(chars))
	for i := range chars {
		words, err := GenerateWordBoxes(chars[i], affs[i], th, opts)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		boxes[i] = words
	}
	return boxes, nil
}

// fitWord dilates the character pixels of a component and fits a rectangle
// around them. Components with no character pixel report ok=false.
func fitWord(c component, text [][]bool, width, height int) (Polygon, bool) {
	bw, bh := c.Width(), c.Height()
	niter := int(math.Sqrt(float64(len(c.Pixels)*minInt(bw, bh))/float64(bw*bh)) * 2)

	// A (1+niter) square kernel anchored at its centre.
	k := 1 + niter
	grow := k / 2
	shrink := k - 1 - grow

	// Leftmost and rightmost character pixel per row bound the hull of the
	// dilated region, so interior pixels can be skipped.
	type span struct{ lo, hi int }
	rows := make(map[int]span)
	for _, p := range c.Pixels {
		if !text[p.Y][p.X] {
			continue
		}
		s, ok := rows[p.Y]
		if !ok {
			rows[p.Y] = span{lo: p.X, hi: p.X}
			continue
		}
		s.lo = minInt(s.lo, p.X)
		s.hi = maxInt(s.hi, p.X)
		rows[p.Y] = s
	}
	if len(rows) == 0 {
		return nil, false
	}

	corners := make([]Point, 0, len(rows)*8)
	for y, s := range rows {
		y0 := clampInt(y-shrink, 0, height-1)
		y1 := clampInt(y+grow, 0, height-1) + 1
		for _, x := range []int{s.lo, s.hi} {
			x0 := clampInt(x-shrink, 0, width-1)
			x1 := clampInt(x+grow, 0, width-1) + 1
			corners = append(corners,
				Point{X: float64(x0), Y: float64(y0)},
				Point{X: float64(x1), Y: float64(y0)},
				Point{X: float64(x1), Y: float64(y1)},
				Point{X: float64(x0), Y: float64(y1)},
			)
		}
	}

	hull := ConvexHull(corners)
	rect := MinAreaRect(hull)

	w := math.Hypot(rect[1].X-rect[0].X, rect[1].Y-rect[0].Y)
	h := math.Hypot(rect[2].X-rect[1].X, rect[2].Y-rect[1].Y)
	ratio := math.Max(w, h) / (math.Min(w, h) + 1e-5)
	if math.Abs(1-ratio) <= squareRatioTolerance {
		rect = axisAligned(hull)
	}

	return orderClockwise(rect), true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
