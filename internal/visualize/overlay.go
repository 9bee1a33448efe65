package visualize

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/craft-eval/internal/detection"
	"github.com/ironsheep/craft-eval/internal/imaging"
)

var labelBackground = color.NRGBA{0, 0, 0, 180}

// Overlay returns a copy of img with each word outlined and numbered.
// Polygon coordinates are in heatmap pixels and are scaled by (sx, sy) to
// image pixels. Hues are spread evenly around the color wheel.
func Overlay(img image.Image, words []detection.Polygon, sx, sy float64) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)

	for i, word := range words {
		c := WordColor(i, len(words))
		pts := make([]image.Point, len(word))
		for j, p := range word {
			pts[j] = image.Pt(int(math.Round(p.X*sx)), int(math.Round(p.Y*sy)))
		}
		imaging.DrawPolygon(out, pts, c)
		if len(pts) > 0 {
			imaging.DrawIndex(out, pts[0].X+2, pts[0].Y+2, i, c, labelBackground)
		}
	}
	return out
}

// WordColor returns the color of word i out of n.
func WordColor(i, n int) color.Color {
	if n <= 0 {
		n = 1
	}
	hue := 360 * float64(i%n) / float64(n)
	return colorful.Hsv(hue, 0.9, 1).Clamped()
}
