package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDrawPolygon(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	red := color.RGBA{255, 0, 0, 255}

	DrawPolygon(img, []image.Point{{2, 2}, {10, 2}, {10, 8}, {2, 8}}, red)

	for _, p := range []image.Point{{2, 2}, {6, 2}, {10, 5}, {6, 8}, {2, 5}} {
		assert.Equal(t, red, img.RGBAAt(p.X, p.Y), "outline pixel %v", p)
	}
	assert.Equal(t, color.RGBA{}, img.RGBAAt(6, 5), "interior")
}

func TestDrawPolygon_Diagonal(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	c := color.RGBA{0, 255, 0, 255}

	drawLine(img, image.Point{0, 0}, image.Point{5, 5}, c)

	for i := 0; i <= 5; i++ {
		assert.Equal(t, c, img.RGBAAt(i, i), "pixel (%d,%d)", i, i)
	}
}

func TestDrawPolygon_Clipped(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))

	assert.NotPanics(t, func() {
		DrawPolygon(img, []image.Point{{-5, -5}, {15, -5}, {15, 15}, {-5, 15}}, color.White)
		DrawPolygon(img, nil, color.White)
	})
}

func TestDrawIndex(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))

	fg := color.RGBA{255, 255, 255, 255}
	bg := color.RGBA{0, 0, 0, 180}
	DrawIndex(img, 10, 10, 42, fg, bg)

	seen := map[color.RGBA]bool{}
	for y := 9; y < 17; y++ {
		for x := 9; x < 18; x++ {
			seen[img.RGBAAt(x, y)] = true
		}
	}

	assert.True(t, seen[fg], "label text pixels")
	assert.True(t, seen[bg], "label background pixels")
	assert.Equal(t, color.RGBA{}, img.RGBAAt(30, 30), "outside the label")
}

func TestDrawLabel_BoundsCheck(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))

	fg := color.RGBA{255, 255, 255, 255}
	bg := color.RGBA{0, 0, 0, 180}

	assert.NotPanics(t, func() {
		drawLabel(img, 15, 15, "100", fg, bg)
		drawLabel(img, 0, 0, "0", fg, bg)
		drawLabel(img, -5, -5, "-7", fg, bg)
		drawLabel(img, 10, 10, "", fg, bg)
		drawLabel(img, 2, 2, "abc", fg, bg)
	})
}
