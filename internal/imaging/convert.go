package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/craft-eval/internal/heatmap"
)

// ToCHW resizes img to width x height and returns its RGB channels as a
// channel-first float32 slice with values in [0,1]. Alpha is dropped.
func ToCHW(img image.Image, width, height int) []float32 {
	rgba := resized(img, width, height)

	plane := width * height
	out := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < width; x++ {
			px := row[x*4:]
			i := y*width + x
			out[i] = float32(px[0]) / 255
			out[plane+i] = float32(px[1]) / 255
			out[2*plane+i] = float32(px[2]) / 255
		}
	}
	return out
}

// GrayPlane resizes img to width x height, converts it to grayscale and
// returns the luminance as a heatmap with values in [0,1].
func GrayPlane(img image.Image, width, height int) heatmap.Plane {
	gray := imaging.Grayscale(resized(img, width, height))

	p := heatmap.NewPlane(width, height)
	for y := 0; y < height; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < width; x++ {
			p.Set(x, y, float32(row[x*4])/255)
		}
	}
	return p
}

// resized returns img at exactly width x height. Images already at that
// size are copied without resampling.
func resized(img image.Image, width, height int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, width, height, imaging.Linear)
}

// PlaneToGray renders a heatmap as an 8-bit grayscale image, scaled from the
// plane's minimum (black) to its maximum (white).
func PlaneToGray(p heatmap.Plane) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, p.Width, p.Height))
	lo, hi := p.Range()
	span := hi - lo
	if span <= 0 {
		return img
	}
	for i, v := range p.Data {
		img.Pix[i] = toByte((v - lo) / span)
	}
	return img
}

// CHWToNRGBA converts a channel-first slice with values in [0,1] back to an
// image. One channel gives a gray image, three give RGB; values outside
// [0,1] are clipped.
func CHWToNRGBA(data []float32, channels, height, width int) (*image.NRGBA, error) {
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("%w: cannot render %d channels", heatmap.ErrShape, channels)
	}
	plane := width * height
	if len(data) != channels*plane {
		return nil, fmt.Errorf("%w: %d values for %dx%dx%d", heatmap.ErrShape, len(data), channels, height, width)
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < plane; i++ {
		r := toByte(data[i])
		g, b := r, r
		if channels == 3 {
			g = toByte(data[plane+i])
			b = toByte(data[2*plane+i])
		}
		img.Pix[i*4] = r
		img.Pix[i*4+1] = g
		img.Pix[i*4+2] = b
		img.Pix[i*4+3] = 255
	}
	return img, nil
}

func toByte(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}
