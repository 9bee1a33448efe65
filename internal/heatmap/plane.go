package heatmap

import "fmt"

// Plane is a single 2-D heatmap stored row-major.
type Plane struct {
	Width  int
	Height int
	Data   []float32
}

// NewPlane allocates a zeroed plane.
func NewPlane(width, height int) Plane {
	return Plane{Width: width, Height: height, Data: make([]float32, width*height)}
}

// At returns the value at (x, y). No bounds checking is performed.
func (p Plane) At(x, y int) float32 {
	return p.Data[y*p.Width+x]
}

// Set stores v at (x, y). No bounds checking is performed.
func (p Plane) Set(x, y int, v float32) {
	p.Data[y*p.Width+x] = v
}

// Validate reports whether the backing slice matches the dimensions.
func (p Plane) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%w: plane %dx%d", ErrShape, p.Width, p.Height)
	}
	if len(p.Data) != p.Width*p.Height {
		return fmt.Errorf("%w: plane %dx%d has %d values", ErrShape, p.Width, p.Height, len(p.Data))
	}
	return nil
}

// Range returns the minimum and maximum values of the plane.
func (p Plane) Range() (lo, hi float32) {
	if len(p.Data) == 0 {
		return 0, 0
	}
	lo, hi = p.Data[0], p.Data[0]
	for _, v := range p.Data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Thresholds carries the two independent binarization levels.
type Thresholds struct {
	Character float64 `yaml:"character"`
	Affinity  float64 `yaml:"affinity"`
}

// Threshold returns a binary mask of p: 1.0 where the value is strictly
// greater than t, 0.0 elsewhere. The input is not modified.
func Threshold(p Plane, t float64) Plane {
	out := Plane{Width: p.Width, Height: p.Height, Data: make([]float32, len(p.Data))}
	for i, v := range p.Data {
		if float64(v) > t {
			out.Data[i] = 1
		}
	}
	return out
}

// Mask is Threshold returning booleans indexed [y][x], the form the
// component labelling works on.
func Mask(p Plane, t float64) [][]bool {
	mask := make([][]bool, p.Height)
	for y := 0; y < p.Height; y++ {
		mask[y] = make([]bool, p.Width)
		row := p.Data[y*p.Width : (y+1)*p.Width]
		for x, v := range row {
			mask[y][x] = float64(v) > t
		}
	}
	return mask
}
