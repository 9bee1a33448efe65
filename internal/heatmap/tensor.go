package heatmap

import (
	"errors"
	"fmt"

	"gorgonia.org/tensor"
)

// ErrShape is returned when a tensor or plane does not have the expected layout.
var ErrShape = errors.New("unexpected tensor shape")

// NewTensor wraps data in a float32 dense tensor of the given shape.
func NewTensor(data []float32, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// Float32s returns the backing values of t.
func Float32s(t *tensor.Dense) []float32 {
	return t.Float32s()
}

// BatchSize returns the leading dimension of t.
func BatchSize(t *tensor.Dense) int {
	shape := t.Shape()
	if len(shape) == 0 {
		return 0
	}
	return shape[0]
}

// Channel copies channel c of sample n out of an [N, C, H, W] tensor.
func Channel(t *tensor.Dense, n, c int) (Plane, error) {
	shape := t.Shape()
	if len(shape) != 4 {
		return Plane{}, fmt.Errorf("%w: want [N,C,H,W], got %v", ErrShape, shape)
	}
	if n < 0 || n >= shape[0] || c < 0 || c >= shape[1] {
		return Plane{}, fmt.Errorf("%w: index (%d,%d) outside %v", ErrShape, n, c, shape)
	}
	h, w := shape[2], shape[3]
	start := (n*shape[1] + c) * h * w
	return copyPlane(Float32s(t)[start:start+h*w], w, h), nil
}

// Sample copies sample n out of an [N, H, W] tensor.
func Sample(t *tensor.Dense, n int) (Plane, error) {
	shape := t.Shape()
	if len(shape) != 3 {
		return Plane{}, fmt.Errorf("%w: want [N,H,W], got %v", ErrShape, shape)
	}
	if n < 0 || n >= shape[0] {
		return Plane{}, fmt.Errorf("%w: sample %d outside %v", ErrShape, n, shape)
	}
	h, w := shape[1], shape[2]
	start := n * h * w
	return copyPlane(Float32s(t)[start:start+h*w], w, h), nil
}

// ChannelBatch copies channel c of every sample in an [N, C, H, W] tensor.
func ChannelBatch(t *tensor.Dense, c int) ([]Plane, error) {
	n := BatchSize(t)
	planes := make([]Plane, 0, n)
	for i := 0; i < n; i++ {
		p, err := Channel(t, i, c)
		if err != nil {
			return nil, err
		}
		planes = append(planes, p)
	}
	return planes, nil
}

// SampleBatch copies every sample of an [N, H, W] tensor.
func SampleBatch(t *tensor.Dense) ([]Plane, error) {
	n := BatchSize(t)
	planes := make([]Plane, 0, n)
	for i := 0; i < n; i++ {
		p, err := Sample(t, i)
		if err != nil {
			return nil, err
		}
		planes = append(planes, p)
	}
	return planes, nil
}

// Stack builds an [N, 2, H, W] tensor from matching character and affinity
// planes. It is the inverse of ChannelBatch for channels 0 and 1.
func Stack(chars, affs []Plane) (*tensor.Dense, error) {
	if len(chars) == 0 || len(chars) != len(affs) {
		return nil, fmt.Errorf("%w: %d character planes, %d affinity planes", ErrShape, len(chars), len(affs))
	}
	w, h := chars[0].Width, chars[0].Height
	data := make([]float32, 0, len(chars)*2*w*h)
	for i := range chars {
		for _, p := range []Plane{chars[i], affs[i]} {
			if p.Width != w || p.Height != h || len(p.Data) != w*h {
				return nil, fmt.Errorf("%w: plane %d is %dx%d, want %dx%d", ErrShape, i, p.Width, p.Height, w, h)
			}
			data = append(data, p.Data...)
		}
	}
	return NewTensor(data, len(chars), 2, h, w), nil
}

func copyPlane(src []float32, w, h int) Plane {
	data := make([]float32, len(src))
	copy(data, src)
	return Plane{Width: w, Height: h, Data: data}
}
