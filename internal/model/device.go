package model

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/ironsheep/craft-eval/internal/heatmap"
)

// DeviceContext names the compute devices a batch is evaluated on. It is
// passed explicitly to every call that touches a device; nothing in this
// module keeps hidden device state.
type DeviceContext struct {
	// UseAccelerator selects accelerated execution (CUDA) when true.
	UseAccelerator bool

	// Devices lists accelerator ids. Empty means a single host device.
	Devices []int
}

// Host returns the context for plain CPU execution.
func Host() DeviceContext {
	return DeviceContext{}
}

// Shards returns how many parts a batch is split into.
func (d DeviceContext) Shards() int {
	if !d.UseAccelerator || len(d.Devices) == 0 {
		return 1
	}
	return len(d.Devices)
}

// For returns the context of shard i alone.
func (d DeviceContext) For(i int) DeviceContext {
	if !d.UseAccelerator || len(d.Devices) == 0 {
		return Host()
	}
	return DeviceContext{UseAccelerator: true, Devices: []int{d.Devices[i]}}
}

// Device returns the first device id, or -1 for the host.
func (d DeviceContext) Device() int {
	if !d.UseAccelerator || len(d.Devices) == 0 {
		return -1
	}
	return d.Devices[0]
}

// String implements fmt.Stringer.
func (d DeviceContext) String() string {
	if d.Device() < 0 {
		return "cpu"
	}
	return fmt.Sprintf("cuda:%v", d.Devices)
}

// Place stages a tensor for device execution and blocks until the copy is
// complete. Host execution uses the tensor in place; accelerated execution
// gets a private copy so a loader can reuse its buffers.
func (d DeviceContext) Place(t *tensor.Dense) *tensor.Dense {
	if d.Device() < 0 {
		return t
	}
	return heatmap.NewTensor(append([]float32(nil), heatmap.Float32s(t)...), t.Shape().Clone()...)
}

// chunkSizes splits n samples into k contiguous chunks whose sizes differ by
// at most one, larger chunks first. Chunks may be empty when n < k.
func chunkSizes(n, k int) []int {
	sizes := make([]int, k)
	for i := range sizes {
		sizes[i] = n / k
		if i < n%k {
			sizes[i]++
		}
	}
	return sizes
}

// splitBatch cuts t along its leading axis into chunks of the given sizes.
// Empty chunks are returned as nil.
func splitBatch(t *tensor.Dense, sizes []int) ([]*tensor.Dense, error) {
	shape := t.Shape()
	if len(shape) == 0 {
		return nil, fmt.Errorf("%w: cannot split a scalar", heatmap.ErrShape)
	}
	total := 0
	for _, s := range sizes {
		total += s
	}
	if total != shape[0] {
		return nil, fmt.Errorf("%w: chunks cover %d of %d samples", heatmap.ErrShape, total, shape[0])
	}

	stride := 1
	for _, d := range shape[1:] {
		stride *= d
	}
	data := heatmap.Float32s(t)

	out := make([]*tensor.Dense, len(sizes))
	offset := 0
	for i, s := range sizes {
		if s == 0 {
			continue
		}
		part := make([]float32, s*stride)
		copy(part, data[offset*stride:(offset+s)*stride])
		dims := append([]int{s}, shape[1:]...)
		out[i] = heatmap.NewTensor(part, dims...)
		offset += s
	}
	return out, nil
}
