package heatmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel(t *testing.T) {
	// [2, 2, 1, 2]: sample, channel, row, col
	data := []float32{
		1, 2, // n0 c0
		3, 4, // n0 c1
		5, 6, // n1 c0
		7, 8, // n1 c1
	}
	tt := NewTensor(data, 2, 2, 1, 2)

	p, err := Channel(tt, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Width)
	assert.Equal(t, 1, p.Height)
	assert.Equal(t, []float32{7, 8}, p.Data)

	// planes are copies of the tensor data
	p.Data[0] = 100
	assert.Equal(t, float32(7), Float32s(tt)[6])
}

func TestChannel_BadShape(t *testing.T) {
	_, err := Channel(NewTensor(make([]float32, 4), 2, 2), 0, 0)
	assert.ErrorIs(t, err, ErrShape)

	_, err = Channel(NewTensor(make([]float32, 8), 1, 2, 2, 2), 0, 2)
	assert.ErrorIs(t, err, ErrShape, "channel out of range")
}

func TestSampleBatch(t *testing.T) {
	planes, err := SampleBatch(NewTensor([]float32{1, 2, 3, 4, 5, 6}, 3, 1, 2))
	require.NoError(t, err)
	require.Len(t, planes, 3)
	assert.Equal(t, []float32{5, 6}, planes[2].Data)
}

func TestStack_RoundTrip(t *testing.T) {
	chars := []Plane{
		{Width: 2, Height: 1, Data: []float32{0.1, 0.2}},
		{Width: 2, Height: 1, Data: []float32{0.3, 0.4}},
	}
	affs := []Plane{
		{Width: 2, Height: 1, Data: []float32{0.5, 0.6}},
		{Width: 2, Height: 1, Data: []float32{0.7, 0.8}},
	}

	tt, err := Stack(chars, affs)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1, 2}, []int(tt.Shape()))

	gotChars, err := ChannelBatch(tt, 0)
	require.NoError(t, err)
	assert.Equal(t, chars, gotChars)
	gotAffs, err := ChannelBatch(tt, 1)
	require.NoError(t, err)
	assert.Equal(t, affs, gotAffs)
}

func TestStack_Mismatch(t *testing.T) {
	chars := []Plane{{Width: 2, Height: 1, Data: []float32{0, 0}}}
	_, err := Stack(chars, nil)
	assert.ErrorIs(t, err, ErrShape)
}
