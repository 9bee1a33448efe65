package evaluate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat"
)

func TestTrailingMean_ShortHistory(t *testing.T) {
	assert.Equal(t, 0.0, TrailingMean(nil, WindowSize))
	assert.InDelta(t, 2.0, TrailingMean([]float64{1, 2, 3}, WindowSize), 1e-12)
}

func TestTrailingMean_UsesOnlyTheWindow(t *testing.T) {
	values := make([]float64, 1500)
	for i := range values {
		if i < 500 {
			values[i] = 1000 // outside the window
		} else {
			values[i] = float64(i)
		}
	}

	got := TrailingMean(values, WindowSize)

	assert.Equal(t, stat.Mean(values[500:], nil), got)
	assert.NotEqual(t, stat.Mean(values, nil), got)
	assert.InDelta(t, 999.5, got, 1e-9)
}

func TestTrailingMean_ExactlyFull(t *testing.T) {
	values := make([]float64, WindowSize)
	for i := range values {
		values[i] = float64(i % 2)
	}
	assert.InDelta(t, 0.5, TrailingMean(values, WindowSize), 1e-12)
}

func TestTruncate8(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.123456789, 0.12345678},
		{0.999999999, 0.99999999},
		{1.5, 1.5},
		{0, 0},
		{-0.123456789, -0.12345678},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Truncate8(tt.in), 1e-15, "Truncate8(%v)", tt.in)
	}
}

func TestTruncate8_DoesNotRound(t *testing.T) {
	assert.Less(t, Truncate8(0.000000019), 0.00000002)
}

func TestDescribe(t *testing.T) {
	got := Describe(0.123456789, 4, 10, []float64{0.5, 0.25}, []float64{1, 0})
	assert.Equal(t, "Loss:0.12345678 Iterations:[4/10] Average Loss:0.375| Average F-Score: 0.5", got)
}

func TestDescribe_Empty(t *testing.T) {
	assert.Equal(t, "Loss:0 Iterations:[0/3] Average Loss:0| Average F-Score: 0", Describe(0, 0, 3, nil, nil))
}
