package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(x, y, size float64) Polygon {
	return Polygon{{X: x, Y: y}, {X: x + size, Y: y}, {X: x + size, Y: y + size}, {X: x, Y: y + size}}
}

func TestPolygonArea(t *testing.T) {
	assert.Equal(t, 9.0, square(0, 0, 3).Area())
	// Orientation does not matter
	rev := Polygon{{X: 0, Y: 0}, {X: 0, Y: 3}, {X: 3, Y: 3}, {X: 3, Y: 0}}
	assert.Equal(t, 9.0, rev.Area())
}

func TestConvexHull(t *testing.T) {
	points := []Point{
		{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4},
		{X: 2, Y: 2}, {X: 1, Y: 3}, {X: 2, Y: 0}, // interior and collinear
		{X: 0, Y: 0}, // duplicate
	}

	hull := ConvexHull(points)
	require.Len(t, hull, 4, "hull %v", hull)
	assert.Greater(t, signedArea(hull), 0.0)
}

func TestMinAreaRect_Rotated(t *testing.T) {
	// A diamond: its minimum enclosing rectangle is itself (area 8), not the
	// 4x4 axis-aligned box (area 16)
	diamond := ConvexHull([]Point{{X: 2, Y: 0}, {X: 4, Y: 2}, {X: 2, Y: 4}, {X: 0, Y: 2}})

	rect := MinAreaRect(diamond)
	require.Len(t, rect, 4)
	assert.InDelta(t, 8, rect.Area(), 1e-9)
}

func TestMinAreaRect_Degenerate(t *testing.T) {
	assert.Len(t, MinAreaRect(Polygon{{X: 1, Y: 1}, {X: 3, Y: 1}}), 4)
}

func TestOrderClockwise(t *testing.T) {
	ccw := Polygon{{X: 5, Y: 5}, {X: 5, Y: 0}, {X: 0, Y: 0}, {X: 0, Y: 5}}

	got := orderClockwise(ccw)
	want := Polygon{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 5, Y: 5}, {X: 0, Y: 5}}
	assert.True(t, got.Equal(want), "orderClockwise = %v, want %v", got, want)
}

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b Polygon
		want float64
	}{
		{"identical", square(0, 0, 4), square(0, 0, 4), 1},
		{"disjoint", square(0, 0, 2), square(5, 5, 2), 0},
		{"touching", square(0, 0, 2), square(2, 0, 2), 0},
		{"half overlap", square(0, 0, 2), Polygon{{X: 1, Y: 0}, {X: 3, Y: 0}, {X: 3, Y: 2}, {X: 1, Y: 2}}, 2.0 / 6.0},
		{"contained", square(0, 0, 4), square(1, 1, 2), 4.0 / 16.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, IoU(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.want, IoU(tt.b, tt.a), 1e-9, "symmetric")
		})
	}
}

func TestIoU_Rotated(t *testing.T) {
	diamond := Polygon{{X: 2, Y: 0}, {X: 4, Y: 2}, {X: 2, Y: 4}, {X: 0, Y: 2}}
	box := square(0, 0, 4)

	// Diamond is fully inside the box: 8 / 16
	assert.InDelta(t, 0.5, IoU(diamond, box), 1e-9)
}

func TestIntersectionArea_Degenerate(t *testing.T) {
	assert.Zero(t, IntersectionArea(Polygon{{X: 0, Y: 0}}, square(0, 0, 1)))
}
