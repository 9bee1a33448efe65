package detection

import (
	"math"
	"sort"
)

// Point is a position in heatmap pixel space.
type Point struct {
	X float64
	Y float64
}

// Polygon is an ordered list of vertices. Word boxes are always convex
// quadrilaterals.
type Polygon []Point

// Area returns the absolute area enclosed by the polygon (shoelace formula).
func (p Polygon) Area() float64 {
	return math.Abs(signedArea(p))
}

// Bounds returns the axis-aligned extent of the polygon.
func (p Polygon) Bounds() (minX, minY, maxX, maxY float64) {
	if len(p) == 0 {
		return 0, 0, 0, 0
	}
	minX, minY = p[0].X, p[0].Y
	maxX, maxY = p[0].X, p[0].Y
	for _, pt := range p[1:] {
		minX = math.Min(minX, pt.X)
		minY = math.Min(minY, pt.Y)
		maxX = math.Max(maxX, pt.X)
		maxY = math.Max(maxY, pt.Y)
	}
	return minX, minY, maxX, maxY
}

// Equal reports whether two polygons have identical vertices in order.
func (p Polygon) Equal(q Polygon) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// signedArea is positive for polygons that run clockwise on screen
// (Y pointing down).
func signedArea(p Polygon) float64 {
	n := len(p)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	return sum / 2
}

// cross returns the z component of (b-a) x (c-a).
func cross(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// ConvexHull returns the convex hull of points using Andrew's monotone chain.
// The hull has positive signed area and no collinear vertices.
func ConvexHull(points []Point) Polygon {
	pts := make([]Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})

	// Remove duplicates
	uniq := pts[:0]
	for i, p := range pts {
		if i == 0 || p != pts[i-1] {
			uniq = append(uniq, p)
		}
	}
	pts = uniq
	if len(pts) < 3 {
		return Polygon(pts)
	}

	hull := make([]Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return Polygon(hull[:len(hull)-1])
}

// MinAreaRect returns the smallest-area rectangle enclosing a convex hull,
// found by testing every hull edge direction (rotating calipers).
//
// Hulls with fewer than three vertices yield their axis-aligned box.
func MinAreaRect(hull Polygon) Polygon {
	if len(hull) < 3 {
		return axisAligned(hull)
	}

	best := math.Inf(1)
	var rect Polygon
	for i := range hull {
		a := hull[i]
		b := hull[(i+1)%len(hull)]
		dx, dy := b.X-a.X, b.Y-a.Y
		length := math.Hypot(dx, dy)
		if length == 0 {
			continue
		}
		ux, uy := dx/length, dy/length
		vx, vy := -uy, ux

		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			u := p.X*ux + p.Y*uy
			v := p.X*vx + p.Y*vy
			minU = math.Min(minU, u)
			maxU = math.Max(maxU, u)
			minV = math.Min(minV, v)
			maxV = math.Max(maxV, v)
		}

		area := (maxU - minU) * (maxV - minV)
		if area < best {
			best = area
			corner := func(u, v float64) Point {
				return Point{X: u*ux + v*vx, Y: u*uy + v*vy}
			}
			rect = Polygon{
				corner(minU, minV),
				corner(maxU, minV),
				corner(maxU, maxV),
				corner(minU, maxV),
			}
		}
	}
	if rect == nil {
		return axisAligned(hull)
	}
	return rect
}

func axisAligned(p Polygon) Polygon {
	minX, minY, maxX, maxY := p.Bounds()
	return Polygon{
		{X: minX, Y: minY},
		{X: maxX, Y: minY},
		{X: maxX, Y: maxY},
		{X: minX, Y: maxY},
	}
}

// orderClockwise rewrites a quadrilateral so it runs clockwise on screen and
// starts at the vertex with the smallest X+Y.
func orderClockwise(p Polygon) Polygon {
	out := make(Polygon, len(p))
	copy(out, p)
	if signedArea(out) < 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	start := 0
	for i, pt := range out {
		if pt.X+pt.Y < out[start].X+out[start].Y {
			start = i
		}
	}
	rotated := make(Polygon, 0, len(out))
	rotated = append(rotated, out[start:]...)
	return append(rotated, out[:start]...)
}

// IntersectionArea returns the overlap area of two convex polygons using
// Sutherland-Hodgman clipping.
func IntersectionArea(a, b Polygon) float64 {
	if len(a) < 3 || len(b) < 3 {
		return 0
	}
	subject := orient(a)
	clipper := orient(b)

	out := subject
	for i := range clipper {
		if len(out) == 0 {
			return 0
		}
		out = clipEdge(out, clipper[i], clipper[(i+1)%len(clipper)])
	}
	return out.Area()
}

// IoU returns intersection over union of two convex polygons.
func IoU(a, b Polygon) float64 {
	inter := IntersectionArea(a, b)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// orient returns p with positive signed area.
func orient(p Polygon) Polygon {
	if signedArea(p) >= 0 {
		return p
	}
	out := make(Polygon, len(p))
	for i := range p {
		out[i] = p[len(p)-1-i]
	}
	return out
}

// clipEdge keeps the part of subject on the inner side of the edge a->b.
func clipEdge(subject Polygon, a, b Point) Polygon {
	out := make(Polygon, 0, len(subject)+2)
	n := len(subject)
	for i := 0; i < n; i++ {
		cur := subject[i]
		prev := subject[(i+n-1)%n]
		dCur := cross(a, b, cur)
		dPrev := cross(a, b, prev)
		switch {
		case dCur >= 0:
			if dPrev < 0 {
				out = append(out, lerp(prev, cur, dPrev/(dPrev-dCur)))
			}
			out = append(out, cur)
		case dPrev >= 0:
			out = append(out, lerp(prev, cur, dPrev/(dPrev-dCur)))
		}
	}
	return out
}

func lerp(p, q Point, t float64) Point {
	return Point{X: p.X + t*(q.X-p.X), Y: p.Y + t*(q.Y-p.Y)}
}
