package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"strconv"
)

// DrawPolygon outlines a closed polygon on img. Segments falling outside
// the image are clipped pixel by pixel.
func DrawPolygon(img draw.Image, pts []image.Point, c color.Color) {
	if len(pts) == 0 {
		return
	}
	for i := range pts {
		drawLine(img, pts[i], pts[(i+1)%len(pts)], c)
	}
}

// drawLine draws a segment with Bresenham's algorithm, endpoints included.
func drawLine(img draw.Image, a, b image.Point, c color.Color) {
	bounds := img.Bounds()
	dx := absInt(b.X - a.X)
	dy := -absInt(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	e := dx + dy
	x, y := a.X, a.Y
	for {
		if (image.Point{X: x, Y: y}).In(bounds) {
			img.Set(x, y, c)
		}
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

// DrawIndex draws n at (x, y) in a 3x5 pixel font over a background box.
func DrawIndex(img draw.Image, x, y, n int, fg, bg color.Color) {
	drawLabel(img, x, y, strconv.Itoa(n), fg, bg)
}

// glyphs is a 3x5 pixel font for digits.
var glyphs = map[rune][]string{
	'0': {"111", "101", "101", "101", "111"},
	'1': {"010", "110", "010", "010", "111"},
	'2': {"111", "001", "111", "100", "111"},
	'3': {"111", "001", "111", "001", "111"},
	'4': {"101", "101", "111", "001", "001"},
	'5': {"111", "100", "111", "001", "111"},
	'6': {"111", "100", "111", "101", "111"},
	'7': {"111", "001", "001", "001", "001"},
	'8': {"111", "101", "111", "101", "111"},
	'9': {"111", "101", "111", "001", "111"},
	'-': {"000", "000", "111", "000", "000"},
}

// drawLabel draws text at the given position; runes without a glyph leave
// a blank cell.
func drawLabel(img draw.Image, x, y int, text string, fg, bg color.Color) {
	bounds := img.Bounds()
	charWidth := 4
	labelWidth := len(text) * charWidth
	labelHeight := 7

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < labelWidth; dx++ {
			if p := (image.Point{X: x + dx, Y: y + dy}); p.In(bounds) {
				img.Set(p.X, p.Y, bg)
			}
		}
	}

	cx := x
	for _, ch := range text {
		glyph, ok := glyphs[ch]
		if !ok {
			cx += charWidth
			continue
		}
		for row, line := range glyph {
			for col, pixel := range line {
				if pixel != '1' {
					continue
				}
				if p := (image.Point{X: cx + col, Y: y + row}); p.In(bounds) {
					img.Set(p.X, p.Y, fg)
				}
			}
		}
		cx += charWidth
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
