package detection

// pixel is an integer position in a mask.
type pixel struct {
	X int
	Y int
}

// component is one 4-connected region of a binary mask together with its
// axis-aligned extent.
type component struct {
	Pixels []pixel
	MinX   int
	MinY   int
	MaxX   int
	MaxY   int
}

// Width returns the horizontal extent in pixels.
func (c component) Width() int { return c.MaxX - c.MinX + 1 }

// Height returns the vertical extent in pixels.
func (c component) Height() int { return c.MaxY - c.MinY + 1 }

// findComponents labels the 4-connected regions of true pixels in mask.
//
// Regions are returned in the order their first pixel is met by a row-major
// scan, which keeps the output stable for identical masks.
func findComponents(mask [][]bool, width, height int) []component {
	visited := make([][]bool, height)
	for y := 0; y < height; y++ {
		visited[y] = make([]bool, width)
	}

	components := make([]component, 0)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if mask[y][x] && !visited[y][x] {
				c := component{MinX: x, MinY: y, MaxX: x, MaxY: y}
				floodFill(mask, visited, x, y, width, height, &c)
				components = append(components, c)
			}
		}
	}

	return components
}

// floodFill performs iterative flood-fill from a starting point.
//
// Uses an explicit stack so large regions cannot overflow the goroutine
// stack. Marks visited pixels, appends them to the component and grows its
// extent. Uses 4-connectivity.
func floodFill(mask, visited [][]bool, startX, startY, width, height int, c *component) {
	stack := []pixel{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			continue
		}
		if visited[p.Y][p.X] || !mask[p.Y][p.X] {
			continue
		}

		visited[p.Y][p.X] = true
		c.Pixels = append(c.Pixels, p)
		if p.X < c.MinX {
			c.MinX = p.X
		}
		if p.X > c.MaxX {
			c.MaxX = p.X
		}
		if p.Y < c.MinY {
			c.MinY = p.Y
		}
		if p.Y > c.MaxY {
			c.MaxY = p.Y
		}

		stack = append(stack,
			pixel{X: p.X + 1, Y: p.Y},
			pixel{X: p.X - 1, Y: p.Y},
			pixel{X: p.X, Y: p.Y + 1},
			pixel{X: p.X, Y: p.Y - 1},
		)
	}
}
