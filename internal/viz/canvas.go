package viz

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
)

// Braille cells hold 2x4 dots:
//
//	1 4
//	2 5
//	3 6
//	7 8
const brailleBlank = 0x2800

var dotBits = [4][2]rune{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

// Ink says what was drawn into a cell. A cell keeps the highest ink drawn
// into it so pinned particles stay visible on top of edges.
type Ink uint8

const (
	InkNone Ink = iota
	InkEdge
	InkParticle
	InkPinned
)

// Canvas is a braille dot grid of Width x Height cells, i.e. 2*Width by
// 4*Height dots.
type Canvas struct {
	Width, Height int
	cells         [][]rune
	ink           [][]Ink
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		cells:  make([][]rune, h),
		ink:    make([][]Ink, h),
	}
	for i := range c.cells {
		c.cells[i] = make([]rune, w)
		c.ink[i] = make([]Ink, w)
	}
	c.Clear()
	return c
}

// Dots returns the canvas size in dots.
func (c *Canvas) Dots() (int, int) { return c.Width * 2, c.Height * 4 }

// Set turns on the dot at (x, y), tagging its cell with ink. Dots outside
// the canvas are ignored.
func (c *Canvas) Set(x, y int, ink Ink) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.cells[row][col] |= dotBits[y%4][x%2]
	if ink > c.ink[row][col] {
		c.ink[row][col] = ink
	}
}

func (c *Canvas) Clear() {
	for i := range c.cells {
		for j := range c.cells[i] {
			c.cells[i][j] = brailleBlank
			c.ink[i][j] = InkNone
		}
	}
}

// DrawLine draws a Bresenham line between two dots.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int, ink Ink) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0, ink)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// DrawDot draws a 2x2 block of dots around (x, y).
func (c *Canvas) DrawDot(x, y int, ink Ink) {
	for dy := 0; dy < 2; dy++ {
		for dx := 0; dx < 2; dx++ {
			c.Set(x+dx, y+dy, ink)
		}
	}
}

// Render joins rows, passing each run of equally inked cells through paint.
func (c *Canvas) Render(paint func(Ink, string) string) string {
	var b strings.Builder
	for row := range c.cells {
		start := 0
		for col := 1; col <= c.Width; col++ {
			if col < c.Width && c.ink[row][col] == c.ink[row][start] {
				continue
			}
			run := string(c.cells[row][start:col])
			if paint != nil {
				run = paint(c.ink[row][start], run)
			}
			b.WriteString(run)
			start = col
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (c *Canvas) String() string { return c.Render(nil) }

// Viewport maps world coordinates onto canvas dots, y up. Its bounds only
// grow, so a falling cloth does not make the picture jump.
type Viewport struct {
	Min, Max r2.Vec
}

// NewViewport starts from the unit square.
func NewViewport() Viewport {
	return Viewport{Min: r2.Vec{}, Max: r2.Vec{X: 1, Y: 1}}
}

// Fit grows the bounds to contain every position plus a small margin.
func (v *Viewport) Fit(positions []r2.Vec) {
	const margin = 0.05
	for _, p := range positions {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			continue
		}
		v.Min.X = math.Min(v.Min.X, p.X-margin)
		v.Min.Y = math.Min(v.Min.Y, p.Y-margin)
		v.Max.X = math.Max(v.Max.X, p.X+margin)
		v.Max.Y = math.Max(v.Max.Y, p.Y+margin)
	}
}

// Project returns the dot for a world position on a canvas of w x h dots.
// Braille dots are close to square, so one scale serves both axes.
func (v Viewport) Project(p r2.Vec, w, h int) (int, int) {
	span := math.Max(v.Max.X-v.Min.X, v.Max.Y-v.Min.Y)
	if span <= 0 {
		span = 1
	}
	scale := math.Min(float64(w-1), float64(h-1)) / span
	x := (p.X - v.Min.X) * scale
	y := (v.Max.Y - p.Y) * scale
	return int(math.Round(x)), int(math.Round(y))
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
