package tui

import (
	"math"
	"strings"

	"github.com/san-kum/lqrsim/internal/attitude"
	"github.com/san-kum/lqrsim/internal/dynamo"
	"github.com/san-kum/lqrsim/internal/physics"
)

type canvas struct {
	w, h  int
	cells [][]rune
}

func newCanvas(w, h int) *canvas {
	c := &canvas{w: w, h: h, cells: make([][]rune, h)}
	for i := range c.cells {
		c.cells[i] = make([]rune, w)
	}
	c.clear()
	return c
}

func (c *canvas) clear() {
	for y := range c.cells {
		for x := range c.cells[y] {
			c.cells[y][x] = ' '
		}
	}
}

func (c *canvas) set(x, y int, r rune) {
	if x >= 0 && x < c.w && y >= 0 && y < c.h {
		c.cells[y][x] = r
	}
}

func (c *canvas) line(x1, y1, x2, y2 int, r rune) {
	dx := intAbs(x2 - x1)
	dy := intAbs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy
	for {
		c.set(x1, y1, r)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func (c *canvas) lines(indent string) []string {
	out := make([]string, len(c.cells))
	for i, row := range c.cells {
		out[i] = indent + string(row)
	}
	return out
}

func (c *canvas) String() string {
	return strings.Join(c.lines(""), "\n")
}

type point struct{ x, y int }

// drawDrone shows the quadrotor from behind: world y to the right, z up,
// the arm tilted by the roll angle. trail holds earlier body positions.
func (c *canvas) drawDrone(x dynamo.State, trail []point) point {
	if len(x) < physics.DroneStateDim {
		return point{}
	}
	for i := 1; i < c.w-1; i++ {
		c.set(i, c.h-1, '▀')
	}

	cx, cy := c.dronePos(x)
	for _, pt := range trail {
		c.set(pt.x, pt.y, '·')
	}

	roll, _, _ := attitude.ToEuler(attitude.FromSlice(x, physics.IdxQuat))
	arm := 5.0
	lx := cx - int(math.Round(arm*math.Cos(roll)))
	ly := cy + int(math.Round(arm*math.Sin(roll)*0.5))
	rx := cx + int(math.Round(arm*math.Cos(roll)))
	ry := cy - int(math.Round(arm*math.Sin(roll)*0.5))

	c.line(lx, ly, rx, ry, '─')
	c.set(cx, cy, '╋')
	c.set(lx, ly, '◉')
	c.set(rx, ry, '◉')
	return point{cx, cy}
}

// dronePos maps world (y, z) onto the canvas, 4 columns and 2 rows per
// meter with z = 0 on the ground line.
func (c *canvas) dronePos(x dynamo.State) (int, int) {
	py, pz := x[physics.IdxPos+1], x[physics.IdxPos+2]
	cx := c.w/2 + int(math.Round(py*4))
	cy := c.h - 2 - int(math.Round(pz*2))
	cy = min(max(cy, 0), c.h-2)
	return cx, cy
}

// drawBars draws one signed bar per state component, scaled to the largest
// magnitude (at least 1).
func (c *canvas) drawBars(x dynamo.State) {
	mid := c.h / 2
	for i := 2; i < c.w-2; i++ {
		c.set(i, mid, '─')
	}
	if len(x) == 0 {
		return
	}
	maxVal := 1.0
	for _, v := range x {
		maxVal = math.Max(maxVal, math.Abs(v))
	}
	bw := max((c.w-8)/len(x), 4)
	for i, v := range x {
		bx := 4 + i*bw
		bh := int((v / maxVal) * float64(c.h/3))
		if bh > 0 {
			for y := mid - 1; y >= mid-bh && y >= 1; y-- {
				c.set(bx, y, '█')
			}
		} else {
			for y := mid + 1; y <= mid-bh && y < c.h-1; y++ {
				c.set(bx, y, '█')
			}
		}
	}
}

func intAbs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// stateLabels names the state components of a model.
func stateLabels(model string, n int) []string {
	if model == "drone" && n == physics.DroneStateDim {
		return []string{"x", "y", "z", "vx", "vy", "vz", "qw", "qx", "qy", "qz", "p", "q", "r"}
	}
	labels := make([]string, n)
	for i := range labels {
		labels[i] = "x" + string(rune('₀'+i%10))
	}
	return labels
}
