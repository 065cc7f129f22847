package analysis

import (
	"strings"

	"github.com/san-kum/lqrsim/internal/sim"
)

// PhasePortrait2D holds data for a 2D phase space plot
type PhasePortrait2D struct {
	XIndex, YIndex int
	Points         []struct{ X, Y float64 }
}

// NewPhasePortrait collects components xIdx and yIdx of every recorded
// sample. It returns nil if either index is out of range.
func NewPhasePortrait(result *sim.Result, xIdx, yIdx int) *PhasePortrait2D {
	if result.Len() == 0 {
		return nil
	}
	n := len(result.Samples[0].X)
	if xIdx < 0 || yIdx < 0 || xIdx >= n || yIdx >= n {
		return nil
	}

	portrait := &PhasePortrait2D{
		XIndex: xIdx,
		YIndex: yIdx,
		Points: make([]struct{ X, Y float64 }, 0, result.Len()),
	}
	for _, s := range result.Samples {
		portrait.Points = append(portrait.Points, struct{ X, Y float64 }{X: s.X[xIdx], Y: s.X[yIdx]})
	}
	return portrait
}

// PhasePortraitToASCII converts phase portrait to ASCII art
func PhasePortraitToASCII(portrait *PhasePortrait2D, width, height int) string {
	if portrait == nil || len(portrait.Points) == 0 {
		return ""
	}

	minX, maxX := portrait.Points[0].X, portrait.Points[0].X
	minY, maxY := portrait.Points[0].Y, portrait.Points[0].Y
	for _, p := range portrait.Points {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

	col := func(x float64) int { return int((x - minX) / rangeX * float64(width-1)) }
	row := func(y float64) int { return height - 1 - int((y-minY)/rangeY*float64(height-1)) }

	// axes first so the trajectory draws over them
	if minX <= 0 && maxX >= 0 {
		c := col(0)
		for r := 0; r < height; r++ {
			canvas[r][c] = '│'
		}
	}
	if minY <= 0 && maxY >= 0 {
		r := row(0)
		for c := 0; c < width; c++ {
			if canvas[r][c] == '│' {
				canvas[r][c] = '┼'
			} else {
				canvas[r][c] = '─'
			}
		}
	}

	for i, p := range portrait.Points {
		r, c := row(p.Y), col(p.X)
		if r < 0 || r >= height || c < 0 || c >= width {
			continue
		}
		switch i {
		case 0:
			canvas[r][c] = 'o'
		case len(portrait.Points) - 1:
			canvas[r][c] = 'x'
		default:
			if canvas[r][c] != 'o' {
				canvas[r][c] = '•'
			}
		}
	}

	var sb strings.Builder
	for _, line := range canvas {
		sb.WriteString(string(line))
		sb.WriteRune('\n')
	}
	return sb.String()
}
