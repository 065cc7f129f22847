package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/san-kum/lqrsim/internal/dynamo"
)

const (
	liveWidth   = 70
	liveHeight  = 20
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer redraws the plant on every accepted step, throttled to a
// wall-clock frame rate. It implements dynamo.Observer.
type LiveRenderer struct {
	out       io.Writer
	model     string
	frameRate int
	lastFrame time.Time
	canvas    *canvas
	trail     []point
}

func NewLiveRenderer(out io.Writer, model string, frameRate int) *LiveRenderer {
	return &LiveRenderer{
		out:       out,
		model:     model,
		frameRate: max(frameRate, 1),
		canvas:    newCanvas(liveWidth, liveHeight),
		trail:     make([]point, 0, 40),
	}
}

func (r *LiveRenderer) OnStep(x dynamo.State, u dynamo.Control, t float64) {
	if time.Since(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = time.Now()

	r.canvas.clear()
	switch r.model {
	case "drone":
		pt := r.canvas.drawDrone(x, r.trail)
		r.trail = append(r.trail, pt)
		if len(r.trail) > 40 {
			r.trail = r.trail[1:]
		}
	default:
		r.canvas.drawBars(x)
	}

	r.render(x, u, t)
}

func (r *LiveRenderer) render(x dynamo.State, u dynamo.Control, t float64) {
	var b strings.Builder
	b.WriteString(clearScreen)
	fmt.Fprintf(&b, "  %s  t=%.2fs\n", r.model, t)
	b.WriteString("  " + strings.Repeat("-", liveWidth) + "\n")
	for _, row := range r.canvas.lines("  ") {
		b.WriteString(row + "\n")
	}
	b.WriteString("  " + strings.Repeat("-", liveWidth) + "\n")

	labels := stateLabels(r.model, len(x))
	b.WriteString("  ")
	for i, v := range x {
		if i >= 6 {
			break
		}
		fmt.Fprintf(&b, "%s=%.2f ", labels[i], v)
	}
	b.WriteString("\n  ")
	for i, v := range u {
		fmt.Fprintf(&b, "u%d=%.2f ", i, v)
	}
	b.WriteString("\n")

	fmt.Fprint(r.out, b.String())
}

func (r *LiveRenderer) Start() { fmt.Fprint(r.out, hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Fprint(r.out, showCursor) }
