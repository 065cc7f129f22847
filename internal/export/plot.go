package export

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/san-kum/lqrsim/internal/attitude"
	"github.com/san-kum/lqrsim/internal/sim"
)

// Series is one line of a trajectory plot.
type Series struct {
	Label string
	Value func(s sim.Sample) float64
}

func StateSeries(label string, i int) Series {
	return Series{Label: label, Value: func(s sim.Sample) float64 { return s.X[i] }}
}

func ControlSeries(label string, i int) Series {
	return Series{Label: label, Value: func(s sim.Sample) float64 { return s.U[i] }}
}

// EulerSeries plots roll, pitch and yaw in degrees from the quaternion at
// index.
func EulerSeries(index int) []Series {
	angle := func(k int) func(sim.Sample) float64 {
		return func(s sim.Sample) float64 {
			r, p, y := attitude.ToEuler(attitude.FromSlice(s.X, index))
			v := r
			switch k {
			case 1:
				v = p
			case 2:
				v = y
			}
			return v * 180 / math.Pi
		}
	}
	return []Series{
		{Label: "roll", Value: angle(0)},
		{Label: "pitch", Value: angle(1)},
		{Label: "yaw", Value: angle(2)},
	}
}

// Panel is one plot of a figure.
type Panel struct {
	Title  string
	YLabel string
	Series []Series
}

func newPlot(result *sim.Result, panel Panel) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = panel.Title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = panel.YLabel
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	for i, s := range panel.Series {
		pts := make(plotter.XYs, result.Len())
		for k, smp := range result.Samples {
			pts[k].X = smp.T
			pts[k].Y = s.Value(smp)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Label, err)
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(s.Label, line)
	}
	return p, nil
}

// WritePNG renders the panels stacked vertically into one PNG image.
func WritePNG(w io.Writer, result *sim.Result, panels []Panel, widthIn, heightIn float64) error {
	if result.Len() == 0 {
		return fmt.Errorf("nothing to plot")
	}
	if len(panels) == 0 {
		return fmt.Errorf("no panels")
	}

	plots := make([][]*plot.Plot, len(panels))
	for i, panel := range panels {
		p, err := newPlot(result, panel)
		if err != nil {
			return err
		}
		plots[i] = []*plot.Plot{p}
	}

	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(widthIn)*vg.Inch, vg.Length(heightIn)*vg.Inch),
		vgimg.UseDPI(150),
	)
	dc := draw.New(c)
	tiles := draw.Tiles{
		Rows:      len(panels),
		Cols:      1,
		PadX:      vg.Millimeter,
		PadY:      vg.Millimeter * 3,
		PadTop:    vg.Points(10),
		PadBottom: vg.Points(10),
		PadLeft:   vg.Points(10),
		PadRight:  vg.Points(10),
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	bw := bufio.NewWriter(w)
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(bw); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return bw.Flush()
}

// DronePanels is the default figure for a drone run: position, attitude
// and actuator commands.
func DronePanels(posIdx, quatIdx int) []Panel {
	return []Panel{
		{Title: "Position", YLabel: "m", Series: []Series{
			StateSeries("x", posIdx), StateSeries("y", posIdx+1), StateSeries("z", posIdx+2),
		}},
		{Title: "Attitude", YLabel: "deg", Series: EulerSeries(quatIdx)},
		{Title: "Thrust", YLabel: "N", Series: []Series{ControlSeries("thrust", 0)}},
		{Title: "Torques", YLabel: "N·m", Series: []Series{
			ControlSeries("τx", 1), ControlSeries("τy", 2), ControlSeries("τz", 3),
		}},
	}
}

// GenericPanels plots every state component and every control channel.
func GenericPanels(stateDim, controlDim int) []Panel {
	states := make([]Series, stateDim)
	for i := range states {
		states[i] = StateSeries(fmt.Sprintf("x%d", i), i)
	}
	controls := make([]Series, controlDim)
	for i := range controls {
		controls[i] = ControlSeries(fmt.Sprintf("u%d", i), i)
	}
	panels := []Panel{{Title: "State", Series: states}}
	if controlDim > 0 {
		panels = append(panels, Panel{Title: "Control", Series: controls})
	}
	return panels
}
