package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/lqrsim/internal/sim"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
)

const (
	maxSpeed   = 16
	trailLen   = 30
	graphRows  = 8
	minCanvasW = 50
	minCanvasH = 10
)

var errEmptyRun = errors.New("run has no samples")

// Replay plays a stored run back at a fixed frame rate. The trajectory is
// resampled onto the frame grid up front so playback never interpolates.
type Replay struct {
	name      string
	status    sim.Status
	frames    []sim.Sample
	fps       float64
	labels    []string
	cursor    int
	component int
	speed     int
	paused    bool
	width     int
	height    int
}

func NewReplay(name string, result *sim.Result, fps float64) (*Replay, error) {
	if result == nil || result.Len() == 0 {
		return nil, errEmptyRun
	}
	if !(fps > 0) {
		fps = 30
	}
	first, last := result.Samples[0].T, result.Final().T
	frames, err := sim.Resample(result.Samples, first, 1/fps, last)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		frames = []sim.Sample{result.Samples[0]}
	}
	component := 0
	if name == "drone" {
		component = 2
	}
	return &Replay{
		name:      name,
		status:    result.Status,
		frames:    frames,
		fps:       fps,
		labels:    stateLabels(name, len(frames[0].X)),
		component: component,
		speed:     1,
		width:     80,
		height:    30,
	}, nil
}

type tickMsg time.Time

func (m Replay) tick() tea.Cmd {
	return tea.Tick(time.Duration(float64(time.Second)/m.fps), func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Replay) Init() tea.Cmd { return m.tick() }

func (m Replay) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if !m.paused && !m.done() {
			m.cursor = min(m.cursor+m.speed, len(m.frames)-1)
		}
		return m, m.tick()
	}
	return m, nil
}

func (m Replay) done() bool { return m.cursor >= len(m.frames)-1 }

func (m Replay) handleKey(msg tea.KeyMsg) (Replay, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case " ", "p":
		m.paused = !m.paused
	case "right", "l":
		m.cursor = min(m.cursor+int(m.fps), len(m.frames)-1)
	case "left", "h":
		m.cursor = max(m.cursor-int(m.fps), 0)
	case "home", "r":
		m.cursor = 0
	case "end":
		m.cursor = len(m.frames) - 1
	case "tab", "down", "j":
		m.component = (m.component + 1) % len(m.labels)
	case "shift+tab", "up", "k":
		m.component = (m.component + len(m.labels) - 1) % len(m.labels)
	case "+", "=":
		m.speed = min(m.speed*2, maxSpeed)
	case "-", "_":
		m.speed = max(m.speed/2, 1)
	case "0":
		m.speed = 1
	}
	return m, nil
}

func (m Replay) View() string {
	cw := max(m.width-6, minCanvasW)
	ch := max(m.height-graphRows-12, minCanvasH)
	frame := m.frames[m.cursor]

	c := newCanvas(cw, ch)
	switch m.name {
	case "drone":
		c.drawDrone(frame.X, m.trail(c))
	default:
		c.drawBars(frame.X)
	}

	var b strings.Builder
	b.WriteString("\n   " + m.statusLine() + "\n")
	b.WriteString("   " + m.progressBar(36) + "\n\n")
	for _, row := range c.lines("   ") {
		b.WriteString(row + "\n")
	}
	b.WriteString("\n" + m.stateLine(frame) + "\n")
	b.WriteString(m.controlLine(frame) + "\n\n")
	b.WriteString(m.graph(cw) + "\n")
	b.WriteString("\n" + dim.Render("   space pause  ←→ seek  tab signal  ±speed  r restart  q quit") + "\n")
	return b.String()
}

func (m Replay) statusLine() string {
	icon, text := green.Render("●"), green.Render("playing")
	switch {
	case m.done():
		icon, text = dim.Render("■"), dim.Render("finished")
	case m.paused:
		icon, text = yellow.Render("○"), yellow.Render("paused")
	}
	status := dim.Render(m.status.String())
	if m.status == sim.StatusFailed {
		status = red.Render(m.status.String())
	}
	return fmt.Sprintf("%s %s  %s  %s  %s", icon, cyan.Render(m.name), text, status, dim.Render(fmt.Sprintf("×%d", m.speed)))
}

func (m Replay) progressBar(width int) string {
	t0, t1 := m.frames[0].T, m.frames[len(m.frames)-1].T
	t := m.frames[m.cursor].T
	progress := 1.0
	if t1 > t0 {
		progress = (t - t0) / (t1 - t0)
	}
	filled := min(int(progress*float64(width)), width)
	bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", width-filled))
	return fmt.Sprintf("%s %s", bar, dim.Render(fmt.Sprintf("%.2fs/%.2fs", t, t1)))
}

func (m Replay) stateLine(s sim.Sample) string {
	var b strings.Builder
	b.WriteString("   ")
	for i, v := range s.X {
		label := dim.Render(m.labels[i] + "=")
		if i == m.component {
			label = magenta.Render(m.labels[i] + "=")
		}
		b.WriteString(label + white.Render(fmt.Sprintf("%.3f", v)) + "  ")
		if i%7 == 6 && i < len(s.X)-1 {
			b.WriteString("\n   ")
		}
	}
	return b.String()
}

func (m Replay) controlLine(s sim.Sample) string {
	var b strings.Builder
	b.WriteString("   ")
	for i, v := range s.U {
		b.WriteString(dim.Render(fmt.Sprintf("u%d=", i)) + white.Render(fmt.Sprintf("%.3f", v)) + "  ")
	}
	return b.String()
}

// graph plots the selected component from the start of the run up to the
// cursor.
func (m Replay) graph(width int) string {
	data := make([]float64, 0, m.cursor+1)
	for _, f := range m.frames[:m.cursor+1] {
		data = append(data, f.X[m.component])
	}
	if len(data) < 2 {
		data = append(data, data[0])
	}
	opts := []asciigraph.Option{
		asciigraph.Height(graphRows),
		asciigraph.Width(max(width-12, 20)),
		asciigraph.Precision(3),
		asciigraph.Offset(3),
		asciigraph.Caption(m.labels[m.component]),
	}
	// A flat signal needs an explicit band or the axis degenerates.
	if lo, hi := floats.Min(data), floats.Max(data); lo == hi {
		opts = append(opts, asciigraph.LowerBound(lo-1), asciigraph.UpperBound(hi+1))
	}
	return cyan.Render(asciigraph.Plot(data, opts...))
}

// trail maps the positions of recent frames onto c.
func (m Replay) trail(c *canvas) []point {
	if m.name != "drone" {
		return nil
	}
	start := max(m.cursor-trailLen, 0)
	pts := make([]point, 0, m.cursor-start)
	for _, f := range m.frames[start:m.cursor] {
		x, y := c.dronePos(f.X)
		pts = append(pts, point{x, y})
	}
	return pts
}

// RunReplay opens the replay in the alternate screen and blocks until the
// user quits.
func RunReplay(name string, result *sim.Result, fps float64) error {
	r, err := NewReplay(name, result, fps)
	if err != nil {
		return err
	}
	p := tea.NewProgram(r, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
