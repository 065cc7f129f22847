package tui

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/lqrsim/internal/dynamo"
	"github.com/san-kum/lqrsim/internal/physics"
	"github.com/san-kum/lqrsim/internal/sim"
)

func ramp(n int, dt float64) *sim.Result {
	res := &sim.Result{Status: sim.StatusSuccess}
	for i := 0; i < n; i++ {
		t := float64(i) * dt
		res.Samples = append(res.Samples, sim.Sample{T: t, X: dynamo.State{t, -t}, U: dynamo.Control{1}})
	}
	return res
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, r Replay, msg tea.Msg) Replay {
	t.Helper()
	next, _ := r.Update(msg)
	out, ok := next.(Replay)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return out
}

func TestNewReplayResamples(t *testing.T) {
	r, err := NewReplay("linear", ramp(11, 0.1), 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.frames) != 21 {
		t.Fatalf("frames = %d, want 21", len(r.frames))
	}
	if got := r.frames[1].X[0]; got < 0.0499 || got > 0.0501 {
		t.Errorf("frame 1 x0 = %g, want 0.05", got)
	}
}

func TestNewReplayRejectsEmpty(t *testing.T) {
	if _, err := NewReplay("linear", &sim.Result{}, 30); err == nil {
		t.Error("expected error for empty run")
	}
	if _, err := NewReplay("linear", nil, 30); err == nil {
		t.Error("expected error for nil run")
	}
}

func TestReplayPlayback(t *testing.T) {
	p, err := NewReplay("linear", ramp(11, 0.1), 10)
	if err != nil {
		t.Fatal(err)
	}
	r := *p

	r = update(t, r, tickMsg{})
	if r.cursor != 1 {
		t.Fatalf("cursor after tick = %d, want 1", r.cursor)
	}

	r = update(t, r, tea.KeyMsg{Type: tea.KeySpace})
	if !r.paused {
		t.Fatal("space should pause")
	}
	r = update(t, r, tickMsg{})
	if r.cursor != 1 {
		t.Errorf("paused replay advanced to %d", r.cursor)
	}
	r = update(t, r, runes("p"))

	r = update(t, r, runes("+"))
	r = update(t, r, runes("+"))
	if r.speed != 4 {
		t.Fatalf("speed = %d, want 4", r.speed)
	}
	r = update(t, r, tickMsg{})
	if r.cursor != 5 {
		t.Errorf("cursor = %d, want 5", r.cursor)
	}

	for i := 0; i < 10; i++ {
		r = update(t, r, tickMsg{})
	}
	if !r.done() || r.cursor != len(r.frames)-1 {
		t.Errorf("replay should stop on the last frame, cursor %d of %d", r.cursor, len(r.frames))
	}

	r = update(t, r, runes("r"))
	if r.cursor != 0 {
		t.Errorf("restart left cursor at %d", r.cursor)
	}
}

func TestReplaySeekAndSelect(t *testing.T) {
	p, err := NewReplay("linear", ramp(51, 0.1), 10)
	if err != nil {
		t.Fatal(err)
	}
	r := *p

	r = update(t, r, tea.KeyMsg{Type: tea.KeyRight})
	if r.cursor != 10 {
		t.Errorf("seek forward: cursor = %d, want 10", r.cursor)
	}
	r = update(t, r, tea.KeyMsg{Type: tea.KeyLeft})
	r = update(t, r, tea.KeyMsg{Type: tea.KeyLeft})
	if r.cursor != 0 {
		t.Errorf("seek back clamps at 0, got %d", r.cursor)
	}

	r = update(t, r, tea.KeyMsg{Type: tea.KeyTab})
	if r.component != 1 {
		t.Errorf("component = %d, want 1", r.component)
	}
	r = update(t, r, tea.KeyMsg{Type: tea.KeyTab})
	if r.component != 0 {
		t.Errorf("component should wrap to 0, got %d", r.component)
	}

	_, cmd := r.Update(runes("q"))
	if cmd == nil {
		t.Fatal("q should return a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestReplayView(t *testing.T) {
	p, err := NewReplay("linear", ramp(11, 0.1), 10)
	if err != nil {
		t.Fatal(err)
	}
	view := p.View()
	for _, want := range []string{"linear", "success", "x₀", "u0"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func droneRun() *sim.Result {
	d, err := physics.NewDrone(physics.DefaultDroneParams())
	if err != nil {
		panic(err)
	}
	x := d.HoverState([3]float64{0, 0, 1})
	u := dynamo.Control{d.HoverThrust(), 0, 0, 0}
	return &sim.Result{
		Status: sim.StatusFailed,
		Samples: []sim.Sample{
			{T: 0, X: x, U: u},
			{T: 1, X: x.Clone(), U: u},
		},
	}
}

func TestReplayDroneView(t *testing.T) {
	p, err := NewReplay("drone", droneRun(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if p.labels[p.component] != "z" {
		t.Errorf("drone replay should start on z, got %s", p.labels[p.component])
	}
	view := p.View()
	for _, want := range []string{"╋", "◉", "failed", "qw="} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestLiveRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewLiveRenderer(&buf, "drone", 1000)
	res := droneRun()
	r.Start()
	r.OnStep(res.Samples[0].X, res.Samples[0].U, 0)
	r.Stop()

	out := buf.String()
	if !strings.Contains(out, "drone  t=0.00s") {
		t.Errorf("missing header in %q", out)
	}
	if !strings.Contains(out, "z=1.00") {
		t.Error("missing altitude readout")
	}
	if !strings.HasSuffix(out, showCursor) {
		t.Error("Stop should restore the cursor")
	}
	if got := len(r.trail); got != 1 {
		t.Errorf("trail length = %d, want 1", got)
	}
}

func TestLiveRendererBars(t *testing.T) {
	var buf bytes.Buffer
	r := NewLiveRenderer(&buf, "oscillator", 1000)
	r.OnStep(dynamo.State{2, -1}, dynamo.Control{0.5}, 1.5)
	out := buf.String()
	if !strings.Contains(out, "█") || !strings.Contains(out, "u0=0.50") {
		t.Errorf("unexpected frame %q", out)
	}
}
