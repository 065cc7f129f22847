package optim

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/lqrsim/internal/experiment"
	"github.com/san-kum/lqrsim/internal/sim"
)

// Candidate is one evaluated point of the grid.
type Candidate struct {
	Params map[string]float64
	Cost   float64
	Status sim.Status
	Err    error
}

// GridSearch evaluates every combination of parameter values and keeps
// the one with the lowest metric. Candidates run concurrently, each in its
// own experiment.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	limit      int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// SetLimit bounds the number of candidates simulated at once; zero or
// negative means no bound.
func (g *GridSearch) SetLimit(n int) { g.limit = n }

// Search returns the best parameters, their cost and every candidate in
// grid order. Candidates that fail to build or to run are scored +Inf and
// reported, not returned as errors; only context cancellation aborts the
// search.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) (map[string]float64, float64, []Candidate, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, nil, fmt.Errorf("%d parameter names for %d ranges", len(g.paramNames), len(g.ranges))
	}

	var grid []map[string]float64
	g.enumerate(0, make(map[string]float64), &grid)

	cands := make([]Candidate, len(grid))
	eg, ctx := errgroup.WithContext(ctx)
	if g.limit > 0 {
		eg.SetLimit(g.limit)
	}
	for i, params := range grid {
		i, params := i, params
		eg.Go(func() error {
			cands[i] = evaluate(ctx, params, buildExperiment, metricName)
			return ctx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, 0, cands, err
	}

	best := math.Inf(1)
	var bestParams map[string]float64
	for _, c := range cands {
		if c.Cost < best {
			best, bestParams = c.Cost, c.Params
		}
	}
	if bestParams == nil {
		return nil, best, cands, fmt.Errorf("no candidate produced a finite %s", metricName)
	}
	return bestParams, best, cands, nil
}

func evaluate(
	ctx context.Context,
	params map[string]float64,
	buildExperiment func(map[string]float64) (*experiment.Experiment, error),
	metricName string,
) Candidate {
	c := Candidate{Params: params, Cost: math.Inf(1), Status: sim.StatusFailed}

	exp, err := buildExperiment(params)
	if err != nil {
		c.Err = err
		return c
	}
	result, err := exp.Run(ctx)
	if result != nil {
		c.Status = result.Status
	}
	if err != nil {
		c.Err = err
		return c
	}
	if result.Status != sim.StatusSuccess {
		return c
	}

	val, ok := result.Metrics[metricName]
	if !ok {
		c.Err = fmt.Errorf("unknown metric %q", metricName)
		return c
	}
	if !math.IsNaN(val) {
		c.Cost = val
	}
	return c
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.enumerate(depth+1, newParams, out)
	}
}

// Logspace returns n values spaced evenly on a log scale from lo to hi.
func Logspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	a, b := math.Log10(lo), math.Log10(hi)
	for i := range out {
		out[i] = math.Pow(10, a+(b-a)*float64(i)/float64(n-1))
	}
	return out
}
