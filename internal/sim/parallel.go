package sim

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/lqrsim/internal/dynamo"
)

// Job is one independent run of an ensemble.
type Job struct {
	Sim  *Simulator
	X0   dynamo.State
	Opts dynamo.Options
}

// Ensemble runs independent simulations concurrently. Each job needs its
// own Simulator when metrics or observers are attached; controllers and
// gains may be shared.
type Ensemble struct {
	jobs  []Job
	limit int
}

// NewEnsemble runs at most limit jobs at a time; limit <= 0 means no
// bound.
func NewEnsemble(limit int, jobs ...Job) *Ensemble {
	return &Ensemble{jobs: jobs, limit: limit}
}

// Run returns one result per job in job order. Runs that fail during
// integration keep their partial result with StatusFailed; only jobs that
// could not start abort the ensemble.
func (e *Ensemble) Run(ctx context.Context) ([]*Result, error) {
	results := make([]*Result, len(e.jobs))

	g, ctx := errgroup.WithContext(ctx)
	if e.limit > 0 {
		g.SetLimit(e.limit)
	}

	for i, job := range e.jobs {
		i, job := i, job
		g.Go(func() error {
			res, err := job.Sim.Run(ctx, job.X0, job.Opts)
			if res == nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
