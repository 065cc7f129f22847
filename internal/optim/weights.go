package optim

import (
	"context"

	"go.uber.org/zap"

	"github.com/san-kum/lqrsim/internal/config"
	"github.com/san-kum/lqrsim/internal/experiment"
)

const (
	ParamQScale = "q_scale"
	ParamRScale = "r_scale"
)

// TuneWeights searches scale factors for the Q and R diagonals of cfg.
func TuneWeights(ctx context.Context, reg *experiment.Registry, cfg *config.Config, qScales, rScales []float64, metric string, limit int, logger *zap.Logger) (config.WeightsConfig, float64, []Candidate, error) {
	g := NewGridSearch([]string{ParamQScale, ParamRScale}, [][]float64{qScales, rScales})
	g.SetLimit(limit)

	build := func(params map[string]float64) (*experiment.Experiment, error) {
		c := cfg.Clone()
		c.Weights = cfg.Weights.Scaled(params[ParamQScale], params[ParamRScale])
		return experiment.New(reg, c, nil)
	}

	best, cost, cands, err := g.Search(ctx, build, metric)
	if err != nil {
		return config.WeightsConfig{}, cost, cands, err
	}
	if logger != nil {
		logger.Info("tuning finished",
			zap.String("metric", metric),
			zap.Float64("cost", cost),
			zap.Float64(ParamQScale, best[ParamQScale]),
			zap.Float64(ParamRScale, best[ParamRScale]),
			zap.Int("candidates", len(cands)),
		)
	}
	return cfg.Weights.Scaled(best[ParamQScale], best[ParamRScale]), cost, cands, nil
}
