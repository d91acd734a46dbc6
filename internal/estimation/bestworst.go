package estimation

import (
	"context"

	"conjoint/domain/conjoint"
	"conjoint/internal/bestworst"
	"conjoint/internal/design"
	"conjoint/internal/errors"
)

// BestWorstSequential fits best and worst choices separately with the inner
// estimator and combines the coefficients.
type BestWorstSequential struct {
	inner Estimator
	opts  Options
}

// NewBestWorstSequential wraps a choice estimator.
func NewBestWorstSequential(inner Estimator, opts Options) *BestWorstSequential {
	return &BestWorstSequential{inner: inner, opts: opts.withDefaults()}
}

func (e *BestWorstSequential) Method() conjoint.Method { return conjoint.MethodBestWorstSequential }

// Estimate reads best/worst flags from the matrix rows.
func (e *BestWorstSequential) Estimate(ctx context.Context, m *design.Matrix) (*conjoint.ModelResult, error) {
	reg := m.Codec.Registry()
	bestObs, worstObs := bestworst.Split(m.Rows)

	bm, err := design.Build(bestObs, reg, design.Options{})
	if err != nil {
		return nil, err
	}
	wm, err := design.Build(worstObs, reg, design.Options{})
	if err != nil {
		return nil, err
	}

	best, err := e.inner.Estimate(ctx, bm)
	if err != nil {
		return nil, errors.Wrap(err, "best choices")
	}
	worst, err := e.inner.Estimate(ctx, wm)
	if err != nil {
		return nil, errors.Wrap(err, "worst choices")
	}
	e.opts.Logger.Debug("best-worst sequential: best loglik=%.4f worst loglik=%.4f",
		best.LogLikelihood.Fitted, worst.LogLikelihood.Fitted)
	return bestworst.Combine(best, worst), nil
}

// BestWorstSimultaneous fits one model on the stacked best and reversed worst data.
type BestWorstSimultaneous struct {
	inner Estimator
	opts  Options
}

// NewBestWorstSimultaneous wraps a choice estimator.
func NewBestWorstSimultaneous(inner Estimator, opts Options) *BestWorstSimultaneous {
	return &BestWorstSimultaneous{inner: inner, opts: opts.withDefaults()}
}

func (e *BestWorstSimultaneous) Method() conjoint.Method {
	return conjoint.MethodBestWorstSimultaneous
}

func (e *BestWorstSimultaneous) Estimate(ctx context.Context, m *design.Matrix) (*conjoint.ModelResult, error) {
	sm, err := design.Build(bestworst.Stack(m.Rows), m.Codec.Registry(), design.Options{})
	if err != nil {
		return nil, err
	}
	res, err := e.inner.Estimate(ctx, sm)
	if err != nil {
		return nil, errors.Wrap(err, "stacked best-worst data")
	}
	out := res.Clone()
	out.Method = e.Method()
	if res.Degraded {
		out.DegradedReason = string(res.Method) + " used: " + res.DegradedReason
	}
	return out, nil
}

var (
	_ Estimator = (*BestWorstSequential)(nil)
	_ Estimator = (*BestWorstSimultaneous)(nil)
)
