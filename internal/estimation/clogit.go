package estimation

import (
	"context"
	"math"

	"conjoint/domain/conjoint"
	"conjoint/domain/core"
	"conjoint/internal/design"
)

// ConditionalLogit is the primary estimator: maximum likelihood by
// Newton-Raphson with step halving.
type ConditionalLogit struct {
	opts Options
}

// NewConditionalLogit creates the primary estimator.
func NewConditionalLogit(opts Options) *ConditionalLogit {
	return &ConditionalLogit{opts: opts.withDefaults()}
}

func (e *ConditionalLogit) Method() conjoint.Method { return conjoint.MethodConditionalLogit }

// Estimate fits the model. Non-convergence returns a result with a warning;
// separation and singular information return errors.
func (e *ConditionalLogit) Estimate(ctx context.Context, m *design.Matrix) (*conjoint.ModelResult, error) {
	method := e.Method()
	if choiceSetsWithChoice(m) == 0 {
		return nil, insufficientVariation(method, "no choice set has a chosen alternative")
	}
	active := identifiedColumns(m)
	if len(active) == 0 {
		return nil, insufficientVariation(method, "no attribute varies within any choice set")
	}
	p := newLogitProblem(m, active)
	k := p.dim()

	beta := make([]float64, k)
	grad := make([]float64, k)
	info := make([]float64, k*k)
	cand := make([]float64, k)
	ll := p.eval(beta, grad, info)

	conv := conjoint.Convergence{Code: conjoint.ConvergenceMaxIterations, Message: "iteration limit reached"}
	for iter := 1; iter <= e.opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conv.Iterations = iter
		dir, ok := solveNewton(info, grad, k)
		if !ok {
			return nil, estimationFailed(method, "information matrix is singular", core.ErrSingularHessian)
		}

		step := 1.0
		llNew := math.Inf(-1)
		for halving := 0; halving < 30; halving++ {
			for c := range cand {
				cand[c] = beta[c] + step*dir[c]
			}
			llNew = p.eval(cand, nil, nil)
			if llNew >= ll-1e-12 && !math.IsNaN(llNew) {
				break
			}
			step /= 2
		}
		if llNew < ll-1e-12 || math.IsNaN(llNew) {
			conv.Code = conjoint.ConvergenceStepFailed
			conv.Message = "line search could not improve the likelihood"
			break
		}
		copy(beta, cand)
		delta := llNew - ll
		ll = p.eval(beta, grad, info)
		e.opts.Logger.Trace("clogit iteration %d: loglik=%.6f step=%.3g", iter, ll, step)

		if math.Abs(delta) <= e.opts.Tolerance*(1+math.Abs(ll)) || maxAbs(grad) < 1e-7 {
			conv = conjoint.Convergence{Converged: true, Code: conjoint.ConvergenceOK, Message: "converged", Iterations: iter}
			break
		}
		if maxAbs(beta) > 1e3 {
			conv.Code = conjoint.ConvergenceDiverged
			conv.Message = "coefficients diverged"
			break
		}
	}

	cov, ok := covariance(info, k)
	if !ok {
		return nil, estimationFailed(method, "information matrix is singular at the solution", core.ErrSingularHessian)
	}
	terms, warnings := buildTerms(m.Codec, active, beta, cov)
	if sep := separatedTerms(terms); len(sep) > 0 || ll > -1e-9 {
		return nil, separationError(method, sep)
	}

	res := &conjoint.ModelResult{
		Method:        method,
		Terms:         terms,
		LogLikelihood: conjoint.LogLikelihood{Null: nullLogLikelihood(m), Fitted: ll, Available: true},
		NObs:          choiceSetsWithChoice(m),
		NRows:         m.NRows(),
		NParameters:   k,
		Convergence:   conv,
		Warnings:      warnings,
	}
	if !conv.Converged {
		res.Warnings = append(res.Warnings, convergenceWarning(method, conv))
	}
	e.opts.Logger.Debug("clogit finished: loglik=%.4f iterations=%d converged=%v", ll, conv.Iterations, conv.Converged)
	return res, nil
}

func maxAbs(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}

var _ Estimator = (*ConditionalLogit)(nil)
