package estimation

import (
	"context"
	"fmt"

	"conjoint/domain/conjoint"
	"conjoint/internal/design"

	"gonum.org/v1/gonum/optimize"
)

// StratifiedLogit is the fallback estimator: the same likelihood stratified
// by choice set, minimised with BFGS. It tolerates a singular information
// matrix by reporting missing standard errors.
type StratifiedLogit struct {
	opts Options
}

// NewStratifiedLogit creates the fallback estimator.
func NewStratifiedLogit(opts Options) *StratifiedLogit {
	return &StratifiedLogit{opts: opts.withDefaults()}
}

func (e *StratifiedLogit) Method() conjoint.Method { return conjoint.MethodStratifiedLogit }

func (e *StratifiedLogit) Estimate(ctx context.Context, m *design.Matrix) (*conjoint.ModelResult, error) {
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

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return -p.eval(x, nil, nil)
		},
		Grad: func(grad, x []float64) {
			p.eval(x, grad, nil)
			for i := range grad {
				grad[i] = -grad[i]
			}
		},
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: 1e-6,
		MajorIterations:   e.opts.MaxIterations * 10,
		Converger: &optimize.FunctionConverge{
			Absolute:   e.opts.Tolerance,
			Relative:   e.opts.Tolerance,
			Iterations: 10,
		},
	}
	result, err := optimize.Minimize(problem, make([]float64, k), settings, &optimize.BFGS{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil && result == nil {
		return nil, estimationFailed(method, "optimizer failed", err)
	}

	beta := result.X
	conv := conjoint.Convergence{
		Iterations: result.Stats.MajorIterations,
		Message:    result.Status.String(),
	}
	switch result.Status {
	case optimize.GradientThreshold, optimize.FunctionConvergence, optimize.StepConvergence,
		optimize.Success, optimize.MethodConverge:
		conv.Converged = true
		conv.Code = conjoint.ConvergenceOK
	case optimize.IterationLimit:
		conv.Code = conjoint.ConvergenceMaxIterations
	default:
		conv.Code = conjoint.ConvergenceStepFailed
		if err != nil {
			conv.Message = fmt.Sprintf("%s: %v", result.Status, err)
		}
	}

	info := make([]float64, k*k)
	ll := p.eval(beta, nil, info)
	cov, ok := covariance(info, k)
	terms, warnings := buildTerms(m.Codec, active, beta, cov)
	if !ok {
		warnings = append(warnings, conjoint.Warning(codeNoSE,
			"%s: information matrix is singular; standard errors are unavailable", method))
	}
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
	e.opts.Logger.Debug("stratified logit finished: loglik=%.4f status=%s", ll, result.Status)
	return res, nil
}

var _ Estimator = (*StratifiedLogit)(nil)
