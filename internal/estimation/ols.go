package estimation

import (
	"context"
	"math"

	"conjoint/domain/conjoint"
	"conjoint/domain/core"
	"conjoint/internal/design"

	"gonum.org/v1/gonum/mat"
)

// OLS fits rating ~ intercept + dummy-coded attributes by least squares.
// It always reports convergence.
type OLS struct {
	opts Options
}

// NewOLS creates the rating estimator.
func NewOLS(opts Options) *OLS {
	return &OLS{opts: opts.withDefaults()}
}

func (e *OLS) Method() conjoint.Method { return conjoint.MethodRatingOLS }

func (e *OLS) Estimate(ctx context.Context, m *design.Matrix) (*conjoint.ModelResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	method := e.Method()
	n := m.NRows()

	// columns that never vary across rows are not identified next to the intercept
	var active []int
	for j := 0; j < m.NCols(); j++ {
		first := m.X.At(0, j)
		for i := 1; i < n; i++ {
			if m.X.At(i, j) != first {
				active = append(active, j)
				break
			}
		}
	}
	p := len(active) + 1
	if n <= p {
		return nil, insufficientVariation(method,
			"fewer rated profiles than parameters")
	}

	z := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		z.Set(i, 0, 1)
		for k, j := range active {
			z.Set(i, k+1, m.X.At(i, j))
		}
	}
	y := mat.NewVecDense(n, append([]float64(nil), m.Y...))

	var ztz mat.SymDense
	ztz.SymOuterK(1, z.T())
	var chol mat.Cholesky
	if !chol.Factorize(&ztz) {
		return nil, estimationFailed(method, "design columns are collinear", core.ErrSingularHessian)
	}
	var zty mat.VecDense
	zty.MulVec(z.T(), y)
	var coef mat.VecDense
	if err := chol.SolveVecTo(&coef, &zty); err != nil {
		return nil, estimationFailed(method, "least squares solve failed", err)
	}

	var fitted mat.VecDense
	fitted.MulVec(z, &coef)
	rss, tss := 0.0, 0.0
	mean := mat.Sum(y) / float64(n)
	for i := 0; i < n; i++ {
		r := y.AtVec(i) - fitted.AtVec(i)
		rss += r * r
		d := y.AtVec(i) - mean
		tss += d * d
	}
	df := float64(n - p)
	sigma2 := rss / df

	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, estimationFailed(method, "cannot invert the normal equations", err)
	}
	var cov mat.SymDense
	cov.ScaleSym(sigma2, &inv)

	// drop the intercept row/column before decoding terms
	beta := make([]float64, len(active))
	slopeCov := mat.NewSymDense(max(len(active), 1), nil)
	for a := range active {
		beta[a] = coef.AtVec(a + 1)
		for b := a; b < len(active); b++ {
			slopeCov.SetSym(a, b, cov.At(a+1, b+1))
		}
	}
	terms, warnings := buildTerms(m.Codec, active, beta, slopeCov)

	r2, adj := math.NaN(), math.NaN()
	if tss > 0 {
		r2 = 1 - rss/tss
		adj = 1 - (1-r2)*float64(n-1)/df
	}
	e.opts.Logger.Debug("ols finished: n=%d p=%d r2=%.4f", n, p, r2)
	return &conjoint.ModelResult{
		Method:        method,
		Terms:         terms,
		LogLikelihood: conjoint.LogLikelihood{Available: false},
		NObs:          n,
		NRows:         n,
		NParameters:   p,
		Convergence:   conjoint.Convergence{Converged: true, Code: conjoint.ConvergenceOK, Message: "closed form", Iterations: 1},
		RSquared:      conjoint.Float(r2),
		AdjRSquared:   conjoint.Float(adj),
		ResidualSE:    conjoint.Float(math.Sqrt(sigma2)),
		Intercept:     conjoint.Float(coef.AtVec(0)),
		Warnings:      warnings,
	}, nil
}

var _ Estimator = (*OLS)(nil)
