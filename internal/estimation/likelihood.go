package estimation

import (
	"math"

	"conjoint/internal/design"

	"gonum.org/v1/gonum/mat"
)

// logitProblem is the conditional logit log-likelihood restricted to the
// identified design columns.
type logitProblem struct {
	m      *design.Matrix
	active []int
	x      *mat.Dense
}

// identifiedColumns returns the columns that vary within at least one choice
// set. Columns constant inside every set carry no information for the
// conditional likelihood.
func identifiedColumns(m *design.Matrix) []int {
	var active []int
	for j := 0; j < m.NCols(); j++ {
		for _, s := range m.Sets {
			first := m.X.At(s.Start, j)
			varies := false
			for r := s.Start + 1; r < s.End; r++ {
				if m.X.At(r, j) != first {
					varies = true
					break
				}
			}
			if varies {
				active = append(active, j)
				break
			}
		}
	}
	return active
}

func newLogitProblem(m *design.Matrix, active []int) *logitProblem {
	n := m.NRows()
	x := mat.NewDense(n, max(len(active), 1), nil)
	for i := 0; i < n; i++ {
		for k, j := range active {
			x.Set(i, k, m.X.At(i, j))
		}
	}
	return &logitProblem{m: m, active: active, x: x}
}

func (p *logitProblem) dim() int { return len(p.active) }

// eval returns the log-likelihood at beta. grad and hess are filled when
// non-nil; hess receives the negative Hessian (observed information).
func (p *logitProblem) eval(beta, grad []float64, info []float64) float64 {
	k := p.dim()
	if grad != nil {
		for i := range grad {
			grad[i] = 0
		}
	}
	if info != nil {
		for i := range info {
			info[i] = 0
		}
	}
	xbar := make([]float64, k)
	ll := 0.0
	for _, s := range p.m.Sets {
		if s.Chosen < 0 {
			continue
		}
		size := s.Size()
		v := make([]float64, size)
		maxV := math.Inf(-1)
		for r := 0; r < size; r++ {
			row := p.x.RawRowView(s.Start + r)
			u := 0.0
			for c := 0; c < k; c++ {
				u += row[c] * beta[c]
			}
			v[r] = u
			if u > maxV {
				maxV = u
			}
		}
		denom := 0.0
		for r := range v {
			v[r] = math.Exp(v[r] - maxV)
			denom += v[r]
		}
		chosen := s.Chosen - s.Start
		ll += math.Log(v[chosen]) - math.Log(denom)

		if grad == nil && info == nil {
			continue
		}
		for c := range xbar {
			xbar[c] = 0
		}
		for r := range v {
			v[r] /= denom
			row := p.x.RawRowView(s.Start + r)
			for c := 0; c < k; c++ {
				xbar[c] += v[r] * row[c]
			}
		}
		if grad != nil {
			row := p.x.RawRowView(s.Chosen)
			for c := 0; c < k; c++ {
				grad[c] += row[c] - xbar[c]
			}
		}
		if info != nil {
			for r := range v {
				row := p.x.RawRowView(s.Start + r)
				for a := 0; a < k; a++ {
					da := row[a] - xbar[a]
					if da == 0 {
						continue
					}
					for b := a; b < k; b++ {
						info[a*k+b] += v[r] * da * (row[b] - xbar[b])
					}
				}
			}
		}
	}
	if info != nil {
		for a := 0; a < k; a++ {
			for b := 0; b < a; b++ {
				info[a*k+b] = info[b*k+a]
			}
		}
	}
	return ll
}

// nullLogLikelihood is the log-likelihood of equal choice probabilities.
func nullLogLikelihood(m *design.Matrix) float64 {
	ll := 0.0
	for _, s := range m.Sets {
		if s.Chosen < 0 {
			continue
		}
		ll -= math.Log(float64(s.Size()))
	}
	return ll
}

// choiceSetsWithChoice counts sets that contribute to the likelihood.
func choiceSetsWithChoice(m *design.Matrix) int {
	n := 0
	for _, s := range m.Sets {
		if s.Chosen >= 0 {
			n++
		}
	}
	return n
}

// covariance inverts the information matrix. ok is false when it is not
// positive definite.
func covariance(info []float64, k int) (*mat.SymDense, bool) {
	if k == 0 {
		return nil, false
	}
	sym := mat.NewSymDense(k, append([]float64(nil), info...))
	var chol mat.Cholesky
	if !chol.Factorize(sym) {
		return nil, false
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, false
	}
	return &inv, true
}

// solveNewton returns the Newton direction info⁻¹·grad.
func solveNewton(info, grad []float64, k int) ([]float64, bool) {
	sym := mat.NewSymDense(k, append([]float64(nil), info...))
	var chol mat.Cholesky
	if !chol.Factorize(sym) {
		return nil, false
	}
	var dir mat.VecDense
	if err := chol.SolveVecTo(&dir, mat.NewVecDense(k, append([]float64(nil), grad...))); err != nil {
		return nil, false
	}
	return dir.RawVector().Data, true
}
