// Package bestworst turns best-worst responses into choice-format data and
// combines the resulting models.
package bestworst

import (
	"math"

	"conjoint/domain/conjoint"
)

const (
	bestSuffix  = "_best"
	worstSuffix = "_worst"
)

// Split converts best/worst flags into a best dataset (chosen = best) and a
// worst dataset (chosen = worst) whose choice set ids carry a suffix.
func Split(obs []conjoint.Observation) (best, worst []conjoint.Observation) {
	best = make([]conjoint.Observation, 0, len(obs))
	worst = make([]conjoint.Observation, 0, len(obs))
	for _, o := range obs {
		b := o.Clone()
		b.Chosen = o.Best
		b.ChoiceSet = o.ChoiceSet + bestSuffix
		best = append(best, b)

		w := o.Clone()
		w.Chosen = o.Worst
		w.ChoiceSet = o.ChoiceSet + worstSuffix
		worst = append(worst, w)
	}
	return best, worst
}

// Stack builds the simultaneous dataset: best rows as-is followed by worst
// rows with reversed attribute codes, so one preference vector explains both.
func Stack(obs []conjoint.Observation) []conjoint.Observation {
	best, worst := Split(obs)
	out := make([]conjoint.Observation, 0, len(best)+len(worst))
	out = append(out, best...)
	for _, w := range worst {
		w.Reversed = true
		out = append(out, w)
	}
	return out
}

// Combine merges sequential best and worst fits: estimates become
// (best − worst)/2 and standard errors sqrt((se_b² + se_w²)/4). The inputs
// are not modified.
func Combine(best, worst *conjoint.ModelResult) *conjoint.ModelResult {
	out := best.Clone()
	out.Method = conjoint.MethodBestWorstSequential
	for i, t := range out.Terms {
		w, ok := matchTerm(worst, t)
		if !ok || t.Estimate.IsNA() || w.Estimate.IsNA() {
			out.Terms[i].Estimate = conjoint.NA
			out.Terms[i].StdError = conjoint.NA
			continue
		}
		out.Terms[i].Estimate = conjoint.Float((t.Estimate.Value() - w.Estimate.Value()) / 2)
		if t.StdError.IsNA() || w.StdError.IsNA() {
			out.Terms[i].StdError = conjoint.NA
		} else {
			sb, sw := t.StdError.Value(), w.StdError.Value()
			out.Terms[i].StdError = conjoint.Float(math.Sqrt((sb*sb + sw*sw) / 4))
		}
	}
	out.LogLikelihood = conjoint.LogLikelihood{
		Null:      best.LogLikelihood.Null + worst.LogLikelihood.Null,
		Fitted:    best.LogLikelihood.Fitted + worst.LogLikelihood.Fitted,
		Available: best.LogLikelihood.Available && worst.LogLikelihood.Available,
	}
	out.NObs = best.NObs + worst.NObs
	out.NRows = best.NRows + worst.NRows
	out.Convergence = conjoint.Convergence{
		Converged:  best.Convergence.Converged && worst.Convergence.Converged,
		Code:       max(best.Convergence.Code, worst.Convergence.Code),
		Message:    "best: " + best.Convergence.Message + "; worst: " + worst.Convergence.Message,
		Iterations: best.Convergence.Iterations + worst.Convergence.Iterations,
	}
	out.Degraded = best.Degraded || worst.Degraded
	if worst.DegradedReason != "" {
		out.DegradedReason = joinNonEmpty(best.DegradedReason, worst.DegradedReason)
	}
	out.Warnings = append(out.Warnings, worst.Warnings...)
	out.Components = []*conjoint.ModelResult{best.Clone(), worst.Clone()}
	return out
}

func matchTerm(m *conjoint.ModelResult, t conjoint.Term) (conjoint.Term, bool) {
	if t.Constant {
		return m.Constant(t.Name)
	}
	return m.Term(t.Attribute, t.Level)
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "; " + b
	}
}
