package diagnostics

import (
	"fmt"
	"math"

	"conjoint/domain/conjoint"
	"conjoint/internal/design"

	"github.com/montanaflynn/stats"
)

// Quality buckets for McFadden R².
const (
	QualityExcellent  = "excellent"
	QualityGood       = "good"
	QualityAcceptable = "acceptable"
	QualityPoor       = "poor"
)

// Fit computes likelihood-based fit statistics for a choice model. The sample
// size for BIC is the number of choice sets.
func Fit(model *conjoint.ModelResult, m *design.Matrix) conjoint.FitStatistics {
	k := model.NParameters
	n := model.NObs
	fit := conjoint.FitStatistics{
		LogLikNull:    conjoint.NA,
		LogLikFitted:  conjoint.NA,
		McFaddenR2:    conjoint.NA,
		AdjMcFaddenR2: conjoint.NA,
		AIC:           conjoint.NA,
		BIC:           conjoint.NA,
		LRChiSq:       conjoint.NA,
		LRPValue:      conjoint.NA,
		RSquared:      conjoint.NA,
		AdjRSquared:   conjoint.NA,
		RMSE:          conjoint.NA,
		NObs:          n,
		NParameters:   k,
		Converged:     model.Convergence.Converged,
	}
	if !model.Convergence.Converged {
		fit.ConvergeNote = model.Convergence.Message
	}
	if m != nil {
		fit.MeanAltPerSet = m.MeanAlternatives()
	}
	if !model.LogLikelihood.Available {
		fit.Quality, fit.Assessment = "", "log-likelihood is not available for this model"
		return fit
	}

	ll0 := model.LogLikelihood.Null
	ll := model.LogLikelihood.Fitted
	fit.LogLikNull = conjoint.Float(ll0)
	fit.LogLikFitted = conjoint.Float(ll)
	fit.AIC = conjoint.Float(-2*ll + 2*float64(k))
	if n > 0 {
		fit.BIC = conjoint.Float(-2*ll + float64(k)*math.Log(float64(n)))
	}
	lr := 2 * (ll - ll0)
	fit.LRChiSq = conjoint.Float(lr)
	fit.LRDF = k
	fit.LRPValue = conjoint.Float(ChiSquarePValue(lr, k))

	if ll0 < 0 {
		r2 := 1 - ll/ll0
		fit.McFaddenR2 = conjoint.Float(r2)
		fit.AdjMcFaddenR2 = conjoint.Float(1 - (ll-float64(k))/ll0)
		fit.Quality = Quality(r2)
		fit.Assessment = Assess(r2)
	} else {
		fit.Assessment = "null log-likelihood is zero; pseudo R² is undefined"
	}
	return fit
}

// Quality buckets a McFadden R².
func Quality(r2 float64) string {
	switch {
	case r2 > 0.40:
		return QualityExcellent
	case r2 > 0.20:
		return QualityGood
	case r2 > 0.10:
		return QualityAcceptable
	default:
		return QualityPoor
	}
}

// Assess renders the qualitative fit statement for a McFadden R².
func Assess(r2 float64) string {
	switch Quality(r2) {
	case QualityExcellent:
		return fmt.Sprintf("Excellent fit (McFadden R² = %.3f): the attributes explain choices very well", r2)
	case QualityGood:
		return fmt.Sprintf("Good fit (McFadden R² = %.3f): typical of a well-specified choice model", r2)
	case QualityAcceptable:
		return fmt.Sprintf("Acceptable fit (McFadden R² = %.3f): preferences are captured but with noise", r2)
	default:
		return fmt.Sprintf("Poor fit (McFadden R² = %.3f): choices are weakly explained; check attributes and data quality", r2)
	}
}

// RatingFit computes R², adjusted R² and RMSE for a rating model from its
// residuals on the design.
func RatingFit(model *conjoint.ModelResult, m *design.Matrix) conjoint.FitStatistics {
	fit := Fit(model, nil)
	fit.Assessment = ""
	if m == nil || m.NRows() == 0 {
		return fit
	}
	pred := m.Utilities(model.Beta(m.NCols()))
	sq := make([]float64, len(pred))
	for i := range pred {
		r := m.Y[i] - (pred[i] + model.Intercept.Or(0))
		sq[i] = r * r
	}
	mse, err := stats.Mean(sq)
	if err == nil {
		fit.RMSE = conjoint.Float(math.Sqrt(mse))
	}
	fit.RSquared = model.RSquared
	fit.AdjRSquared = model.AdjRSquared
	if !model.RSquared.IsNA() {
		r2 := model.RSquared.Value()
		switch {
		case r2 > 0.7:
			fit.Quality = QualityExcellent
		case r2 > 0.5:
			fit.Quality = QualityGood
		case r2 > 0.3:
			fit.Quality = QualityAcceptable
		default:
			fit.Quality = QualityPoor
		}
		fit.Assessment = fmt.Sprintf("R² = %.3f (%s): share of rating variance explained by the attributes", r2, fit.Quality)
	}
	return fit
}
