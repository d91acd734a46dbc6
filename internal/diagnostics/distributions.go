// Package diagnostics computes model fit, predictive accuracy and significance
// summaries for a fitted conjoint model.
package diagnostics

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ChiSquarePValue is the upper-tail probability of a chi-square statistic.
func ChiSquarePValue(chiSquare float64, degreesOfFreedom int) float64 {
	if degreesOfFreedom <= 0 || math.IsNaN(chiSquare) {
		return math.NaN()
	}
	if chiSquare <= 0 {
		return 1.0
	}
	chiDist := distuv.ChiSquared{K: float64(degreesOfFreedom)}
	return chiDist.Survival(chiSquare)
}

// NormalTwoSidedPValue is the two-sided p-value of a z statistic.
func NormalTwoSidedPValue(z float64) float64 {
	return 2 * distuv.UnitNormal.Survival(math.Abs(z))
}
